package record

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SpongeData-cz/gopst/eml"
	"github.com/SpongeData-cz/gopst/store"
)

func TestClassify(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		item     *store.Item
		wantKind Kind
		wantOK   bool
	}{
		{
			name:     "message store",
			item:     &store.Item{MessageStore: &store.MessageStore{}},
			wantKind: KindMessageStore,
			wantOK:   true,
		},
		{
			name:     "note email",
			item:     &store.Item{Type: store.TypeNote, Email: &store.Email{}},
			wantKind: KindMessage,
			wantOK:   true,
		},
		{
			name:     "schedule email",
			item:     &store.Item{Type: store.TypeSchedule, Email: &store.Email{}},
			wantKind: KindMessage,
			wantOK:   true,
		},
		{
			name:     "report email",
			item:     &store.Item{Type: store.TypeReport, Email: &store.Email{}},
			wantKind: KindMessage,
			wantOK:   true,
		},
		{
			name:     "folder",
			item:     &store.Item{Folder: &store.Folder{}},
			wantKind: KindFolder,
			wantOK:   true,
		},
		{
			name:     "journal",
			item:     &store.Item{Type: store.TypeJournal, Journal: &store.Journal{Start: &start}},
			wantKind: KindJournal,
			wantOK:   true,
		},
		{
			name:     "appointment",
			item:     &store.Item{Type: store.TypeAppointment, Appointment: &store.Appointment{Start: &start}},
			wantKind: KindAppointment,
			wantOK:   true,
		},
		{
			name:   "contact never exported",
			item:   &store.Item{Type: store.TypeContact, Contact: &store.Contact{}},
			wantOK: false,
		},
		{
			name:   "email data with wrong item type",
			item:   &store.Item{Type: store.TypeContact, Email: &store.Email{}},
			wantOK: false,
		},
		{
			name:   "journal data without journal type",
			item:   &store.Item{Type: store.TypeNote, Journal: &store.Journal{}},
			wantOK: false,
		},
		{
			name:   "empty item",
			item:   &store.Item{},
			wantOK: false,
		},
	}
	st := store.NewTree("x.pst")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := Classify(tt.item, st)
			if ok != tt.wantOK {
				t.Fatalf("Classify() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				if rec != nil {
					t.Error("Classify() returned a record with ok=false")
				}
				return
			}
			if rec.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", rec.Kind, tt.wantKind)
			}
			if rec.Item != tt.item {
				t.Error("record must carry the classified item")
			}
		})
	}
}

// Items carrying several sub-records classify by the fixed priority, so a
// message store node that also parses folder data still becomes the store.
func TestClassify_Priority(t *testing.T) {
	st := store.NewTree("x.pst")
	item := &store.Item{
		Type:         store.TypeNote,
		MessageStore: &store.MessageStore{},
		Folder:       &store.Folder{},
		Email:        &store.Email{},
	}
	rec, ok := Classify(item, st)
	if !ok || rec.Kind != KindMessageStore {
		t.Fatalf("Classify() = %v, %v, want message store first", rec, ok)
	}

	item = &store.Item{Type: store.TypeNote, Folder: &store.Folder{}, Email: &store.Email{}}
	rec, ok = Classify(item, st)
	if !ok || rec.Kind != KindMessage {
		t.Fatalf("Classify() = %v, %v, want message before folder", rec, ok)
	}
}

func TestClassify_DefaultNames(t *testing.T) {
	st := store.NewTree("x.pst")
	tests := []struct {
		item *store.Item
		want string
	}{
		{&store.Item{MessageStore: &store.MessageStore{}}, "unnamed_message_store"},
		{&store.Item{Folder: &store.Folder{}}, "unnamed_folder"},
		{&store.Item{Type: store.TypeNote, Email: &store.Email{}}, "unnamed_message"},
		{&store.Item{Folder: &store.Folder{}, DisplayName: "Inbox"}, "Inbox"},
	}
	for _, tt := range tests {
		rec, ok := Classify(tt.item, st)
		if !ok {
			t.Fatalf("Classify(%+v) rejected", tt.item)
		}
		if rec.Name != tt.want {
			t.Errorf("Name = %q, want %q", rec.Name, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for name, want := range map[string]Mode{
		"normal":   ModeNormal,
		"kmail":    ModeKMail,
		"recurse":  ModeRecurse,
		"separate": ModeSeparate,
	} {
		got, err := ParseMode(name)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseMode("maildir"); err == nil {
		t.Error("ParseMode must reject unknown modes")
	}
}

func TestToFile_MessageStore(t *testing.T) {
	rec := &Record{Kind: KindMessageStore}
	n, err := rec.ToFile(ExportConf{})
	if n != 0 || err != nil {
		t.Errorf("ToFile() = %d, %v, want 0, nil", n, err)
	}
}

func TestToFile_Folder(t *testing.T) {
	dir := t.TempDir()
	rec := &Record{Kind: KindFolder}
	rec.SetRenaming(filepath.Join(dir, "Inbox", "Sub"))
	if _, err := rec.ToFile(ExportConf{}); err != nil {
		t.Fatalf("ToFile() error = %v", err)
	}
	info, err := os.Stat(rec.Renaming())
	if err != nil || !info.IsDir() {
		t.Errorf("folder record must create its directory: %v", err)
	}
}

func TestToFile_Message(t *testing.T) {
	dir := t.TempDir()
	st := store.NewTree("x.pst")
	item := &store.Item{
		Type:    store.TypeNote,
		Subject: "Hello",
		Body:    "world",
		Email:   &store.Email{SenderAddress: "a@example.com"},
	}
	rec, ok := Classify(item, st)
	if !ok {
		t.Fatal("Classify rejected a note email")
	}
	rec.SetRenaming(filepath.Join(dir, "1_Hello.eml"))

	n, err := rec.ToFile(ExportConf{Mode: ModeRecurse})
	if err != nil {
		t.Fatalf("ToFile() error = %v", err)
	}
	data, err := os.ReadFile(rec.Renaming())
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if int64(len(data)) != n {
		t.Errorf("ToFile() = %d bytes, file has %d", n, len(data))
	}
	if !strings.Contains(string(data), "Subject: Hello") {
		t.Error("exported message missing subject")
	}
}

func TestToFile_SeparateRejected(t *testing.T) {
	st := store.NewTree("x.pst")
	rec, _ := Classify(&store.Item{Type: store.TypeNote, Email: &store.Email{}}, st)
	_, err := rec.ToFile(ExportConf{Mode: ModeSeparate})
	if !errors.Is(err, eml.ErrUnsupportedParameter) {
		t.Errorf("ToFile() error = %v, want ErrUnsupportedParameter", err)
	}
}

func TestToFile_Appointment(t *testing.T) {
	dir := t.TempDir()
	st := store.NewTree("x.pst")
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	item := &store.Item{
		Type:        store.TypeAppointment,
		Subject:     "Standup",
		Appointment: &store.Appointment{Start: &start},
	}
	rec, ok := Classify(item, st)
	if !ok {
		t.Fatal("Classify rejected an appointment")
	}
	rec.SetRenaming(filepath.Join(dir, "1_Standup.ics"))
	if _, err := rec.ToFile(ExportConf{}); err != nil {
		t.Fatalf("ToFile() error = %v", err)
	}
	data, _ := os.ReadFile(rec.Renaming())
	if !strings.Contains(string(data), "BEGIN:VEVENT") {
		t.Error("appointment export missing VEVENT")
	}
}

func TestToFile_UnknownKind(t *testing.T) {
	rec := &Record{Kind: Kind(99)}
	_, err := rec.ToFile(ExportConf{})
	if !errors.Is(err, ErrUnknownRecordKind) {
		t.Errorf("ToFile() error = %v, want ErrUnknownRecordKind", err)
	}
}
