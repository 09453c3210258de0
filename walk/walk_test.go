package walk

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/SpongeData-cz/gopst/record"
	"github.com/SpongeData-cz/gopst/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func folderItem(name string) *store.Item {
	return &store.Item{DisplayName: name, Folder: &store.Folder{}}
}

func messageItem(subject string) *store.Item {
	return &store.Item{
		Type:        store.TypeNote,
		DisplayName: subject,
		Subject:     subject,
		Email:       &store.Email{SenderAddress: "a@example.com"},
	}
}

// newStore builds the minimal valid tree: a message-store root with a
// top-of-folders node beneath it. Fixtures hang their folders off top.
func newStore(name string) (*store.Tree, *store.Node) {
	st := store.NewTree(name)
	root := st.AddNode(nil, &store.Item{DisplayName: "Personal Folders", MessageStore: &store.MessageStore{}})
	top := st.AddNode(root, folderItem("Top of Personal Folders"))
	st.SetTopOfFolders(top)
	return st, top
}

func TestBuild_Scenario(t *testing.T) {
	st, top := newStore("outlook.pst")
	inbox := st.AddNode(top, folderItem("Inbox"))
	st.AddNode(inbox, messageItem("Hi"))
	st.AddNode(inbox, messageItem("Hello"))

	enum, err := Build(st, quietLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if enum.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", enum.Len())
	}

	records := enum.Records()
	if records[0].Kind != record.KindMessageStore {
		t.Errorf("first record kind = %v, want message store", records[0].Kind)
	}
	if records[1].Kind != record.KindFolder || records[1].Name != "Inbox" || records[1].LogicalPath != "" {
		t.Errorf("folder record = %v %q at %q", records[1].Kind, records[1].Name, records[1].LogicalPath)
	}
	for i, subject := range []string{"Hi", "Hello"} {
		rec := records[2+i]
		if rec.Kind != record.KindMessage || rec.Name != subject || rec.LogicalPath != "Inbox" {
			t.Errorf("message %d = %v %q at %q", i, rec.Kind, rec.Name, rec.LogicalPath)
		}
	}
	if enum.StoreName() != "outlook.pst" {
		t.Errorf("StoreName() = %q", enum.StoreName())
	}
}

func TestBuild_LogicalPathsRunDeep(t *testing.T) {
	st, top := newStore("deep.pst")
	a := st.AddNode(top, folderItem("A"))
	b := st.AddNode(a, folderItem("B"))
	c := st.AddNode(b, folderItem("C"))
	st.AddNode(c, messageItem("leaf"))

	enum, err := Build(st, quietLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	last := enum.Records()[enum.Len()-1]
	if last.LogicalPath != "A/B/C" {
		t.Errorf("LogicalPath = %q, want A/B/C without leading separator", last.LogicalPath)
	}
}

func TestBuild_ChildlessFolderSkipped(t *testing.T) {
	st, top := newStore("empty.pst")
	st.AddNode(top, folderItem("Drafts"))
	inbox := st.AddNode(top, folderItem("Inbox"))
	st.AddNode(inbox, messageItem("kept"))

	enum, err := Build(st, quietLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, rec := range enum.Records() {
		if rec.Name == "Drafts" {
			t.Error("childless folder must not be enumerated")
		}
	}
	if enum.Len() != 3 {
		t.Errorf("Len() = %d, want 3", enum.Len())
	}
}

func TestBuild_SkipsBrokenNodes(t *testing.T) {
	st, top := newStore("broken.pst")
	inbox := st.AddNode(top, folderItem("Inbox"))
	st.AddBareNode(inbox)  // no descriptor
	st.AddNode(inbox, nil) // descriptor without item
	// contacts are recognized but never exported
	st.AddNode(inbox, &store.Item{Type: store.TypeContact, Contact: &store.Contact{}})
	st.AddNode(inbox, messageItem("survivor"))

	enum, err := Build(st, quietLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if enum.Len() != 3 {
		t.Fatalf("Len() = %d, want store, Inbox and one message", enum.Len())
	}
	last := enum.Records()[2]
	if last.Name != "survivor" {
		t.Errorf("surviving record = %q", last.Name)
	}
}

func TestBuild_DuplicateMessageStoreAborts(t *testing.T) {
	st, top := newStore("dup.pst")
	inbox := st.AddNode(top, folderItem("Inbox"))
	sub := st.AddNode(inbox, folderItem("Sub"))
	st.AddNode(sub, &store.Item{MessageStore: &store.MessageStore{}})

	_, err := Build(st, quietLogger())
	if !errors.Is(err, ErrDuplicateMessageStore) {
		t.Errorf("Build() error = %v, want ErrDuplicateMessageStore", err)
	}
}

func TestBuild_RootNotFound(t *testing.T) {
	st := store.NewTree("topless.pst")
	st.AddNode(nil, &store.Item{MessageStore: &store.MessageStore{}})

	_, err := Build(st, quietLogger())
	if !errors.Is(err, ErrRootNotFound) {
		t.Errorf("Build() error = %v, want ErrRootNotFound", err)
	}
}

func TestBuild_RootMustBeMessageStore(t *testing.T) {
	st := store.NewTree("folder-root.pst")
	root := st.AddNode(nil, folderItem("not a store"))
	st.SetTopOfFolders(root)

	if _, err := Build(st, quietLogger()); err == nil {
		t.Error("Build() must reject a root that is not a message store")
	}
}

func TestBuild_RootNameDefaulted(t *testing.T) {
	st := store.NewTree("/data/export/archive.pst")
	root := st.AddNode(nil, &store.Item{MessageStore: &store.MessageStore{}})
	top := st.AddNode(root, folderItem("Top"))
	st.SetTopOfFolders(top)

	enum, err := Build(st, quietLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := enum.Records()[0].Name; got != "archive.pst" {
		t.Errorf("root record name = %q, want archive.pst", got)
	}
}
