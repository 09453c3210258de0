// Package record turns generically-parsed store items into typed export
// records and writes them to disk.
package record

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/SpongeData-cz/gopst/eml"
	"github.com/SpongeData-cz/gopst/ics"
	"github.com/SpongeData-cz/gopst/store"
)

// ErrUnknownRecordKind marks a Record carrying a Kind outside the closed
// enum. It indicates a defect, not bad input.
var ErrUnknownRecordKind = errors.New("record: unknown record kind")

// Kind discriminates the record variants. A Record carries exactly one
// Kind, set at classification time and never changed.
type Kind int

const (
	KindMessageStore Kind = iota
	KindFolder
	KindMessage
	KindJournal
	KindAppointment
)

func (k Kind) String() string {
	switch k {
	case KindMessageStore:
		return "message_store"
	case KindFolder:
		return "folder"
	case KindMessage:
		return "message"
	case KindJournal:
		return "journal"
	case KindAppointment:
		return "appointment"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// defaultNames supplies the display name when the item carries none.
var defaultNames = map[Kind]string{
	KindMessageStore: "unnamed_message_store",
	KindFolder:       "unnamed_folder",
	KindMessage:      "unnamed_message",
	KindJournal:      "unnamed_journal",
	KindAppointment:  "unnamed_appointment",
}

// Record is one classified export unit.
type Record struct {
	Kind        Kind
	LogicalPath string // store-relative folder path, set by the walker
	Name        string // display name, defaulted per kind

	// Item is the parsed payload; the record owns it.
	Item *store.Item

	renaming string // destination override for ToFile
	store    store.Store
}

// SetRenaming overrides the destination path ToFile writes to.
func (r *Record) SetRenaming(dest string) { r.renaming = dest }

// Renaming returns the destination path override, "" when unset.
func (r *Record) Renaming() string { return r.renaming }

// Store returns the store handle the record was classified against.
func (r *Record) Store() store.Store { return r.store }

// Classify inspects an item and produces its Record, or (nil, false) for
// shapes that are recognized but never exported (contacts) and for
// everything unrecognized. The checks run in a fixed priority order so
// classification is deterministic even for items carrying several
// sub-records.
func Classify(item *store.Item, st store.Store) (*Record, bool) {
	var kind Kind
	switch {
	case item.MessageStore != nil:
		kind = KindMessageStore
	case item.Email != nil &&
		(item.Type == store.TypeNote || item.Type == store.TypeSchedule || item.Type == store.TypeReport):
		kind = KindMessage
	case item.Folder != nil:
		kind = KindFolder
	case item.Journal != nil && item.Type == store.TypeJournal:
		kind = KindJournal
	case item.Appointment != nil && item.Type == store.TypeAppointment:
		kind = KindAppointment
	default:
		return nil, false
	}

	name := item.DisplayName
	if name == "" {
		name = defaultNames[kind]
	}
	return &Record{Kind: kind, Name: name, Item: item, store: st}, true
}

// ExportConf parameterizes ToFile.
type ExportConf struct {
	Mode         Mode
	EmailOptions eml.Options
}

// Mode selects the on-disk layout of the export.
type Mode int

const (
	ModeNormal Mode = iota // one mbox per folder
	ModeKMail              // kmail-style folder naming, mbox per folder
	ModeRecurse            // one file per record in a directory tree
	ModeSeparate
)

var modeNames = map[string]Mode{
	"normal":   ModeNormal,
	"kmail":    ModeKMail,
	"recurse":  ModeRecurse,
	"separate": ModeSeparate,
}

// ParseMode maps a mode flag value to its Mode.
func ParseMode(s string) (Mode, error) {
	m, ok := modeNames[s]
	if !ok {
		return 0, fmt.Errorf("record: unknown export mode %q", s)
	}
	return m, nil
}

func (m Mode) String() string {
	for name, mode := range modeNames {
		if mode == m {
			return name
		}
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ToFile writes the record to its renaming destination and returns the
// number of bytes written. Message stores write nothing, folders create
// their directory. An error affects this record only.
func (r *Record) ToFile(conf ExportConf) (int64, error) {
	switch r.Kind {
	case KindMessageStore:
		return 0, nil

	case KindFolder:
		if err := os.MkdirAll(r.renaming, 0o755); err != nil {
			return 0, fmt.Errorf("record: creating folder %q: %w", r.renaming, err)
		}
		return 0, nil

	case KindMessage:
		if conf.Mode == ModeSeparate {
			return 0, eml.ErrUnsupportedParameter
		}
		return r.writeFile(func(w io.Writer) error {
			return eml.Compose(w, r.Item, r.store, conf.EmailOptions)
		})

	case KindJournal:
		return r.writeFile(func(w io.Writer) error {
			return ics.WriteJournal(w, r.Item)
		})

	case KindAppointment:
		return r.writeFile(func(w io.Writer) error {
			return ics.WriteAppointment(w, r.Item)
		})
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownRecordKind, int(r.Kind))
}

func (r *Record) writeFile(write func(io.Writer) error) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(r.renaming), 0o755); err != nil {
		return 0, fmt.Errorf("record: creating parent of %q: %w", r.renaming, err)
	}
	f, err := os.Create(r.renaming)
	if err != nil {
		return 0, fmt.Errorf("record: creating %q: %w", r.renaming, err)
	}
	cw := &countingWriter{w: f}
	werr := write(cw)
	cerr := f.Close()
	if werr != nil {
		return cw.n, werr
	}
	if cerr != nil {
		return cw.n, fmt.Errorf("record: closing %q: %w", r.renaming, cerr)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
