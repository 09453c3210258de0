// Package store models the descriptor tree and items handed over by the
// PST access layer. The binary file format itself lives behind the Store
// interface; the engine only sees parsed items.
package store

import (
	"errors"
	"time"
)

var (
	ErrCannotOpen      = errors.New("store: cannot open file")
	ErrCannotLoadIndex = errors.New("store: cannot load index")
)

// ItemType is the fine-grained type tag carried by every item.
type ItemType int

const (
	TypeOther ItemType = iota
	TypeNote
	TypeSchedule
	TypeReport
	TypeJournal
	TypeAppointment
	TypeContact
	TypeStickyNote
	TypeTask
)

func (t ItemType) String() string {
	switch t {
	case TypeNote:
		return "note"
	case TypeSchedule:
		return "schedule"
	case TypeReport:
		return "report"
	case TypeJournal:
		return "journal"
	case TypeAppointment:
		return "appointment"
	case TypeContact:
		return "contact"
	case TypeStickyNote:
		return "stickynote"
	case TypeTask:
		return "task"
	}
	return "other"
}

// AttachMethod describes how an attachment is stored on its item.
type AttachMethod int

const (
	AttachByValue AttachMethod = iota
	AttachByReference
	AttachEmbedded
)

// Attachment is one attachment entry of an item. Data may be inline or
// resolvable through the store by BlobID.
type Attachment struct {
	Filename      string // long filename, preferred
	ShortFilename string
	MimeType      string
	Method        AttachMethod
	Data          []byte
	BlobID        uint64

	// EmbeddedItem backs ParseEmbedded for in-memory stores.
	EmbeddedItem *Item
}

// DisplayName returns the filename to present for the attachment.
func (a *Attachment) DisplayName() string {
	if a.Filename != "" {
		return a.Filename
	}
	return a.ShortFilename
}

// ExtraField is a named free-form property, e.g. "Keywords".
type ExtraField struct {
	Name  string
	Value string
}

// MessageStore marks the single root record of a store.
type MessageStore struct{}

// Folder is the folder sub-record.
type Folder struct {
	ItemCount int32
}

// Contact is parsed but never exported in the current scope.
type Contact struct {
	FullName     string
	EmailAddress string
}

// Email is the mail sub-record of message-like items.
type Email struct {
	Header        string // captured transport headers, frequently bogus
	SenderName    string
	SenderAddress string
	SentTo        string
	CC            string
	BCC           string
	SentDate      *time.Time
	MessageID     string
	HTMLBody      string
	ReportText    string
	RTFCompressed []byte

	encryptedBody     []byte
	encryptedHTMLBody []byte
}

// SetEncryptedBody installs an opaque encrypted plain-text body blob.
func (e *Email) SetEncryptedBody(data []byte) { e.encryptedBody = data }

// SetEncryptedHTMLBody installs an opaque encrypted HTML body blob.
func (e *Email) SetEncryptedHTMLBody(data []byte) { e.encryptedHTMLBody = data }

// TakeEncryptedBody moves the encrypted body out of the item. The field is
// cleared so the blob is consumed exactly once.
func (e *Email) TakeEncryptedBody() []byte {
	data := e.encryptedBody
	e.encryptedBody = nil
	return data
}

// TakeEncryptedHTMLBody moves the encrypted HTML body out of the item.
func (e *Email) TakeEncryptedHTMLBody() []byte {
	data := e.encryptedHTMLBody
	e.encryptedHTMLBody = nil
	return data
}

// FreeBusy is the appointment show-as state.
type FreeBusy int

const (
	FreeBusyTentative FreeBusy = iota
	FreeBusyFree
	FreeBusyBusy
	FreeBusyOutOfOffice
)

// Label is the appointment category label.
type Label int

const (
	LabelNone Label = iota
	LabelImportant
	LabelBusiness
	LabelPersonal
	LabelVacation
	LabelMustAttend
	LabelTravelRequired
	LabelNeedsPreparation
	LabelBirthday
	LabelAnniversary
	LabelPhoneCall
)

// RecurrenceType is the recurrence frequency.
type RecurrenceType int

const (
	RecurDaily RecurrenceType = iota
	RecurWeekly
	RecurMonthly
	RecurYearly
)

// Recurrence describes a recurring appointment.
type Recurrence struct {
	Type        RecurrenceType
	Count       uint32
	Interval    uint32
	DayOfMonth  int32
	MonthOfYear int32
	Position    int32
	WeekdayMask uint8 // bit 0 = Sunday
}

// Appointment is the calendar sub-record.
type Appointment struct {
	Start        *time.Time
	End          *time.Time
	Location     string
	ShowAs       FreeBusy
	Label        Label
	AllDay       bool
	Recurring    bool
	Recurrence   *Recurrence
	Alarm        bool
	AlarmMinutes int32
}

// Journal is the journal sub-record.
type Journal struct {
	Start *time.Time
	End   *time.Time
}

// Item is a generically-parsed store node. Exactly which sub-records are
// non-nil decides how the record layer classifies it.
type Item struct {
	Type        ItemType
	DisplayName string // file_as
	Subject     string
	Body        string
	Charset     string // default body charset, empty means utf-8
	Read        bool
	CreateDate  *time.Time
	ModifyDate  *time.Time
	BlockID     uint64
	ExtraFields []ExtraField
	Attachments []*Attachment

	MessageStore *MessageStore
	Folder       *Folder
	Contact      *Contact
	Email        *Email
	Journal      *Journal
	Appointment  *Appointment
}

// Node is one descriptor-tree node. Items hang off nodes and are resolved
// lazily through Store.ParseItem.
type Node struct {
	ID            uint64
	HasDescriptor bool
	Child         *Node
	Next          *Node
}

// Store is the access layer contract. Implementations: the in-memory Tree
// (tests, fixtures) and the go-pst file adapter.
type Store interface {
	// Name reports the source path, used to default the root display name.
	Name() string
	// Root returns the head of the descriptor tree.
	Root() *Node
	// TopOfFolders locates the top-level folder node beneath the root item.
	TopOfFolders(root *Item) *Node
	// ParseItem resolves a node to its item. A nil item with nil error
	// means the node is present but unresolvable; callers skip it.
	ParseItem(n *Node) (*Item, error)
	// ResolveBlob fetches attachment data by its opaque id.
	ResolveBlob(id uint64) ([]byte, error)
	// ParseEmbedded resolves an embedded-message attachment to its item.
	ParseEmbedded(att *Attachment) (*Item, error)
	// DecompressRTF expands a compressed rich-text body.
	DecompressRTF(data []byte) ([]byte, error)
	Close() error
}
