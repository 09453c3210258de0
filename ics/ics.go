// Package ics renders appointment and journal items as iCalendar objects.
package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/SpongeData-cz/gopst/store"
)

// prodID identifies the generator in emitted calendar objects.
const prodID = "gopst v1.0.0"

// alarm triggers outside this range are data corruption, not reminders.
const maxAlarmMinutes = 1440

// timeNow is swapped in tests to pin DTSTAMP.
var timeNow = time.Now

// Organizer names the schedule originator for METHOD:REQUEST objects.
type Organizer struct {
	CommonName string
	Email      string
}

// datetime formats t as an RFC2445 UTC date-time.
func datetime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// Escape applies RFC2426 text escaping: backslash, comma and semicolon are
// backslash-escaped and literal newlines fold to "\n".
func Escape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// errWriter latches the first write error so render code stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// WriteCalendar emits a complete VCALENDAR wrapping the item's VEVENT.
// method and organizer are set for schedule requests and empty otherwise.
func WriteCalendar(w io.Writer, item *store.Item, method string, organizer *Organizer) error {
	ew := &errWriter{w: w}
	ew.printf("BEGIN:VCALENDAR\n")
	ew.printf("VERSION:2.0\n")
	ew.printf("PRODID:%s\n", prodID)
	if method != "" {
		ew.printf("METHOD:%s\n", method)
	}
	ew.printf("BEGIN:VEVENT\n")
	if organizer != nil {
		ew.printf("ORGANIZER;CN=\"%s\":MAILTO:%s\n", organizer.CommonName, organizer.Email)
	}
	writeEventBody(ew, item)
	ew.printf("END:VEVENT\n")
	ew.printf("END:VCALENDAR\n")
	return ew.err
}

// WriteAppointment emits the item's appointment as a standalone calendar
// file, without a scheduling method or organizer.
func WriteAppointment(w io.Writer, item *store.Item) error {
	return WriteCalendar(w, item, "", nil)
}

var (
	recurFrequencies = [...]string{"DAILY", "WEEKLY", "MONTHLY", "YEARLY"}
	weekdayCodes     = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}
)

func writeEventBody(ew *errWriter, item *store.Item) {
	appointment := item.Appointment

	ew.printf("UID:%#x\n", item.BlockID)
	ew.printf("DTSTAMP:%s\n", datetime(timeNow()))
	if item.CreateDate != nil {
		ew.printf("CREATED:%s\n", datetime(*item.CreateDate))
	}
	if item.ModifyDate != nil {
		ew.printf("LAST-MOD:%s\n", datetime(*item.ModifyDate))
	}
	if item.Subject != "" {
		ew.printf("SUMMARY:%s\n", Escape(item.Subject))
	}
	if item.Body != "" {
		ew.printf("DESCRIPTION:%s\n", Escape(item.Body))
	}
	if appointment == nil {
		return
	}
	if appointment.Start != nil {
		ew.printf("DTSTART;VALUE=DATE-TIME:%s\n", datetime(*appointment.Start))
	}
	if appointment.End != nil {
		ew.printf("DTEND;VALUE=DATE-TIME:%s\n", datetime(*appointment.End))
	}
	if appointment.Location != "" {
		ew.printf("LOCATION:%s\n", Escape(appointment.Location))
	}

	switch appointment.ShowAs {
	case store.FreeBusyTentative:
		ew.printf("STATUS:TENTATIVE\n")
	case store.FreeBusyFree:
		// free slots stay visible but transparent, and count as confirmed
		ew.printf("TRANSP:TRANSPARENT\n")
		fallthrough
	case store.FreeBusyBusy, store.FreeBusyOutOfOffice:
		ew.printf("STATUS:CONFIRMED\n")
	}

	if appointment.Recurring && appointment.Recurrence != nil {
		writeRecurrence(ew, appointment.Recurrence)
	}

	writeCategories(ew, item, appointment.Label)

	if appointment.Alarm && appointment.AlarmMinutes >= 0 && appointment.AlarmMinutes < maxAlarmMinutes {
		ew.printf("BEGIN:VALARM\n")
		ew.printf("TRIGGER:-PT%dM\n", appointment.AlarmMinutes)
		ew.printf("ACTION:DISPLAY\n")
		ew.printf("DESCRIPTION:Reminder\n")
		ew.printf("END:VALARM\n")
	}
}

func writeRecurrence(ew *errWriter, r *store.Recurrence) {
	if int(r.Type) < 0 || int(r.Type) >= len(recurFrequencies) {
		return
	}
	ew.printf("RRULE:FREQ=%s", recurFrequencies[r.Type])
	if r.Count != 0 {
		ew.printf(";COUNT=%d", r.Count)
	}
	if r.Interval != 0 && r.Interval != 1 {
		ew.printf(";INTERVAL=%d", r.Interval)
	}
	if r.DayOfMonth != 0 {
		ew.printf(";BYMONTHDAY=%d", r.DayOfMonth)
	}
	if r.MonthOfYear != 0 {
		ew.printf(";BYMONTH=%d", r.MonthOfYear)
	}
	if r.Position != 0 {
		ew.printf(";BYSETPOS=%d", r.Position)
	}
	if r.WeekdayMask != 0 {
		sep := ";BYDAY="
		for i, code := range weekdayCodes {
			if r.WeekdayMask&(1<<i) != 0 {
				ew.printf("%s%s", sep, code)
				sep = ","
			}
		}
	}
	ew.printf("\n")
}

var labelCategories = map[store.Label]string{
	store.LabelImportant:        "IMPORTANT",
	store.LabelBusiness:         "BUSINESS",
	store.LabelPersonal:         "PERSONAL",
	store.LabelVacation:         "VACATION",
	store.LabelMustAttend:       "MUST-ATTEND",
	store.LabelTravelRequired:   "TRAVEL-REQUIRED",
	store.LabelNeedsPreparation: "NEEDS-PREPARATION",
	store.LabelBirthday:         "BIRTHDAY",
	store.LabelAnniversary:      "ANNIVERSARY",
	store.LabelPhoneCall:        "PHONE-CALL",
}

func writeCategories(ew *errWriter, item *store.Item, label store.Label) {
	if name, ok := labelCategories[label]; ok {
		ew.printf("CATEGORIES:%s\n", name)
		return
	}
	// unlabeled appointments fall back to the Keywords extra fields
	if !writeExtraCategories(ew, item) {
		ew.printf("CATEGORIES:NONE\n")
	}
}

// writeExtraCategories emits a CATEGORIES line built from the "Keywords"
// extra fields and reports whether anything was written.
func writeExtraCategories(ew *errWriter, item *store.Item) bool {
	format := "CATEGORIES:%s"
	started := false
	for _, ef := range item.ExtraFields {
		if ef.Name != "Keywords" {
			continue
		}
		ew.printf(format, Escape(ef.Value))
		format = ", %s"
		started = true
	}
	if started {
		ew.printf("\n")
	}
	return started
}

// WriteJournal emits the item as a VCALENDAR-wrapped VJOURNAL entry.
func WriteJournal(w io.Writer, item *store.Item) error {
	ew := &errWriter{w: w}
	ew.printf("BEGIN:VCALENDAR\n")
	ew.printf("VERSION:2.0\n")
	ew.printf("PRODID:%s\n", prodID)
	ew.printf("BEGIN:VJOURNAL\n")
	ew.printf("DTSTAMP:%s\n", datetime(timeNow()))
	if item.CreateDate != nil {
		ew.printf("CREATED:%s\n", datetime(*item.CreateDate))
	}
	if item.ModifyDate != nil {
		ew.printf("LAST-MOD:%s\n", datetime(*item.ModifyDate))
	}
	if item.Subject != "" {
		ew.printf("SUMMARY:%s\n", Escape(item.Subject))
	}
	if item.Body != "" {
		ew.printf("DESCRIPTION:%s\n", Escape(item.Body))
	}
	if item.Journal != nil && item.Journal.Start != nil {
		ew.printf("DTSTART;VALUE=DATE-TIME:%s\n", datetime(*item.Journal.Start))
	}
	ew.printf("END:VJOURNAL\n")
	ew.printf("END:VCALENDAR\n")
	return ew.err
}
