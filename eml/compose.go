package eml

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/SpongeData-cz/gopst/ics"
	"github.com/SpongeData-cz/gopst/store"
)

var (
	// ErrRecursionLimit is returned when embedded messages nest deeper
	// than maxEmbeddingDepth levels.
	ErrRecursionLimit = errors.New("eml: embedded message nesting too deep")

	// ErrUnsupportedParameter marks export modes that are understood but
	// not implemented, such as the separate mode.
	ErrUnsupportedParameter = errors.New("eml: unsupported export parameter")
)

const (
	maxEmbeddingDepth = 32

	rtfAttachName = "rtf-body.rtf"
	rtfAttachType = "application/rtf"

	mimeTypeDefault = "application/octet-stream"
	mimeTypeRFC822  = "message/rfc822"

	defaultSender     = "MAILER-DAEMON"
	defaultReportType = "delivery-status"
	defaultCharset    = "utf-8"

	rfc822DateFormat = "Mon, 02 Jan 2006 15:04:05 -0700"
)

// Options controls email composition.
type Options struct {
	// PreferUTF8 forces utf-8 on body parts regardless of the charset the
	// item or its captured headers declare.
	PreferUTF8 bool

	// SaveRTFBody attaches the decompressed RTF body as rtf-body.rtf.
	SaveRTFBody bool

	// AcceptableExtensions, when non-empty, restricts emitted attachments
	// to filenames carrying one of these extensions.
	AcceptableExtensions []string

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Compose writes item as a complete RFC822/MIME message to w. The item
// must carry email data; st resolves attachment blobs, embedded messages
// and RTF decompression.
func Compose(w io.Writer, item *store.Item, st store.Store, opts Options) error {
	c := &composer{
		ew:   &errWriter{w: w},
		st:   st,
		opts: opts,
		log:  opts.logger(),
	}
	extra := ""
	if err := c.message(item, &extra, 0); err != nil {
		return err
	}
	return c.ew.err
}

// errWriter latches the first write error so the composer stays linear.
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

func (e *errWriter) writeString(s string) {
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}

type composer struct {
	ew   *errWriter
	st   store.Store
	opts Options
	log  *slog.Logger
}

// message writes one message, recursing for embedded message/rfc822
// attachments. extraHeaders accumulates the trailing MIME header blocks of
// the outer captured headers so embedded messages can recover their own.
func (c *composer) message(item *store.Item, extraHeaders *string, depth int) error {
	if depth > maxEmbeddingDepth {
		return ErrRecursionLimit
	}
	email := item.Email
	if email == nil {
		return fmt.Errorf("eml: item %q carries no email data", item.DisplayName)
	}

	headers := email.Header
	if !validHeaders(headers) {
		if validHeaders(*extraHeaders) {
			headers = *extraHeaders
		} else {
			headers = ""
		}
	}

	bodyCharset := item.Charset
	if bodyCharset == "" {
		bodyCharset = defaultCharset
	}
	reportType := defaultReportType

	sender := email.SenderAddress
	senderKnown := strings.Contains(sender, "@")
	if !senderKnown {
		sender = defaultSender
	}

	token := uuid.NewString()
	boundary := "boundary-gopst-" + token + "_-_-"
	altBoundary := "alt-" + boundary

	var hasFrom, hasSubject, hasTo, hasCC, hasDate, hasMsgID bool
	if headers != "" {
		headers = removeCR(headers)
		// everything after the first blank line belongs to embedded parts
		if sep := strings.Index(headers, "\n\n"); sep >= 0 {
			if *extraHeaders == "" {
				*extraHeaders = headers[sep+2:]
			}
			headers = headers[:sep+1]
		}

		hasFrom = headerHasField(headers, "From:")
		hasSubject = headerHasField(headers, "Subject:")
		hasTo = headerHasField(headers, "To:")
		hasCC = headerHasField(headers, "Cc:")
		hasDate = headerHasField(headers, "Date:")
		hasMsgID = headerHasField(headers, "Message-Id:")

		if t := headerGetField(headers, "Content-Type:"); t >= 0 {
			if cs := headerGetSubfield(headers, t, "charset"); cs != "" {
				bodyCharset = cs
			}
			if rt := headerGetSubfield(headers, t, "report-type"); rt != "" {
				reportType = rt
			}
		}

		if !senderKnown {
			if t := headerGetField(headers, "From:"); t >= 0 {
				line := headers[t:]
				if n := strings.IndexByte(line, '\n'); n >= 0 {
					line = line[:n]
				}
				s := strings.IndexByte(line, '<')
				e := strings.IndexByte(line, '>')
				if s >= 0 && e > s {
					sender = line[s+1 : e]
					senderKnown = true
				}
			}
		}

		for _, name := range []string{
			"Microsoft Mail Internet Headers",
			"MIME-Version:",
			"Content-Type:",
			"Content-Transfer-Encoding:",
			"Content-class:",
			"X-MimeOLE:",
			"X-From_:",
		} {
			headers = headerStripField(headers, name)
		}
	}

	ew := c.ew
	if headers != "" {
		ew.writeString(headers)
		if !strings.HasSuffix(headers, "\n") {
			ew.writeString("\n")
		}
	}

	if item.Read {
		ew.writeString("Status: RO\n")
	}

	if !hasFrom {
		if email.SenderName != "" {
			ew.printf("From: %s <%s>\n", encodeRFC2047(email.SenderName), sender)
		} else {
			ew.printf("From: <%s>\n", sender)
		}
	}
	if !hasSubject {
		if item.Subject != "" {
			ew.printf("Subject: %s\n", encodeRFC2047(item.Subject))
		} else {
			ew.writeString("Subject: \n")
		}
	}
	if !hasTo && email.SentTo != "" {
		ew.printf("To: %s\n", encodeRFC2047(email.SentTo))
	}
	if !hasCC && email.CC != "" {
		ew.printf("Cc: %s\n", encodeRFC2047(email.CC))
	}
	if !hasDate && email.SentDate != nil {
		ew.printf("Date: %s\n", email.SentDate.UTC().Format(rfc822DateFormat))
	}
	if !hasMsgID && email.MessageID != "" {
		ew.printf("Message-Id: %s\n", email.MessageID)
	}

	// forensic headers preserve sender hints that would otherwise be lost
	if email.SenderAddress != "" && email.SenderAddress != "." &&
		!strings.Contains(email.SenderAddress, "@") {
		ew.printf("X-gopst-forensic-sender: %s\n", email.SenderAddress)
	}
	if email.BCC != "" {
		ew.printf("X-gopst-forensic-bcc: %s\n", email.BCC)
	}

	mixedType := "multipart/mixed"
	if item.Type == store.TypeReport {
		mixedType = fmt.Sprintf("multipart/report; report-type=%s", reportType)
	}
	ew.writeString("MIME-Version: 1.0\n")
	ew.printf("Content-Type: %s;\n\tboundary=\"%s\"\n", mixedType, boundary)
	ew.writeString("\n")

	if item.Type == store.TypeReport && email.ReportText != "" {
		c.bodyPart(boundary, "text/plain", bodyCharset, email.ReportText)
		ew.writeString("\n")
	}

	hasPlain := item.Body != ""
	hasHTML := email.HTMLBody != ""
	partBoundary := boundary
	if hasPlain && hasHTML {
		ew.printf("\n--%s\n", boundary)
		ew.printf("Content-Type: multipart/alternative;\n\tboundary=\"%s\"\n", altBoundary)
		partBoundary = altBoundary
	}
	if hasPlain {
		c.bodyPart(partBoundary, "text/plain", bodyCharset, item.Body)
	}
	if hasHTML {
		cs := findHTMLCharset(email.HTMLBody)
		if cs == "" {
			cs = bodyCharset
		}
		c.bodyPart(partBoundary, "text/html", cs, email.HTMLBody)
	}
	if hasPlain && hasHTML {
		ew.printf("\n--%s--\n", altBoundary)
	}

	var synthetic []*store.Attachment
	if c.opts.SaveRTFBody && len(email.RTFCompressed) > 0 {
		data, err := c.st.DecompressRTF(email.RTFCompressed)
		if err != nil {
			c.log.Warn("skipping rtf body, decompression failed",
				"item", item.DisplayName, "error", err)
		} else {
			synthetic = append(synthetic, &store.Attachment{
				Filename: rtfAttachName,
				MimeType: rtfAttachType,
				Data:     data,
			})
		}
	}
	if data := email.TakeEncryptedBody(); data != nil {
		synthetic = append(synthetic, &store.Attachment{Data: data})
	}
	if data := email.TakeEncryptedHTMLBody(); data != nil {
		synthetic = append(synthetic, &store.Attachment{Data: data})
	}

	if item.Type == store.TypeSchedule && item.Appointment != nil {
		c.schedulePart(item, boundary, token, email.SenderName, sender)
	}

	attachments := make([]*store.Attachment, 0, len(synthetic)+len(item.Attachments))
	attachments = append(attachments, synthetic...)
	attachments = append(attachments, item.Attachments...)
	for _, att := range attachments {
		if att.Method == store.AttachEmbedded {
			*extraHeaders = findRFC822Headers(*extraHeaders)
			embedded, err := c.st.ParseEmbedded(att)
			if err != nil {
				c.log.Warn("skipping embedded message, parse failed",
					"item", item.DisplayName, "error", err)
				continue
			}
			if embedded == nil || embedded.Email == nil {
				c.log.Warn("skipping embedded attachment without email data",
					"item", item.DisplayName)
				continue
			}
			ew.printf("\n--%s\n", boundary)
			ew.printf("Content-Type: %s\n\n", mimeTypeRFC822)
			if err := c.message(embedded, extraHeaders, depth+1); err != nil {
				return err
			}
			continue
		}
		if len(att.Data) == 0 && att.BlobID == 0 {
			continue
		}
		if !c.acceptable(att) {
			c.log.Debug("skipping attachment, extension not accepted",
				"item", item.DisplayName, "filename", att.DisplayName())
			continue
		}
		c.inlineAttachment(att, boundary, item.DisplayName)
	}

	ew.printf("\n--%s--\n\n", boundary)
	return nil
}

// bodyPart writes one text body part. Bodies carrying control bytes go out
// base64-encoded, everything else verbatim after CR removal.
func (c *composer) bodyPart(boundary, mimeType, charset, body string) {
	body = removeCR(body)
	if c.opts.PreferUTF8 {
		charset = defaultCharset
	}
	ew := c.ew
	ew.printf("\n--%s\n", boundary)
	ew.printf("Content-Type: %s; charset=\"%s\"\n", mimeType, charset)
	if needsBase64(body) {
		ew.writeString("Content-Transfer-Encoding: base64\n\n")
		ew.writeString(encodeBase64([]byte(body)))
		ew.writeString("\n")
		return
	}
	ew.writeString("\n")
	ew.writeString(body)
	ew.writeString("\n")
}

// schedulePart writes the meeting invitation both inline and as an .ics
// attachment, so readers without calendar integration still get the file.
// The organizer line is always present; an unusable sender address already
// fell back to MAILER-DAEMON.
func (c *composer) schedulePart(item *store.Item, boundary, token, senderName, sender string) {
	org := &ics.Organizer{CommonName: senderName, Email: sender}
	ew := c.ew
	ew.printf("\n--%s\n", boundary)
	ew.writeString("Content-Type: text/calendar; method=\"REQUEST\"; charset=\"utf-8\"\n\n")
	if ew.err == nil {
		ew.err = ics.WriteCalendar(ew.w, item, "REQUEST", org)
	}
	ew.printf("\n--%s\n", boundary)
	ew.printf("Content-Type: text/calendar; charset=\"utf-8\"; name=\"i%s.ics\"\n", token)
	ew.printf("Content-Disposition: attachment; filename=\"i%s.ics\"\n\n", token)
	if ew.err == nil {
		ew.err = ics.WriteCalendar(ew.w, item, "REQUEST", org)
	}
}

// inlineAttachment writes one base64 attachment part, resolving deferred
// blob data through the store when the attachment carries only a blob id.
func (c *composer) inlineAttachment(att *store.Attachment, boundary, itemName string) {
	data := att.Data
	if len(data) == 0 {
		resolved, err := c.st.ResolveBlob(att.BlobID)
		if err != nil {
			c.log.Warn("skipping attachment, blob unavailable",
				"item", itemName, "filename", att.DisplayName(), "error", err)
			return
		}
		data = resolved
	}

	mimeType := att.MimeType
	if mimeType == "" {
		mimeType = mimeTypeDefault
	}
	name := att.DisplayName()

	ew := c.ew
	ew.printf("\n--%s\n", boundary)
	if name != "" {
		ew.printf("Content-Type: %s; name=\"%s\"\n", mimeType, name)
	} else {
		ew.printf("Content-Type: %s\n", mimeType)
	}
	ew.writeString("Content-Transfer-Encoding: base64\n")
	if name != "" {
		ew.printf("Content-Disposition: attachment; filename=\"%s\"\n\n", name)
	} else {
		ew.writeString("Content-Disposition: attachment\n\n")
	}
	ew.writeString(encodeBase64(data))
	ew.writeString("\n")
}

// acceptable applies the extension allow-list to the attachment filename.
func (c *composer) acceptable(att *store.Attachment) bool {
	if len(c.opts.AcceptableExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(att.DisplayName()))
	for _, allowed := range c.opts.AcceptableExtensions {
		allowed = strings.ToLower(allowed)
		if !strings.HasPrefix(allowed, ".") {
			allowed = "." + allowed
		}
		if ext == allowed {
			return true
		}
	}
	return false
}
