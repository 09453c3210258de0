package eml

import (
	"strings"
	"testing"
)

func TestValidHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"subject field", "Subject: test\n\n", true},
		{"received field", "Received: from mail.example.com\nSubject: x\n", true},
		{"content type", "Content-Type: text/plain\n", true},
		{"microsoft marker", "Microsoft Mail Internet Headers Version 2.0\n", true},
		{"wrapped tag", "Subject:\r\n\tfolded straight away\n", true},
		{"body fragment", "This is just the start of a body.\n", false},
		{"unlisted field", "X-Unknown: value\nSubject: x\n", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validHeaders(tt.header); got != tt.want {
				t.Errorf("validHeaders(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestHeaderGetField(t *testing.T) {
	header := "From: a@example.com\nSubject: hello\nTo: b@example.com\n"

	if got := headerGetField(header, "From:"); got != 0 {
		t.Errorf("From: at %d, want 0", got)
	}
	if got := headerGetField(header, "Subject:"); got != 20 {
		t.Errorf("Subject: at %d, want 20", got)
	}
	if got := headerGetField(header, "subject:"); got != 20 {
		t.Errorf("case-insensitive lookup failed, got %d", got)
	}
	if got := headerGetField(header, "Date:"); got != -1 {
		t.Errorf("missing field returned %d, want -1", got)
	}
	// a name must start a line, not appear mid-value
	header2 := "X-Note: contains Subject: inside\nDate: x\n"
	if got := headerGetField(header2, "Subject:"); got != -1 {
		t.Errorf("mid-value match returned %d, want -1", got)
	}
}

func TestHeaderEndField_Folded(t *testing.T) {
	header := "Content-Type: multipart/mixed;\n\tboundary=\"b\"\nSubject: x\n"
	start := headerGetField(header, "Content-Type:")
	if start != 0 {
		t.Fatalf("field start = %d", start)
	}
	end := headerEndField(header, start)
	if end < 0 || header[end] != '\n' {
		t.Fatalf("end = %d", end)
	}
	if !strings.HasPrefix(header[end+1:], "Subject:") {
		t.Errorf("folded continuation not skipped, rest = %q", header[end+1:])
	}
}

func TestHeaderStripField(t *testing.T) {
	tests := []struct {
		name   string
		header string
		field  string
		want   string
	}{
		{
			"middle field",
			"From: a\nMIME-Version: 1.0\nTo: b\n",
			"MIME-Version:",
			"From: a\nTo: b\n",
		},
		{
			"first field",
			"Content-Type: text/plain\nFrom: a\n",
			"Content-Type:",
			"From: a\n",
		},
		{
			"last field without newline",
			"From: a\nX-MimeOLE: Produced By X",
			"X-MimeOLE:",
			"From: a",
		},
		{
			"folded field",
			"From: a\nContent-Type: multipart/mixed;\n\tboundary=\"b\"\nTo: b\n",
			"Content-Type:",
			"From: a\nTo: b\n",
		},
		{
			"every occurrence",
			"Received: one\nReceived: two\nFrom: a\n",
			"Received:",
			"From: a\n",
		},
		{
			"absent field",
			"From: a\n",
			"Date:",
			"From: a\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := headerStripField(tt.header, tt.field); got != tt.want {
				t.Errorf("headerStripField() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHeaderGetSubfield(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		field    string
		subfield string
		want     string
	}{
		{
			"quoted charset",
			"Content-Type: text/plain; charset=\"iso-8859-2\"\n",
			"Content-Type:", "charset", "iso-8859-2",
		},
		{
			"bare charset ends at semicolon",
			"Content-Type: text/plain; charset=utf-8; format=flowed\n",
			"Content-Type:", "charset", "utf-8",
		},
		{
			"report type",
			"Content-Type: multipart/report; report-type=delivery-status\n",
			"Content-Type:", "report-type", "delivery-status",
		},
		{
			"missing subfield",
			"Content-Type: text/plain\n",
			"Content-Type:", "charset", "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := headerGetField(tt.header, tt.field)
			if start < 0 {
				t.Fatalf("field %q not found", tt.field)
			}
			if got := headerGetSubfield(tt.header, start, tt.subfield); got != tt.want {
				t.Errorf("headerGetSubfield() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFindRFC822Headers(t *testing.T) {
	headers := "Content-Type: application/pdf\n\n" +
		"Content-Type: message/rfc822\n\n" +
		"Subject: inner message\n\nrest"
	got := findRFC822Headers(headers)
	want := "Subject: inner message\n\nrest"
	if got != want {
		t.Errorf("findRFC822Headers() = %q, want %q", got, want)
	}

	// no rfc822 block leaves the scan at the remainder
	if got := findRFC822Headers("no blocks here"); got != "no blocks here" {
		t.Errorf("remainder = %q", got)
	}
}

func TestRemoveCR(t *testing.T) {
	if got := removeCR("a\r\nb\r\nc"); got != "a\nb\nc" {
		t.Errorf("removeCR() = %q", got)
	}
}

func TestNeedsBase64(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"plain text", "hello world", false},
		{"tabs and newlines", "col1\tcol2\nrow2", false},
		{"nul byte", "a\x00b", true},
		{"escape byte", "a\x1bb", true},
		{"bare cr", "a\rb", true},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsBase64(tt.body); got != tt.want {
				t.Errorf("needsBase64(%q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}

func TestFindHTMLCharset(t *testing.T) {
	html := `<html><head><META HTTP-EQUIV="Content-Type" CONTENT="text/html; charset=windows-1250"></head><body></body></html>`
	if got := findHTMLCharset(html); got != "windows-1250" {
		t.Errorf("findHTMLCharset() = %q, want windows-1250", got)
	}
	if got := findHTMLCharset("<html><body>no meta</body></html>"); got != "" {
		t.Errorf("expected empty charset, got %q", got)
	}
}

func TestEncodeRFC2047(t *testing.T) {
	if got := encodeRFC2047("plain ascii"); got != "plain ascii" {
		t.Errorf("ascii input must pass through, got %q", got)
	}
	got := encodeRFC2047("Příliš žluťoučký")
	if !strings.HasPrefix(got, "=?utf-8?") {
		t.Errorf("non-ascii input must be encoded, got %q", got)
	}
}

func TestEncodeBase64_Wrapping(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	enc := encodeBase64(data)
	for i, line := range strings.Split(enc, "\n") {
		if len(line) > 76 {
			t.Errorf("line %d exceeds 76 columns: %d", i, len(line))
		}
	}
}
