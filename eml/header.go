// Package eml composes RFC822/MIME email files from store items.
//
// Captured header blobs inside mail stores are frequently malformed or are
// plain body fragments, so everything here treats headers defensively: a
// block is only trusted when it passes the plausibility filter, and the
// composer re-synthesizes whatever the block does not carry.
package eml

import (
	"encoding/base64"
	"mime"
	"regexp"
	"strings"
)

// plausibleFields is the allow-list the plausibility filter checks. These
// are field names observed at the start of genuine captured header blocks.
var plausibleFields = []string{
	"Content-Type: ",
	"Date: ",
	"From: ",
	"MIME-Version: ",
	"Microsoft Mail Internet Headers",
	"Received: ",
	"Return-Path: ",
	"Subject: ",
	"To: ",
	"X-ASG-Debug-ID: ",
	"X-Barracuda-URL: ",
	"X-x: ",
}

// indexCI is a case-insensitive strings.Index.
func indexCI(haystack, needle string) int {
	return strings.Index(strings.ToLower(haystack), strings.ToLower(needle))
}

// headerMatch reports whether header starts with field, either as
// "Tag: value" or as "Tag:" wrapped immediately onto a continuation line.
func headerMatch(header, field string) bool {
	n := len(field)
	if len(header) >= n && strings.EqualFold(header[:n], field) {
		return true
	}
	if strings.HasSuffix(field, " ") && len(header) >= n+2 &&
		strings.EqualFold(header[:n-1], field[:n-1]) &&
		header[n-1:n+2] == "\r\n\t" {
		return true // tag:{cr}{lf}{tab}
	}
	return false
}

// validHeaders is the plausibility filter: the block is accepted as real
// RFC822 headers only when it begins with an allow-listed field.
func validHeaders(header string) bool {
	if header == "" {
		return false
	}
	for _, field := range plausibleFields {
		if headerMatch(header, field) {
			return true
		}
	}
	return false
}

// headerGetField locates a header field by name ("Content-Type:") and
// returns the index where the name starts, or -1. A field counts only at
// the start of the block or directly after a newline.
func headerGetField(header, name string) int {
	if len(header) >= len(name) && strings.EqualFold(header[:len(name)], name) {
		return 0
	}
	if i := indexCI(header, "\n"+name); i >= 0 {
		return i + 1
	}
	return -1
}

// headerEndField returns the index of the newline terminating the field
// starting at nameIdx, honoring folded continuation lines. Returns -1 when
// the field runs to the end of the block.
func headerEndField(header string, nameIdx int) int {
	i := strings.IndexByte(header[nameIdx:], '\n')
	for i >= 0 {
		abs := nameIdx + i
		if abs+1 < len(header) && (header[abs+1] == ' ' || header[abs+1] == '\t') {
			next := strings.IndexByte(header[abs+1:], '\n')
			if next < 0 {
				return -1
			}
			i = abs + 1 + next - nameIdx
			continue
		}
		return abs
	}
	return -1
}

// headerStripField removes every occurrence of the named field, folded
// continuation lines included, leaving a single newline between the
// surrounding fields.
func headerStripField(header, name string) string {
	for {
		t := headerGetField(header, name)
		if t < 0 {
			return header
		}
		e := headerEndField(header, t)
		if e < 0 {
			// last field of the block, truncate
			if t > 0 {
				return header[:t-1]
			}
			return ""
		}
		header = header[:t] + header[e+1:]
	}
}

// headerHasField reports whether the block contains the named field.
func headerHasField(header, name string) bool {
	return headerGetField(header, name) >= 0
}

// headerGetSubfield extracts a "name=value" parameter from the field
// starting at nameIdx, e.g. charset from a Content-Type field. Quoted
// values end at the closing quote, bare values at the next ';' or end of
// line, whichever comes first.
func headerGetSubfield(header string, nameIdx int, subfield string) string {
	end := headerEndField(header, nameIdx)
	if end < 0 {
		end = len(header)
	}
	field := header[nameIdx:end]
	search := " " + subfield + "="
	s := indexCI(field, search)
	if s < 0 {
		return ""
	}
	s += len(search)
	if s >= len(field) {
		return ""
	}
	if field[s] == '"' {
		s++
		e := strings.IndexByte(field[s:], '"')
		if e < 0 {
			return field[s:]
		}
		return field[s : s+e]
	}
	e := len(field)
	if i := strings.IndexByte(field[s:], ';'); i >= 0 {
		e = s + i
	}
	if i := strings.IndexByte(field[s:], '\n'); i >= 0 && s+i < e {
		e = s + i
	}
	return field[s:e]
}

// findRFC822Headers scans the trailing embedded MIME header blocks for the
// block announcing a message/rfc822 part and returns the headers that
// follow it. When no such block exists, the remainder after the last
// complete block is returned, matching how the scan position advances.
func findRFC822Headers(headers string) string {
	for {
		sep := strings.Index(headers, "\n\n")
		if sep < 0 {
			return headers
		}
		block := headers[:sep+1]
		headers = headers[sep+2:]
		t := headerGetField(block, "Content-Type:")
		if t < 0 {
			continue
		}
		e := headerEndField(block, t)
		if e < 0 {
			e = len(block)
		}
		if indexCI(block[t:e], "message/rfc822") >= 0 {
			return headers
		}
	}
}

// removeCR converts CRLF line endings to LF by dropping every CR.
func removeCR(s string) string {
	return strings.ReplaceAll(s, "\r", "")
}

// needsBase64 reports whether body carries control bytes (anything below
// 0x20 other than tab and newline) and therefore must be base64-encoded.
func needsBase64(body string) bool {
	for i := 0; i < len(body); i++ {
		if body[i] < 32 && body[i] != 9 && body[i] != 10 {
			return true
		}
	}
	return false
}

var metaCharsetPattern = regexp.MustCompile(`(?i)<meta[^>]*content="[^>]*charset=([^>";]*)[";]`)

// findHTMLCharset extracts the charset declared by an HTML meta tag, or ""
// when the document declares none.
func findHTMLCharset(html string) string {
	m := metaCharsetPattern.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	return m[1]
}

// encodeRFC2047 MIME-word-encodes s when it carries non-ASCII text.
func encodeRFC2047(s string) string {
	return mime.QEncoding.Encode("utf-8", s)
}

// encodeBase64 encodes data with lines wrapped at 76 columns.
func encodeBase64(data []byte) string {
	enc := base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	b.Grow(len(enc) + len(enc)/76 + 1)
	for len(enc) > 76 {
		b.WriteString(enc[:76])
		b.WriteByte('\n')
		enc = enc[76:]
	}
	b.WriteString(enc)
	return b.String()
}
