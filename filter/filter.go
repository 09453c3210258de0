// Package filter screens classified records by subject and body patterns.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/SpongeData-cz/gopst/record"
)

// Options captures the filtering configuration.
type Options struct {
	IncludeSubject []string
	IncludeBody    []string
	ExcludeSubject []string
	ExcludeBody    []string
}

// Filter holds compiled regex patterns for filtering records. Include and
// exclude modes are mutually exclusive.
type Filter struct {
	includeMode     bool
	excludeMode     bool
	includeSubject  []*regexp.Regexp
	includeBody     []*regexp.Regexp
	excludeSubject  []*regexp.Regexp
	excludeBody     []*regexp.Regexp
	needSubjectText bool
	needBodyText    bool
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeSubject, err := compilePatterns(opts.IncludeSubject)
	if err != nil {
		return nil, fmt.Errorf("compile include-subject pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeSubject, err := compilePatterns(opts.ExcludeSubject)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-subject pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	includeActive := len(includeSubject) > 0 || len(includeBody) > 0
	excludeActive := len(excludeSubject) > 0 || len(excludeBody) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{
		includeMode:     includeActive,
		excludeMode:     excludeActive,
		includeSubject:  includeSubject,
		includeBody:     includeBody,
		excludeSubject:  excludeSubject,
		excludeBody:     excludeBody,
		needSubjectText: len(includeSubject) > 0 || len(excludeSubject) > 0,
		needBodyText:    len(includeBody) > 0 || len(excludeBody) > 0,
	}, nil
}

// Allows returns true if a record with the given subject and body passes
// the filter criteria.
func (f *Filter) Allows(subject, body string) bool {
	if f.includeMode {
		return matchAny(f.includeSubject, subject) || matchAny(f.includeBody, body)
	}

	if f.excludeMode {
		if matchAny(f.excludeSubject, subject) || matchAny(f.excludeBody, body) {
			return false
		}
	}

	return true
}

// AllowsRecord applies the filter to a record's item. Folders and the
// message-store marker always pass so the export layout stays intact.
func (f *Filter) AllowsRecord(rec *record.Record) bool {
	switch rec.Kind {
	case record.KindMessageStore, record.KindFolder:
		return true
	}
	return f.Allows(rec.Item.Subject, rec.Item.Body)
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
