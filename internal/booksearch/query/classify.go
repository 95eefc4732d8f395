// Package query turns free-text book searches into Google Books queries.
//
// Classify inspects the raw string and picks one of four shapes
// (Passthrough, IsbnLookup, ScopedSearch, TitleHint); Build renders that
// shape with the provider's field-scope operators. Both are pure and safe for
// concurrent use. OptimizeQuery composes the two and is idempotent: a string
// it produced always classifies back to Passthrough.
package query

import (
	"strings"
	"unicode"
)

// Kind names a classification outcome. It is what gets logged and counted.
type Kind string

const (
	KindPassthrough Kind = "passthrough"
	KindISBN        Kind = "isbn"
	KindScoped      Kind = "scoped"
	KindTitleHint   Kind = "title_hint"
)

// Classification is the closed set of query shapes. Only the four types in
// this package implement it.
type Classification interface {
	Kind() Kind
	classification()
}

// Passthrough forwards Text to the provider without added operators.
type Passthrough struct {
	Text string
}

// IsbnLookup holds a cleaned 10- or 13-digit ISBN.
type IsbnLookup struct {
	ISBN string
}

// ScopedSearch splits a query into title and author clauses. At least one of
// the two is non-empty.
type ScopedSearch struct {
	Title  string
	Author string
}

// TitleHint scopes the whole text to the title field.
type TitleHint struct {
	Text string
}

func (Passthrough) Kind() Kind  { return KindPassthrough }
func (IsbnLookup) Kind() Kind   { return KindISBN }
func (ScopedSearch) Kind() Kind { return KindScoped }
func (TitleHint) Kind() Kind    { return KindTitleHint }

func (Passthrough) classification()  {}
func (IsbnLookup) classification()   {}
func (ScopedSearch) classification() {}
func (TitleHint) classification()    {}

// rule inspects an already-trimmed query and reports whether it claims it.
type rule func(trimmed string) (Classification, bool)

// rules run in precedence order; the first match wins.
var rules = []rule{
	matchScoped,
	matchISBN,
	matchAuthor,
	matchTitleHint,
}

// Classify never fails. Anything no rule claims, including the empty string,
// comes back as Passthrough of the trimmed input.
func Classify(raw string) Classification {
	trimmed := strings.TrimSpace(raw)
	for _, r := range rules {
		if c, ok := r(trimmed); ok {
			return c
		}
	}
	return Passthrough{Text: trimmed}
}

// matchScoped leaves queries that already carry an operator untouched.
func matchScoped(trimmed string) (Classification, bool) {
	if HasScopeOperator(trimmed) {
		return Passthrough{Text: trimmed}, true
	}
	return nil, false
}

// HasScopeOperator reports whether s contains any recognised field-scope
// operator, ignoring case.
func HasScopeOperator(s string) bool {
	lower := strings.ToLower(s)
	for _, op := range scopeOperators {
		if strings.Contains(lower, op) {
			return true
		}
	}
	return false
}

func matchISBN(trimmed string) (Classification, bool) {
	cleaned := CleanISBN(trimmed)
	if !isISBN(cleaned) {
		return nil, false
	}
	return IsbnLookup{ISBN: cleaned}, true
}

// CleanISBN strips hyphens and whitespace.
func CleanISBN(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isISBN(s string) bool {
	if len(s) != 10 && len(s) != 13 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// matchAuthor tries the author phrasings in order. Only the first phrasing
// that matches is considered; if it yields no author the rule declines and
// classification continues with the word-count heuristic.
func matchAuthor(trimmed string) (Classification, bool) {
	title, author, ok := splitAuthor(trimmed)
	if !ok || author == "" {
		return nil, false
	}
	if title == "" {
		return ScopedSearch{Author: author}, true
	}
	return ScopedSearch{Title: title, Author: author}, true
}

func splitAuthor(q string) (title, author string, ok bool) {
	if m := byPattern.FindStringSubmatch(q); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
	}

	if loc := authorLabelPattern.FindStringSubmatchIndex(q); loc != nil {
		author = strings.TrimSpace(q[loc[2]:loc[3]])
		// Only the matched span is cut out; whatever follows the comma stays
		// in the title verbatim.
		title = strings.TrimSpace(q[:loc[0]] + q[loc[1]:])
		return title, author, true
	}

	if m := writtenByPattern.FindStringSubmatch(q); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
	}
	return "", "", false
}

// matchTitleHint scopes longer free text to the title. One- and two-word
// queries are left alone: they are as likely to be a surname or a series.
func matchTitleHint(trimmed string) (Classification, bool) {
	if len(strings.Fields(trimmed)) < minTitleHintWords {
		return nil, false
	}
	return TitleHint{Text: trimmed}, true
}
