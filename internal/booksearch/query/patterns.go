package query

import "regexp"

// Field-scope operators understood by the Google Books volumes API.
const (
	OpTitle     = "intitle:"
	OpAuthor    = "inauthor:"
	OpPublisher = "inpublisher:"
	OpSubject   = "subject:"
	OpISBN      = "isbn:"
)

// scopeOperators is matched case-insensitively against the trimmed query.
var scopeOperators = []string{OpTitle, OpAuthor, OpPublisher, OpSubject, OpISBN}

const minTitleHintWords = 3

var (
	// "<title> by <author>"
	byPattern = regexp.MustCompile(`(?i)^(.+?)\s+by\s+(.+)$`)

	// "author: <name>" anywhere; the name stops at the next comma.
	authorLabelPattern = regexp.MustCompile(`(?i)author:\s*([^,]+)`)

	// "<title> written by <author>"
	writtenByPattern = regexp.MustCompile(`(?i)^(.+?)\s+written\s+by\s+(.+)$`)
)
