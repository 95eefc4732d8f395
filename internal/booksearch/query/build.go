package query

import (
	"fmt"
	"strings"
)

// Build renders a classification as a provider query string. No escaping is
// done here; URL encoding belongs to the transport.
func Build(c Classification) string {
	switch v := c.(type) {
	case Passthrough:
		return v.Text
	case IsbnLookup:
		return OpISBN + v.ISBN
	case ScopedSearch:
		clauses := make([]string, 0, 2)
		if v.Title != "" {
			clauses = append(clauses, OpTitle+v.Title)
		}
		if v.Author != "" {
			clauses = append(clauses, OpAuthor+v.Author)
		}
		return strings.Join(clauses, " ")
	case TitleHint:
		return OpTitle + v.Text
	default:
		panic(fmt.Sprintf("query: unknown classification %T", c))
	}
}

// OptimizeQuery classifies raw and builds the provider query for it.
func OptimizeQuery(raw string) string {
	return Build(Classify(raw))
}

// Optimize is OptimizeQuery that also reports which shape was chosen.
func Optimize(raw string) (string, Kind) {
	c := Classify(raw)
	return Build(c), c.Kind()
}
