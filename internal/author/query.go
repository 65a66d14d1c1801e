// Package author scores author similarity for entity resolution and parses
// author search queries.
package author

import (
	"strings"

	"github.com/matsen/bibnorm/internal/reference"
)

// Query represents a parsed author search query.
type Query struct {
	First string // First name (may be empty for last-name-only queries)
	Last  string // Last name (required)
}

// ParseQuery parses an author search string into a structured Query.
//
// Supported formats:
//   - "Liu"          → last="Liu" (single word = last name only)
//   - "Kai Liu"      → first="Kai", last="Liu" (space-separated = First Last)
//   - "Liu, Kai"     → first="Kai", last="Liu" (comma = Last, First)
//
// Names are trimmed but case is preserved (matching is case-insensitive).
func ParseQuery(input string) Query {
	input = strings.TrimSpace(input)
	if input == "" {
		return Query{}
	}

	if idx := strings.Index(input, ","); idx > 0 {
		last := strings.TrimSpace(input[:idx])
		first := strings.TrimSpace(input[idx+1:])
		return Query{First: first, Last: last}
	}

	parts := strings.Fields(input)
	if len(parts) == 1 {
		return Query{Last: parts[0]}
	}

	// "Victor CS Lee" → first="Victor CS", last="Lee"
	last := parts[len(parts)-1]
	first := strings.Join(parts[:len(parts)-1], " ")
	return Query{First: first, Last: last}
}

// IsZero reports whether the query has nothing to match on.
func (q Query) IsZero() bool {
	return q.First == "" && q.Last == ""
}

// Matches checks if the query matches a given author.
//
// Stored names keep every token after the first in LastName ("Victor CS Lee" is
// first="Victor", last="CS Lee"), so the query's last name is compared with the
// final surname token as well as the whole LastName, and the query's first name
// is a prefix match against everything before that final token.
//
// This lets "Victor Lee" and "Lee, Victor C" match "Victor CS Lee" while "Liu"
// does not match "Liuyang Chen".
func (q Query) Matches(a reference.Author) bool {
	if q.Last == "" {
		return false
	}

	given, surname := splitStored(a)
	if !strings.EqualFold(q.Last, surname) && !strings.EqualFold(q.Last, a.LastName) {
		return false
	}

	if q.First == "" {
		return true
	}

	return strings.HasPrefix(strings.ToLower(given), strings.ToLower(q.First))
}

// splitStored returns the given-name part and final surname token of a stored author.
func splitStored(a reference.Author) (given, surname string) {
	var tokens []string
	if a.FirstName != reference.Unknown {
		tokens = append(tokens, strings.Fields(a.FirstName)...)
	}
	if a.LastName != reference.Unknown {
		tokens = append(tokens, strings.Fields(a.LastName)...)
	}
	if len(tokens) == 0 {
		return "", ""
	}
	return strings.Join(tokens[:len(tokens)-1], " "), tokens[len(tokens)-1]
}

// MatchesAny checks if the query matches any author in the list.
func (q Query) MatchesAny(authors []reference.Author) bool {
	for _, a := range authors {
		if q.Matches(a) {
			return true
		}
	}
	return false
}

// AllMatch checks if all queries match at least one author each.
// This implements AND logic for multiple author filters.
func AllMatch(queries []Query, authors []reference.Author) bool {
	for _, q := range queries {
		if !q.MatchesAny(authors) {
			return false
		}
	}
	return true
}
