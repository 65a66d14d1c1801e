package reference

import (
	"strings"
	"time"
)

// Author is a person appearing on one or more papers. Authors are created on
// first unmatched appearance and patched in place afterwards; never deleted.
type Author struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"name"`

	// Affiliation and Email are nil until first known and never overwritten.
	Affiliation *string `json:"affiliation"`
	Email       *string `json:"email"`

	PaperIDs       []string  `json:"papers"`
	TotalCitations int       `json:"total_citations"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewAuthor builds an author with defaulted names and an empty paper list.
func NewAuthor(id, first, last string, affiliation, email *string, createdAt time.Time) Author {
	first, last = OrUnknown(first), OrUnknown(last)
	return Author{
		ID:          id,
		FirstName:   first,
		LastName:    last,
		FullName:    FullName(first, last),
		Affiliation: cloneString(affiliation),
		Email:       cloneString(email),
		PaperIDs:    []string{},
		CreatedAt:   createdAt,
	}
}

// FullName joins the known name parts; both unknown yields Unknown.
func FullName(first, last string) string {
	var parts []string
	for _, p := range []string{first, last} {
		if p != "" && p != Unknown {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return Unknown
	}
	return strings.Join(parts, " ")
}

// Backfill sets affiliation and email only where they are still unknown.
// It reports which fields changed.
func (a *Author) Backfill(affiliation, email *string) (setAffiliation, setEmail bool) {
	if a.Affiliation == nil && affiliation != nil && strings.TrimSpace(*affiliation) != "" {
		a.Affiliation = cloneString(affiliation)
		setAffiliation = true
	}
	if a.Email == nil && email != nil && strings.TrimSpace(*email) != "" {
		a.Email = cloneString(email)
		setEmail = true
	}
	return setAffiliation, setEmail
}

// Clone returns a deep copy.
func (a Author) Clone() Author {
	a.Affiliation = cloneString(a.Affiliation)
	a.Email = cloneString(a.Email)
	a.PaperIDs = cloneStrings(a.PaperIDs)
	return a
}

// Validate checks the structural invariants of a stored author.
func (a *Author) Validate() error {
	if a.ID == "" {
		return ErrEmptyID
	}
	if a.FirstName == "" || a.LastName == "" {
		return ErrEmptyAuthorName
	}
	return nil
}
