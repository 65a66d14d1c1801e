// Package reference defines the core domain types for bibliographic records.
package reference

import (
	"fmt"
	"strings"
	"time"
)

// Unknown is the display placeholder for free-text fields that were never supplied.
const Unknown = "n/a"

// Kind distinguishes journal from conference publications. Papers and venues share it.
type Kind string

const (
	KindJournal    Kind = "journal"
	KindConference Kind = "conference"
)

// ParseKind validates a raw type string. Matching is case-insensitive.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindJournal:
		return KindJournal, nil
	case KindConference:
		return KindConference, nil
	}
	return "", &ValidationError{
		Field:  "type",
		Reason: fmt.Sprintf("must be %q or %q, got %q", KindJournal, KindConference, raw),
		err:    ErrInvalidType,
	}
}

// Paper is an immutable publication record. Aggregates derived from it live on
// Author and Venue.
type Paper struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  Kind   `json:"type"`

	// AuthorIDs keeps appearance order; a name listed twice appears twice.
	AuthorIDs        []string `json:"authors"`
	CorrespondingIDs []string `json:"corresponding_authors"`

	PublicationDate *string `json:"publication_date"` // YYYY-MM-DD, or the raw value when unparseable
	PublicationYear *string `json:"publication_year"`

	VenueID *string `json:"venue_id"`
	Volume  *string `json:"volume"`
	Issue   *string `json:"issue"`

	Pages     string `json:"pages"`
	Publisher string `json:"publisher"`
	Abstract  string `json:"abstract"`

	TotalCitations int       `json:"total_citations"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsCorresponding reports whether authorID is flagged as a corresponding author.
func (p *Paper) IsCorresponding(authorID string) bool {
	for _, id := range p.CorrespondingIDs {
		if id == authorID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate store-owned slices.
func (p Paper) Clone() Paper {
	p.AuthorIDs = cloneStrings(p.AuthorIDs)
	p.CorrespondingIDs = cloneStrings(p.CorrespondingIDs)
	p.PublicationDate = cloneString(p.PublicationDate)
	p.PublicationYear = cloneString(p.PublicationYear)
	p.VenueID = cloneString(p.VenueID)
	p.Volume = cloneString(p.Volume)
	p.Issue = cloneString(p.Issue)
	return p
}

// Validate checks the structural invariants of a stored paper.
func (p *Paper) Validate() error {
	if p.ID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(p.Title) == "" {
		return ErrEmptyTitle
	}
	if p.Type != KindJournal && p.Type != KindConference {
		return ErrInvalidType
	}
	if len(p.AuthorIDs) == 0 {
		return ErrEmptyAuthors
	}
	if p.TotalCitations < 0 {
		return fmt.Errorf("paper %s: negative citation count %d", p.ID, p.TotalCitations)
	}
	for _, id := range p.CorrespondingIDs {
		if !containsString(p.AuthorIDs, id) {
			return fmt.Errorf("paper %s: corresponding author %s is not an author", p.ID, id)
		}
	}
	return nil
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to value or Unknown.
func Deref(s *string) string {
	if s == nil {
		return Unknown
	}
	return *s
}

// OrUnknown returns s trimmed, or Unknown when blank.
func OrUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown
	}
	return s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
