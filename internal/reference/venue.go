package reference

import (
	"strings"
	"time"
)

// Classification holds the optional ranking labels attached to a venue.
// CCFRank and CASZone are journal tiers; Field applies to both venue kinds.
type Classification struct {
	CCFRank *string `json:"ccf_rank"`
	CASZone *string `json:"cas_zone"`
	Field   *string `json:"field"`
}

// IsZero reports whether no label is set.
func (c Classification) IsZero() bool {
	return c.CCFRank == nil && c.CASZone == nil && c.Field == nil
}

// ForKind drops labels that do not apply to the venue kind.
func (c Classification) ForKind(kind Kind) Classification {
	out := Classification{Field: cloneString(c.Field)}
	if kind == KindJournal {
		out.CCFRank = cloneString(c.CCFRank)
		out.CASZone = cloneString(c.CASZone)
	}
	return out
}

func (c Classification) clone() Classification {
	return Classification{
		CCFRank: cloneString(c.CCFRank),
		CASZone: cloneString(c.CASZone),
		Field:   cloneString(c.Field),
	}
}

// Venue is a journal or conference. Conferences are deduplicated on CanonicalName.
type Venue struct {
	ID   string `json:"id"`
	Type Kind   `json:"type"`
	Name string `json:"name"`

	// CanonicalName is nil for journals and for legacy conference records
	// loaded from snapshots that predate canonicalization.
	CanonicalName *string `json:"canonical_name,omitempty"`

	Publisher      string         `json:"publisher"`
	Classification Classification `json:"classification"`

	PaperIDs       []string  `json:"papers"`
	TotalCitations int       `json:"total_citations"`
	CreatedAt      time.Time `json:"created_at"`
}

// Backfill sets classification labels that are still unknown. Labels that do not
// apply to the venue kind are ignored. It returns the number of labels set.
func (v *Venue) Backfill(c Classification) int {
	c = c.ForKind(v.Type)
	n := 0
	for _, f := range []struct {
		dst **string
		src *string
	}{
		{&v.Classification.CCFRank, c.CCFRank},
		{&v.Classification.CASZone, c.CASZone},
		{&v.Classification.Field, c.Field},
	} {
		if *f.dst == nil && f.src != nil && strings.TrimSpace(*f.src) != "" {
			*f.dst = cloneString(f.src)
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (v Venue) Clone() Venue {
	v.CanonicalName = cloneString(v.CanonicalName)
	v.Classification = v.Classification.clone()
	v.PaperIDs = cloneStrings(v.PaperIDs)
	return v
}

// Validate checks the structural invariants of a stored venue.
func (v *Venue) Validate() error {
	if v.ID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(v.Name) == "" {
		return ErrEmptyVenue
	}
	if v.Type != KindJournal && v.Type != KindConference {
		return ErrInvalidType
	}
	return nil
}
