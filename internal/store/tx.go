package store

import (
	"errors"
	"fmt"

	"github.com/matsen/bibnorm/internal/author"
	"github.com/matsen/bibnorm/internal/reference"
)

var (
	// ErrReadOnly is returned by mutating Tx methods inside View.
	ErrReadOnly = errors.New("transaction is read-only")
	// ErrDuplicateID is returned when inserting a record whose id is taken.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrDanglingReference is returned when a record names an id that does not exist.
	ErrDanglingReference = errors.New("dangling reference")
)

// Tx is the view of the store given to Update and View callbacks. It must not be
// retained after the callback returns.
type Tx struct {
	s        *Store
	writable bool
	undo     []func()
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *Tx) checkWritable() error {
	if !tx.writable {
		return ErrReadOnly
	}
	return nil
}

// Author returns a copy of the author with the given id.
func (tx *Tx) Author(id string) (reference.Author, bool) {
	a, ok := tx.s.authors[id]
	if !ok {
		return reference.Author{}, false
	}
	return a.Clone(), true
}

// AuthorsByName returns, in insertion order, every author whose name key matches.
func (tx *Tx) AuthorsByName(first, last string) []reference.Author {
	ids := tx.s.byName[author.NameKey(first, last)]
	out := make([]reference.Author, 0, len(ids))
	for _, id := range ids {
		out = append(out, tx.s.authors[id].Clone())
	}
	return out
}

// Authors returns copies of every author in insertion order.
func (tx *Tx) Authors() []reference.Author {
	out := make([]reference.Author, 0, len(tx.s.authorOrder))
	for _, id := range tx.s.authorOrder {
		out = append(out, tx.s.authors[id].Clone())
	}
	return out
}

// InsertAuthor adds a new author.
func (tx *Tx) InsertAuthor(a reference.Author) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("author %q: %w", a.ID, err)
	}
	if _, exists := tx.s.authors[a.ID]; exists {
		return fmt.Errorf("author %q: %w", a.ID, ErrDuplicateID)
	}

	rec := a.Clone()
	if rec.PaperIDs == nil {
		rec.PaperIDs = []string{}
	}
	s := tx.s
	s.authors[rec.ID] = &rec
	s.authorOrder = append(s.authorOrder, rec.ID)
	s.addToIndexes(&rec)

	key := author.NameKey(rec.FirstName, rec.LastName)
	tx.undo = append(tx.undo, func() {
		delete(s.authors, rec.ID)
		s.authorOrder = s.authorOrder[:len(s.authorOrder)-1]
		ids := s.byName[key]
		if len(ids) <= 1 {
			delete(s.byName, key)
		} else {
			s.byName[key] = ids[:len(ids)-1]
		}
	})
	return nil
}

// BackfillAuthor sets affiliation and email where they are still unknown.
func (tx *Tx) BackfillAuthor(id string, affiliation, email *string) (setAffiliation, setEmail bool, err error) {
	if err := tx.checkWritable(); err != nil {
		return false, false, err
	}
	a, ok := tx.s.authors[id]
	if !ok {
		return false, false, fmt.Errorf("author %q: %w", id, reference.ErrNotFound)
	}

	prevAff, prevEmail := a.Affiliation, a.Email
	setAffiliation, setEmail = a.Backfill(affiliation, email)
	if setAffiliation || setEmail {
		tx.undo = append(tx.undo, func() {
			a.Affiliation, a.Email = prevAff, prevEmail
		})
	}
	return setAffiliation, setEmail, nil
}

// Venue returns a copy of the venue with the given id.
func (tx *Tx) Venue(id string) (reference.Venue, bool) {
	v, ok := tx.s.venues[id]
	if !ok {
		return reference.Venue{}, false
	}
	return v.Clone(), true
}

// VenueByKey finds a venue by its dedup key: the name of a journal or the
// canonical name of a conference. Comparison is case-insensitive.
func (tx *Tx) VenueByKey(kind reference.Kind, key string) (reference.Venue, bool) {
	id, ok := tx.s.byVenueKey[tx.s.indexVenueKey(kind, key)]
	if !ok {
		return reference.Venue{}, false
	}
	return tx.s.venues[id].Clone(), true
}

// UncanonicalizedVenues returns, in insertion order, conference venues that have
// no canonical name yet.
func (tx *Tx) UncanonicalizedVenues() []reference.Venue {
	var out []reference.Venue
	for _, id := range tx.s.venueOrder {
		v := tx.s.venues[id]
		if v.Type == reference.KindConference && v.CanonicalName == nil {
			out = append(out, v.Clone())
		}
	}
	return out
}

// InsertVenue adds a new venue.
func (tx *Tx) InsertVenue(v reference.Venue) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("venue %q: %w", v.ID, err)
	}
	if _, exists := tx.s.venues[v.ID]; exists {
		return fmt.Errorf("venue %q: %w", v.ID, ErrDuplicateID)
	}

	rec := v.Clone()
	if rec.PaperIDs == nil {
		rec.PaperIDs = []string{}
	}
	s := tx.s
	s.venues[rec.ID] = &rec
	s.venueOrder = append(s.venueOrder, rec.ID)
	indexed := tx.indexVenue(&rec)

	tx.undo = append(tx.undo, func() {
		delete(s.venues, rec.ID)
		s.venueOrder = s.venueOrder[:len(s.venueOrder)-1]
		if indexed != nil {
			delete(s.byVenueKey, *indexed)
		}
	})
	return nil
}

// indexVenue adds v to the key index if its key is free and returns the key used.
func (tx *Tx) indexVenue(v *reference.Venue) *venueKey {
	key, ok := dedupKey(v)
	if !ok {
		return nil
	}
	k := tx.s.indexVenueKey(v.Type, key)
	if _, taken := tx.s.byVenueKey[k]; taken {
		return nil
	}
	tx.s.byVenueKey[k] = v.ID
	return &k
}

// BackfillVenue sets classification labels that are still unknown and returns
// how many were set.
func (tx *Tx) BackfillVenue(id string, c reference.Classification) (int, error) {
	if err := tx.checkWritable(); err != nil {
		return 0, err
	}
	v, ok := tx.s.venues[id]
	if !ok {
		return 0, fmt.Errorf("venue %q: %w", id, reference.ErrNotFound)
	}

	prev := v.Classification
	n := v.Backfill(c)
	if n > 0 {
		tx.undo = append(tx.undo, func() { v.Classification = prev })
	}
	return n, nil
}

// SetCanonicalName fills in the canonical name of a legacy conference venue.
// A venue that already has one is left unchanged.
func (tx *Tx) SetCanonicalName(id, canonical string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	v, ok := tx.s.venues[id]
	if !ok {
		return fmt.Errorf("venue %q: %w", id, reference.ErrNotFound)
	}
	if v.CanonicalName != nil {
		return nil
	}

	v.CanonicalName = &canonical
	indexed := tx.indexVenue(v)
	s := tx.s
	tx.undo = append(tx.undo, func() {
		v.CanonicalName = nil
		if indexed != nil {
			delete(s.byVenueKey, *indexed)
		}
	})
	return nil
}

// InsertPaper stores a paper and updates the back-references and citation totals
// of its authors and venue. An author listed twice is credited twice.
func (tx *Tx) InsertPaper(p reference.Paper) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("paper %q: %w", p.ID, err)
	}
	s := tx.s
	if _, exists := s.papers[p.ID]; exists {
		return fmt.Errorf("paper %q: %w", p.ID, ErrDuplicateID)
	}
	for _, aid := range p.AuthorIDs {
		if _, ok := s.authors[aid]; !ok {
			return fmt.Errorf("paper %q author %q: %w", p.ID, aid, ErrDanglingReference)
		}
	}
	var venue *reference.Venue
	if p.VenueID != nil {
		v, ok := s.venues[*p.VenueID]
		if !ok {
			return fmt.Errorf("paper %q venue %q: %w", p.ID, *p.VenueID, ErrDanglingReference)
		}
		venue = v
	}

	rec := p.Clone()
	if rec.CorrespondingIDs == nil {
		rec.CorrespondingIDs = []string{}
	}
	s.papers[rec.ID] = &rec
	s.paperOrder = append(s.paperOrder, rec.ID)

	for _, aid := range rec.AuthorIDs {
		a := s.authors[aid]
		a.PaperIDs = append(a.PaperIDs, rec.ID)
		a.TotalCitations += rec.TotalCitations
	}
	if venue != nil {
		venue.PaperIDs = append(venue.PaperIDs, rec.ID)
		venue.TotalCitations += rec.TotalCitations
	}

	tx.undo = append(tx.undo, func() {
		for i := len(rec.AuthorIDs) - 1; i >= 0; i-- {
			a := s.authors[rec.AuthorIDs[i]]
			a.PaperIDs = a.PaperIDs[:len(a.PaperIDs)-1]
			a.TotalCitations -= rec.TotalCitations
		}
		if venue != nil {
			venue.PaperIDs = venue.PaperIDs[:len(venue.PaperIDs)-1]
			venue.TotalCitations -= rec.TotalCitations
		}
		delete(s.papers, rec.ID)
		s.paperOrder = s.paperOrder[:len(s.paperOrder)-1]
	})
	return nil
}

// Counts returns the current record counts.
func (tx *Tx) Counts() Counts {
	return Counts{Papers: len(tx.s.papers), Authors: len(tx.s.authors), Venues: len(tx.s.venues)}
}
