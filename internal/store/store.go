// Package store holds the in-memory record store of papers, authors and venues.
//
// The store owns every record. Callers receive deep copies and request mutations
// through Update, which serializes writers and rolls back a failed transaction.
package store

import (
	"strings"
	"sync"

	"github.com/matsen/bibnorm/internal/author"
	"github.com/matsen/bibnorm/internal/reference"
)

// Store is the single owner of all entity records.
type Store struct {
	mu sync.RWMutex

	papers  map[string]*reference.Paper
	authors map[string]*reference.Author
	venues  map[string]*reference.Venue

	// Insertion order, used for deterministic iteration.
	paperOrder  []string
	authorOrder []string
	venueOrder  []string

	byName     map[string][]string // author.NameKey -> author ids
	byVenueKey map[venueKey]string

	untypedVenues bool
}

type venueKey struct {
	kind reference.Kind
	key  string
}

// Option configures a Store.
type Option func(*Store)

// WithUntypedVenueDedup makes venues with the same key collide regardless of type.
func WithUntypedVenueDedup() Option {
	return func(s *Store) { s.untypedVenues = true }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.papers = make(map[string]*reference.Paper)
	s.authors = make(map[string]*reference.Author)
	s.venues = make(map[string]*reference.Venue)
	s.paperOrder = nil
	s.authorOrder = nil
	s.venueOrder = nil
	s.byName = make(map[string][]string)
	s.byVenueKey = make(map[venueKey]string)
}

// Counts reports the number of records of each kind.
type Counts struct {
	Papers  int `json:"papers"`
	Authors int `json:"authors"`
	Venues  int `json:"venues"`
}

// Update runs fn with exclusive access. If fn returns an error every mutation it
// made is undone before the lock is released.
func (s *Store) Update(fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{s: s, writable: true}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// View runs fn with shared access. Mutating Tx methods return ErrReadOnly.
func (s *Store) View(fn func(*Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&Tx{s: s})
}

// Counts returns the current record counts.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{Papers: len(s.papers), Authors: len(s.authors), Venues: len(s.venues)}
}

// GetPaper returns a copy of the paper with the given id.
func (s *Store) GetPaper(id string) (reference.Paper, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.papers[id]
	if !ok {
		return reference.Paper{}, false
	}
	return p.Clone(), true
}

// GetAuthor returns a copy of the author with the given id.
func (s *Store) GetAuthor(id string) (reference.Author, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authors[id]
	if !ok {
		return reference.Author{}, false
	}
	return a.Clone(), true
}

// GetVenue returns a copy of the venue with the given id.
func (s *Store) GetVenue(id string) (reference.Venue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.venues[id]
	if !ok {
		return reference.Venue{}, false
	}
	return v.Clone(), true
}

// GetPaperWithDetails joins a paper with its authors, in author order, and its venue.
func (s *Store) GetPaperWithDetails(id string) (reference.PaperDetails, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.papers[id]
	if !ok {
		return reference.PaperDetails{}, false
	}

	d := reference.PaperDetails{
		Paper:         p.Clone(),
		AuthorDetails: make([]reference.AuthorDetail, 0, len(p.AuthorIDs)),
	}
	for _, aid := range p.AuthorIDs {
		a, ok := s.authors[aid]
		if !ok {
			continue
		}
		d.AuthorDetails = append(d.AuthorDetails, reference.AuthorDetail{
			Author:          a.Clone(),
			IsCorresponding: p.IsCorresponding(aid),
		})
	}
	if p.VenueID != nil {
		if v, ok := s.venues[*p.VenueID]; ok {
			vc := v.Clone()
			d.VenueDetails = &vc
		}
	}
	return d, true
}

// Papers returns copies of all papers in insertion order.
func (s *Store) Papers() []reference.Paper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reference.Paper, 0, len(s.paperOrder))
	for _, id := range s.paperOrder {
		out = append(out, s.papers[id].Clone())
	}
	return out
}

// Authors returns copies of all authors in insertion order.
func (s *Store) Authors() []reference.Author {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reference.Author, 0, len(s.authorOrder))
	for _, id := range s.authorOrder {
		out = append(out, s.authors[id].Clone())
	}
	return out
}

// Venues returns copies of all venues in insertion order.
func (s *Store) Venues() []reference.Venue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reference.Venue, 0, len(s.venueOrder))
	for _, id := range s.venueOrder {
		out = append(out, s.venues[id].Clone())
	}
	return out
}

func (s *Store) indexVenueKey(kind reference.Kind, key string) venueKey {
	if s.untypedVenues {
		kind = ""
	}
	return venueKey{kind: kind, key: strings.ToLower(strings.TrimSpace(key))}
}

// dedupKey returns the lookup key of a stored venue, or false for a legacy
// conference that has not been canonicalized yet.
func dedupKey(v *reference.Venue) (string, bool) {
	if v.Type == reference.KindConference {
		if v.CanonicalName == nil {
			return "", false
		}
		return *v.CanonicalName, true
	}
	return v.Name, true
}

func (s *Store) addToIndexes(a *reference.Author) {
	k := author.NameKey(a.FirstName, a.LastName)
	s.byName[k] = append(s.byName[k], a.ID)
}

func (s *Store) addVenueToIndex(v *reference.Venue) {
	key, ok := dedupKey(v)
	if !ok {
		return
	}
	k := s.indexVenueKey(v.Type, key)
	// First venue wins; later duplicates from a restored snapshot stay reachable by id.
	if _, exists := s.byVenueKey[k]; !exists {
		s.byVenueKey[k] = v.ID
	}
}
