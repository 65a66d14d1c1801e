package store

import (
	"fmt"

	"github.com/matsen/bibnorm/internal/reference"
)

// Snapshot is a consistent copy of every record, each kind in insertion order.
type Snapshot struct {
	Papers  []reference.Paper
	Authors []reference.Author
	Venues  []reference.Venue
}

// Counts returns the number of records in the snapshot.
func (sn *Snapshot) Counts() Counts {
	return Counts{Papers: len(sn.Papers), Authors: len(sn.Authors), Venues: len(sn.Venues)}
}

// Snapshot copies the whole store under the read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sn := Snapshot{
		Papers:  make([]reference.Paper, 0, len(s.paperOrder)),
		Authors: make([]reference.Author, 0, len(s.authorOrder)),
		Venues:  make([]reference.Venue, 0, len(s.venueOrder)),
	}
	for _, id := range s.paperOrder {
		sn.Papers = append(sn.Papers, s.papers[id].Clone())
	}
	for _, id := range s.authorOrder {
		sn.Authors = append(sn.Authors, s.authors[id].Clone())
	}
	for _, id := range s.venueOrder {
		sn.Venues = append(sn.Venues, s.venues[id].Clone())
	}
	return sn
}

// Restore replaces the whole store with the snapshot. The snapshot is checked
// first; on error the store is unchanged.
func (s *Store) Restore(sn Snapshot) error {
	if err := sn.Check(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	for _, a := range sn.Authors {
		rec := a.Clone()
		if rec.PaperIDs == nil {
			rec.PaperIDs = []string{}
		}
		s.authors[rec.ID] = &rec
		s.authorOrder = append(s.authorOrder, rec.ID)
		s.addToIndexes(&rec)
	}
	for _, v := range sn.Venues {
		rec := v.Clone()
		if rec.PaperIDs == nil {
			rec.PaperIDs = []string{}
		}
		s.venues[rec.ID] = &rec
		s.venueOrder = append(s.venueOrder, rec.ID)
		s.addVenueToIndex(&rec)
	}
	for _, p := range sn.Papers {
		rec := p.Clone()
		if rec.CorrespondingIDs == nil {
			rec.CorrespondingIDs = []string{}
		}
		s.papers[rec.ID] = &rec
		s.paperOrder = append(s.paperOrder, rec.ID)
	}
	return nil
}

// Check validates every record and every cross-reference in the snapshot.
func (sn *Snapshot) Check() error {
	papers := make(map[string]bool, len(sn.Papers))
	authors := make(map[string]bool, len(sn.Authors))
	venues := make(map[string]bool, len(sn.Venues))

	for i := range sn.Authors {
		a := &sn.Authors[i]
		if err := a.Validate(); err != nil {
			return fmt.Errorf("author %d (%q): %w", i, a.ID, err)
		}
		if authors[a.ID] {
			return fmt.Errorf("author %q: %w", a.ID, ErrDuplicateID)
		}
		authors[a.ID] = true
	}
	for i := range sn.Venues {
		v := &sn.Venues[i]
		if err := v.Validate(); err != nil {
			return fmt.Errorf("venue %d (%q): %w", i, v.ID, err)
		}
		if venues[v.ID] {
			return fmt.Errorf("venue %q: %w", v.ID, ErrDuplicateID)
		}
		venues[v.ID] = true
	}
	for i := range sn.Papers {
		p := &sn.Papers[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("paper %d (%q): %w", i, p.ID, err)
		}
		if papers[p.ID] {
			return fmt.Errorf("paper %q: %w", p.ID, ErrDuplicateID)
		}
		papers[p.ID] = true
		for _, aid := range p.AuthorIDs {
			if !authors[aid] {
				return fmt.Errorf("paper %q author %q: %w", p.ID, aid, ErrDanglingReference)
			}
		}
		if p.VenueID != nil && !venues[*p.VenueID] {
			return fmt.Errorf("paper %q venue %q: %w", p.ID, *p.VenueID, ErrDanglingReference)
		}
	}

	for _, a := range sn.Authors {
		for _, pid := range a.PaperIDs {
			if !papers[pid] {
				return fmt.Errorf("author %q paper %q: %w", a.ID, pid, ErrDanglingReference)
			}
		}
	}
	for _, v := range sn.Venues {
		for _, pid := range v.PaperIDs {
			if !papers[pid] {
				return fmt.Errorf("venue %q paper %q: %w", v.ID, pid, ErrDanglingReference)
			}
		}
	}
	return nil
}
