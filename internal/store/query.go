package store

import (
	"sort"
	"strings"

	"github.com/matsen/bibnorm/internal/author"
	"github.com/matsen/bibnorm/internal/reference"
)

// Filter selects papers. Zero-valued fields match everything.
type Filter struct {
	Title   string         // case-insensitive substring
	Type    reference.Kind // exact
	Year    string         // exact publication year
	Authors []string       // author queries, all must match (see author.ParseQuery)
	Venue   string         // case-insensitive substring of the venue name
	Limit   int            // 0 means no limit
}

// SearchPapers returns copies of matching papers in insertion order.
func (s *Store) SearchPapers(f Filter) []reference.Paper {
	s.mu.RLock()
	defer s.mu.RUnlock()

	title := strings.ToLower(strings.TrimSpace(f.Title))
	venue := strings.ToLower(strings.TrimSpace(f.Venue))
	var queries []author.Query
	for _, raw := range f.Authors {
		if q := author.ParseQuery(raw); !q.IsZero() {
			queries = append(queries, q)
		}
	}

	var out []reference.Paper
	for _, id := range s.paperOrder {
		p := s.papers[id]
		if title != "" && !strings.Contains(strings.ToLower(p.Title), title) {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if f.Year != "" && reference.Deref(p.PublicationYear) != f.Year {
			continue
		}
		if venue != "" {
			if p.VenueID == nil {
				continue
			}
			v, ok := s.venues[*p.VenueID]
			if !ok || !strings.Contains(strings.ToLower(v.Name), venue) {
				continue
			}
		}
		if len(queries) > 0 && !author.AllMatch(queries, s.paperAuthors(p)) {
			continue
		}

		out = append(out, p.Clone())
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

func (s *Store) paperAuthors(p *reference.Paper) []reference.Author {
	out := make([]reference.Author, 0, len(p.AuthorIDs))
	for _, id := range p.AuthorIDs {
		if a, ok := s.authors[id]; ok {
			out = append(out, *a)
		}
	}
	return out
}

// Ranked is one entry of a citation leaderboard.
type Ranked struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Papers         int    `json:"papers"`
	TotalCitations int    `json:"total_citations"`
}

// Stats summarizes the store.
type Stats struct {
	Counts
	PapersByType   map[reference.Kind]int `json:"papers_by_type"`
	PapersByYear   map[string]int         `json:"papers_by_year"`
	TotalCitations int                    `json:"total_citations"`
	TopAuthors     []Ranked               `json:"top_authors"`
	TopVenues      []Ranked               `json:"top_venues"`
}

// Stats aggregates counts and the top n authors and venues by citations.
// Ties are broken by insertion order.
func (s *Store) Stats(n int) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Counts:       Counts{Papers: len(s.papers), Authors: len(s.authors), Venues: len(s.venues)},
		PapersByType: make(map[reference.Kind]int),
		PapersByYear: make(map[string]int),
	}
	for _, id := range s.paperOrder {
		p := s.papers[id]
		st.PapersByType[p.Type]++
		st.PapersByYear[reference.Deref(p.PublicationYear)]++
		st.TotalCitations += p.TotalCitations
	}

	authors := make([]Ranked, 0, len(s.authorOrder))
	for _, id := range s.authorOrder {
		a := s.authors[id]
		authors = append(authors, Ranked{ID: a.ID, Name: a.FullName, Papers: len(a.PaperIDs), TotalCitations: a.TotalCitations})
	}
	venues := make([]Ranked, 0, len(s.venueOrder))
	for _, id := range s.venueOrder {
		v := s.venues[id]
		venues = append(venues, Ranked{ID: v.ID, Name: v.Name, Papers: len(v.PaperIDs), TotalCitations: v.TotalCitations})
	}
	st.TopAuthors = top(authors, n)
	st.TopVenues = top(venues, n)
	return st
}

func top(list []Ranked, n int) []Ranked {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].TotalCitations > list[j].TotalCitations
	})
	if n >= 0 && len(list) > n {
		list = list[:n]
	}
	return list
}
