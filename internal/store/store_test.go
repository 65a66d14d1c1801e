package store

import (
	"errors"
	"testing"
	"time"

	"github.com/matsen/bibnorm/internal/reference"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// seed inserts two authors, one venue and one paper that cites both authors.
func seed(t *testing.T, s *Store) {
	t.Helper()
	err := s.Update(func(tx *Tx) error {
		if err := tx.InsertAuthor(reference.NewAuthor("a1", "Kai", "Liu", reference.StringPtr("BJUT"), nil, testTime)); err != nil {
			return err
		}
		if err := tx.InsertAuthor(reference.NewAuthor("a2", "Xincao", "Xu", nil, nil, testTime)); err != nil {
			return err
		}
		if err := tx.InsertVenue(reference.Venue{
			ID: "v1", Type: reference.KindJournal, Name: "IEEE Transactions on Mobile Computing",
			Publisher: "IEEE", CreatedAt: testTime,
		}); err != nil {
			return err
		}
		return tx.InsertPaper(reference.Paper{
			ID:               "p1",
			Title:            "Cooperative Data Scheduling in Hybrid Vehicular Networks",
			Type:             reference.KindJournal,
			AuthorIDs:        []string{"a1", "a2"},
			CorrespondingIDs: []string{"a1"},
			PublicationYear:  reference.StringPtr("2021"),
			VenueID:          reference.StringPtr("v1"),
			TotalCitations:   12,
			CreatedAt:        testTime,
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestInsertPaper_BackReferences(t *testing.T) {
	s := New()
	seed(t, s)

	a, ok := s.GetAuthor("a1")
	if !ok {
		t.Fatal("author a1 not found")
	}
	if len(a.PaperIDs) != 1 || a.PaperIDs[0] != "p1" {
		t.Errorf("author papers = %v, want [p1]", a.PaperIDs)
	}
	if a.TotalCitations != 12 {
		t.Errorf("author citations = %d, want 12", a.TotalCitations)
	}

	v, _ := s.GetVenue("v1")
	if len(v.PaperIDs) != 1 || v.TotalCitations != 12 {
		t.Errorf("venue = %+v, want one paper with 12 citations", v)
	}

	if got := s.Counts(); got != (Counts{Papers: 1, Authors: 2, Venues: 1}) {
		t.Errorf("Counts() = %+v", got)
	}
}

func TestInsertPaper_DuplicateAuthorCreditedTwice(t *testing.T) {
	s := New()
	seed(t, s)

	err := s.Update(func(tx *Tx) error {
		return tx.InsertPaper(reference.Paper{
			ID: "p2", Title: "T", Type: reference.KindJournal,
			AuthorIDs: []string{"a2", "a2"}, TotalCitations: 3,
		})
	})
	if err != nil {
		t.Fatalf("InsertPaper: %v", err)
	}

	a, _ := s.GetAuthor("a2")
	if len(a.PaperIDs) != 3 {
		t.Errorf("papers = %v, want p1 then p2 twice", a.PaperIDs)
	}
	if a.TotalCitations != 18 {
		t.Errorf("citations = %d, want 18", a.TotalCitations)
	}
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	s := New()
	seed(t, s)
	before := s.Snapshot()

	boom := errors.New("boom")
	err := s.Update(func(tx *Tx) error {
		if err := tx.InsertAuthor(reference.NewAuthor("a3", "Penglin", "Dai", nil, nil, testTime)); err != nil {
			return err
		}
		if _, _, err := tx.BackfillAuthor("a1", nil, reference.StringPtr("kailiu@bjut.edu.cn")); err != nil {
			return err
		}
		if err := tx.InsertVenue(reference.Venue{ID: "v2", Type: reference.KindConference, Name: "ITSC",
			CanonicalName: reference.StringPtr("ITSC")}); err != nil {
			return err
		}
		if err := tx.InsertPaper(reference.Paper{
			ID: "p2", Title: "T", Type: reference.KindConference,
			AuthorIDs: []string{"a1", "a3"}, VenueID: reference.StringPtr("v2"), TotalCitations: 5,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	if got := s.Counts(); got != before.Counts() {
		t.Errorf("Counts() = %+v, want %+v", got, before.Counts())
	}
	a, _ := s.GetAuthor("a1")
	if a.Email != nil {
		t.Errorf("email back-fill survived rollback: %q", *a.Email)
	}
	if len(a.PaperIDs) != 1 || a.TotalCitations != 12 {
		t.Errorf("author aggregates survived rollback: %+v", a)
	}
	err = s.View(func(tx *Tx) error {
		if got := tx.AuthorsByName("Penglin", "Dai"); len(got) != 0 {
			t.Errorf("name index kept rolled-back author: %v", got)
		}
		if _, ok := tx.VenueByKey(reference.KindConference, "itsc"); ok {
			t.Error("venue index kept rolled-back venue")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestInsertPaper_DanglingReference(t *testing.T) {
	s := New()
	seed(t, s)

	err := s.Update(func(tx *Tx) error {
		return tx.InsertPaper(reference.Paper{ID: "p2", Title: "T", Type: reference.KindJournal, AuthorIDs: []string{"missing"}})
	})
	if !errors.Is(err, ErrDanglingReference) {
		t.Errorf("error = %v, want ErrDanglingReference", err)
	}
}

func TestView_ReadOnly(t *testing.T) {
	s := New()
	err := s.View(func(tx *Tx) error {
		return tx.InsertAuthor(reference.NewAuthor("a1", "Kai", "Liu", nil, nil, testTime))
	})
	if !errors.Is(err, ErrReadOnly) {
		t.Errorf("error = %v, want ErrReadOnly", err)
	}
}

func TestVenueByKey_Typed(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantHit bool
	}{
		{"typed keeps kinds apart", nil, false},
		{"untyped collides", []Option{WithUntypedVenueDedup()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.opts...)
			err := s.Update(func(tx *Tx) error {
				return tx.InsertVenue(reference.Venue{ID: "v1", Type: reference.KindJournal, Name: "Vehicular Communications"})
			})
			if err != nil {
				t.Fatal(err)
			}
			_ = s.View(func(tx *Tx) error {
				if _, ok := tx.VenueByKey(reference.KindJournal, "VEHICULAR communications"); !ok {
					t.Error("case-insensitive lookup missed")
				}
				if _, ok := tx.VenueByKey(reference.KindConference, "Vehicular Communications"); ok != tt.wantHit {
					t.Errorf("conference lookup hit = %v, want %v", ok, tt.wantHit)
				}
				return nil
			})
		})
	}
}

func TestSetCanonicalName_IndexesLegacyVenue(t *testing.T) {
	s := New()
	err := s.Update(func(tx *Tx) error {
		if err := tx.InsertVenue(reference.Venue{ID: "v1", Type: reference.KindConference, Name: "2021 IEEE ITSC"}); err != nil {
			return err
		}
		if got := tx.UncanonicalizedVenues(); len(got) != 1 {
			t.Errorf("UncanonicalizedVenues() = %d, want 1", len(got))
		}
		return tx.SetCanonicalName("v1", "IEEE ITSC")
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = s.View(func(tx *Tx) error {
		if v, ok := tx.VenueByKey(reference.KindConference, "ieee itsc"); !ok || v.ID != "v1" {
			t.Errorf("VenueByKey() = %v, %v", v.ID, ok)
		}
		if got := tx.UncanonicalizedVenues(); len(got) != 0 {
			t.Errorf("UncanonicalizedVenues() = %d, want 0", len(got))
		}
		return nil
	})
}

func TestGetPaperWithDetails(t *testing.T) {
	s := New()
	seed(t, s)

	d, ok := s.GetPaperWithDetails("p1")
	if !ok {
		t.Fatal("paper not found")
	}
	if len(d.AuthorDetails) != 2 {
		t.Fatalf("author details = %d, want 2", len(d.AuthorDetails))
	}
	if !d.AuthorDetails[0].IsCorresponding || d.AuthorDetails[1].IsCorresponding {
		t.Errorf("corresponding flags = %v, %v", d.AuthorDetails[0].IsCorresponding, d.AuthorDetails[1].IsCorresponding)
	}
	if d.VenueDetails == nil || d.VenueDetails.ID != "v1" {
		t.Errorf("venue details = %+v", d.VenueDetails)
	}

	if _, ok := s.GetPaperWithDetails("nope"); ok {
		t.Error("details for unknown paper")
	}
}

func TestGetters_ReturnCopies(t *testing.T) {
	s := New()
	seed(t, s)

	p, _ := s.GetPaper("p1")
	p.AuthorIDs[0] = "mutated"
	again, _ := s.GetPaper("p1")
	if again.AuthorIDs[0] != "a1" {
		t.Error("GetPaper exposed store memory")
	}
}

func TestSearchPapers(t *testing.T) {
	s := New()
	seed(t, s)
	err := s.Update(func(tx *Tx) error {
		if err := tx.InsertVenue(reference.Venue{ID: "v2", Type: reference.KindConference, Name: "2022 IEEE ITSC",
			CanonicalName: reference.StringPtr("IEEE ITSC")}); err != nil {
			return err
		}
		return tx.InsertPaper(reference.Paper{
			ID: "p2", Title: "Edge Caching for Vehicles", Type: reference.KindConference,
			AuthorIDs: []string{"a2"}, VenueID: reference.StringPtr("v2"),
			PublicationYear: reference.StringPtr("2022"),
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"everything", Filter{}, []string{"p1", "p2"}},
		{"title substring", Filter{Title: "caching"}, []string{"p2"}},
		{"type", Filter{Type: reference.KindJournal}, []string{"p1"}},
		{"year", Filter{Year: "2022"}, []string{"p2"}},
		{"author last name", Filter{Authors: []string{"Liu"}}, []string{"p1"}},
		{"author first last", Filter{Authors: []string{"Xincao Xu"}}, []string{"p1", "p2"}},
		{"all authors must match", Filter{Authors: []string{"Liu", "Xu"}}, []string{"p1"}},
		{"venue substring", Filter{Venue: "itsc"}, []string{"p2"}},
		{"limit", Filter{Limit: 1}, []string{"p1"}},
		{"no match", Filter{Title: "quantum"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.SearchPapers(tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("SearchPapers() returned %d papers, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("result[%d] = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestStats(t *testing.T) {
	s := New()
	seed(t, s)

	st := s.Stats(1)
	if st.Papers != 1 || st.Authors != 2 || st.Venues != 1 {
		t.Errorf("counts = %+v", st.Counts)
	}
	if st.PapersByType[reference.KindJournal] != 1 {
		t.Errorf("PapersByType = %v", st.PapersByType)
	}
	if st.PapersByYear["2021"] != 1 {
		t.Errorf("PapersByYear = %v", st.PapersByYear)
	}
	if len(st.TopAuthors) != 1 || st.TopAuthors[0].ID != "a1" {
		t.Errorf("TopAuthors = %+v, want a1 first on insertion order tie", st.TopAuthors)
	}
	if st.TotalCitations != 12 {
		t.Errorf("TotalCitations = %d, want 12", st.TotalCitations)
	}
}

func TestSnapshotRestore(t *testing.T) {
	src := New()
	seed(t, src)
	sn := src.Snapshot()

	dst := New()
	if err := dst.Restore(sn); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if dst.Counts() != src.Counts() {
		t.Errorf("Counts() = %+v, want %+v", dst.Counts(), src.Counts())
	}
	_ = dst.View(func(tx *Tx) error {
		if got := tx.AuthorsByName("kai", "liu"); len(got) != 1 {
			t.Errorf("name index not rebuilt: %v", got)
		}
		if _, ok := tx.VenueByKey(reference.KindJournal, "ieee transactions on mobile computing"); !ok {
			t.Error("venue index not rebuilt")
		}
		return nil
	})
}

func TestRestore_RejectsBrokenSnapshot(t *testing.T) {
	dst := New()
	seed(t, dst)
	before := dst.Counts()

	src := New()
	seed(t, src)
	sn := src.Snapshot()
	sn.Authors = sn.Authors[:1] // p1 still names a2

	err := dst.Restore(sn)
	if !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("Restore() error = %v, want ErrDanglingReference", err)
	}
	if dst.Counts() != before {
		t.Errorf("store changed after failed restore: %+v", dst.Counts())
	}
}
