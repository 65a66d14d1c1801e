package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matsen/bibnorm/internal/ingest"
	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/resolve"
	"github.com/matsen/bibnorm/internal/store"
)

// testSnapshot builds three papers through the ingestion pipeline.
func testSnapshot(t *testing.T) store.Snapshot {
	t.Helper()
	n := 0
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := resolve.New(
		resolve.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%02d", n)
		}),
		resolve.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)
	s := store.New()
	p := ingest.New(s, r)

	inputs := []ingest.PaperInput{
		{
			Title: "Cooperative Data Scheduling in Vehicular Networks", Authors: "Kai Liu*, Xincao Xu",
			PublicationDate: "2016/6/1", Type: "journal", VenueName: "IEEE/ACM Transactions on Networking",
			Abstract: "Scheduling for cooperative data dissemination.", Citations: "Cited by 138",
		},
		{
			Title: "Edge Caching for Connected Vehicles", Authors: "Penglin Dai, Kai Liu",
			PublicationDate: "2022-9-3", Type: "conference",
			VenueName: "2022 IEEE 25th International Conference on Intelligent Transportation Systems (ITSC)",
			Abstract:  "Caching content at roadside units.", Citations: "12",
		},
		{
			Title: "Digital Twin Offloading", Authors: "Xincao Xu, Penglin Dai",
			PublicationDate: "2023", Type: "journal", VenueName: "IEEE Transactions on Mobile Computing",
			Citations: "Cited by 40",
		},
	}
	for _, in := range inputs {
		if _, err := p.AddPaper(in); err != nil {
			t.Fatalf("AddPaper(%q): %v", in.Title, err)
		}
	}
	return s.Snapshot()
}

// setupTestDB creates a test database rebuilt from testSnapshot.
func setupTestDB(t *testing.T) (*DB, store.Snapshot) {
	t.Helper()

	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sn := testSnapshot(t)
	if _, err := db.RebuildFromSnapshot(sn); err != nil {
		t.Fatalf("Failed to rebuild DB: %v", err)
	}
	return db, sn
}

func TestOpenDB_CreatesSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("OpenDB() did not create database file")
	}
}

func TestDB_RebuildFromSnapshot(t *testing.T) {
	db, sn := setupTestDB(t)

	count, err := db.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}

	// Rebuild replaces rather than appends
	sn.Papers = sn.Papers[:1]
	rebuilt, err := db.RebuildFromSnapshot(sn)
	if err != nil {
		t.Fatalf("RebuildFromSnapshot() error = %v", err)
	}
	if rebuilt != 1 {
		t.Errorf("RebuildFromSnapshot() = %d, want 1", rebuilt)
	}
	count, _ = db.Count()
	if count != 1 {
		t.Errorf("After rebuild, Count() = %d, want 1", count)
	}
}

func TestDB_GetPaper(t *testing.T) {
	db, sn := setupTestDB(t)
	want := sn.Papers[0]

	got, err := db.GetPaper(want.ID)
	if err != nil {
		t.Fatalf("GetPaper() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetPaper() returned nil")
	}
	if got.Title != want.Title || got.TotalCitations != 138 {
		t.Errorf("GetPaper() = %+v", got)
	}
	if len(got.AuthorIDs) != 2 || len(got.CorrespondingIDs) != 1 {
		t.Errorf("authors = %v corresponding = %v", got.AuthorIDs, got.CorrespondingIDs)
	}
	if reference.Deref(got.PublicationDate) != "2016-06-01" || got.Volume != nil {
		t.Errorf("date = %q volume = %v", reference.Deref(got.PublicationDate), got.Volume)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}

	missing, err := db.GetPaper("nope")
	if err != nil || missing != nil {
		t.Errorf("GetPaper(nope) = %v, %v; want nil, nil", missing, err)
	}
}

func TestDB_SearchWithFilters(t *testing.T) {
	db, _ := setupTestDB(t)

	tests := []struct {
		name    string
		filters SearchFilters
		want    []string
	}{
		{"keyword in title", SearchFilters{Keyword: "caching"}, []string{"Edge Caching for Connected Vehicles"}},
		{"keyword in abstract", SearchFilters{Keyword: "roadside"}, []string{"Edge Caching for Connected Vehicles"}},
		{"title only", SearchFilters{Title: "offloading"}, []string{"Digital Twin Offloading"}},
		{"author prefix", SearchFilters{Authors: []string{"Pen"}}, []string{"Digital Twin Offloading", "Edge Caching for Connected Vehicles"}},
		{"two authors", SearchFilters{Authors: []string{"Kai Liu", "Xincao"}}, []string{"Cooperative Data Scheduling in Vehicular Networks"}},
		{"type", SearchFilters{Type: reference.KindConference}, []string{"Edge Caching for Connected Vehicles"}},
		{"year range", SearchFilters{YearFrom: 2020, YearTo: 2022}, []string{"Edge Caching for Connected Vehicles"}},
		{"venue", SearchFilters{Venue: "mobile"}, []string{"Digital Twin Offloading"}},
		{"keyword with type", SearchFilters{Keyword: "vehicular", Type: reference.KindConference}, nil},
		{"punctuation in keyword", SearchFilters{Keyword: "IEEE/ACM"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.SearchWithFilters(tt.filters, 10)
			if err != nil {
				t.Fatalf("SearchWithFilters() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("SearchWithFilters() returned %d papers, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Title != tt.want[i] {
					t.Errorf("result[%d] = %q, want %q", i, got[i].Title, tt.want[i])
				}
			}
		})
	}
}

func TestDB_CitationLeaders(t *testing.T) {
	db, _ := setupTestDB(t)

	authors, err := db.CitationLeaders("authors", 2)
	if err != nil {
		t.Fatalf("CitationLeaders(authors) error = %v", err)
	}
	if len(authors) != 2 {
		t.Fatalf("got %d leaders, want 2", len(authors))
	}
	// Xincao Xu: 138 + 40, Kai Liu: 138 + 12
	if authors[0].Name != "Xincao Xu" || authors[0].TotalCitations != 178 {
		t.Errorf("top author = %+v", authors[0])
	}
	if authors[1].Name != "Kai Liu" || authors[1].Papers != 2 {
		t.Errorf("second author = %+v", authors[1])
	}

	venues, err := db.CitationLeaders("venues", 10)
	if err != nil {
		t.Fatalf("CitationLeaders(venues) error = %v", err)
	}
	if len(venues) != 3 || venues[0].TotalCitations != 138 {
		t.Errorf("venues = %+v", venues)
	}

	if _, err := db.CitationLeaders("papers", 1); err == nil {
		t.Error("CitationLeaders(papers) should fail")
	}
}

func TestDB_PapersByAuthor(t *testing.T) {
	db, sn := setupTestDB(t)
	kai := sn.Papers[0].AuthorIDs[0]

	papers, err := db.PapersByAuthor(kai)
	if err != nil {
		t.Fatalf("PapersByAuthor() error = %v", err)
	}
	if len(papers) != 2 || papers[0].ID != sn.Papers[0].ID {
		t.Errorf("PapersByAuthor() = %d papers", len(papers))
	}
}

func TestDB_YearHistogram(t *testing.T) {
	db, _ := setupTestDB(t)

	hist, err := db.YearHistogram()
	if err != nil {
		t.Fatalf("YearHistogram() error = %v", err)
	}
	want := []YearCount{{"2016", 1}, {"2022", 1}, {"2023", 1}}
	if len(hist) != len(want) {
		t.Fatalf("YearHistogram() = %v, want %v", hist, want)
	}
	for i := range want {
		if hist[i] != want[i] {
			t.Errorf("hist[%d] = %v, want %v", i, hist[i], want[i])
		}
	}
}

func TestDB_SourceHash(t *testing.T) {
	db, _ := setupTestDB(t)

	hash, err := db.SourceHash()
	if err != nil || hash != "" {
		t.Fatalf("SourceHash() = %q, %v; want empty", hash, err)
	}
	if err := db.SetSourceHash("abc"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSourceHash("def"); err != nil {
		t.Fatal(err)
	}
	if hash, _ := db.SourceHash(); hash != "def" {
		t.Errorf("SourceHash() = %q, want def", hash)
	}
}

func TestDB_EmptySnapshot(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	n, err := db.RebuildFromSnapshot(store.Snapshot{})
	if err != nil || n != 0 {
		t.Fatalf("RebuildFromSnapshot(empty) = %d, %v", n, err)
	}
	papers, err := db.SearchWithFilters(SearchFilters{}, 10)
	if err != nil || len(papers) != 0 {
		t.Errorf("SearchWithFilters() = %v, %v", papers, err)
	}
}

func TestPrepareFTSQuery(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"simple query", "simple query"},
		{"", ""},
		{"  spaced  ", "spaced"},
		{"IEEE/ACM", `"IEEE/ACM"`},
		{`say "hi"`, `"say ""hi"""`},
	}

	for _, tt := range tests {
		if got := prepareFTSQuery(tt.input); got != tt.want {
			t.Errorf("prepareFTSQuery(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPrepareAuthorQuery(t *testing.T) {
	if got := prepareAuthorQuery("Kai Liu"); got != `("Kai"* AND "Liu"*)` {
		t.Errorf("prepareAuthorQuery() = %q", got)
	}
}
