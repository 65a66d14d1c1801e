package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/matsen/bibnorm/internal/config"
	"github.com/matsen/bibnorm/internal/ingest"
	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/repo"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.ServiceConfig {
	return &config.ServiceConfig{
		HTTPPort:        "0",
		WriteRatePerSec: 100,
		WriteBurst:      100,
		DetailsCacheTTL: time.Minute,
	}
}

func newTestServer(t *testing.T, cfg *config.ServiceConfig) *Server {
	t.Helper()
	root := t.TempDir()
	if err := repo.Init(root, time.Now()); err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	r, err := repo.Open(root, repo.WithPipelineOptions(ingest.WithObserver(m)))
	if err != nil {
		t.Fatal(err)
	}
	return New(r, cfg, m, reg, zaptest.NewLogger(t))
}

func do(t *testing.T, s *Server, method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
}

var journalPaper = ingest.PaperInput{
	Title:           "A Hierarchical Architecture for the Future Internet of Vehicles",
	Authors:         "Kai Liu*, Xincao Xu",
	PublicationDate: "2019/7/19",
	Type:            "journal",
	VenueName:       "IEEE Communications Magazine",
	Citations:       "Cited by 138",
}

func addPaper(t *testing.T, s *Server, in ingest.PaperInput) string {
	t.Helper()
	w := do(t, s, http.MethodPost, "/papers", in)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /papers = %d %s", w.Code, w.Body.String())
	}
	var resp struct{ ID string }
	decode(t, w, &resp)
	return resp.ID
}

func TestAddAndGetPaper(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := addPaper(t, s, journalPaper)

	w := do(t, s, http.MethodGet, "/papers/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /papers/:id = %d", w.Code)
	}
	var p reference.Paper
	decode(t, w, &p)
	if p.Title != journalPaper.Title || p.TotalCitations != 138 {
		t.Errorf("paper = %+v", p)
	}

	w = do(t, s, http.MethodGet, "/venues/"+*p.VenueID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET /venues/:id = %d", w.Code)
	}
	w = do(t, s, http.MethodGet, "/authors/"+p.AuthorIDs[0], nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET /authors/:id = %d", w.Code)
	}
}

func TestAddPaper_ValidationError(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name      string
		mutate    func(*ingest.PaperInput)
		wantField string
	}{
		{"empty title", func(in *ingest.PaperInput) { in.Title = "" }, "title"},
		{"bad date", func(in *ingest.PaperInput) { in.PublicationDate = "July 2019" }, "publication_date"},
		{"bad type", func(in *ingest.PaperInput) { in.Type = "preprint" }, "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := journalPaper
			tt.mutate(&in)
			w := do(t, s, http.MethodPost, "/papers", in)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("POST /papers = %d, want 400", w.Code)
			}
			var resp errorResponse
			decode(t, w, &resp)
			if resp.Field != tt.wantField {
				t.Errorf("field = %q, want %q", resp.Field, tt.wantField)
			}
		})
	}

	if c := s.repo.Store.Counts(); c.Papers != 0 || c.Authors != 0 {
		t.Errorf("Counts() = %+v, want nothing created", c)
	}
}

func TestAddPaper_MalformedBody(t *testing.T) {
	s := newTestServer(t, testConfig())
	req := httptest.NewRequest(http.MethodPost, "/papers", strings.NewReader("{"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /papers = %d, want 400", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, testConfig())
	for _, path := range []string{"/papers/nope", "/papers/nope/details", "/authors/nope", "/venues/nope"} {
		if w := do(t, s, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, w.Code)
		}
	}
}

func TestAddAuthor(t *testing.T) {
	s := newTestServer(t, testConfig())
	in := ingest.AuthorInput{First: "Kai", Last: "Liu", Affiliation: "Chongqing University"}

	w := do(t, s, http.MethodPost, "/authors", in)
	if w.Code != http.StatusCreated {
		t.Fatalf("first POST /authors = %d", w.Code)
	}
	var first struct {
		ID      string
		Created bool
	}
	decode(t, w, &first)

	// Same author again resolves to the existing record
	w = do(t, s, http.MethodPost, "/authors", in)
	if w.Code != http.StatusOK {
		t.Fatalf("second POST /authors = %d", w.Code)
	}
	var second struct{ ID string }
	decode(t, w, &second)
	if second.ID != first.ID {
		t.Errorf("second id = %s, want %s", second.ID, first.ID)
	}

	w = do(t, s, http.MethodPost, "/authors", ingest.AuthorInput{First: "Kai", Last: "Liu", Email: "not-an-email"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /authors with bad email = %d, want 400", w.Code)
	}
}

func TestDetailsCacheFlushedOnWrite(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := addPaper(t, s, journalPaper)

	papersOfFirstAuthor := func() int {
		w := do(t, s, http.MethodGet, "/papers/"+id+"/details", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("GET details = %d", w.Code)
		}
		var d reference.PaperDetails
		decode(t, w, &d)
		if len(d.AuthorDetails) != 2 || !d.AuthorDetails[0].IsCorresponding {
			t.Fatalf("author details = %+v", d.AuthorDetails)
		}
		return len(d.AuthorDetails[0].PaperIDs)
	}

	if n := papersOfFirstAuthor(); n != 1 {
		t.Fatalf("papers = %d, want 1", n)
	}

	second := journalPaper
	second.Title = "Age of View"
	addPaper(t, s, second)

	if n := papersOfFirstAuthor(); n != 2 {
		t.Errorf("papers after write = %d, want 2 (stale cache?)", n)
	}
}

func TestDetailsCacheIgnoresEntriesFromBeforeWrite(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := addPaper(t, s, journalPaper)

	// A details read that started before the write and stored its result after.
	before := s.generation.Load()
	stale, ok := s.repo.Store.GetPaperWithDetails(id)
	if !ok {
		t.Fatal("paper missing")
	}
	second := journalPaper
	second.Title = "Age of View"
	addPaper(t, s, second)
	s.details.SetDefault(detailsKey(before, id), stale)

	w := do(t, s, http.MethodGet, "/papers/"+id+"/details", nil)
	var d reference.PaperDetails
	decode(t, w, &d)
	if len(d.AuthorDetails) == 0 || len(d.AuthorDetails[0].PaperIDs) != 2 {
		t.Errorf("author details = %+v, want the post-write projection", d.AuthorDetails)
	}
}

func TestSearchAndStats(t *testing.T) {
	s := newTestServer(t, testConfig())
	addPaper(t, s, journalPaper)
	conf := journalPaper
	conf.Title = "Age of View"
	conf.Type = "conference"
	conf.VenueName = "2022 IEEE 25th International Conference on Intelligent Transportation Systems (ITSC)"
	conf.PublicationDate = "2022/10/8"
	conf.Citations = "Cited by 8"
	addPaper(t, s, conf)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?type=conference", 1},
		{"?year=2019", 1},
		{"?author=Liu&author=Xu", 2},
		{"?author=Chen", 0},
		{"?title=view", 1},
		{"?limit=1", 1},
	}
	for _, tt := range tests {
		w := do(t, s, http.MethodGet, "/papers"+tt.query, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("GET /papers%s = %d", tt.query, w.Code)
		}
		var resp struct{ Count int }
		decode(t, w, &resp)
		if resp.Count != tt.want {
			t.Errorf("GET /papers%s count = %d, want %d", tt.query, resp.Count, tt.want)
		}
	}

	if w := do(t, s, http.MethodGet, "/papers?type=preprint", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid type = %d, want 400", w.Code)
	}

	w := do(t, s, http.MethodGet, "/stats?top=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /stats = %d", w.Code)
	}
	var st struct {
		Papers         int
		TotalCitations int                     `json:"total_citations"`
		TopVenues      []struct{ Name string } `json:"top_venues"`
	}
	decode(t, w, &st)
	if st.Papers != 2 || st.TotalCitations != 146 || len(st.TopVenues) != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "secret"
	s := newTestServer(t, cfg)

	if w := do(t, s, http.MethodPost, "/papers", journalPaper); w.Code != http.StatusUnauthorized {
		t.Errorf("POST without key = %d, want 401", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/papers", journalPaper, APIKeyHeader, "secret"); w.Code != http.StatusCreated {
		t.Errorf("POST with key = %d, want 201", w.Code)
	}
	// Reads stay open
	if w := do(t, s, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.WriteRatePerSec = 0
	cfg.WriteBurst = 1
	s := newTestServer(t, cfg)

	addPaper(t, s, journalPaper)
	second := journalPaper
	second.Title = "Another"
	if w := do(t, s, http.MethodPost, "/papers", second); w.Code != http.StatusTooManyRequests {
		t.Errorf("second POST = %d, want 429", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, testConfig())
	addPaper(t, s, journalPaper)

	w := do(t, s, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"bibnorm_papers_ingested_total 1",
		`bibnorm_authors_resolved_total{outcome="created"} 2`,
		`bibnorm_venues_resolved_total{outcome="created"} 1`,
		`bibnorm_http_requests_total{method="POST",route="/papers",status="201"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestAutosave(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := addPaper(t, s, journalPaper)

	s.autosave()
	if s.dirty.Load() {
		t.Error("dirty flag still set after autosave")
	}

	reopened, err := repo.Open(s.repo.Root)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reopened.Store.GetPaper(id); !ok {
		t.Error("autosave did not persist the paper")
	}
}

func TestSaveEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())
	addPaper(t, s, journalPaper)

	if w := do(t, s, http.MethodPost, "/save", nil); w.Code != http.StatusOK {
		t.Fatalf("POST /save = %d", w.Code)
	}
	reopened, err := repo.Open(s.repo.Root)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Store.Counts().Papers != 1 {
		t.Error("POST /save did not persist")
	}
}
