// Package storage maintains the SQLite query cache derived from the JSONL
// repository. The cache is disposable: it can always be rebuilt from a snapshot.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/store"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// selectPaperFields contains the standard field list for paper SELECT queries.
const selectPaperFields = `p.id, p.title, p.type,
	p.authors_json, p.corresponding_json,
	p.publication_date, p.publication_year, p.venue_id,
	p.volume, p.issue, p.pages, p.publisher, p.abstract,
	p.total_citations, p.created_at`

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			type TEXT NOT NULL,
			authors_json TEXT NOT NULL,
			corresponding_json TEXT NOT NULL,
			publication_date TEXT,
			publication_year TEXT,
			venue_id TEXT,
			volume TEXT,
			issue TEXT,
			pages TEXT,
			publisher TEXT,
			abstract TEXT,
			total_citations INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_papers_year ON papers(publication_year);
		CREATE INDEX IF NOT EXISTS idx_papers_venue ON papers(venue_id);

		CREATE TABLE IF NOT EXISTS authors (
			id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			name TEXT NOT NULL,
			affiliation TEXT,
			email TEXT,
			paper_count INTEGER NOT NULL,
			total_citations INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS venues (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			canonical_name TEXT,
			publisher TEXT,
			ccf_rank TEXT,
			cas_zone TEXT,
			field TEXT,
			paper_count INTEGER NOT NULL,
			total_citations INTEGER NOT NULL
		);

		-- One row per author position; an author listed twice has two rows
		CREATE TABLE IF NOT EXISTS paper_authors (
			paper_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			author_id TEXT NOT NULL,
			is_corresponding INTEGER NOT NULL,
			PRIMARY KEY (paper_id, position)
		);
		CREATE INDEX IF NOT EXISTS idx_paper_authors_author ON paper_authors(author_id);

		-- Full-text search virtual table (standalone, not external content)
		CREATE VIRTUAL TABLE IF NOT EXISTS papers_fts USING fts5(
			id,
			title,
			abstract,
			authors_text
		);

		CREATE TABLE IF NOT EXISTS cache_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// RebuildFromSnapshot clears the database and loads every record of sn in one
// transaction. It returns the number of papers written.
func (d *DB) RebuildFromSnapshot(sn store.Snapshot) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning rebuild: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"papers", "authors", "venues", "paper_authors", "papers_fts"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return 0, fmt.Errorf("clearing %s table: %w", table, err)
		}
	}

	authorStmt, err := tx.Prepare(`
		INSERT INTO authors (id, first_name, last_name, name, affiliation, email, paper_count, total_citations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing authors insert: %w", err)
	}
	defer authorStmt.Close()

	names := make(map[string]string, len(sn.Authors))
	for _, a := range sn.Authors {
		names[a.ID] = a.FullName
		_, err := authorStmt.Exec(a.ID, a.FirstName, a.LastName, a.FullName,
			nullable(a.Affiliation), nullable(a.Email), len(a.PaperIDs), a.TotalCitations)
		if err != nil {
			return 0, fmt.Errorf("inserting author %s: %w", a.ID, err)
		}
	}

	venueStmt, err := tx.Prepare(`
		INSERT INTO venues (id, type, name, canonical_name, publisher, ccf_rank, cas_zone, field, paper_count, total_citations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing venues insert: %w", err)
	}
	defer venueStmt.Close()

	for _, v := range sn.Venues {
		c := v.Classification
		_, err := venueStmt.Exec(v.ID, string(v.Type), v.Name, nullable(v.CanonicalName), v.Publisher,
			nullable(c.CCFRank), nullable(c.CASZone), nullable(c.Field), len(v.PaperIDs), v.TotalCitations)
		if err != nil {
			return 0, fmt.Errorf("inserting venue %s: %w", v.ID, err)
		}
	}

	paperStmt, err := tx.Prepare(`
		INSERT INTO papers (
			id, title, type, authors_json, corresponding_json,
			publication_date, publication_year, venue_id,
			volume, issue, pages, publisher, abstract,
			total_citations, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing papers insert: %w", err)
	}
	defer paperStmt.Close()

	linkStmt, err := tx.Prepare(`
		INSERT INTO paper_authors (paper_id, position, author_id, is_corresponding) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing paper_authors insert: %w", err)
	}
	defer linkStmt.Close()

	ftsStmt, err := tx.Prepare(`
		INSERT INTO papers_fts (id, title, abstract, authors_text) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing fts insert: %w", err)
	}
	defer ftsStmt.Close()

	for _, p := range sn.Papers {
		authorsJSON, err := json.Marshal(p.AuthorIDs)
		if err != nil {
			return 0, fmt.Errorf("marshaling authors for %s: %w", p.ID, err)
		}
		correspondingJSON, err := json.Marshal(p.CorrespondingIDs)
		if err != nil {
			return 0, fmt.Errorf("marshaling corresponding authors for %s: %w", p.ID, err)
		}

		_, err = paperStmt.Exec(
			p.ID, p.Title, string(p.Type), string(authorsJSON), string(correspondingJSON),
			nullable(p.PublicationDate), nullable(p.PublicationYear), nullable(p.VenueID),
			nullable(p.Volume), nullable(p.Issue), p.Pages, p.Publisher, p.Abstract,
			p.TotalCitations, p.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting paper %s: %w", p.ID, err)
		}

		authorNames := make([]string, 0, len(p.AuthorIDs))
		for i, aid := range p.AuthorIDs {
			corresponding := 0
			if p.IsCorresponding(aid) {
				corresponding = 1
			}
			if _, err := linkStmt.Exec(p.ID, i, aid, corresponding); err != nil {
				return 0, fmt.Errorf("linking paper %s author %s: %w", p.ID, aid, err)
			}
			authorNames = append(authorNames, names[aid])
		}

		if _, err := ftsStmt.Exec(p.ID, p.Title, p.Abstract, strings.Join(authorNames, ", ")); err != nil {
			return 0, fmt.Errorf("inserting fts for %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing rebuild: %w", err)
	}
	return len(sn.Papers), nil
}

// SourceHash returns the repository hash recorded at the last rebuild, or "".
func (d *DB) SourceHash() (string, error) {
	var hash string
	err := d.db.QueryRow(`SELECT value FROM cache_meta WHERE key = 'source_hash'`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetSourceHash records the repository hash the cache was built from.
func (d *DB) SetSourceHash(hash string) error {
	_, err := d.db.Exec(`
		INSERT INTO cache_meta (key, value) VALUES ('source_hash', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, hash)
	return err
}

// GetPaper retrieves a paper by its ID. A missing paper returns nil, nil.
func (d *DB) GetPaper(id string) (*reference.Paper, error) {
	row := d.db.QueryRow(`SELECT `+selectPaperFields+` FROM papers p WHERE p.id = ?`, id)
	return scanPaper(row)
}

// SearchFilters contains optional filters for SearchWithFilters.
type SearchFilters struct {
	Keyword  string         // General keyword search across title, abstract and authors
	Title    string         // Search in title only (FTS)
	Authors  []string       // Author names (AND logic, prefix matching)
	Type     reference.Kind // Exact paper type
	YearFrom int            // Minimum publication year (0 = no minimum)
	YearTo   int            // Maximum publication year (0 = no maximum)
	Venue    string         // Venue name substring (case-insensitive)
}

// SearchWithFilters performs a search with multiple optional filters.
// Returns papers matching ALL specified criteria, most cited first.
func (d *DB) SearchWithFilters(filters SearchFilters, limit int) ([]reference.Paper, error) {
	var ftsTerms []string
	var args []interface{}

	if filters.Keyword != "" {
		ftsTerms = append(ftsTerms, prepareFTSQuery(filters.Keyword))
	}
	if filters.Title != "" {
		ftsTerms = append(ftsTerms, "title:"+prepareFTSQuery(filters.Title))
	}
	for _, author := range filters.Authors {
		if strings.TrimSpace(author) != "" {
			ftsTerms = append(ftsTerms, "authors_text:"+prepareAuthorQuery(author))
		}
	}

	query := `SELECT ` + selectPaperFields + ` FROM papers p LEFT JOIN venues v ON v.id = p.venue_id WHERE 1=1`
	if len(ftsTerms) > 0 {
		query += ` AND p.id IN (SELECT id FROM papers_fts WHERE papers_fts MATCH ?)`
		args = append(args, strings.Join(ftsTerms, " AND "))
	}
	if filters.Type != "" {
		query += " AND p.type = ?"
		args = append(args, string(filters.Type))
	}
	if filters.YearFrom > 0 {
		query += " AND CAST(p.publication_year AS INTEGER) >= ?"
		args = append(args, filters.YearFrom)
	}
	if filters.YearTo > 0 {
		query += " AND CAST(p.publication_year AS INTEGER) <= ?"
		args = append(args, filters.YearTo)
	}
	if filters.Venue != "" {
		query += " AND v.name LIKE ?"
		args = append(args, "%"+filters.Venue+"%")
	}

	query += " ORDER BY p.total_citations DESC, p.created_at"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching with filters: %w", err)
	}
	defer rows.Close()

	return scanPapers(rows)
}

// Leader is one row of a citation leaderboard.
type Leader struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Papers         int    `json:"papers"`
	TotalCitations int    `json:"total_citations"`
}

// CitationLeaders returns the most cited authors or venues.
func (d *DB) CitationLeaders(entity string, limit int) ([]Leader, error) {
	var table string
	switch entity {
	case "authors":
		table = "authors"
	case "venues":
		table = "venues"
	default:
		return nil, fmt.Errorf("unknown leaderboard %q (want authors or venues)", entity)
	}

	rows, err := d.db.Query(`
		SELECT id, name, paper_count, total_citations FROM `+table+`
		ORDER BY total_citations DESC, paper_count DESC, name
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying %s leaders: %w", entity, err)
	}
	defer rows.Close()

	var leaders []Leader
	for rows.Next() {
		var l Leader
		if err := rows.Scan(&l.ID, &l.Name, &l.Papers, &l.TotalCitations); err != nil {
			return nil, err
		}
		leaders = append(leaders, l)
	}
	return leaders, rows.Err()
}

// PapersByAuthor returns the papers an author appears on, oldest first.
func (d *DB) PapersByAuthor(authorID string) ([]reference.Paper, error) {
	rows, err := d.db.Query(`
		SELECT `+selectPaperFields+` FROM papers p
		WHERE p.id IN (SELECT paper_id FROM paper_authors WHERE author_id = ?)
		ORDER BY p.created_at`, authorID)
	if err != nil {
		return nil, fmt.Errorf("querying papers by author: %w", err)
	}
	defer rows.Close()
	return scanPapers(rows)
}

// YearCount is one bucket of YearHistogram.
type YearCount struct {
	Year   string `json:"year"`
	Papers int    `json:"papers"`
}

// YearHistogram returns paper counts per publication year, oldest first.
// Papers without a year are reported under "n/a" at the end.
func (d *DB) YearHistogram() ([]YearCount, error) {
	rows, err := d.db.Query(`
		SELECT COALESCE(publication_year, 'n/a') AS y, COUNT(*) FROM papers
		GROUP BY y
		ORDER BY publication_year IS NULL, publication_year`)
	if err != nil {
		return nil, fmt.Errorf("querying year histogram: %w", err)
	}
	defer rows.Close()

	var hist []YearCount
	for rows.Next() {
		var yc YearCount
		if err := rows.Scan(&yc.Year, &yc.Papers); err != nil {
			return nil, err
		}
		hist = append(hist, yc)
	}
	return hist, rows.Err()
}

// Count returns the total number of papers.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM papers").Scan(&count)
	return count, err
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPaper(s scanner) (*reference.Paper, error) {
	var p reference.Paper
	var kind, authorsJSON, correspondingJSON, createdAt string
	var date, year, venueID, volume, issue sql.NullString
	var pages, publisher, abstract sql.NullString

	err := s.Scan(
		&p.ID, &p.Title, &kind,
		&authorsJSON, &correspondingJSON,
		&date, &year, &venueID,
		&volume, &issue, &pages, &publisher, &abstract,
		&p.TotalCitations, &createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	p.Type = reference.Kind(kind)
	p.PublicationDate = fromNullable(date)
	p.PublicationYear = fromNullable(year)
	p.VenueID = fromNullable(venueID)
	p.Volume = fromNullable(volume)
	p.Issue = fromNullable(issue)
	p.Pages = pages.String
	p.Publisher = publisher.String
	p.Abstract = abstract.String

	if err := json.Unmarshal([]byte(authorsJSON), &p.AuthorIDs); err != nil {
		return nil, fmt.Errorf("parsing authors JSON for %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(correspondingJSON), &p.CorrespondingIDs); err != nil {
		return nil, fmt.Errorf("parsing corresponding JSON for %s: %w", p.ID, err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", p.ID, err)
	}

	return &p, nil
}

func scanPapers(rows *sql.Rows) ([]reference.Paper, error) {
	var papers []reference.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		if p != nil {
			papers = append(papers, *p)
		}
	}
	return papers, rows.Err()
}

// nullable converts an optional string to sql.NullString.
func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// prepareAuthorQuery prepares an author name for FTS5 search with prefix matching.
// It adds a wildcard (*) to enable fuzzy matching (e.g., "Pen" matches "Penglin").
func prepareAuthorQuery(author string) string {
	author = strings.TrimSpace(author)
	if author == "" {
		return author
	}

	parts := strings.Fields(author)
	var terms []string
	for _, part := range parts {
		escaped := strings.ReplaceAll(part, "\"", "\"\"")
		terms = append(terms, "\""+escaped+"\"*")
	}

	// Every part must appear, so "Kai Liu" does not match "Kai Xu"
	return "(" + strings.Join(terms, " AND ") + ")"
}

// prepareFTSQuery escapes special characters for FTS5 queries.
func prepareFTSQuery(query string) string {
	// FTS5 uses double quotes for phrase matching
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	if strings.ContainsAny(query, "\"*+-:(){}[]^~/,.") {
		query = strings.ReplaceAll(query, "\"", "\"\"")
		return "\"" + query + "\""
	}

	return query
}
