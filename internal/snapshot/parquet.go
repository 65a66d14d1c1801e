package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/store"
)

// Parquet file names; the metadata travels in each file's key/value footer.
const (
	PapersParquet  = "papers.parquet"
	AuthorsParquet = "authors.parquet"
	VenuesParquet  = "venues.parquet"

	parquetMetadataKey = "bibnorm.metadata"
)

type paperRow struct {
	ID               string   `parquet:"id"`
	Title            string   `parquet:"title"`
	Type             string   `parquet:"type"`
	AuthorIDs        []string `parquet:"authors"`
	CorrespondingIDs []string `parquet:"corresponding_authors"`
	PublicationDate  *string  `parquet:"publication_date"`
	PublicationYear  *string  `parquet:"publication_year"`
	VenueID          *string  `parquet:"venue_id"`
	Volume           *string  `parquet:"volume"`
	Issue            *string  `parquet:"issue"`
	Pages            string   `parquet:"pages"`
	Publisher        string   `parquet:"publisher"`
	Abstract         string   `parquet:"abstract"`
	TotalCitations   int64    `parquet:"total_citations"`
	CreatedAt        string   `parquet:"created_at"`
}

type authorRow struct {
	ID             string   `parquet:"id"`
	FirstName      string   `parquet:"first_name"`
	LastName       string   `parquet:"last_name"`
	FullName       string   `parquet:"name"`
	Affiliation    *string  `parquet:"affiliation"`
	Email          *string  `parquet:"email"`
	PaperIDs       []string `parquet:"papers"`
	TotalCitations int64    `parquet:"total_citations"`
	CreatedAt      string   `parquet:"created_at"`
}

type venueRow struct {
	ID             string   `parquet:"id"`
	Type           string   `parquet:"type"`
	Name           string   `parquet:"name"`
	CanonicalName  *string  `parquet:"canonical_name"`
	Publisher      string   `parquet:"publisher"`
	CCFRank        *string  `parquet:"ccf_rank"`
	CASZone        *string  `parquet:"cas_zone"`
	Field          *string  `parquet:"field"`
	PaperIDs       []string `parquet:"papers"`
	TotalCitations int64    `parquet:"total_citations"`
	CreatedAt      string   `parquet:"created_at"`
}

func writeParquet(dir string, sn store.Snapshot, meta Metadata) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	authors := make([]authorRow, len(sn.Authors))
	for i, a := range sn.Authors {
		authors[i] = authorRow{
			ID: a.ID, FirstName: a.FirstName, LastName: a.LastName, FullName: a.FullName,
			Affiliation: a.Affiliation, Email: a.Email, PaperIDs: a.PaperIDs,
			TotalCitations: int64(a.TotalCitations), CreatedAt: formatTime(a.CreatedAt),
		}
	}
	venues := make([]venueRow, len(sn.Venues))
	for i, v := range sn.Venues {
		venues[i] = venueRow{
			ID: v.ID, Type: string(v.Type), Name: v.Name, CanonicalName: v.CanonicalName,
			Publisher: v.Publisher, CCFRank: v.Classification.CCFRank, CASZone: v.Classification.CASZone,
			Field: v.Classification.Field, PaperIDs: v.PaperIDs,
			TotalCitations: int64(v.TotalCitations), CreatedAt: formatTime(v.CreatedAt),
		}
	}
	papers := make([]paperRow, len(sn.Papers))
	for i, p := range sn.Papers {
		papers[i] = paperRow{
			ID: p.ID, Title: p.Title, Type: string(p.Type),
			AuthorIDs: p.AuthorIDs, CorrespondingIDs: p.CorrespondingIDs,
			PublicationDate: p.PublicationDate, PublicationYear: p.PublicationYear,
			VenueID: p.VenueID, Volume: p.Volume, Issue: p.Issue,
			Pages: p.Pages, Publisher: p.Publisher, Abstract: p.Abstract,
			TotalCitations: int64(p.TotalCitations), CreatedAt: formatTime(p.CreatedAt),
		}
	}

	if err := writeParquetFile(filepath.Join(dir, AuthorsParquet), authors, string(metaJSON)); err != nil {
		return err
	}
	if err := writeParquetFile(filepath.Join(dir, VenuesParquet), venues, string(metaJSON)); err != nil {
		return err
	}
	return writeParquetFile(filepath.Join(dir, PapersParquet), papers, string(metaJSON))
}

func readParquet(dir string) (store.Snapshot, Metadata, error) {
	var (
		sn   store.Snapshot
		meta Metadata
	)

	papers, rawMeta, err := readParquetFile[paperRow](filepath.Join(dir, PapersParquet))
	if err != nil {
		return sn, meta, err
	}
	if rawMeta == "" {
		return sn, meta, fmt.Errorf("%s: no %s footer", PapersParquet, parquetMetadataKey)
	}
	if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil {
		return sn, meta, fmt.Errorf("parsing metadata: %w", err)
	}
	authors, _, err := readParquetFile[authorRow](filepath.Join(dir, AuthorsParquet))
	if err != nil {
		return sn, meta, err
	}
	venues, _, err := readParquetFile[venueRow](filepath.Join(dir, VenuesParquet))
	if err != nil {
		return sn, meta, err
	}

	for _, r := range authors {
		created, err := parseTime(r.CreatedAt)
		if err != nil {
			return sn, meta, fmt.Errorf("author %q: %w", r.ID, err)
		}
		sn.Authors = append(sn.Authors, reference.Author{
			ID: r.ID, FirstName: r.FirstName, LastName: r.LastName, FullName: r.FullName,
			Affiliation: r.Affiliation, Email: r.Email, PaperIDs: r.PaperIDs,
			TotalCitations: int(r.TotalCitations), CreatedAt: created,
		})
	}
	for _, r := range venues {
		created, err := parseTime(r.CreatedAt)
		if err != nil {
			return sn, meta, fmt.Errorf("venue %q: %w", r.ID, err)
		}
		sn.Venues = append(sn.Venues, reference.Venue{
			ID: r.ID, Type: reference.Kind(r.Type), Name: r.Name, CanonicalName: r.CanonicalName,
			Publisher: r.Publisher,
			Classification: reference.Classification{
				CCFRank: r.CCFRank, CASZone: r.CASZone, Field: r.Field,
			},
			PaperIDs: r.PaperIDs, TotalCitations: int(r.TotalCitations), CreatedAt: created,
		})
	}
	for _, r := range papers {
		created, err := parseTime(r.CreatedAt)
		if err != nil {
			return sn, meta, fmt.Errorf("paper %q: %w", r.ID, err)
		}
		sn.Papers = append(sn.Papers, reference.Paper{
			ID: r.ID, Title: r.Title, Type: reference.Kind(r.Type),
			AuthorIDs: r.AuthorIDs, CorrespondingIDs: r.CorrespondingIDs,
			PublicationDate: r.PublicationDate, PublicationYear: r.PublicationYear,
			VenueID: r.VenueID, Volume: r.Volume, Issue: r.Issue,
			Pages: r.Pages, Publisher: r.Publisher, Abstract: r.Abstract,
			TotalCitations: int(r.TotalCitations), CreatedAt: created,
		})
	}
	normalizeLists(&sn)
	return sn, meta, nil
}

func writeParquetFile[T any](path string, rows []T, meta string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		pw := parquet.NewGenericWriter[T](w, parquet.KeyValueMetadata(parquetMetadataKey, meta))
		if len(rows) > 0 {
			if _, err := pw.Write(rows); err != nil {
				return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
			}
		}
		if err := pw.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
		}
		return nil
	})
}

// readParquetFile returns every row of path and its metadata footer value.
func readParquetFile[T any](path string) ([]T, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, "", fmt.Errorf("opening parquet %s: %w", filepath.Base(path), err)
	}
	meta, _ := pf.Lookup(parquetMetadataKey)

	reader := parquet.NewGenericReader[T](pf)
	defer reader.Close()

	// Rows are decoded into zeroed elements only, so slices are never shared
	// between records.
	rows := make([]T, pf.NumRows())
	total := 0
	for total < len(rows) {
		n, err := reader.Read(rows[total:])
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		if n == 0 {
			break
		}
	}
	return rows[:total], meta, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return t.UTC(), nil
}
