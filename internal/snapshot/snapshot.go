// Package snapshot exports and imports the whole record store.
//
// Three formats are supported: a single JSON document, a directory of JSONL files
// (the repository layout kept under version control) and a directory of Parquet
// files. Every import is checked in full before it is returned, so a caller that
// restores only successful imports never sees a partial store.
package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/store"
)

// FormatVersion is written into every export. Imports reject other major versions.
const FormatVersion = "1.0"

// Format names an export encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// ErrUnsupportedFormat is returned for an unknown format name.
var ErrUnsupportedFormat = errors.New("unsupported snapshot format")

// ErrVersionMismatch is returned when a snapshot was written by an incompatible version.
var ErrVersionMismatch = errors.New("incompatible snapshot format version")

// ParseFormat validates a format name.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatJSON, FormatJSONL, FormatParquet:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q (want json, jsonl or parquet)", ErrUnsupportedFormat, raw)
}

// Metadata describes a snapshot.
type Metadata struct {
	TotalPapers   int       `json:"total_papers"`
	TotalAuthors  int       `json:"total_authors"`
	TotalVenues   int       `json:"total_venues"`
	ExportedAt    time.Time `json:"exported_at"`
	FormatVersion string    `json:"format_version"`
}

// NewMetadata describes sn as exported at the given time.
func NewMetadata(sn store.Snapshot, exportedAt time.Time) Metadata {
	c := sn.Counts()
	return Metadata{
		TotalPapers:   c.Papers,
		TotalAuthors:  c.Authors,
		TotalVenues:   c.Venues,
		ExportedAt:    exportedAt.UTC(),
		FormatVersion: FormatVersion,
	}
}

func (m Metadata) check(sn store.Snapshot) error {
	if major(m.FormatVersion) != major(FormatVersion) {
		return fmt.Errorf("%w: %q", ErrVersionMismatch, m.FormatVersion)
	}
	c := sn.Counts()
	if c.Papers != m.TotalPapers || c.Authors != m.TotalAuthors || c.Venues != m.TotalVenues {
		return fmt.Errorf("record counts %d/%d/%d do not match metadata %d/%d/%d",
			c.Papers, c.Authors, c.Venues, m.TotalPapers, m.TotalAuthors, m.TotalVenues)
	}
	return nil
}

func major(v string) string {
	if i := strings.Index(v, "."); i >= 0 {
		return v[:i]
	}
	return v
}

// Export writes sn to path in the given format. JSON writes a single file; JSONL
// and Parquet write a directory.
func Export(sn store.Snapshot, format Format, path string, exportedAt time.Time) error {
	meta := NewMetadata(sn, exportedAt)

	var err error
	switch format {
	case FormatJSON:
		err = writeDocument(path, sn, meta)
	case FormatJSONL:
		err = WriteRepository(path, sn, meta)
	case FormatParquet:
		err = writeParquet(path, sn, meta)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return &reference.StorageError{Op: "export", Path: path, Err: err}
	}
	return nil
}

// Import reads a snapshot from path. Any failure is returned as a
// *reference.StorageError wrapping the cause.
func Import(format Format, path string) (store.Snapshot, Metadata, error) {
	var (
		sn   store.Snapshot
		meta Metadata
		err  error
	)
	switch format {
	case FormatJSON:
		sn, meta, err = readDocument(path)
	case FormatJSONL:
		sn, meta, err = ReadRepository(path)
	case FormatParquet:
		sn, meta, err = readParquet(path)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err == nil {
		err = meta.check(sn)
	}
	if err == nil {
		err = sn.Check()
	}
	if err != nil {
		return store.Snapshot{}, Metadata{}, &reference.StorageError{Op: "import", Path: path, Err: err}
	}
	return sn, meta, nil
}

// Load imports a snapshot and restores it into s. The store is replaced only when
// the whole snapshot was read and checked.
func Load(s *store.Store, format Format, path string) (Metadata, error) {
	sn, meta, err := Import(format, path)
	if err != nil {
		return Metadata{}, err
	}
	if err := s.Restore(sn); err != nil {
		return Metadata{}, &reference.StorageError{Op: "import", Path: path, Err: err}
	}
	return meta, nil
}

// normalizeLists replaces nil lists with empty ones so a round trip through
// formats that cannot tell them apart compares equal.
func normalizeLists(sn *store.Snapshot) {
	for i := range sn.Papers {
		if sn.Papers[i].AuthorIDs == nil {
			sn.Papers[i].AuthorIDs = []string{}
		}
		if sn.Papers[i].CorrespondingIDs == nil {
			sn.Papers[i].CorrespondingIDs = []string{}
		}
	}
	for i := range sn.Authors {
		if sn.Authors[i].PaperIDs == nil {
			sn.Authors[i].PaperIDs = []string{}
		}
	}
	for i := range sn.Venues {
		if sn.Venues[i].PaperIDs == nil {
			sn.Venues[i].PaperIDs = []string{}
		}
	}
}
