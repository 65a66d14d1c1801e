package snapshot

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/store"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// File names of the repository layout.
const (
	PapersFile  = "papers.jsonl"
	AuthorsFile = "authors.jsonl"
	VenuesFile  = "venues.jsonl"
	MetaFile    = "meta.json"
)

// WriteRepository writes one JSONL file per record kind plus meta.json into dir.
// Each file is replaced atomically.
func WriteRepository(dir string, sn store.Snapshot, meta Metadata) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := writeJSONL(filepath.Join(dir, AuthorsFile), sn.Authors); err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(dir, VenuesFile), sn.Venues); err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(dir, PapersFile), sn.Papers); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, MetaFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	})
}

// ReadRepository reads the layout written by WriteRepository. Missing record files
// are read as empty; a missing meta.json is an error.
func ReadRepository(dir string) (store.Snapshot, Metadata, error) {
	var (
		sn   store.Snapshot
		meta Metadata
		err  error
	)

	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return sn, meta, fmt.Errorf("reading %s: %w", MetaFile, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return sn, meta, fmt.Errorf("parsing %s: %w", MetaFile, err)
	}

	if sn.Authors, err = readJSONL[reference.Author](filepath.Join(dir, AuthorsFile)); err != nil {
		return sn, meta, err
	}
	if sn.Venues, err = readJSONL[reference.Venue](filepath.Join(dir, VenuesFile)); err != nil {
		return sn, meta, err
	}
	if sn.Papers, err = readJSONL[reference.Paper](filepath.Join(dir, PapersFile)); err != nil {
		return sn, meta, err
	}
	normalizeLists(&sn)
	return sn, meta, nil
}

// RepositoryHash returns a SHA256 over the record files of a repository, used to
// tell whether a derived cache is stale. Missing files hash as empty.
func RepositoryHash(dir string) (string, error) {
	h := sha256.New()
	for _, name := range []string{PapersFile, AuthorsFile, VenuesFile} {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("opening %s: %w", name, err)
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", name, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Empty file returns empty slice
		}
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var records []T
	scanner := bufio.NewScanner(f)

	// Increase buffer size for long lines
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("parsing %s line %d: %w", filepath.Base(path), lineNum, err)
		}
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	return records, nil
}

func writeJSONL[T any](path string, records []T) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for i, record := range records {
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("encoding record %d: %w", i, err)
			}
			if _, err := bw.Write(data); err != nil {
				return fmt.Errorf("writing record %d: %w", i, err)
			}
			if err := bw.WriteByte('\n'); err != nil {
				return fmt.Errorf("writing newline: %w", err)
			}
		}
		return bw.Flush()
	})
}

// writeFileAtomic writes path through a temp file in the same directory and
// renames it into place.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := write(tmpFile); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
