package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/store"
)

// Document is the single-file JSON export: each record kind keyed by id. Keys are
// written and read back in insertion order.
type Document struct {
	Papers   Records[reference.Paper]  `json:"papers"`
	Authors  Records[reference.Author] `json:"authors"`
	Venues   Records[reference.Venue]  `json:"venues"`
	Metadata Metadata                  `json:"metadata"`
}

// Records is a JSON object of records keyed by id that keeps its key order.
type Records[T any] struct {
	IDs  []string
	ByID map[string]T
}

// Add appends rec under id.
func (r *Records[T]) Add(id string, rec T) {
	if r.ByID == nil {
		r.ByID = make(map[string]T)
	}
	r.IDs = append(r.IDs, id)
	r.ByID[id] = rec
}

// MarshalJSON writes the records as an object in IDs order.
func (r Records[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range r.IDs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.ByID[id])
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", id, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping the order its keys appear in.
func (r *Records[T]) UnmarshalJSON(data []byte) error {
	*r = Records[T]{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if tok != json.Delim('{') {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, _ := tok.(string)
		if _, dup := r.ByID[id]; dup {
			return fmt.Errorf("duplicate key %q", id)
		}
		var rec T
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("record %q: %w", id, err)
		}
		r.Add(id, rec)
	}
	_, err := dec.Token()
	return err
}

// NewDocument builds the JSON document for sn.
func NewDocument(sn store.Snapshot, meta Metadata) Document {
	d := Document{Metadata: meta}
	for _, p := range sn.Papers {
		d.Papers.Add(p.ID, p)
	}
	for _, a := range sn.Authors {
		d.Authors.Add(a.ID, a)
	}
	for _, v := range sn.Venues {
		d.Venues.Add(v.ID, v)
	}
	return d
}

// Snapshot converts the document back into a snapshot in document order. Keys
// must match record ids.
func (d Document) Snapshot() (store.Snapshot, error) {
	var (
		sn  store.Snapshot
		err error
	)
	if sn.Papers, err = collect(d.Papers, "paper", func(p reference.Paper) string { return p.ID }); err != nil {
		return store.Snapshot{}, err
	}
	if sn.Authors, err = collect(d.Authors, "author", func(a reference.Author) string { return a.ID }); err != nil {
		return store.Snapshot{}, err
	}
	if sn.Venues, err = collect(d.Venues, "venue", func(v reference.Venue) string { return v.ID }); err != nil {
		return store.Snapshot{}, err
	}
	normalizeLists(&sn)
	return sn, nil
}

func collect[T any](r Records[T], kind string, id func(T) string) ([]T, error) {
	var out []T
	for _, k := range r.IDs {
		rec := r.ByID[k]
		if k != id(rec) {
			return nil, fmt.Errorf("%s key %q holds record %q", kind, k, id(rec))
		}
		out = append(out, rec)
	}
	return out, nil
}

// EncodeDocument writes the indented JSON document for sn to w.
func EncodeDocument(w io.Writer, sn store.Snapshot, meta Metadata) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(sn, meta))
}

// DecodeDocument reads a JSON document from r.
func DecodeDocument(r io.Reader) (store.Snapshot, Metadata, error) {
	var d Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&d); err != nil {
		return store.Snapshot{}, Metadata{}, fmt.Errorf("decoding document: %w", err)
	}
	sn, err := d.Snapshot()
	if err != nil {
		return store.Snapshot{}, Metadata{}, err
	}
	return sn, d.Metadata, nil
}

func writeDocument(path string, sn store.Snapshot, meta Metadata) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		return EncodeDocument(w, sn, meta)
	})
}

func readDocument(path string) (store.Snapshot, Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return store.Snapshot{}, Metadata{}, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()
	return DecodeDocument(f)
}
