// Package repo opens a bibnorm repository: the JSONL source of truth under
// .bibnorm/, the in-memory store loaded from it, and the SQLite query cache
// derived from it.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/bibnorm/internal/config"
	"github.com/matsen/bibnorm/internal/ingest"
	"github.com/matsen/bibnorm/internal/resolve"
	"github.com/matsen/bibnorm/internal/snapshot"
	"github.com/matsen/bibnorm/internal/storage"
	"github.com/matsen/bibnorm/internal/store"
)

// Repository is an opened repository.
type Repository struct {
	Root     string
	Config   *config.Config
	Store    *store.Store
	Resolver *resolve.Resolver
	Pipeline *ingest.Pipeline

	logger *zap.Logger
	now    func() time.Time
	saveMu sync.Mutex
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	resolve  []resolve.Option
	pipeline []ingest.Option
}

// WithLogger sets the logger handed to the resolver and pipeline.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithResolverOptions appends resolver options after the configured threshold.
func WithResolverOptions(opts ...resolve.Option) Option {
	return func(o *options) { o.resolve = append(o.resolve, opts...) }
}

// WithPipelineOptions appends ingestion pipeline options.
func WithPipelineOptions(opts ...ingest.Option) Option {
	return func(o *options) { o.pipeline = append(o.pipeline, opts...) }
}

// Init creates a repository at root holding an empty record set.
func Init(root string, now time.Time) error {
	if err := config.Init(root); err != nil {
		return err
	}
	return snapshot.Export(store.Snapshot{}, snapshot.FormatJSONL, config.RepoPath(root), now)
}

// Open loads the configuration and every record of the repository at root.
func Open(root string, opts ...Option) (*Repository, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	var storeOpts []store.Option
	if cfg.VenueDedup == config.VenueDedupUntyped {
		storeOpts = append(storeOpts, store.WithUntypedVenueDedup())
	}
	s := store.New(storeOpts...)

	if _, err := os.Stat(filepath.Join(config.RepoPath(root), snapshot.MetaFile)); err == nil {
		if _, err := snapshot.Load(s, snapshot.FormatJSONL, config.RepoPath(root)); err != nil {
			return nil, err
		}
	}

	resolveOpts := append([]resolve.Option{
		resolve.WithThreshold(cfg.MatchThreshold),
		resolve.WithLogger(o.logger),
	}, o.resolve...)
	r := resolve.New(resolveOpts...)

	pipelineOpts := append([]ingest.Option{ingest.WithLogger(o.logger)}, o.pipeline...)

	return &Repository{
		Root:     root,
		Config:   cfg,
		Store:    s,
		Resolver: r,
		Pipeline: ingest.New(s, r, pipelineOpts...),
		logger:   o.logger,
		now:      r.Now,
	}, nil
}

// Save writes the store back to the JSONL files. Concurrent saves are serialized.
func (r *Repository) Save() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	sn := r.Store.Snapshot()
	if err := snapshot.Export(sn, snapshot.FormatJSONL, config.RepoPath(r.Root), r.now()); err != nil {
		return err
	}
	r.logger.Debug("repository saved",
		zap.Int("papers", len(sn.Papers)),
		zap.Int("authors", len(sn.Authors)),
		zap.Int("venues", len(sn.Venues)))
	return nil
}

// OpenCache opens the SQLite cache, rebuilding it first when the JSONL files
// changed since the last rebuild. The caller closes the returned DB.
func (r *Repository) OpenCache() (*storage.DB, error) {
	db, err := r.openDB()
	if err != nil {
		return nil, err
	}

	hash, err := snapshot.RepositoryHash(config.RepoPath(r.Root))
	if err != nil {
		db.Close()
		return nil, err
	}
	cached, err := db.SourceHash()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading cache hash: %w", err)
	}
	if cached == hash {
		return db, nil
	}

	r.logger.Debug("query cache is stale, rebuilding")
	if _, err := r.rebuild(db, hash); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// RebuildCache unconditionally rebuilds the SQLite cache and returns the
// number of papers written.
func (r *Repository) RebuildCache() (int, error) {
	db, err := r.openDB()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	hash, err := snapshot.RepositoryHash(config.RepoPath(r.Root))
	if err != nil {
		return 0, err
	}
	return r.rebuild(db, hash)
}

func (r *Repository) openDB() (*storage.DB, error) {
	if err := os.MkdirAll(config.CachePath(r.Root), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return storage.OpenDB(config.DBPath(r.Root))
}

func (r *Repository) rebuild(db *storage.DB, hash string) (int, error) {
	n, err := db.RebuildFromSnapshot(r.Store.Snapshot())
	if err != nil {
		return 0, err
	}
	if err := db.SetSourceHash(hash); err != nil {
		return 0, fmt.Errorf("recording cache hash: %w", err)
	}
	return n, nil
}
