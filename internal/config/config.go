// Package config handles repository, global and service configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matsen/bibnorm/internal/author"
)

// Config represents repository configuration stored in .bibnorm/config.json.
type Config struct {
	MatchThreshold float64 `json:"match_threshold"` // Author match confidence threshold
	VenueDedup     string  `json:"venue_dedup"`     // "typed" or "untyped"
}

const (
	RepoDir    = ".bibnorm"
	ConfigFile = "config.json"
	CacheDir   = "cache"
	DBFile     = "bibnorm.db"
)

// Venue dedup modes.
const (
	VenueDedupTyped   = "typed"
	VenueDedupUntyped = "untyped"
)

// ErrNotRepository is returned when no .bibnorm directory can be found.
var ErrNotRepository = errors.New("not in a bibnorm repository (no .bibnorm directory found)")

// Default returns the configuration written by `bibnorm init`.
func Default() *Config {
	return &Config{
		MatchThreshold: author.DefaultThreshold,
		VenueDedup:     VenueDedupTyped,
	}
}

// RepoPath returns the path to the .bibnorm directory from a root path.
func RepoPath(root string) string {
	return filepath.Join(root, RepoDir)
}

// ConfigPath returns the path to config.json from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, RepoDir, ConfigFile)
}

// CachePath returns the path to the cache directory from a root path.
func CachePath(root string) string {
	return filepath.Join(root, RepoDir, CacheDir)
}

// DBPath returns the path to the SQLite cache from a root path.
func DBPath(root string) string {
	return filepath.Join(root, RepoDir, CacheDir, DBFile)
}

// IsRepository checks if the given path contains a bibnorm repository.
func IsRepository(root string) bool {
	info, err := os.Stat(RepoPath(root))
	return err == nil && info.IsDir()
}

// FindRepository walks up from the given path to find a bibnorm repository.
// Returns the repository root path or ErrNotRepository.
func FindRepository(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsRepository(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", ErrNotRepository
		}
		abs = parent
	}
}

// Load reads configuration from the repository at the given root. A missing
// config.json yields the defaults; fields left out of the file keep theirs.
func Load(root string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the repository at the given root.
func (c *Config) Save(root string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks the threshold range and dedup mode.
//
// Thresholds at or below the name weight would let an affiliation alone merge
// two differently named authors, so they are rejected.
func (c *Config) Validate() error {
	if c.MatchThreshold <= author.WeightName || c.MatchThreshold > 1 {
		return fmt.Errorf("invalid match_threshold: %g (must be in (%g, 1])", c.MatchThreshold, author.WeightName)
	}
	switch c.VenueDedup {
	case VenueDedupTyped, VenueDedupUntyped:
		return nil
	default:
		return fmt.Errorf("invalid venue_dedup: %q (valid: %s, %s)", c.VenueDedup, VenueDedupTyped, VenueDedupUntyped)
	}
}

// Init creates the .bibnorm directory layout with a default config.json.
// It fails if a repository already exists at root.
func Init(root string) error {
	if IsRepository(root) {
		return fmt.Errorf("repository already exists at %s", root)
	}
	if err := os.MkdirAll(CachePath(root), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", RepoDir, err)
	}
	return Default().Save(root)
}

// ExpandPath expands ~ to the user's home directory.
// Paths that don't start with ~ are returned unchanged.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}
