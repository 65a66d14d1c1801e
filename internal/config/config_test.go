package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPathFunctions(t *testing.T) {
	root := "/test/repo"

	tests := []struct {
		name string
		fn   func(string) string
		want string
	}{
		{"RepoPath", RepoPath, "/test/repo/.bibnorm"},
		{"ConfigPath", ConfigPath, "/test/repo/.bibnorm/config.json"},
		{"CachePath", CachePath, "/test/repo/.bibnorm/cache"},
		{"DBPath", DBPath, "/test/repo/.bibnorm/cache/bibnorm.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(root)
			if got != tt.want {
				t.Errorf("%s(%q) = %q, want %q", tt.name, root, got, tt.want)
			}
		})
	}
}

func TestIsRepository(t *testing.T) {
	tmpDir := t.TempDir()

	if IsRepository(tmpDir) {
		t.Error("IsRepository() = true for non-repo directory")
	}

	if err := os.Mkdir(filepath.Join(tmpDir, RepoDir), 0755); err != nil {
		t.Fatalf("Failed to create .bibnorm: %v", err)
	}

	if !IsRepository(tmpDir) {
		t.Error("IsRepository() = false for repo directory")
	}
}

func TestIsRepository_FileNotDir(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, RepoDir), []byte("not a dir"), 0644); err != nil {
		t.Fatalf("Failed to create .bibnorm file: %v", err)
	}

	if IsRepository(tmpDir) {
		t.Error("IsRepository() = true when .bibnorm is a file")
	}
}

func TestFindRepository(t *testing.T) {
	tmpDir := t.TempDir()
	repoDir := filepath.Join(tmpDir, "repo")
	nestedDir := filepath.Join(repoDir, "data", "raw")

	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatalf("Failed to create nested dirs: %v", err)
	}
	if err := os.Mkdir(filepath.Join(repoDir, RepoDir), 0755); err != nil {
		t.Fatalf("Failed to create .bibnorm: %v", err)
	}

	for _, start := range []string{nestedDir, repoDir} {
		found, err := FindRepository(start)
		if err != nil {
			t.Fatalf("FindRepository(%q) error = %v", start, err)
		}
		if found != repoDir {
			t.Errorf("FindRepository(%q) = %q, want %q", start, found, repoDir)
		}
	}
}

func TestFindRepository_NotFound(t *testing.T) {
	_, err := FindRepository(t.TempDir())
	if !errors.Is(err, ErrNotRepository) {
		t.Errorf("FindRepository() error = %v, want ErrNotRepository", err)
	}
}

func TestInit(t *testing.T) {
	root := t.TempDir()

	if err := Init(root); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if info, err := os.Stat(CachePath(root)); err != nil || !info.IsDir() {
		t.Errorf("cache directory not created: %v", err)
	}
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}

	if err := Init(root); err == nil {
		t.Error("Init() should fail when the repository exists")
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(RepoPath(tmpDir), 0755); err != nil {
		t.Fatalf("Failed to create .bibnorm: %v", err)
	}

	cfg := &Config{MatchThreshold: 0.9, VenueDedup: VenueDedupUntyped}
	if err := cfg.Save(tmpDir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("Load() = %+v, want %+v", loaded, cfg)
	}
}

func TestLoad_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(RepoPath(tmpDir), 0755); err != nil {
		t.Fatal(err)
	}

	// No config.json at all
	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MatchThreshold != 0.7 || cfg.VenueDedup != VenueDedupTyped {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}

	// Partial config keeps the other default
	if err := os.WriteFile(ConfigPath(tmpDir), []byte(`{"match_threshold": 0.8}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MatchThreshold != 0.8 || cfg.VenueDedup != VenueDedupTyped {
		t.Errorf("Load() = %+v", cfg)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(RepoPath(tmpDir), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ConfigPath(tmpDir), []byte("not json"), 0644); err != nil {
		t.Fatalf("Failed to write invalid config: %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Error("Load() should return error for invalid JSON")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", *Default(), false},
		{"threshold one", Config{MatchThreshold: 1, VenueDedup: VenueDedupTyped}, false},
		{"threshold at name weight", Config{MatchThreshold: 0.5, VenueDedup: VenueDedupTyped}, true},
		{"threshold above one", Config{MatchThreshold: 1.1, VenueDedup: VenueDedupTyped}, true},
		{"untyped", Config{MatchThreshold: 0.7, VenueDedup: VenueDedupUntyped}, false},
		{"unknown dedup", Config{MatchThreshold: 0.7, VenueDedup: "fuzzy"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}

	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/abs/path", "/abs/path"},
		{"~", home},
		{"~/refs", filepath.Join(home, "refs")},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.input); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
