package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents configuration stored in ~/.config/bibnorm/config.yml.
type GlobalConfig struct {
	DefaultRepo string       `yaml:"default_repo,omitempty"`
	Backup      BackupConfig `yaml:"backup,omitempty"`
	PostgresDSN string       `yaml:"postgres_dsn,omitempty"`
}

// BackupConfig holds the S3 destination for `bibnorm backup`.
type BackupConfig struct {
	Bucket    string `yaml:"bucket,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Keep      int    `yaml:"keep,omitempty"`
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "bibnorm"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"

	// DefaultKeepBackups is used when backup.keep is unset.
	DefaultKeepBackups = 4
)

// Errors for incomplete global configuration.
var (
	ErrBackupNotConfigured   = errors.New("backup bucket not configured")
	ErrPostgresNotConfigured = errors.New("postgres_dsn not configured")
)

// globalConfigCache caches the loaded global config.
var globalConfigCache *GlobalConfig

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/bibnorm/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file.
// Returns an empty config (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	path := GlobalConfigPath()
	if path == "" {
		return &GlobalConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{}, nil
		}
		return nil, fmt.Errorf("reading global config: %w", err)
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing global config: %w", err)
	}

	if cfg.DefaultRepo != "" {
		cfg.DefaultRepo = ExpandPath(cfg.DefaultRepo)
	}
	if cfg.Backup.Keep <= 0 {
		cfg.Backup.Keep = DefaultKeepBackups
	}

	globalConfigCache = &cfg
	return &cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// ValidateBackup returns the backup settings or ErrBackupNotConfigured.
func (g *GlobalConfig) ValidateBackup() (BackupConfig, error) {
	b := g.Backup
	if b.Bucket == "" {
		return b, ErrBackupNotConfigured
	}
	if b.Region == "" {
		return b, fmt.Errorf("%w: region is required", ErrBackupNotConfigured)
	}
	return b, nil
}

// ValidatePostgres returns the DSN or ErrPostgresNotConfigured.
func (g *GlobalConfig) ValidatePostgres() (string, error) {
	if g.PostgresDSN == "" {
		return "", ErrPostgresNotConfigured
	}
	return g.PostgresDSN, nil
}

// ResolveRepository finds the repository from start, falling back to
// default_repo from the global config.
func ResolveRepository(start string) (string, error) {
	root, err := FindRepository(start)
	if err == nil {
		return root, nil
	}

	cfg, gerr := LoadGlobalConfig()
	if gerr != nil {
		return "", gerr
	}
	if cfg.DefaultRepo != "" && IsRepository(cfg.DefaultRepo) {
		return cfg.DefaultRepo, nil
	}
	return "", err
}

// HelpfulConfigMessage returns a hint printed when no repository is found.
func HelpfulConfigMessage() string {
	configPath := GlobalConfigPath()
	return fmt.Sprintf(`No bibnorm repository found.

Run 'bibnorm init' in a directory, or create %s to set a default:
  mkdir -p %s
  echo 'default_repo: /path/to/your/repo' > %s`,
		configPath,
		filepath.Dir(configPath),
		configPath)
}
