// Package main provides the bibnorm CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/bibnorm/internal/config"
	"github.com/matsen/bibnorm/internal/logging"
	"github.com/matsen/bibnorm/internal/repo"
	"github.com/matsen/bibnorm/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	logLevel    string
	logger      = zap.NewNop()
)

func main() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bibnorm",
	Short: "Normalize and deduplicate bibliographic records",
	Long: `bibnorm ingests raw paper records, resolves their authors and venues
against existing entities, and keeps the result in a git-versionable
repository of JSONL files with an ephemeral SQLite cache for queries.

All commands output JSON by default for agent integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load .env file if present (ignore errors)
		_ = godotenv.Load()

		l, err := logging.New(logLevel, humanOutput)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

// mustFindRepository finds the repository from the working directory or the
// global default_repo, exits on error.
func mustFindRepository() string {
	cwd, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}

	root, err := config.ResolveRepository(cwd)
	if err != nil {
		fmt.Fprintln(os.Stderr, config.HelpfulConfigMessage())
		os.Exit(ExitConfigError)
	}
	return root
}

// mustOpenRepository finds and loads the repository, exits on error.
func mustOpenRepository(opts ...repo.Option) *repo.Repository {
	root := mustFindRepository()
	opts = append([]repo.Option{repo.WithLogger(logger)}, opts...)
	r, err := repo.Open(root, opts...)
	if err != nil {
		exitWithError(exitCodeFor(err), "opening repository: %v", err)
	}
	return r
}

// mustOpenCache opens the SQLite query cache, rebuilding it when stale.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenCache(r *repo.Repository) *storage.DB {
	db, err := r.OpenCache()
	if err != nil {
		exitWithError(ExitError, "opening query cache: %v", err)
	}
	return db
}

// mustSave writes the repository back to disk, exits on error.
func mustSave(r *repo.Repository) {
	if err := r.Save(); err != nil {
		exitWithError(ExitError, "saving repository: %v", err)
	}
}
