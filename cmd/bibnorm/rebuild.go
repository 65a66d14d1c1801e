package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the query cache from source data",
	Long: `Rebuild the SQLite query cache from the JSONL files.

The cache is rebuilt automatically when the JSONL files change; use this
after it becomes corrupted.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

// RebuildResult is the response for the rebuild command.
type RebuildResult struct {
	Status string `json:"status"`
	Papers int    `json:"papers"`
}

func runRebuild(cmd *cobra.Command, args []string) error {
	r := mustOpenRepository()

	n, err := r.RebuildCache()
	if err != nil {
		exitWithError(ExitDataError, "rebuilding query cache: %v", err)
	}

	if humanOutput {
		fmt.Printf("Rebuilt query cache with %d papers\n", n)
		return nil
	}
	return outputJSON(RebuildResult{Status: "rebuilt", Papers: n})
}
