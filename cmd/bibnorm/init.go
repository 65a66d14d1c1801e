package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/bibnorm/internal/config"
	"github.com/matsen/bibnorm/internal/repo"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a new repository",
	Long: `Create a .bibnorm repository in dir (default: the current directory)
holding an empty record set and the default configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = config.ExpandPath(args[0])
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		exitWithError(ExitError, "creating directory: %v", err)
	}
	if err := repo.Init(root, time.Now()); err != nil {
		exitWithError(ExitError, "initializing repository: %v", err)
	}

	path := config.RepoPath(root)
	if humanOutput {
		fmt.Printf("Initialized empty repository in %s\n", path)
		return nil
	}
	return outputJSON(StatusResponse{Status: "initialized", Path: path})
}
