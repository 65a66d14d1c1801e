package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/bibnorm/internal/config"
	"github.com/matsen/bibnorm/internal/warehouse"
)

var publishDSN string

func init() {
	publishCmd.Flags().StringVar(&publishDSN, "dsn", "", "Postgres DSN (default postgres_dsn from the global config)")
	rootCmd.AddCommand(publishCmd)
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish all records to a Postgres warehouse",
	Long: `Upsert every paper, author and venue into Postgres tables for reporting.
Rows already in the warehouse but absent from the repository are kept.`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func runPublish(cmd *cobra.Command, args []string) error {
	dsn := publishDSN
	if dsn == "" {
		global, err := config.LoadGlobalConfig()
		if err != nil {
			exitWithError(ExitConfigError, "loading global config: %v", err)
		}
		if dsn, err = global.ValidatePostgres(); err != nil {
			exitWithError(ExitConfigError, "%v\n\nPass --dsn or set postgres_dsn in %s", err, config.GlobalConfigPath())
		}
	}

	r := mustOpenRepository()

	w, err := warehouse.Open(dsn, logger)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	defer w.Close()

	res, err := w.Publish(cmd.Context(), r.Store.Snapshot())
	if err != nil {
		exitWithError(ExitError, "publishing: %v", err)
	}

	if humanOutput {
		fmt.Printf("Published %d papers, %d authors, %d venues (%d author links)\n",
			res.Papers, res.Authors, res.Venues, res.PaperAuthors)
		return nil
	}
	return outputJSON(res)
}
