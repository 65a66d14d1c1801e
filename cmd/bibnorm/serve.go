package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/matsen/bibnorm/internal/config"
	"github.com/matsen/bibnorm/internal/ingest"
	"github.com/matsen/bibnorm/internal/logging"
	"github.com/matsen/bibnorm/internal/repo"
	"github.com/matsen/bibnorm/internal/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the repository over HTTP",
	Long: `Serve reads and writes over HTTP until interrupted. Writes are saved
on the autosave schedule and on shutdown.

Environment:
  BIBNORM_HTTP_PORT          listen port (default 4242)
  BIBNORM_API_KEY            required X-API-KEY on writes when set
  BIBNORM_WRITE_RATE         sustained writes per second (default 20)
  BIBNORM_WRITE_BURST        write burst (default 40)
  BIBNORM_AUTOSAVE_SCHEDULE  cron spec (default "@every 5m")
  BIBNORM_DETAILS_CACHE_TTL  paper details cache TTL (default 10m)
  BIBNORM_LOG_LEVEL          log level unless --log-level is given`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadService()
	if err != nil {
		exitWithError(ExitConfigError, "loading service config: %v", err)
	}
	if !cmd.Flags().Changed("log-level") {
		l, err := logging.New(cfg.LogLevel, humanOutput)
		if err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		logger = l
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := server.NewMetrics(reg)

	r := mustOpenRepository(repo.WithPipelineOptions(ingest.WithObserver(metrics)))

	return server.New(r, cfg, metrics, reg, logger).Run(cmd.Context())
}
