package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/bibnorm/internal/backup"
	"github.com/matsen/bibnorm/internal/config"
)

var backupNoRotate bool

func init() {
	backupCmd.Flags().BoolVar(&backupNoRotate, "no-rotate", false, "Keep every older backup")
	rootCmd.AddCommand(backupCmd)
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a snapshot to S3",
	Long: `Upload a gzip'd JSON snapshot of the repository to the bucket configured
under 'backup' in the global config, then delete all but the newest
'keep' backups.

Example config.yml:
  backup:
    bucket: my-backups
    region: us-east-1
    endpoint: https://minio.example.org   # optional, S3-compatible stores
    prefix: bibnorm
    keep: 4`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

// BackupResponse is the response for the backup command.
type BackupResponse struct {
	Key     string   `json:"key"`
	Deleted []string `json:"deleted"`
}

func runBackup(cmd *cobra.Command, args []string) error {
	global, err := config.LoadGlobalConfig()
	if err != nil {
		exitWithError(ExitConfigError, "loading global config: %v", err)
	}
	cfg, err := global.ValidateBackup()
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	r := mustOpenRepository()
	ctx := cmd.Context()

	client, err := backup.NewS3Client(ctx, cfg)
	if err != nil {
		exitWithError(ExitConfigError, "configuring s3 client: %v", err)
	}
	u := backup.NewUploader(client, cfg, logger)

	key, err := u.Upload(ctx, r.Store.Snapshot(), time.Now())
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	resp := BackupResponse{Key: key, Deleted: []string{}}
	if !backupNoRotate {
		deleted, err := u.Rotate(ctx)
		if err != nil {
			exitWithError(ExitError, "rotating backups: %v", err)
		}
		resp.Deleted = append(resp.Deleted, deleted...)
	}

	if humanOutput {
		fmt.Printf("Uploaded s3://%s/%s\n", cfg.Bucket, key)
		for _, k := range resp.Deleted {
			fmt.Printf("  deleted %s\n", k)
		}
		return nil
	}
	return outputJSON(resp)
}
