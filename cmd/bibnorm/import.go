package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/bibnorm/internal/importer"
	"github.com/matsen/bibnorm/internal/ingest"
	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/repo"
	"github.com/matsen/bibnorm/internal/snapshot"
)

// Record-level import formats, besides the snapshot formats.
const (
	formatRecords = "records"
	formatFeed    = "feed"
)

// FeedFetchTimeout bounds downloading a feed.
const FeedFetchTimeout = 30 * time.Second

var (
	importFormat  string
	importDryRun  bool
	importForce   bool
	feedType      string
	feedVenue     string
	feedPublisher string
	feedMaxItems  int
)

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFormat, "format", formatRecords, "Import format: records, feed, json, jsonl or parquet")
	f.BoolVar(&importDryRun, "dry-run", false, "Validate and report without writing")
	f.BoolVar(&importForce, "force", false, "Replace a non-empty repository with a snapshot")
	f.StringVar(&feedType, "feed-type", "", "Paper type for feed items (default journal)")
	f.StringVar(&feedVenue, "feed-venue", "", "Venue for feed items (default the feed title)")
	f.StringVar(&feedPublisher, "feed-publisher", "", "Publisher for feed items")
	f.IntVar(&feedMaxItems, "max-items", 0, "Import at most this many feed items (0 = all)")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <file|url>",
	Short: "Import papers or a snapshot",
	Long: `Import papers into the repository.

Formats:
  records  JSON array (or single object) of raw paper records; each record is
           resolved like 'bibnorm add'
  feed     RSS or Atom feed, from a file or an http(s) URL
  json, jsonl, parquet
           a snapshot written by 'bibnorm export'; replaces all records

Examples:
  bibnorm import scraped.json
  bibnorm import --format feed --feed-venue "IEEE TMC" https://example.org/rss.xml
  bibnorm import --format parquet --force snapshot/`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// ImportResult is the response for record and feed imports.
type ImportResult struct {
	Imported int      `json:"imported"`
	IDs      []string `json:"ids"`
	Errors   []string `json:"errors"`
	DryRun   bool     `json:"dry_run,omitempty"`
}

// SnapshotImportResult is the response for snapshot imports.
type SnapshotImportResult struct {
	Metadata snapshot.Metadata `json:"metadata"`
	DryRun   bool              `json:"dry_run,omitempty"`
}

func runImport(cmd *cobra.Command, args []string) error {
	source := args[0]
	format := strings.ToLower(strings.TrimSpace(importFormat))

	switch format {
	case formatRecords, formatFeed:
		return importPapers(cmd.Context(), format, source)
	default:
		sf, err := snapshot.ParseFormat(format)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		return importSnapshot(sf, source)
	}
}

func importPapers(ctx context.Context, format, source string) error {
	var (
		inputs []ingest.PaperInput
		errs   []error
	)
	if format == formatFeed {
		inputs, errs = readFeed(ctx, source)
	} else {
		data, err := os.ReadFile(source)
		if err != nil {
			exitWithError(ExitError, "reading %s: %v", source, err)
		}
		inputs, errs = importer.ParseRecords(data)
	}

	result := ImportResult{IDs: []string{}, Errors: []string{}, DryRun: importDryRun}
	for _, err := range errs {
		result.Errors = append(result.Errors, err.Error())
	}

	if importDryRun {
		result.Imported = len(inputs)
		return reportImport(result)
	}

	r := mustOpenRepository()
	result.IDs, result.Errors = addAll(r, inputs, result.Errors)
	result.Imported = len(result.IDs)
	if result.Imported > 0 {
		mustSave(r)
	}
	return reportImport(result)
}

// addAll ingests each input on its own; a rejected record does not stop the rest.
func addAll(r *repo.Repository, inputs []ingest.PaperInput, errs []string) ([]string, []string) {
	ids := []string{}
	for _, in := range inputs {
		id, err := r.Pipeline.AddPaper(in)
		if err != nil {
			logger.Warn("record rejected", zap.String("title", in.Title), zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s: %v", truncateString(in.Title, ImportTitleMaxLen), err))
			continue
		}
		ids = append(ids, id)
	}
	return ids, errs
}

func readFeed(ctx context.Context, source string) ([]ingest.PaperInput, []error) {
	opts := importer.FeedOptions{Venue: feedVenue, Publisher: feedPublisher, MaxItems: feedMaxItems}
	if feedType != "" {
		kind, err := reference.ParseKind(feedType)
		if err != nil {
			exitWithValidation(err)
		}
		opts.Type = kind
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		ctx, cancel := context.WithTimeout(ctx, FeedFetchTimeout)
		defer cancel()
		return importer.FetchFeed(ctx, source, opts)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		exitWithError(ExitError, "reading %s: %v", source, err)
	}
	return importer.ParseFeed(data, opts)
}

func reportImport(result ImportResult) error {
	if humanOutput {
		verb := "Imported"
		if result.DryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %d papers\n", verb, result.Imported)
		for _, e := range result.Errors {
			fmt.Printf("  skipped: %s\n", e)
		}
	} else if err := outputJSON(result); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		os.Exit(ExitDataError)
	}
	return nil
}

func importSnapshot(format snapshot.Format, path string) error {
	if importDryRun {
		_, meta, err := snapshot.Import(format, path)
		if err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
		return reportSnapshot(SnapshotImportResult{Metadata: meta, DryRun: true})
	}

	r := mustOpenRepository()
	if c := r.Store.Counts(); (c.Papers > 0 || c.Authors > 0 || c.Venues > 0) && !importForce {
		exitWithError(ExitError, "repository already holds %d papers; use --force to replace them", c.Papers)
	}
	meta, err := snapshot.Load(r.Store, format, path)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	mustSave(r)
	if _, err := r.RebuildCache(); err != nil {
		logger.Warn("rebuilding query cache", zap.Error(err))
	}
	return reportSnapshot(SnapshotImportResult{Metadata: meta})
}

func reportSnapshot(result SnapshotImportResult) error {
	if humanOutput {
		m := result.Metadata
		verb := "Imported"
		if result.DryRun {
			verb = "Snapshot holds"
		}
		fmt.Printf("%s %d papers, %d authors, %d venues (format %s, exported %s)\n",
			verb, m.TotalPapers, m.TotalAuthors, m.TotalVenues, m.FormatVersion, m.ExportedAt.Format(time.RFC3339))
		return nil
	}
	return outputJSON(result)
}
