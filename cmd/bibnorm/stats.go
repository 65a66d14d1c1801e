package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/bibnorm/internal/storage"
	"github.com/matsen/bibnorm/internal/store"
)

var statsTop int

func init() {
	statsCmd.Flags().IntVar(&statsTop, "top", 10, "Length of the author and venue leaderboards")
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the repository",
	Long:  `Print record counts, papers per year, and the most cited authors and venues.`,
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

// StatsResponse is the response for the stats command.
type StatsResponse struct {
	store.Counts
	TotalCitations int                 `json:"total_citations"`
	Years          []storage.YearCount `json:"years"`
	TopAuthors     []storage.Leader    `json:"top_authors"`
	TopVenues      []storage.Leader    `json:"top_venues"`
}

func runStats(cmd *cobra.Command, args []string) error {
	r := mustOpenRepository()
	db := mustOpenCache(r)
	defer db.Close()

	st := r.Store.Stats(0)
	resp := StatsResponse{Counts: st.Counts, TotalCitations: st.TotalCitations}

	var err error
	if resp.Years, err = db.YearHistogram(); err != nil {
		exitWithError(ExitError, "counting years: %v", err)
	}
	if resp.TopAuthors, err = db.CitationLeaders("authors", statsTop); err != nil {
		exitWithError(ExitError, "ranking authors: %v", err)
	}
	if resp.TopVenues, err = db.CitationLeaders("venues", statsTop); err != nil {
		exitWithError(ExitError, "ranking venues: %v", err)
	}

	if humanOutput {
		fmt.Printf("Papers: %d  Authors: %d  Venues: %d  Citations: %d\n",
			resp.Papers, resp.Authors, resp.Venues, resp.TotalCitations)
		fmt.Println("\nPapers per year:")
		for _, y := range resp.Years {
			fmt.Printf("  %-5s %d\n", y.Year, y.Papers)
		}
		printLeaders("Top authors", resp.TopAuthors)
		printLeaders("Top venues", resp.TopVenues)
		return nil
	}
	return outputJSON(resp)
}

func printLeaders(title string, leaders []storage.Leader) {
	fmt.Printf("\n%s:\n", title)
	for i, l := range leaders {
		fmt.Printf("  %2d. %-40s %6d citations  %3d papers\n", i+1, truncateString(l.Name, 40), l.TotalCitations, l.Papers)
	}
}
