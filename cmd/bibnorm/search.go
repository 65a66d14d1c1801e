package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/storage"
)

var (
	searchTitle   string
	searchAuthors []string
	searchType    string
	searchYear    string
	searchVenue   string
	searchLimit   int
)

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchTitle, "title", "", "Search title only")
	f.StringArrayVarP(&searchAuthors, "author", "a", nil, "Filter by author (repeatable, AND logic, prefix match)")
	f.StringVar(&searchType, "type", "", "Filter by type (journal or conference)")
	f.StringVar(&searchYear, "year", "", "Filter by year (2022) or range (2020:2023, 2020:, :2023)")
	f.StringVar(&searchVenue, "venue", "", "Filter by venue substring")
	f.IntVarP(&searchLimit, "limit", "n", DefaultSearchLimit, "Maximum results")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Search papers",
	Long: `Full-text search over titles, abstracts and author names, with filters.
Results are ordered by citations.

Examples:
  bibnorm search vehicular
  bibnorm search -a "Kai Liu" --year 2020:
  bibnorm search --type conference --venue ITSC`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

// SearchResponse is the response for the search command.
type SearchResponse struct {
	Count  int               `json:"count"`
	Papers []reference.Paper `json:"papers"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	filters := storage.SearchFilters{
		Title:   searchTitle,
		Authors: searchAuthors,
		Venue:   searchVenue,
	}
	if len(args) == 1 {
		filters.Keyword = args[0]
	}
	if searchType != "" {
		kind, err := reference.ParseKind(searchType)
		if err != nil {
			exitWithValidation(err)
		}
		filters.Type = kind
	}
	if searchYear != "" {
		from, to, err := parseYearRange(searchYear)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		filters.YearFrom, filters.YearTo = from, to
	}

	r := mustOpenRepository()
	db := mustOpenCache(r)
	defer db.Close()

	papers, err := db.SearchWithFilters(filters, searchLimit)
	if err != nil {
		exitWithError(ExitError, "searching: %v", err)
	}
	if papers == nil {
		papers = []reference.Paper{}
	}

	if humanOutput {
		if len(papers) == 0 {
			fmt.Println("No papers found")
			return nil
		}
		for _, p := range papers {
			printPaperLine(p)
		}
		fmt.Printf("\n%d papers\n", len(papers))
		return nil
	}
	return outputJSON(SearchResponse{Count: len(papers), Papers: papers})
}

// parseYearRange parses "2022", "2020:2023", "2020:" or ":2023". A zero bound
// is open.
func parseYearRange(raw string) (from, to int, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0, nil
	}

	lo, hi, isRange := strings.Cut(raw, ":")
	if !isRange {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid year %q", raw)
		}
		return year, year, nil
	}
	if lo != "" {
		if from, err = strconv.Atoi(lo); err != nil {
			return 0, 0, fmt.Errorf("invalid start year %q", lo)
		}
	}
	if hi != "" {
		if to, err = strconv.Atoi(hi); err != nil {
			return 0, 0, fmt.Errorf("invalid end year %q", hi)
		}
	}
	if from != 0 && to != 0 && from > to {
		return 0, 0, fmt.Errorf("start year %d is after end year %d", from, to)
	}
	return from, to, nil
}
