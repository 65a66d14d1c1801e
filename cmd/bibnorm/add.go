package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/bibnorm/internal/ingest"
	"github.com/matsen/bibnorm/internal/resolve"
)

var paperIn ingest.PaperInput

func init() {
	f := addCmd.Flags()
	f.StringVar(&paperIn.Title, "title", "", "Paper title (required)")
	f.StringVar(&paperIn.Authors, "authors", "", "Comma-separated author list; mark corresponding authors with *")
	f.StringVar(&paperIn.PublicationDate, "date", "", "Publication date (YYYY/M/D, YYYY-M-D or YYYY)")
	f.StringVar(&paperIn.Type, "type", "", "Paper type: journal or conference (required)")
	f.StringVar(&paperIn.VenueName, "venue", "", "Journal or conference name (required)")
	f.StringVar(&paperIn.Volume, "volume", "", "Volume")
	f.StringVar(&paperIn.Issue, "issue", "", "Issue")
	f.StringVar(&paperIn.Pages, "pages", "", "Page range")
	f.StringVar(&paperIn.Publisher, "publisher", "", "Publisher")
	f.StringVar(&paperIn.Abstract, "abstract", "", "Abstract")
	f.StringVar(&paperIn.Citations, "citations", "", `Citation count, free text allowed ("Cited by 138")`)
	f.StringArrayVar(&paperIn.AuthorAffiliations, "affiliation", nil, "Affiliation per author, in author order (repeatable)")
	f.StringArrayVar(&paperIn.AuthorEmails, "email", nil, "Email per author, in author order (repeatable)")
	f.StringVar(&paperIn.CCFRank, "ccf-rank", "", "CCF rank of the venue")
	f.StringVar(&paperIn.CASZone, "cas-zone", "", "CAS zone of the venue")
	f.StringVar(&paperIn.Field, "field", "", "Research field of the venue")

	authorAddCmd.Flags().StringVar(&authorIn.First, "first", "", "First name")
	authorAddCmd.Flags().StringVar(&authorIn.Last, "last", "", "Last name")
	authorAddCmd.Flags().StringVar(&authorIn.Affiliation, "affiliation", "", "Affiliation")
	authorAddCmd.Flags().StringVar(&authorIn.Email, "email", "", "Email address")

	authorCmd.AddCommand(authorAddCmd)
	rootCmd.AddCommand(addCmd, authorCmd)
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a paper",
	Long: `Add one paper, resolving its authors and venue against existing records.

Example:
  bibnorm add --title "Age of View" --authors "Kai Liu*, Xincao Xu" \
    --date 2022/10/8 --type conference --venue "2022 IEEE 25th ITSC"`,
	Args: cobra.NoArgs,
	RunE: runAdd,
}

// AddResponse is the response for the add command.
type AddResponse struct {
	ID      string   `json:"id"`
	Authors []string `json:"authors"`
	VenueID string   `json:"venue_id,omitempty"`
}

func runAdd(cmd *cobra.Command, args []string) error {
	r := mustOpenRepository()

	id, err := r.Pipeline.AddPaper(paperIn)
	if err != nil {
		exitWithValidation(err)
	}
	mustSave(r)

	p, _ := r.Store.GetPaper(id)
	if humanOutput {
		fmt.Printf("Added paper %s\n", id)
		printPaperLine(p)
		return nil
	}
	resp := AddResponse{ID: id, Authors: p.AuthorIDs}
	if p.VenueID != nil {
		resp.VenueID = *p.VenueID
	}
	return outputJSON(resp)
}

var authorIn ingest.AuthorInput

var authorCmd = &cobra.Command{
	Use:   "author",
	Short: "Manage authors",
}

var authorAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or match an author",
	Long: `Resolve an author against existing records, creating one when no
candidate reaches the match threshold. Known affiliation and email are
filled in on a matched author where they were missing.`,
	Args: cobra.NoArgs,
	RunE: runAuthorAdd,
}

func runAuthorAdd(cmd *cobra.Command, args []string) error {
	r := mustOpenRepository()

	res, err := r.Pipeline.AddAuthor(authorIn)
	if err != nil {
		exitWithValidation(err)
	}
	mustSave(r)

	if humanOutput {
		printResolution("author", res)
		return nil
	}
	return outputJSON(res)
}

func printResolution(kind string, res resolve.Resolution) {
	if res.Created {
		fmt.Printf("Created %s %s\n", kind, res.ID)
		return
	}
	fmt.Printf("Matched %s %s (confidence %.2f)\n", kind, res.ID, res.Confidence)
}
