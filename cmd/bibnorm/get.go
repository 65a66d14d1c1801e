package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getDetails bool

func init() {
	getPaperCmd.Flags().BoolVar(&getDetails, "details", false, "Include resolved authors and venue")
	getCmd.AddCommand(getPaperCmd, getAuthorCmd, getVenueCmd)
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Get a single record by ID",
}

var getPaperCmd = &cobra.Command{
	Use:   "paper <id>",
	Short: "Get a paper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := mustOpenRepository()
		id := args[0]

		if getDetails || humanOutput {
			d, ok := r.Store.GetPaperWithDetails(id)
			if !ok {
				exitWithError(ExitNotFound, "paper not found: %s", id)
			}
			if humanOutput {
				printPaperDetail(d)
				return nil
			}
			return outputJSON(d)
		}

		p, ok := r.Store.GetPaper(id)
		if !ok {
			exitWithError(ExitNotFound, "paper not found: %s", id)
		}
		return outputJSON(p)
	},
}

var getAuthorCmd = &cobra.Command{
	Use:   "author <id>",
	Short: "Get an author",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := mustOpenRepository()
		a, ok := r.Store.GetAuthor(args[0])
		if !ok {
			exitWithError(ExitNotFound, "author not found: %s", args[0])
		}
		if humanOutput {
			fmt.Printf("%s  %s\n", a.ID, a.FullName)
			fmt.Printf("Affiliation: %s\n", orNA(a.Affiliation))
			fmt.Printf("Email:       %s\n", orNA(a.Email))
			fmt.Printf("Papers:      %d (%d citations)\n", len(a.PaperIDs), a.TotalCitations)
			return nil
		}
		return outputJSON(a)
	},
}

var getVenueCmd = &cobra.Command{
	Use:   "venue <id>",
	Short: "Get a venue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := mustOpenRepository()
		v, ok := r.Store.GetVenue(args[0])
		if !ok {
			exitWithError(ExitNotFound, "venue not found: %s", args[0])
		}
		if humanOutput {
			fmt.Printf("%s  %s (%s)\n", v.ID, v.Name, v.Type)
			if v.CanonicalName != nil {
				fmt.Printf("Canonical:  %s\n", *v.CanonicalName)
			}
			fmt.Printf("CCF/CAS:    %s / %s\n", orNA(v.Classification.CCFRank), orNA(v.Classification.CASZone))
			fmt.Printf("Papers:     %d (%d citations)\n", len(v.PaperIDs), v.TotalCitations)
			return nil
		}
		return outputJSON(v)
	},
}
