package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/matsen/bibnorm/internal/reference"
)

// Constants for output formatting.
const (
	DefaultSearchLimit = 50 // Default limit for search commands

	SearchTitleMaxLen = 70 // Used in search result summaries
	DetailTitleMaxLen = 70 // Used in get command detail view
	ImportTitleMaxLen = 60 // Used in import command output
)

// ErrorResponse is the JSON body written for failed commands.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// exitWithValidation reports err with the offending field when it is a
// validation failure.
func exitWithValidation(err error) {
	var ve *reference.ValidationError
	if !errors.As(err, &ve) {
		exitWithError(exitCodeFor(err), "%v", err)
	}
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", ve.Error())
	} else {
		outputJSON(ErrorResponse{Error: ve.Error(), Field: ve.Field})
	}
	os.Exit(ExitDataError)
}

// truncateString shortens s to max runes, ending with "...".
func truncateString(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// orNA renders optional fields in human output.
func orNA(s *string) string {
	if s == nil || *s == "" {
		return reference.Unknown
	}
	return *s
}

// printPaperLine prints a one-line paper summary.
func printPaperLine(p reference.Paper) {
	year := orNA(p.PublicationYear)
	fmt.Printf("%s  %s  %-10s %5d  %s\n", p.ID[:min(8, len(p.ID))], year, p.Type, p.TotalCitations,
		truncateString(p.Title, SearchTitleMaxLen))
}

// printPaperDetail prints a paper with its resolved authors and venue.
func printPaperDetail(d reference.PaperDetails) {
	p := d.Paper
	fmt.Println(p.ID)
	fmt.Println(strings.Repeat("=", DetailTitleMaxLen))
	fmt.Printf("Title:      %s\n", p.Title)
	fmt.Printf("Type:       %s\n", p.Type)
	fmt.Printf("Date:       %s\n", orNA(p.PublicationDate))
	fmt.Printf("Citations:  %d\n", p.TotalCitations)
	if d.VenueDetails != nil {
		fmt.Printf("Venue:      %s\n", d.VenueDetails.Name)
	}
	if p.Volume != nil || p.Issue != nil || p.Pages != "" {
		fmt.Printf("Vol/Issue:  %s/%s  pages %s\n", orNA(p.Volume), orNA(p.Issue), p.Pages)
	}
	fmt.Println("Authors:")
	for _, a := range d.AuthorDetails {
		marker := " "
		if a.IsCorresponding {
			marker = "*"
		}
		fmt.Printf("  %s %s  (%s)\n", marker, a.FullName, orNA(a.Affiliation))
	}
	if p.Abstract != "" && p.Abstract != reference.Unknown {
		fmt.Println()
		fmt.Println(p.Abstract)
	}
}
