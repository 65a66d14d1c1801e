// Package importer converts external batch sources into ingestion inputs.
package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/matsen/bibnorm/internal/ingest"
	"github.com/matsen/bibnorm/internal/reference"
)

// FlexibleString can unmarshal from either string or number JSON values.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	// Handle null
	if string(data) == "null" {
		*f = ""
		return nil
	}

	// Try string first
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleString(s)
		return nil
	}

	// Try number
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleString(n.String())
		return nil
	}

	// Try int directly
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexibleString(strconv.Itoa(i))
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleString", string(data))
}

func (f FlexibleString) String() string {
	return string(f)
}

// Record is one scraped paper in the shape produced by the scholar-page
// scrapers: the venue arrives under a "journal" or "conference" key.
type Record struct {
	Title           FlexibleString `json:"title"`
	Type            string         `json:"type"`
	Authors         FlexibleString `json:"authors"`
	PublicationDate FlexibleString `json:"publication_date"`
	Journal         string         `json:"journal"`
	Conference      string         `json:"conference"`
	VenueName       string         `json:"venue_name"`
	Volume          FlexibleString `json:"volume"`
	Issue           FlexibleString `json:"issue"`
	Pages           FlexibleString `json:"pages"`
	Publisher       string         `json:"publisher"`
	Abstract        string         `json:"abstract"`
	TotalCitations  FlexibleString `json:"total_citations"`

	AuthorAffiliations []string `json:"author_affiliations"`
	AuthorEmails       []string `json:"author_emails"`

	CCFRank FlexibleString `json:"ccf_rank"`
	CASZone FlexibleString `json:"cas_zone"`
	Field   string         `json:"field"`
}

// ParseRecords parses a JSON array of records (a single object is also
// accepted). Records that would fail ingestion validation are reported in the
// error list with their 1-based position and left out of the result.
func ParseRecords(data []byte) ([]ingest.PaperInput, []error) {
	var records []Record

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var r Record
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return nil, []error{fmt.Errorf("parsing record JSON: %w", err)}
		}
		records = []Record{r}
	} else if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, []error{fmt.Errorf("parsing records JSON: %w", err)}
	}

	var inputs []ingest.PaperInput
	var errs []error

	for i, r := range records {
		in := r.ToInput()
		if err := ingest.ValidatePaper(in); err != nil {
			errs = append(errs, fmt.Errorf("record %d (%s): %w", i+1, describe(in.Title), err))
			continue
		}
		inputs = append(inputs, in)
	}

	return inputs, errs
}

// ToInput maps a record onto a PaperInput. An explicit type wins; otherwise
// the venue key decides between journal and conference.
func (r Record) ToInput() ingest.PaperInput {
	venue := r.VenueName
	kind := strings.TrimSpace(r.Type)
	switch {
	case r.Journal != "":
		venue = r.Journal
		if kind == "" {
			kind = string(reference.KindJournal)
		}
	case r.Conference != "":
		venue = r.Conference
		if kind == "" {
			kind = string(reference.KindConference)
		}
	}

	return ingest.PaperInput{
		Title:              r.Title.String(),
		Authors:            r.Authors.String(),
		PublicationDate:    r.PublicationDate.String(),
		Type:               kind,
		VenueName:          venue,
		Volume:             r.Volume.String(),
		Issue:              r.Issue.String(),
		Pages:              r.Pages.String(),
		Publisher:          r.Publisher,
		Abstract:           r.Abstract,
		Citations:          r.TotalCitations.String(),
		AuthorAffiliations: r.AuthorAffiliations,
		AuthorEmails:       r.AuthorEmails,
		CCFRank:            r.CCFRank.String(),
		CASZone:            r.CASZone.String(),
		Field:              r.Field,
	}
}

func describe(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "untitled"
	}
	if r := []rune(title); len(r) > 40 {
		return string(r[:37]) + "..."
	}
	return title
}
