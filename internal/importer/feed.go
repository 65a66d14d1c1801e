package importer

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/matsen/bibnorm/internal/ingest"
	"github.com/matsen/bibnorm/internal/reference"
)

// FeedOptions fill in what RSS/Atom items do not carry.
type FeedOptions struct {
	Type      reference.Kind // paper type for every item; journal when empty
	Venue     string         // venue name; the feed title when empty
	Publisher string
	MaxItems  int // 0 = all items
}

// ParseFeed parses an RSS or Atom document into paper inputs. Items that would
// fail ingestion validation are reported and skipped.
func ParseFeed(data []byte, opts FeedOptions) ([]ingest.PaperInput, []error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, []error{fmt.Errorf("parsing feed: %w", err)}
	}
	return feedInputs(feed, opts)
}

// FetchFeed downloads and parses the feed at url.
func FetchFeed(ctx context.Context, url string, opts FeedOptions) ([]ingest.PaperInput, []error) {
	feed, err := gofeed.NewParser().ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, []error{fmt.Errorf("fetching feed %s: %w", url, err)}
	}
	return feedInputs(feed, opts)
}

func feedInputs(feed *gofeed.Feed, opts FeedOptions) ([]ingest.PaperInput, []error) {
	kind := opts.Type
	if kind == "" {
		kind = reference.KindJournal
	}
	venue := strings.TrimSpace(opts.Venue)
	if venue == "" {
		venue = strings.TrimSpace(feed.Title)
	}

	var inputs []ingest.PaperInput
	var errs []error

	for i, item := range feed.Items {
		if opts.MaxItems > 0 && len(inputs) >= opts.MaxItems {
			break
		}
		in := parseItem(item)
		in.Type = string(kind)
		in.VenueName = venue
		in.Publisher = opts.Publisher

		if err := ingest.ValidatePaper(in); err != nil {
			errs = append(errs, fmt.Errorf("item %d (%s): %w", i+1, describe(in.Title), err))
			continue
		}
		inputs = append(inputs, in)
	}

	return inputs, errs
}

func parseItem(item *gofeed.Item) ingest.PaperInput {
	var in ingest.PaperInput
	in.Title = strings.TrimSpace(item.Title)

	var names []string
	for _, p := range item.Authors {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			names = append(names, personName(p.Name))
		}
	}
	if len(names) == 0 && item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		names = append(names, personName(item.Author.Name))
	}
	in.Authors = strings.Join(names, ", ")

	if item.PublishedParsed != nil {
		in.PublicationDate = item.PublishedParsed.UTC().Format("2006-01-02")
	} else if item.UpdatedParsed != nil {
		in.PublicationDate = item.UpdatedParsed.UTC().Format("2006-01-02")
	}

	if item.Description != "" {
		in.Abstract = stripHTML(item.Description)
	} else if item.Content != "" {
		in.Abstract = stripHTML(item.Content)
	}

	return in
}

// personName turns "Liu, Kai" into "Kai Liu" so the comma does not split one
// author into two. Anything else with a comma, such as a creator field holding
// "Kai Liu, Xincao Xu, Ke Xiao", is already an author list and passes through.
func personName(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ",") != 1 {
		return raw
	}
	last, first, _ := strings.Cut(raw, ",")
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if first == "" {
		return last
	}
	if len(strings.Fields(last)) != 1 || !givenNames(first) {
		return raw
	}
	return first + " " + last
}

// givenNames reports whether s is one given name or a run of initials ("K. Y.").
func givenNames(s string) bool {
	fields := strings.Fields(s)
	if len(fields) == 1 {
		return true
	}
	for _, f := range fields {
		if len([]rune(strings.TrimRight(f, "."))) > 1 {
			return false
		}
	}
	return true
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(html.UnescapeString(result.String())), " ")
}
