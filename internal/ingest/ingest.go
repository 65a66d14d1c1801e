// Package ingest validates raw paper records and stores them, resolving every
// author and the venue to existing or new entities.
package ingest

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/matsen/bibnorm/internal/author"
	"github.com/matsen/bibnorm/internal/normalize"
	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/resolve"
	"github.com/matsen/bibnorm/internal/store"
)

// PaperInput is one raw paper record as scraped or transcribed.
type PaperInput struct {
	Title           string `json:"title"`
	Authors         string `json:"authors"` // comma-separated, marker glyphs flag corresponding authors
	PublicationDate string `json:"publication_date"`
	Type            string `json:"type"`
	VenueName       string `json:"venue_name"`
	Volume          string `json:"volume,omitempty"`
	Issue           string `json:"issue,omitempty"`
	Pages           string `json:"pages,omitempty"`
	Publisher       string `json:"publisher,omitempty"`
	Abstract        string `json:"abstract,omitempty"`
	Citations       string `json:"total_citations,omitempty"` // free text, e.g. "Cited by 138"

	// Index-aligned with the split author list; blank entries mean unknown.
	AuthorAffiliations []string `json:"author_affiliations,omitempty"`
	AuthorEmails       []string `json:"author_emails,omitempty"`

	CCFRank string `json:"ccf_rank,omitempty"`
	CASZone string `json:"cas_zone,omitempty"`
	Field   string `json:"field,omitempty"`
}

// AuthorInput is a directly supplied author.
type AuthorInput struct {
	First       string `json:"first_name"`
	Last        string `json:"last_name"`
	Affiliation string `json:"affiliation,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Observer is notified after each committed paper.
type Observer interface {
	PaperAdded(p reference.Paper, authors []resolve.Resolution, venue resolve.Resolution)
}

// Pipeline runs ingestion against one store.
type Pipeline struct {
	store    *store.Store
	resolver *resolve.Resolver
	logger   *zap.Logger
	observer Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithObserver registers an observer for committed papers.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// New returns a pipeline writing to s through r.
func New(s *store.Store, r *resolve.Resolver, opts ...Option) *Pipeline {
	p := &Pipeline{store: s, resolver: r, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the store the pipeline writes to.
func (p *Pipeline) Store() *store.Store { return p.store }

// ValidatePaper checks in without touching any store. Checks run in a fixed
// order and the first failure is returned as a *reference.ValidationError.
func ValidatePaper(in PaperInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return reference.NewValidationError(reference.ErrEmptyTitle, "title", "title is required")
	}
	if strings.TrimSpace(in.Authors) == "" {
		return reference.NewValidationError(reference.ErrEmptyAuthors, "authors", "authors are required")
	}
	if len(normalize.SplitAuthors(in.Authors)) == 0 {
		return reference.NewValidationError(reference.ErrEmptyAuthors, "authors", "no author names after removing markers")
	}
	if !normalize.ValidateDate(in.PublicationDate) {
		return reference.NewValidationError(reference.ErrInvalidDate, "publication_date",
			fmt.Sprintf("%q is not YYYY/M/D, YYYY-M-D or YYYY", in.PublicationDate))
	}
	if _, err := reference.ParseKind(in.Type); err != nil {
		return err
	}
	if strings.TrimSpace(in.VenueName) == "" {
		return reference.NewValidationError(reference.ErrEmptyVenue, "venue_name", "venue name is required")
	}
	for i, email := range in.AuthorEmails {
		if !normalize.ValidateEmail(email) {
			return reference.NewValidationError(reference.ErrInvalidEmail,
				fmt.Sprintf("author_emails[%d]", i), fmt.Sprintf("%q is not a valid email address", email))
		}
	}
	return nil
}

// AddPaper validates in and stores it as a new paper, returning its id. Either the
// paper and every author and venue change it implies are committed, or nothing is.
func (p *Pipeline) AddPaper(in PaperInput) (string, error) {
	if err := ValidatePaper(in); err != nil {
		return "", err
	}
	kind, _ := reference.ParseKind(in.Type)
	names := normalize.SplitAuthors(in.Authors)

	var (
		paper     reference.Paper
		authorRes []resolve.Resolution
		venueRes  resolve.Resolution
	)
	err := p.store.Update(func(tx *store.Tx) error {
		authorIDs := make([]string, 0, len(names))
		corresponding := []string{}
		authorRes = make([]resolve.Resolution, 0, len(names))
		for i, n := range names {
			first, last := normalize.SplitName(n.Name)
			res, err := p.resolver.ResolveAuthor(tx, author.Candidate{
				First:       first,
				Last:        last,
				Affiliation: at(in.AuthorAffiliations, i),
				Email:       at(in.AuthorEmails, i),
			})
			if err != nil {
				return fmt.Errorf("resolving author %q: %w", n.Name, err)
			}
			authorIDs = append(authorIDs, res.ID)
			authorRes = append(authorRes, res)
			if n.IsCorresponding && !containsID(corresponding, res.ID) {
				corresponding = append(corresponding, res.ID)
			}
		}

		var err error
		venueRes, err = p.resolver.ResolveVenue(tx, resolve.VenueCandidate{
			Name:      in.VenueName,
			Type:      kind,
			Publisher: in.Publisher,
			Classification: reference.Classification{
				CCFRank: reference.StringPtr(in.CCFRank),
				CASZone: reference.StringPtr(in.CASZone),
				Field:   reference.StringPtr(in.Field),
			},
		})
		if err != nil {
			return fmt.Errorf("resolving venue %q: %w", in.VenueName, err)
		}

		date := normalize.ParseDate(in.PublicationDate)
		paper = reference.Paper{
			ID:               p.resolver.NewID(),
			Title:            normalize.CleanText(in.Title),
			Type:             kind,
			AuthorIDs:        authorIDs,
			CorrespondingIDs: corresponding,
			PublicationDate:  date,
			PublicationYear:  normalize.ExtractYear(date),
			VenueID:          &venueRes.ID,
			Volume:           reference.StringPtr(in.Volume),
			Issue:            reference.StringPtr(in.Issue),
			Pages:            reference.OrUnknown(in.Pages),
			Publisher:        reference.OrUnknown(in.Publisher),
			Abstract:         normalize.TruncateAbstract(in.Abstract),
			TotalCitations:   normalize.ExtractCitationCount(in.Citations),
			CreatedAt:        p.resolver.Now(),
		}
		return tx.InsertPaper(paper)
	})
	if err != nil {
		return "", err
	}

	created := 0
	for _, r := range authorRes {
		if r.Created {
			created++
		}
	}
	p.logger.Info("paper added",
		zap.String("id", paper.ID),
		zap.String("title", paper.Title),
		zap.Int("authors", len(paper.AuthorIDs)),
		zap.Int("authors_created", created),
		zap.String("venue_id", venueRes.ID),
		zap.Bool("venue_created", venueRes.Created),
		zap.Int("citations", paper.TotalCitations))
	if p.observer != nil {
		p.observer.PaperAdded(paper, authorRes, venueRes)
	}
	return paper.ID, nil
}

// ValidateAuthor checks a directly supplied author.
func ValidateAuthor(in AuthorInput) error {
	if strings.TrimSpace(in.First) == "" && strings.TrimSpace(in.Last) == "" {
		return reference.NewValidationError(reference.ErrEmptyAuthorName, "name", "first or last name is required")
	}
	if !normalize.ValidateEmail(in.Email) {
		return reference.NewValidationError(reference.ErrInvalidEmail, "email",
			fmt.Sprintf("%q is not a valid email address", in.Email))
	}
	return nil
}

// AddAuthor resolves a directly supplied author, which may match an existing one.
func (p *Pipeline) AddAuthor(in AuthorInput) (resolve.Resolution, error) {
	if err := ValidateAuthor(in); err != nil {
		return resolve.Resolution{}, err
	}

	var res resolve.Resolution
	err := p.store.Update(func(tx *store.Tx) error {
		var err error
		res, err = p.resolver.ResolveAuthor(tx, author.Candidate{
			First:       in.First,
			Last:        in.Last,
			Affiliation: reference.StringPtr(in.Affiliation),
			Email:       reference.StringPtr(in.Email),
		})
		return err
	})
	if err != nil {
		return resolve.Resolution{}, err
	}
	p.logger.Info("author resolved", zap.String("id", res.ID), zap.Bool("created", res.Created))
	return res, nil
}

// at returns the trimmed i-th entry of a positional side-list, or nil.
func at(list []string, i int) *string {
	if i >= len(list) {
		return nil
	}
	return reference.StringPtr(list[i])
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
