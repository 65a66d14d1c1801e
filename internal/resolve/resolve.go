// Package resolve decides whether an incoming author or venue is one already in
// the store or a new entity.
package resolve

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matsen/bibnorm/internal/author"
	"github.com/matsen/bibnorm/internal/normalize"
	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/store"
)

// Resolver matches candidates against the store. It keeps no records of its own;
// every read and write goes through the store transaction it is handed.
type Resolver struct {
	threshold float64
	newID     func() string
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold sets the minimum match confidence. Values outside (0, 1] are ignored.
func WithThreshold(t float64) Option {
	return func(r *Resolver) {
		if t > 0 && t <= 1 {
			r.threshold = t
		}
	}
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Resolver) { r.newID = fn }
}

// WithClock replaces time.Now for creation timestamps.
func WithClock(fn func() time.Time) Option {
	return func(r *Resolver) { r.now = fn }
}

// WithLogger sets the logger used for match decisions.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New returns a resolver with the default threshold.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		threshold: author.DefaultThreshold,
		newID:     uuid.NewString,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Threshold returns the configured match threshold.
func (r *Resolver) Threshold() float64 { return r.threshold }

// NewID returns a fresh record id.
func (r *Resolver) NewID() string { return r.newID() }

// Now returns the current creation timestamp in UTC.
func (r *Resolver) Now() time.Time { return r.now().UTC() }

// Resolution is the outcome of resolving one candidate.
type Resolution struct {
	ID         string  `json:"id"`
	Created    bool    `json:"created"`
	Confidence float64 `json:"confidence"`
}

// ResolveAuthor returns the id of the stored author that best matches c, creating
// a new author when no stored one reaches the threshold.
//
// The best candidate has the highest confidence; ties go to the higher raw score
// and then to the author created first. On a match, affiliation and email are
// back-filled where still unknown.
func (r *Resolver) ResolveAuthor(tx *store.Tx, c author.Candidate) (Resolution, error) {
	c.First = normalize.CleanText(c.First)
	c.Last = normalize.CleanText(c.Last)
	if c.First == "" && c.Last == "" {
		return Resolution{}, reference.NewValidationError(reference.ErrEmptyAuthorName, "author", "first or last name is required")
	}
	c.Affiliation = cleanOptional(c.Affiliation)
	c.Email = cleanOptional(c.Email)
	if c.Email != nil && !normalize.ValidateEmail(*c.Email) {
		r.logger.Warn("dropping malformed author email",
			zap.String("first", c.First), zap.String("last", c.Last), zap.String("email", *c.Email))
		c.Email = nil
	}

	var (
		best      reference.Author
		bestMatch author.Match
		found     bool
	)
	for _, a := range r.shortlist(tx, c) {
		m := author.Score(a, c)
		if !found || better(m, bestMatch) {
			best, bestMatch, found = a, m, true
		}
	}

	if found && bestMatch.Confidence() >= r.threshold {
		setAff, setEmail, err := tx.BackfillAuthor(best.ID, c.Affiliation, c.Email)
		if err != nil {
			return Resolution{}, err
		}
		r.logger.Debug("author matched",
			zap.String("id", best.ID),
			zap.String("name", best.FullName),
			zap.Float64("score", bestMatch.Score),
			zap.Float64("confidence", bestMatch.Confidence()),
			zap.Bool("affiliation_set", setAff),
			zap.Bool("email_set", setEmail))
		return Resolution{ID: best.ID, Confidence: bestMatch.Confidence()}, nil
	}

	a := reference.NewAuthor(r.newID(), c.First, c.Last, c.Affiliation, c.Email, r.Now())
	if err := tx.InsertAuthor(a); err != nil {
		return Resolution{}, err
	}
	fields := []zap.Field{zap.String("id", a.ID), zap.String("name", a.FullName)}
	if found {
		fields = append(fields, zap.String("nearest", best.ID), zap.Float64("confidence", bestMatch.Confidence()))
	}
	r.logger.Debug("author created", fields...)
	return Resolution{ID: a.ID, Created: true}, nil
}

// shortlist returns the stored authors worth scoring. When the threshold is above
// the name weight only same-name authors can reach it.
func (r *Resolver) shortlist(tx *store.Tx, c author.Candidate) []reference.Author {
	if r.threshold > author.WeightName {
		return tx.AuthorsByName(c.First, c.Last)
	}
	return tx.Authors()
}

// better reports whether m beats the current best. Candidates arrive in creation
// order, so keeping the incumbent on a full tie prefers the earliest author.
func better(m, best author.Match) bool {
	if m.Confidence() != best.Confidence() {
		return m.Confidence() > best.Confidence()
	}
	return m.Score > best.Score
}

// VenueCandidate is an incoming venue appearance.
type VenueCandidate struct {
	Name           string
	Type           reference.Kind
	Publisher      string
	Classification reference.Classification
}

// ResolveVenue returns the id of the stored venue with the same key, creating one
// when none exists. The key is the name of a journal or the canonical name of a
// conference, compared case-insensitively. Conference venues stored without a
// canonical name are canonicalized on the way.
func (r *Resolver) ResolveVenue(tx *store.Tx, c VenueCandidate) (Resolution, error) {
	name := normalize.CleanText(c.Name)
	if name == "" {
		return Resolution{}, reference.NewValidationError(reference.ErrEmptyVenue, "venue", "venue name is required")
	}
	if c.Type != reference.KindJournal && c.Type != reference.KindConference {
		return Resolution{}, reference.NewValidationError(reference.ErrInvalidType, "type", string(c.Type))
	}

	key := venueKey(name, c.Type)
	v, ok := tx.VenueByKey(c.Type, key)
	if !ok && c.Type == reference.KindConference {
		var err error
		if v, ok, err = r.canonicalizeLegacy(tx, key); err != nil {
			return Resolution{}, err
		}
	}

	if ok {
		n, err := tx.BackfillVenue(v.ID, c.Classification)
		if err != nil {
			return Resolution{}, err
		}
		r.logger.Debug("venue matched", zap.String("id", v.ID), zap.String("key", key), zap.Int("labels_set", n))
		return Resolution{ID: v.ID, Confidence: 1}, nil
	}

	nv := reference.Venue{
		ID:             r.newID(),
		Type:           c.Type,
		Name:           name,
		Publisher:      reference.OrUnknown(c.Publisher),
		Classification: c.Classification.ForKind(c.Type),
		PaperIDs:       []string{},
		CreatedAt:      r.Now(),
	}
	if c.Type == reference.KindConference {
		nv.CanonicalName = &key
	}
	if err := tx.InsertVenue(nv); err != nil {
		return Resolution{}, err
	}
	r.logger.Debug("venue created", zap.String("id", nv.ID), zap.String("key", key), zap.String("type", string(c.Type)))
	return Resolution{ID: nv.ID, Created: true}, nil
}

// canonicalizeLegacy fills in canonical names for conference venues stored
// without one and returns the first whose canonical name equals key.
func (r *Resolver) canonicalizeLegacy(tx *store.Tx, key string) (reference.Venue, bool, error) {
	var (
		match reference.Venue
		found bool
	)
	for _, legacy := range tx.UncanonicalizedVenues() {
		canonical := venueKey(legacy.Name, reference.KindConference)
		if err := tx.SetCanonicalName(legacy.ID, canonical); err != nil {
			return reference.Venue{}, false, err
		}
		r.logger.Debug("venue canonicalized", zap.String("id", legacy.ID), zap.String("canonical_name", canonical))
		if !found && strings.EqualFold(canonical, key) {
			match, found = legacy, true
		}
	}
	return match, found, nil
}

// venueKey is the dedup key for a venue name. A conference name made only of
// year and edition tokens keeps its full name.
func venueKey(name string, kind reference.Kind) string {
	key := normalize.CanonicalizeVenueName(name, kind)
	if key == "" {
		return name
	}
	return key
}

func cleanOptional(s *string) *string {
	if s == nil {
		return nil
	}
	return reference.StringPtr(normalize.CleanText(*s))
}
