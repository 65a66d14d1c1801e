package author

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/matsen/bibnorm/internal/reference"
)

// Evidence weights. A candidate can earn at most 1.0.
const (
	WeightName               = 0.5
	WeightAffiliationExact   = 0.3
	WeightAffiliationPartial = 0.15
	WeightEmail              = 0.2
)

// DefaultThreshold is the minimum Confidence for reusing an existing author.
const DefaultThreshold = 0.7

// Candidate is an incoming author appearance to be compared with stored authors.
type Candidate struct {
	First       string
	Last        string
	Affiliation *string
	Email       *string
}

// Match is the result of comparing a candidate with one stored author.
type Match struct {
	// Score is the sum of the weights of the evidence that agreed.
	Score float64
	// Possible is the sum of the weights of the evidence both sides could offer.
	// Fields missing on either side are excluded, so absence is neither agreement
	// nor disagreement.
	Possible float64
	// EmailConflict is set when both sides carry an email and they differ.
	EmailConflict bool
}

// Confidence returns Score relative to Possible, in [0, 1]. Two different emails
// identify two different people, so a conflict has zero confidence.
func (m Match) Confidence() float64 {
	if m.Possible == 0 || m.EmailConflict {
		return 0
	}
	return m.Score / m.Possible
}

// NameMatched reports whether the name evidence agreed.
func (m Match) NameMatched() bool {
	return m.Score >= WeightName
}

// Score compares a stored author with a candidate.
//
//   - names: +0.5 when first and last both match, case-insensitively
//   - affiliation: +0.3 exact, +0.15 when one contains the other
//   - email: +0.2 exact, case-insensitively; a mismatch sets EmailConflict
func Score(existing reference.Author, c Candidate) Match {
	m := Match{Possible: WeightName}

	if NameKey(existing.FirstName, existing.LastName) == NameKey(c.First, c.Last) {
		m.Score += WeightName
	}

	if existing.Affiliation != nil && c.Affiliation != nil {
		m.Possible += WeightAffiliationExact
		have := strings.ToLower(strings.TrimSpace(*existing.Affiliation))
		got := strings.ToLower(strings.TrimSpace(*c.Affiliation))
		switch {
		case have == got:
			m.Score += WeightAffiliationExact
		case have != "" && got != "" && (strings.Contains(have, got) || strings.Contains(got, have)):
			m.Score += WeightAffiliationPartial
		}
	}

	if existing.Email != nil && c.Email != nil {
		m.Possible += WeightEmail
		if strings.EqualFold(strings.TrimSpace(*existing.Email), strings.TrimSpace(*c.Email)) {
			m.Score += WeightEmail
		} else {
			m.EmailConflict = true
		}
	}

	return m
}

// NameKey returns the case-folded, NFC-normalized key for a first/last pair. Score
// treats names as equal exactly when their keys are equal, so the key can be used
// to shortlist candidates.
func NameKey(first, last string) string {
	first = strings.ToLower(norm.NFC.String(reference.OrUnknown(first)))
	last = strings.ToLower(norm.NFC.String(reference.OrUnknown(last)))
	return first + "\x00" + last
}
