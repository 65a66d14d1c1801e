// Package normalize converts raw scraped strings into canonical forms.
// Every function is pure and never panics on malformed input.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/matsen/bibnorm/internal/reference"
)

// MaxAbstractLen is the number of runes kept before an abstract is truncated.
const MaxAbstractLen = 1000

// Date patterns, tried in order. The prefix forms are used by ParseDate,
// the anchored forms by ValidateDate.
var (
	slashDatePrefix = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})`)
	dashDatePrefix  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})`)
	yearPrefix      = regexp.MustCompile(`^(\d{4})`)

	strictDates = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}/\d{1,2}/\d{1,2}$`),
		regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`),
		regexp.MustCompile(`^\d{4}$`),
	}
)

var (
	digitRun     = regexp.MustCompile(`\d+`)
	yearToken    = regexp.MustCompile(`\b\d{4}\b`)
	ordinalToken = regexp.MustCompile(`(?i)\b\d+(?:st|nd|rd|th)\b`)
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
)

// CorrespondingMarkers are the glyphs that flag a corresponding author.
const CorrespondingMarkers = "*†‡§¶"

// ParseDate returns an ISO YYYY-MM-DD date. Input that matches no pattern is
// returned unchanged; blank input yields nil.
func ParseDate(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	for _, re := range []*regexp.Regexp{slashDatePrefix, dashDatePrefix} {
		if m := re.FindStringSubmatch(s); m != nil {
			iso := fmt.Sprintf("%s-%s-%s", m[1], zeroPad(m[2]), zeroPad(m[3]))
			return &iso
		}
	}
	if m := yearPrefix.FindStringSubmatch(s); m != nil {
		iso := m[1] + "-01-01"
		return &iso
	}

	return &s
}

func zeroPad(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// ValidateDate reports whether raw is exactly one of YYYY/M/D, YYYY-M-D or YYYY.
// Blank input is accepted because the publication date is optional.
func ValidateDate(raw string) bool {
	s := strings.TrimSpace(raw)
	if s == "" {
		return true
	}
	for _, re := range strictDates {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// ExtractYear returns the first four characters of an ISO date.
func ExtractYear(iso *string) *string {
	if iso == nil || len(*iso) < 4 {
		return nil
	}
	year := (*iso)[:4]
	return &year
}

// SplitName splits a full name into first and last parts.
//
// Rules:
//   - ""                 → ("n/a", "n/a")
//   - "Liu"              → ("n/a", "Liu")
//   - "Kai Liu"          → ("Kai", "Liu")
//   - "Victor CS Lee"    → ("Victor", "CS Lee")
//
// The first token is always the given name. Family-name-first orders are not
// detected.
func SplitName(full string) (first, last string) {
	tokens := strings.Fields(full)
	switch len(tokens) {
	case 0:
		return reference.Unknown, reference.Unknown
	case 1:
		return reference.Unknown, tokens[0]
	default:
		return tokens[0], strings.Join(tokens[1:], " ")
	}
}

// AuthorName is one entry of a parsed author string.
type AuthorName struct {
	Name            string
	IsCorresponding bool
}

// SplitAuthors splits a comma-separated author string. Marker glyphs flag the
// corresponding author and are removed from the name.
func SplitAuthors(authors string) []AuthorName {
	var out []AuthorName
	for _, piece := range strings.Split(authors, ",") {
		corresponding := strings.ContainsAny(piece, CorrespondingMarkers)
		name := CleanText(stripMarkers(piece))
		if name == "" {
			continue
		}
		out = append(out, AuthorName{Name: name, IsCorresponding: corresponding})
	}
	return out
}

func stripMarkers(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(CorrespondingMarkers, r) {
			return -1
		}
		return r
	}, s)
}

// CleanText NFC-normalizes s and collapses runs of whitespace.
func CleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// CanonicalizeVenueName strips year and edition tokens from conference names so
// that yearly editions share one key. Journal names are only trimmed.
func CanonicalizeVenueName(raw string, kind reference.Kind) string {
	if kind != reference.KindConference {
		return strings.TrimSpace(raw)
	}
	s := yearToken.ReplaceAllString(raw, " ")
	s = ordinalToken.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// ExtractCitationCount returns the first run of digits in raw, or 0.
func ExtractCitationCount(raw string) int {
	m := digitRun.FindString(raw)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		// Only overflow can fail here; saturate rather than report zero.
		return int(^uint(0) >> 1)
	}
	return n
}

// ValidateEmail reports whether raw looks like local@domain.tld. Blank input is
// valid because email is optional.
func ValidateEmail(raw string) bool {
	s := strings.TrimSpace(raw)
	if s == "" {
		return true
	}
	return emailPattern.MatchString(s)
}

// TruncateAbstract caps an abstract at MaxAbstractLen runes, appending "...".
func TruncateAbstract(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return reference.Unknown
	}
	if utf8.RuneCountInString(s) <= MaxAbstractLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxAbstractLen]) + "..."
}
