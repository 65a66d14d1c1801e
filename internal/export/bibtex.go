// Package export renders papers in citation formats.
package export

import (
	"fmt"
	"strings"

	"github.com/matsen/bibnorm/internal/reference"
)

// ToBibTeX converts a paper with its resolved authors and venue to a BibTeX
// entry keyed by the paper id.
func ToBibTeX(d reference.PaperDetails) string {
	entryType := entryType(d.Type)
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@%s{%s,\n", entryType, d.ID))

	if len(d.AuthorDetails) > 0 {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", formatAuthors(d.AuthorDetails)))
	}
	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(d.Title)))

	if d.VenueDetails != nil {
		fieldName := "journal"
		if entryType == "inproceedings" {
			fieldName = "booktitle"
		}
		b.WriteString(fmt.Sprintf("  %s = {%s},\n", fieldName, escapeLatex(d.VenueDetails.Name)))
	}

	if year := reference.Deref(d.PublicationYear); year != "" {
		b.WriteString(fmt.Sprintf("  year = {%s},\n", year))
	}
	if month := month(reference.Deref(d.PublicationDate)); month != "" {
		b.WriteString(fmt.Sprintf("  month = {%s},\n", month))
	}

	writeOptional(&b, "volume", reference.Deref(d.Volume))
	writeOptional(&b, "number", reference.Deref(d.Issue))
	writeOptional(&b, "pages", strings.ReplaceAll(d.Pages, "-", "--"))
	writeOptional(&b, "publisher", d.Publisher)
	writeOptional(&b, "abstract", d.Abstract)

	b.WriteString("}\n")

	return b.String()
}

// ToBibTeXList converts multiple papers to BibTeX format.
func ToBibTeXList(papers []reference.PaperDetails) string {
	var entries []string
	for _, d := range papers {
		entries = append(entries, ToBibTeX(d))
	}
	return strings.Join(entries, "\n")
}

func entryType(kind reference.Kind) string {
	if kind == reference.KindConference {
		return "inproceedings"
	}
	return "article"
}

// writeOptional skips empty and unknown values.
func writeOptional(b *strings.Builder, field, value string) {
	value = strings.TrimSpace(value)
	if value == "" || value == reference.Unknown {
		return
	}
	b.WriteString(fmt.Sprintf("  %s = {%s},\n", field, escapeLatex(value)))
}

// month returns the month number of an ISO date, or "" for year-only dates.
func month(iso string) string {
	parts := strings.Split(iso, "-")
	if len(parts) < 2 || (len(parts) == 3 && parts[1] == "01" && parts[2] == "01") {
		return ""
	}
	return strings.TrimPrefix(parts[1], "0")
}

// formatAuthors formats authors in BibTeX style: "Last, First and Last, First"
func formatAuthors(authors []reference.AuthorDetail) string {
	var formatted []string
	for _, a := range authors {
		switch {
		case a.LastName == reference.Unknown:
			formatted = append(formatted, a.FirstName)
		case a.FirstName == reference.Unknown:
			formatted = append(formatted, a.LastName)
		default:
			formatted = append(formatted, fmt.Sprintf("%s, %s", a.LastName, a.FirstName))
		}
	}
	return strings.Join(formatted, " and ")
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\textbackslash{}`,
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
