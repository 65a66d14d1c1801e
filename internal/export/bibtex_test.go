package export

import (
	"strings"
	"testing"

	"github.com/matsen/bibnorm/internal/ingest"
	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/resolve"
	"github.com/matsen/bibnorm/internal/store"
)

// details ingests in and returns the stored paper with its authors and venue.
func details(t *testing.T, in ingest.PaperInput) reference.PaperDetails {
	t.Helper()
	s := store.New()
	id, err := ingest.New(s, resolve.New()).AddPaper(in)
	if err != nil {
		t.Fatalf("AddPaper: %v", err)
	}
	d, ok := s.GetPaperWithDetails(id)
	if !ok {
		t.Fatalf("paper %s not stored", id)
	}
	return d
}

func TestToBibTeX_Article(t *testing.T) {
	d := details(t, ingest.PaperInput{
		Title:           "Cooperative Data Scheduling in Hybrid Vehicular Ad Hoc Networks",
		Authors:         "Kai Liu*, Joseph KY Ng",
		PublicationDate: "2016/6/1",
		Type:            "journal",
		VenueName:       "IEEE/ACM Transactions on Networking",
		Volume:          "24",
		Issue:           "3",
		Pages:           "1759-1773",
		Publisher:       "IEEE",
		Abstract:        "Scheduling for 100% of requests.",
	})

	got := ToBibTeX(d)

	for _, want := range []string{
		"@article{" + d.ID + ",\n",
		"  author = {Liu, Kai and KY Ng, Joseph},\n",
		"  title = {Cooperative Data Scheduling in Hybrid Vehicular Ad Hoc Networks},\n",
		"  journal = {IEEE/ACM Transactions on Networking},\n",
		"  year = {2016},\n",
		"  month = {6},\n",
		"  volume = {24},\n",
		"  number = {3},\n",
		"  pages = {1759--1773},\n",
		"  publisher = {IEEE},\n",
		`  abstract = {Scheduling for 100\% of requests.},` + "\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("ToBibTeX() missing %q, got:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, "}\n") {
		t.Errorf("ToBibTeX() should end with }, got:\n%s", got)
	}
}

func TestToBibTeX_Inproceedings(t *testing.T) {
	d := details(t, ingest.PaperInput{
		Title:           "Age of View",
		Authors:         "Xincao Xu",
		PublicationDate: "2022",
		Type:            "conference",
		VenueName:       "2022 IEEE 25th International Conference on Intelligent Transportation Systems (ITSC)",
	})

	got := ToBibTeX(d)

	if !strings.HasPrefix(got, "@inproceedings{") {
		t.Errorf("ToBibTeX() should be @inproceedings, got:\n%s", got)
	}
	if !strings.Contains(got, "  booktitle = {2022 IEEE 25th International Conference on Intelligent Transportation Systems (ITSC)},\n") {
		t.Errorf("ToBibTeX() should use booktitle, got:\n%s", got)
	}
	if strings.Contains(got, "journal = ") {
		t.Errorf("ToBibTeX() should not include journal, got:\n%s", got)
	}
	// Year-only dates carry no month; the empty abstract is stored as n/a
	for _, absent := range []string{"month = ", "abstract = ", "volume = ", "pages = "} {
		if strings.Contains(got, absent) {
			t.Errorf("ToBibTeX() should not include %q, got:\n%s", absent, got)
		}
	}
}

func TestToBibTeX_NoAuthorsNoVenue(t *testing.T) {
	d := reference.PaperDetails{Paper: reference.Paper{ID: "p1", Title: "Orphan", Type: reference.KindJournal}}

	got := ToBibTeX(d)
	want := "@article{p1,\n  title = {Orphan},\n}\n"
	if got != want {
		t.Errorf("ToBibTeX() = %q, want %q", got, want)
	}
}

func TestFormatAuthors(t *testing.T) {
	detail := func(first, last string) reference.AuthorDetail {
		return reference.AuthorDetail{Author: reference.Author{FirstName: first, LastName: last}}
	}
	tests := []struct {
		name    string
		authors []reference.AuthorDetail
		want    string
	}{
		{"single", []reference.AuthorDetail{detail("Kai", "Liu")}, "Liu, Kai"},
		{"two", []reference.AuthorDetail{detail("Kai", "Liu"), detail("Victor CS", "Lee")}, "Liu, Kai and Lee, Victor CS"},
		{"mononym", []reference.AuthorDetail{detail("Plato", reference.Unknown)}, "Plato"},
		{"surname only", []reference.AuthorDetail{detail(reference.Unknown, "Euclid")}, "Euclid"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAuthors(tt.authors); got != tt.want {
				t.Errorf("formatAuthors() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMonth(t *testing.T) {
	tests := map[string]string{
		"2019-07-19": "7",
		"2019-12-01": "12",
		"2019-01-01": "",
		"2019":       "",
		"":           "",
	}
	for in, want := range tests {
		if got := month(in); got != want {
			t.Errorf("month(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEscapeLatex(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain text", "plain text"},
		{"100% effective", `100\% effective`},
		{"A & B", `A \& B`},
		{"$100 price", `\$100 price`},
		{"section #1", `section \#1`},
		{"under_score", `under\_score`},
		{"{braces}", `\{braces\}`},
		{"test~tilde", `test\textasciitilde{}tilde`},
		{"x^2", `x\textasciicircum{}2`},
		{`a\b`, `a\textbackslash{}b`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := escapeLatex(tt.input); got != tt.want {
				t.Errorf("escapeLatex(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestToBibTeXList(t *testing.T) {
	a := reference.PaperDetails{Paper: reference.Paper{ID: "a", Title: "A", Type: reference.KindJournal}}
	b := reference.PaperDetails{Paper: reference.Paper{ID: "b", Title: "B", Type: reference.KindConference}}

	got := ToBibTeXList([]reference.PaperDetails{a, b})
	if !strings.Contains(got, "@article{a,") || !strings.Contains(got, "@inproceedings{b,") {
		t.Errorf("ToBibTeXList() = %q", got)
	}
	if strings.Count(got, "\n\n") != 1 {
		t.Errorf("entries should be separated by one blank line, got %q", got)
	}
	if ToBibTeXList(nil) != "" {
		t.Error("ToBibTeXList(nil) should be empty")
	}
}
