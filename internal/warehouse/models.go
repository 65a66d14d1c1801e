package warehouse

import (
	"time"

	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/store"
)

// PaperRow is a published paper.
type PaperRow struct {
	ID              string  `gorm:"primaryKey"`
	Title           string  `gorm:"not null"`
	Type            string  `gorm:"index;not null"`
	PublicationDate *string `gorm:"type:text"`
	PublicationYear *string `gorm:"index"`
	VenueID         *string `gorm:"index"`
	Volume          *string
	Issue           *string
	Pages           string
	Publisher       string
	Abstract        string `gorm:"type:text"`
	TotalCitations  int
	CreatedAt       time.Time
}

func (PaperRow) TableName() string { return "papers" }

// AuthorRow is a published author with its aggregate counts.
type AuthorRow struct {
	ID             string `gorm:"primaryKey"`
	FirstName      string
	LastName       string `gorm:"index"`
	FullName       string
	Affiliation    *string
	Email          *string
	PaperCount     int
	TotalCitations int
	CreatedAt      time.Time
}

func (AuthorRow) TableName() string { return "authors" }

// VenueRow is a published venue with its classification.
type VenueRow struct {
	ID             string `gorm:"primaryKey"`
	Type           string `gorm:"index;not null"`
	Name           string `gorm:"not null"`
	CanonicalName  *string
	Publisher      string
	CCFRank        *string `gorm:"column:ccf_rank"`
	CASZone        *string `gorm:"column:cas_zone"`
	Field          *string
	PaperCount     int
	TotalCitations int
	CreatedAt      time.Time
}

func (VenueRow) TableName() string { return "venues" }

// PaperAuthorRow links a paper to the author at one position of its author list.
type PaperAuthorRow struct {
	PaperID         string `gorm:"primaryKey"`
	Position        int    `gorm:"primaryKey;autoIncrement:false"`
	AuthorID        string `gorm:"index;not null"`
	IsCorresponding bool
}

func (PaperAuthorRow) TableName() string { return "paper_authors" }

// Rows is a snapshot flattened into table rows.
type Rows struct {
	Papers       []PaperRow
	Authors      []AuthorRow
	Venues       []VenueRow
	PaperAuthors []PaperAuthorRow
}

// RowsFromSnapshot flattens sn. Author and venue paper lists become counts;
// paper author lists become PaperAuthorRow links in author order.
func RowsFromSnapshot(sn store.Snapshot) Rows {
	var r Rows
	for _, v := range sn.Venues {
		r.Venues = append(r.Venues, VenueRow{
			ID: v.ID, Type: string(v.Type), Name: v.Name, CanonicalName: v.CanonicalName,
			Publisher: v.Publisher, CCFRank: v.Classification.CCFRank,
			CASZone: v.Classification.CASZone, Field: v.Classification.Field,
			PaperCount: len(v.PaperIDs), TotalCitations: v.TotalCitations, CreatedAt: v.CreatedAt,
		})
	}
	for _, a := range sn.Authors {
		r.Authors = append(r.Authors, AuthorRow{
			ID: a.ID, FirstName: a.FirstName, LastName: a.LastName, FullName: a.FullName,
			Affiliation: a.Affiliation, Email: a.Email,
			PaperCount: len(a.PaperIDs), TotalCitations: a.TotalCitations, CreatedAt: a.CreatedAt,
		})
	}
	for _, p := range sn.Papers {
		r.Papers = append(r.Papers, paperRow(p))
		for i, aid := range p.AuthorIDs {
			r.PaperAuthors = append(r.PaperAuthors, PaperAuthorRow{
				PaperID: p.ID, Position: i, AuthorID: aid, IsCorresponding: p.IsCorresponding(aid),
			})
		}
	}
	return r
}

func paperRow(p reference.Paper) PaperRow {
	return PaperRow{
		ID: p.ID, Title: p.Title, Type: string(p.Type),
		PublicationDate: p.PublicationDate, PublicationYear: p.PublicationYear,
		VenueID: p.VenueID, Volume: p.Volume, Issue: p.Issue,
		Pages: p.Pages, Publisher: p.Publisher, Abstract: p.Abstract,
		TotalCitations: p.TotalCitations, CreatedAt: p.CreatedAt,
	}
}
