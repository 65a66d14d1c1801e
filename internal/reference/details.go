package reference

// AuthorDetail is an author record as seen from one paper.
type AuthorDetail struct {
	Author
	IsCorresponding bool `json:"is_corresponding"`
}

// PaperDetails joins a paper with its resolved authors and venue. It is a
// read-only projection; mutating it has no effect on the store.
type PaperDetails struct {
	Paper
	AuthorDetails []AuthorDetail `json:"author_details"`
	VenueDetails  *Venue         `json:"venue_details"`
}
