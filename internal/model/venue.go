package model

import "time"

// Sentinels written in place of missing values.
const (
	AddressNotListed = "Address not listed"
	PhoneNotListed   = "Not listed"
)

// ValidatedRow is a persistence-ready venue row. Only rows that pass every
// validation predicate are represented by this type.
type ValidatedRow struct {
	Name              string   `json:"name"`
	Address           string   `json:"address"`
	City              string   `json:"city"`
	State             string   `json:"state"`
	Phone             string   `json:"phone"`
	Lat               float64  `json:"lat"`
	Lon               float64  `json:"lon"`
	MimosaPrice       *int     `json:"mimosa_price"`
	ConfirmationScore int      `json:"confirmation_score"`
	SourceURLs        []string `json:"source_urls"`
	ScrapedSnippet    *string  `json:"scraped_snippet"`
	DedupeKey         string   `json:"dedupe_key"`
}

// VenueRecord is a catalog entry. At most one exists per DedupeKey.
type VenueRecord struct {
	ID string `json:"id"`
	ValidatedRow
	IsPublished   bool      `json:"is_published"`
	HumanReviewed bool      `json:"human_reviewed"`
	ScrapedAt     time.Time `json:"scraped_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// VenueFilter specifies criteria for listing catalog venues.
type VenueFilter struct {
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Published *bool  `json:"published,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
