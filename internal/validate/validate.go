// Package validate rejects structurally implausible venue rows and sanitizes
// the rest before they reach the catalog.
package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
)

// Field limits.
const (
	MinName       = 2
	MaxName       = 200
	MinAddress    = 10
	MaxAddress    = 300
	MaxCity       = 100
	MaxPhone      = 30
	MaxSnippet    = 50
	MaxSourceURLs = 10
	MinPrice      = 15
	MaxPrice      = 99
	MinScore      = 0
	MaxScore      = 5
)

// PhoneFiller is a placeholder number some listings print instead of a phone.
const PhoneFiller = "000-000-0000"

// garbagePatterns match page chrome that extractors mistake for venue data:
// sort and filter controls, legal boilerplate, pagination, bare URLs, loading
// indicators.
var garbagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^sort\s+by`),
	regexp.MustCompile(`(?i)^filter`),
	regexp.MustCompile(`(?i)^sign\s+in`),
	regexp.MustCompile(`(?i)^create\s+account`),
	regexp.MustCompile(`(?i)^privacy\s+policy`),
	regexp.MustCompile(`(?i)^terms\s+of\s+use`),
	regexp.MustCompile(`(?i)^cookie`),
	regexp.MustCompile(`(?i)^(Â)?©\s*\d`),
	regexp.MustCompile(`(?i)^all\s+rights\s+reserved`),
	regexp.MustCompile(`(?i)^people\s+also\s+(search|view)`),
	regexp.MustCompile(`(?i)^see\s+more`),
	regexp.MustCompile(`(?i)^view\s+all`),
	regexp.MustCompile(`(?i)^page\s+\d+`),
	regexp.MustCompile(`(?i)^https?://`),
	regexp.MustCompile(`(?i)^www\.`),
	regexp.MustCompile(`(?i)^\d+\s*results?`),
	regexp.MustCompile(`(?i)^loading`),
	regexp.MustCompile(`(?i)^search\s+for`),
	regexp.MustCompile(`(?i)^near\s+me`),
	regexp.MustCompile(`(?i)^map\s+view`),
	regexp.MustCompile(`(?i)^list\s+view`),
}

// addressLike requires a street number or a common street suffix.
var addressLike = regexp.MustCompile(`(?i)\d|st\.|street|ave|avenue|blvd|road|rd\.|drive|dr\.|lane|ln\.|way|place|pl\.`)

var (
	threeDigits = regexp.MustCompile(`\d{3}`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// RowInput is a candidate row assembled by the pipeline before validation.
// Lat and Lon are nil when no real coordinates are known.
type RowInput struct {
	Name              string
	Address           string
	City              string
	State             string
	Phone             string
	Lat               *float64
	Lon               *float64
	MimosaPrice       *int
	ConfirmationScore int
	SourceURLs        []string
	ScrapedSnippet    *string
	DedupeKey         string
}

// Validate returns a sanitized row, or false if the row must be discarded.
// Name, address, city and state failures reject the whole row; phone,
// coordinates, price, score, source list and snippet are corrected instead.
func Validate(row RowInput, fallbackLat, fallbackLon float64) (*model.ValidatedRow, bool) {
	name := Sanitize(row.Name)
	if n := utf8.RuneCountInString(name); n < MinName || n > MaxName || IsGarbage(name) {
		return nil, false
	}

	address := Sanitize(row.Address)
	if n := utf8.RuneCountInString(address); n < MinAddress || n > MaxAddress || IsGarbage(address) {
		return nil, false
	}
	if address != model.AddressNotListed && !addressLike.MatchString(address) {
		return nil, false
	}

	city := truncate(Sanitize(row.City), MaxCity)
	state := truncate(strings.ToUpper(strings.TrimSpace(row.State)), 2)
	if city == "" || state == "" {
		return nil, false
	}

	lat, lon := fallbackLat, fallbackLon
	if row.Lat != nil && row.Lon != nil && *row.Lat != 0 && *row.Lon != 0 {
		lat, lon = *row.Lat, *row.Lon
	}

	var price *int
	if row.MimosaPrice != nil && *row.MimosaPrice >= MinPrice && *row.MimosaPrice <= MaxPrice {
		p := *row.MimosaPrice
		price = &p
	}

	urls := row.SourceURLs
	if len(urls) > MaxSourceURLs {
		urls = urls[:MaxSourceURLs]
	}

	var snippet *string
	if row.ScrapedSnippet != nil {
		if s := truncate(Sanitize(*row.ScrapedSnippet), MaxSnippet); s != "" {
			snippet = &s
		}
	}

	return &model.ValidatedRow{
		Name:              name,
		Address:           address,
		City:              city,
		State:             state,
		Phone:             SanitizePhone(row.Phone),
		Lat:               lat,
		Lon:               lon,
		MimosaPrice:       price,
		ConfirmationScore: max(MinScore, min(MaxScore, row.ConfirmationScore)),
		SourceURLs:        append([]string(nil), urls...),
		ScrapedSnippet:    snippet,
		DedupeKey:         row.DedupeKey,
	}, true
}

// Sanitize NFC-normalizes s, collapses whitespace runs to one space and trims.
func Sanitize(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(norm.NFC.String(s), " "))
}

// IsGarbage reports whether s looks like page chrome rather than venue data.
func IsGarbage(s string) bool {
	t := strings.TrimSpace(s)
	if utf8.RuneCountInString(t) < MinName {
		return true
	}
	for _, p := range garbagePatterns {
		if p.MatchString(t) {
			return true
		}
	}
	return false
}

// SanitizePhone returns the trimmed phone, or model.PhoneNotListed when it has
// no run of three digits or is a known filler.
func SanitizePhone(phone string) string {
	p := strings.TrimSpace(phone)
	if p == "" || p == PhoneFiller || !threeDigits.MatchString(p) {
		return model.PhoneNotListed
	}
	return truncate(p, MaxPhone)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
