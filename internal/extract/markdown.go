package extract

import (
	"regexp"
	"strings"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
)

var (
	mdHeading  = regexp.MustCompile(`^#{1,4}\s+(.+)$`)
	mdBold     = regexp.MustCompile(`^\*\*([^*]+)\*\*\s*$`)
	mdNumbered = regexp.MustCompile(`^\d{1,3}\.\s+\[?([^\]\(]+?)\]?(?:\([^)]*\))?\s*$`)
	mdLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdPhone    = regexp.MustCompile(`\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]\d{4}`)
	mdAddress  = regexp.MustCompile(`(?i)^\d+\s+[\w .'\-]+\b(st|street|ave|avenue|blvd|boulevard|rd|road|dr|drive|ln|lane|way|pl|place|hwy|highway|pkwy|parkway|ct|court)\b\.?`)
	mdPrice    = regexp.MustCompile(`\$\s?\d{1,2}(?:\.\d{2})?\b`)
	mdHours    = regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s?(am|pm)\s?[-–]\s?\d{1,2}(:\d{2})?\s?(am|pm)\b`)
	mdMimosa   = regexp.MustCompile(`(?i)mimosa|bottomless|unlimited|endless`)
)

var (
	mdDeal    = regexp.MustCompile(`(?i)bottomless|unlimited|endless`)
	mdOrdinal = regexp.MustCompile(`^\d{1,3}\.\s+`)
)

// skipHeadings are page furniture that look like venue headings.
var skipHeadings = []string{
	"sort by", "filter", "filters", "results", "search", "sponsored", "map",
	"menu", "reviews", "sign in", "log in", "best", "top",
}

// ParseMarkdown splits free page text into venue items. Headings, bold lines
// and numbered list entries start a venue; following lines contribute the
// first address, phone, price, hours and mimosa mention found before the
// next venue starts. Lossy by nature: anything it cannot place is dropped.
func ParseMarkdown(md string) []model.ExtractedVenue {
	var (
		out []model.ExtractedVenue
		cur *model.ExtractedVenue
	)
	flush := func() {
		if cur != nil && cur.Name != "" {
			out = append(out, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if name, ok := venueHeading(line); ok {
			flush()
			cur = &model.ExtractedVenue{Name: name}
			continue
		}
		if cur == nil {
			continue
		}

		text := strings.TrimSpace(strings.Trim(mdLink.ReplaceAllString(line, "$1"), "-*•_ "))
		if cur.Address == "" {
			if m := mdAddress.FindString(text); m != "" {
				cur.Address = addressLine(text)
			}
		}
		if cur.Phone == "" {
			if m := mdPhone.FindString(text); m != "" {
				cur.Phone = m
			}
		}
		if cur.PriceOrDeal == "" {
			if m := mdPrice.FindString(text); m != "" {
				cur.PriceOrDeal = m
			}
		}
		if cur.Hours == "" {
			if m := mdHours.FindString(text); m != "" {
				cur.Hours = m
			}
		}
		if cur.EvidenceSnippet == "" && mdMimosa.MatchString(text) {
			cur.EvidenceSnippet = text
		}
	}
	flush()
	return out
}

func venueHeading(line string) (string, bool) {
	var name string
	switch {
	case mdHeading.MatchString(line):
		name = mdHeading.FindStringSubmatch(line)[1]
	case mdBold.MatchString(line):
		name = mdBold.FindStringSubmatch(line)[1]
		if looksLikeDetail(name) {
			return "", false
		}
	case mdNumbered.MatchString(line):
		name = mdNumbered.FindStringSubmatch(line)[1]
		if looksLikeDetail(name) {
			return "", false
		}
	default:
		return "", false
	}

	name = strings.TrimSpace(mdLink.ReplaceAllString(name, "$1"))
	name = mdOrdinal.ReplaceAllString(strings.Trim(name, "*_ "), "")
	if name == "" || len(name) > 120 {
		return "", false
	}
	lower := strings.ToLower(name)
	for _, w := range skipHeadings {
		if lower == w || strings.HasPrefix(lower, w+" ") || strings.HasPrefix(lower, w+":") {
			return "", false
		}
	}
	return name, true
}

// addressLine keeps the address portion of a line that may also carry a
// phone number after a separator.
func addressLine(text string) string {
	for _, sep := range []string{" · ", " | ", " • "} {
		if i := strings.Index(text, sep); i > 0 {
			text = text[:i]
		}
	}
	if loc := mdPhone.FindStringIndex(text); loc != nil && loc[0] > 0 {
		text = text[:loc[0]]
	}
	return strings.TrimRight(strings.TrimSpace(text), ",;")
}

// looksLikeDetail reports whether an emphasised line is a deal or address
// rather than a venue name.
func looksLikeDetail(s string) bool {
	return mdPrice.MatchString(s) || mdDeal.MatchString(s) || mdAddress.MatchString(s)
}
