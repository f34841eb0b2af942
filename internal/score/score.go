// Package score computes the 0-5 confirmation score for a venue candidate
// from textual evidence and structured signals.
package score

import (
	"regexp"
	"strings"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
)

// Evidence weights. MaxScore caps the total.
const (
	WeightMimosaText  = 2
	WeightPrice       = 2
	WeightBrunchHours = 1
	WeightMimosaImage = 1
	MaxScore          = 5
)

const maxSnippet = 50

// MimosaPhrases are matched case-insensitively as substrings.
var MimosaPhrases = []string{
	"bottomless mimosa",
	"unlimited mimosas",
	"endless mimosas",
	"bottomless bubbles",
	"bottomless brunch",
}

var (
	pricePattern       = regexp.MustCompile(`(?i)\$?\d{1,2}(\.\d{2})?|\d{1,2}\s*dollars?`)
	brunchHoursPattern = regexp.MustCompile(`(?i)brunch|(\d{1,2}\s*[-–]\s*\d{1,2})|(sat|sun|weekend)`)
	mimosaImagePattern = regexp.MustCompile(`(?i)mimosa.*(photo|image|picture|img)|(photo|image).*mimosa`)
	snippetPattern     = buildSnippetPattern()
)

func buildSnippetPattern() *regexp.Regexp {
	quoted := make([]string, len(MimosaPhrases))
	for i, p := range MimosaPhrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `).{0,30}`)
}

// Score rates candidate against text. It is pure: the same inputs always give
// the same result. A zero score means the candidate carries no evidence.
func Score(text string, candidate model.NormalizedCandidate) model.ScoredCandidate {
	lower := strings.ToLower(text)

	out := model.ScoredCandidate{NormalizedCandidate: candidate}
	total := 0

	for _, p := range MimosaPhrases {
		if strings.Contains(lower, p) {
			out.HasMimosaText = true
			break
		}
	}
	if out.HasMimosaText {
		total += WeightMimosaText
	}

	out.HasPrice = candidate.Price != nil || pricePattern.MatchString(text)
	if out.HasPrice {
		total += WeightPrice
	}

	out.HasBrunchHours = (candidate.Hours != nil && *candidate.Hours != "") || brunchHoursPattern.MatchString(text)
	if out.HasBrunchHours {
		total += WeightBrunchHours
	}

	out.HasMimosaImage = mimosaImagePattern.MatchString(text)
	if out.HasMimosaImage {
		total += WeightMimosaImage
	}

	out.Score = min(MaxScore, total)
	out.EvidenceSnippet = Snippet(text)
	return out
}

// Snippet returns the first mimosa phrase in text plus up to 30 trailing
// characters, truncated to 50. It returns nil when no phrase matches.
func Snippet(text string) *string {
	m := snippetPattern.FindString(text)
	if m == "" {
		return nil
	}
	r := []rune(m)
	if len(r) > maxSnippet {
		m = string(r[:maxSnippet])
	}
	return &m
}
