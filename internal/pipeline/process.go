package pipeline

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/MASanner/findbottomlessmimosas-com/internal/dedupe"
	"github.com/MASanner/findbottomlessmimosas-com/internal/merge"
	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
	"github.com/MASanner/findbottomlessmimosas-com/internal/normalize"
	"github.com/MASanner/findbottomlessmimosas-com/internal/score"
	"github.com/MASanner/findbottomlessmimosas-com/internal/validate"
)

// dealPrice pulls a leading one or two digit amount out of a deal string
// such as "$25 bottomless".
var dealPrice = regexp.MustCompile(`\$?\s*(\d{1,2})`)

// ToRaw maps an extracted item to a RawCandidate. A deal string carrying an
// amount becomes a numeric price; anything else is kept as text.
func ToRaw(v model.ExtractedVenue, sourceURL string) model.RawCandidate {
	raw := model.RawCandidate{
		Name:            v.Name,
		Address:         v.Address,
		Phone:           v.Phone,
		EvidenceSnippet: v.EvidenceSnippet,
		SourceURL:       sourceURL,
		DetectedCity:    v.DetectedCity,
		DetectedState:   v.DetectedState,
	}
	if deal := strings.TrimSpace(v.PriceOrDeal); deal != "" {
		if m := dealPrice.FindStringSubmatch(deal); m != nil {
			n, _ := strconv.Atoi(m[1])
			raw.Price = model.PriceNumber(float64(n))
		} else {
			raw.Price = model.PriceText(deal)
		}
	}
	if h := strings.TrimSpace(v.Hours); h != "" {
		raw.Hours = model.HoursText(h)
	}
	return raw
}

// ScoringText is the evidence text an item is scored against: its snippet
// and deal joined, or its name when both are empty.
func ScoringText(v model.ExtractedVenue) string {
	var parts []string
	for _, s := range []string{v.EvidenceSnippet, v.PriceOrDeal} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return v.Name
	}
	return strings.Join(parts, " ")
}

// Processor runs extracted items through normalize, score, validate and
// merge.
type Processor struct {
	normalizer *normalize.Normalizer
	merger     *merge.Merger
}

// NewProcessor creates a Processor.
func NewProcessor(normalizer *normalize.Normalizer, merger *merge.Merger) *Processor {
	return &Processor{normalizer: normalizer, merger: merger}
}

// Process handles every item extracted from url. City and state are the
// target's and act as fallbacks for items that do not name their own.
func (p *Processor) Process(ctx context.Context, items []model.ExtractedVenue, url, city, state string) model.ProcessResult {
	var res model.ProcessResult
	for _, item := range items {
		res.Add(p.Item(ctx, ToRaw(item, url), ScoringText(item), city, state))
	}
	return res
}

// Item processes a single candidate. Rejections and storage failures yield
// no merge counters; the stage counters record how far the item got.
func (p *Processor) Item(ctx context.Context, raw model.RawCandidate, text, city, state string) model.ProcessResult {
	var res model.ProcessResult

	norm, ok := p.normalizer.Normalize(raw, city, state)
	if !ok {
		return res
	}
	res.Normalized++

	scored := score.Score(text, *norm)
	if scored.Score == 0 {
		return res
	}
	res.Scored++

	center := validate.CityCenter(city)
	row, ok := validate.Validate(validate.RowInput{
		Name:              scored.Name,
		Address:           scored.Address,
		City:              scored.City,
		State:             scored.State,
		Phone:             scored.Phone,
		Lat:               &center.Lat,
		Lon:               &center.Lon,
		MimosaPrice:       norm.Price,
		ConfirmationScore: scored.Score,
		SourceURLs:        []string{scored.SourceURL},
		ScrapedSnippet:    scored.EvidenceSnippet,
		DedupeKey:         dedupe.Key(norm.Name, norm.Address, norm.City, norm.State),
	}, center.Lat, center.Lon)
	if !ok {
		return res
	}
	res.Validated++

	published := merge.IsPublished(row.ConfirmationScore)
	outcome, err := p.merger.Merge(ctx, *row, published)
	if err != nil {
		zap.L().Warn("pipeline: merge failed",
			zap.String("venue", row.Name),
			zap.String("url", raw.SourceURL),
			zap.Error(err),
		)
		return res
	}

	if outcome == merge.Inserted {
		res.Inserted++
	} else {
		res.Updated++
	}
	if published {
		res.Published++
	} else {
		res.Pending++
	}
	return res
}
