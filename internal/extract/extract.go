// Package extract turns a source URL into loosely typed venue items.
package extract

import (
	"context"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
)

// Extractor fetches one URL and returns whatever venue content it finds.
// A nil error with an empty Extraction means the page had nothing usable.
type Extractor interface {
	Extract(ctx context.Context, url string) (*Extraction, error)
	Name() string
}

// Extraction is an extractor result: structured items, free text, or both.
type Extraction struct {
	Venues   []model.ExtractedVenue `json:"restaurants,omitempty"`
	Markdown string                 `json:"markdown,omitempty"`
	Source   string                 `json:"-"`
}

// Items returns the structured venues, falling back to parsing the markdown
// when the backend returned text only.
func (e *Extraction) Items() []model.ExtractedVenue {
	if e == nil {
		return nil
	}
	if len(e.Venues) > 0 {
		return e.Venues
	}
	if e.Markdown == "" {
		return nil
	}
	return ParseMarkdown(e.Markdown)
}

// Payload is the raw form persisted for replay.
func (e *Extraction) Payload() model.CapturePayload {
	if e == nil {
		return model.CapturePayload{}
	}
	return model.CapturePayload{Venues: e.Items(), Markdown: e.Markdown}
}
