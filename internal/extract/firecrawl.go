package extract

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/MASanner/findbottomlessmimosas-com/internal/resilience"
	"github.com/MASanner/findbottomlessmimosas-com/pkg/firecrawl"
)

// venuePrompt steers Firecrawl's JSON extraction toward brunch venues.
const venuePrompt = `Extract every restaurant or bar listed on this page that serves brunch. ` +
	`For each, return its name, street address, phone, any mimosa price or deal text ` +
	`(for example "$25 bottomless mimosas"), a short quote mentioning mimosas, and brunch hours. ` +
	`Leave a field empty when the page does not state it.`

var venueSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "restaurants": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "address": {"type": "string"},
          "phone": {"type": "string"},
          "price_or_deal": {"type": "string"},
          "evidence_snippet": {"type": "string"},
          "hours": {"type": "string"}
        },
        "required": ["name"]
      }
    }
  },
  "required": ["restaurants"]
}`)

// FirecrawlExtractor asks Firecrawl for structured venues plus the page
// markdown in one scrape call.
type FirecrawlExtractor struct {
	client firecrawl.Client
}

// NewFirecrawl creates a FirecrawlExtractor.
func NewFirecrawl(client firecrawl.Client) *FirecrawlExtractor {
	return &FirecrawlExtractor{client: client}
}

func (f *FirecrawlExtractor) Name() string { return "firecrawl" }

// Extract scrapes url. Retryable HTTP statuses come back as
// resilience.TransientError.
func (f *FirecrawlExtractor) Extract(ctx context.Context, url string) (*Extraction, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:             url,
		Formats:         []string{firecrawl.FormatJSON, firecrawl.FormatMarkdown},
		OnlyMainContent: true,
		JSONOptions: &firecrawl.JSONOptions{
			Prompt: venuePrompt,
			Schema: venueSchema,
		},
	})
	if err != nil {
		var apiErr *firecrawl.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, err
	}
	if !resp.Success {
		return nil, eris.Errorf("firecrawl: scrape %s unsuccessful: %s", url, resp.Error)
	}

	out := &Extraction{Markdown: resp.Data.Markdown, Source: f.Name()}
	if len(resp.Data.JSON) > 0 && string(resp.Data.JSON) != "null" {
		var structured Extraction
		if err := json.Unmarshal(resp.Data.JSON, &structured); err != nil {
			return nil, eris.Wrapf(err, "firecrawl: decode extraction for %s", url)
		}
		out.Venues = structured.Venues
	}
	return out, nil
}
