package extract

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/MASanner/findbottomlessmimosas-com/pkg/anthropic"
)

const (
	defaultLLMModel     = "claude-haiku-4-5-20251001"
	defaultLLMMaxTokens = 4096
	maxLLMInput         = 60000
)

const llmSystemPrompt = `You read scraped restaurant listing pages and return JSON only. ` +
	`Reply with one object {"restaurants":[...]} where each item has the string fields ` +
	`name, address, phone, price_or_deal, evidence_snippet and hours. ` +
	`Include only real venues named on the page. Copy evidence_snippet verbatim from the page ` +
	`when it mentions mimosas. Use an empty string for anything the page does not state.`

// LLMExtractor turns the free text another extractor returned into
// structured venues with an Anthropic model. Results that already carry
// structured venues pass through untouched.
type LLMExtractor struct {
	source    Extractor
	client    anthropic.Client
	model     string
	maxTokens int64
}

// LLMOption configures an LLMExtractor.
type LLMOption func(*LLMExtractor)

// WithModel overrides the model used for extraction.
func WithModel(model string) LLMOption {
	return func(l *LLMExtractor) {
		if model != "" {
			l.model = model
		}
	}
}

// WithMaxTokens caps the model's reply length.
func WithMaxTokens(n int64) LLMOption {
	return func(l *LLMExtractor) {
		if n > 0 {
			l.maxTokens = n
		}
	}
}

// NewLLM creates an LLMExtractor reading text from source.
func NewLLM(source Extractor, client anthropic.Client, opts ...LLMOption) *LLMExtractor {
	l := &LLMExtractor{
		source:    source,
		client:    client,
		model:     defaultLLMModel,
		maxTokens: defaultLLMMaxTokens,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LLMExtractor) Name() string { return "llm+" + l.source.Name() }

// Extract falls back to the source's markdown when the model call fails, so
// ParseMarkdown still gets a chance at the page.
func (l *LLMExtractor) Extract(ctx context.Context, url string) (*Extraction, error) {
	ext, err := l.source.Extract(ctx, url)
	if err != nil {
		return nil, err
	}
	if ext == nil || len(ext.Venues) > 0 || strings.TrimSpace(ext.Markdown) == "" {
		return ext, nil
	}

	venues, err := l.structure(ctx, ext.Markdown)
	if err != nil {
		zap.L().Warn("extract: llm structuring failed, using text adapter",
			zap.String("url", url),
			zap.Error(err),
		)
		return ext, nil
	}
	ext.Venues = venues.Venues
	ext.Source = l.Name()
	return ext, nil
}

func (l *LLMExtractor) structure(ctx context.Context, markdown string) (*Extraction, error) {
	markdown = clipUTF8(markdown, maxLLMInput)
	temp := 0.0
	resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       l.model,
		MaxTokens:   l.maxTokens,
		System:      llmSystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: markdown}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	return parseLLMJSON(resp.Text())
}

// clipUTF8 cuts s to at most n bytes without splitting a rune.
func clipUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// parseLLMJSON decodes the outermost JSON object in text, tolerating code
// fences or prose around it.
func parseLLMJSON(text string) (*Extraction, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.New("extract: no JSON object in model reply")
	}
	var out Extraction
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, eris.Wrap(err, "extract: decode model reply")
	}
	return &out, nil
}
