package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries extractors in order and returns the first result that yields
// venue items.
type Chain struct {
	extractors []Extractor
}

// NewChain creates a Chain. Order is priority order.
func NewChain(extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors}
}

func (c *Chain) Name() string {
	if len(c.extractors) == 1 {
		return c.extractors[0].Name()
	}
	return "chain"
}

// Extract returns the first extraction with items. If every extractor ran
// but none found items, the last empty extraction is returned without error.
func (c *Chain) Extract(ctx context.Context, url string) (*Extraction, error) {
	var (
		lastErr   error
		lastEmpty *Extraction
	)
	for _, e := range c.extractors {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		ext, err := e.Extract(ctx, url)
		if err != nil {
			zap.L().Debug("extract: extractor failed, trying next",
				zap.String("extractor", e.Name()),
				zap.String("url", url),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if len(ext.Items()) > 0 {
			return ext, nil
		}
		lastEmpty = ext
	}
	if lastEmpty != nil {
		return lastEmpty, nil
	}
	if lastErr != nil {
		return nil, eris.Wrapf(lastErr, "extract: all extractors failed for %s", url)
	}
	return nil, eris.Errorf("extract: no extractors configured for %s", url)
}
