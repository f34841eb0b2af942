package extract

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/MASanner/findbottomlessmimosas-com/internal/resilience"
)

// Resilient wraps an Extractor with a request rate limit, a circuit breaker
// and retries on transient failures.
type Resilient struct {
	inner   Extractor
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
	limiter *rate.Limiter
}

// NewResilient wraps inner. A nil limiter means unlimited.
func NewResilient(inner Extractor, retry resilience.RetryConfig, breaker resilience.BreakerConfig, limiter *rate.Limiter) *Resilient {
	return &Resilient{
		inner:   inner,
		retry:   retry,
		breaker: resilience.NewBreaker(inner.Name(), breaker),
		limiter: limiter,
	}
}

func (r *Resilient) Name() string { return r.inner.Name() }

// Breaker exposes the breaker for status reporting.
func (r *Resilient) Breaker() *resilience.Breaker { return r.breaker }

func (r *Resilient) Extract(ctx context.Context, url string) (*Extraction, error) {
	cfg := r.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.LogRetries(r.inner.Name(), url)
	}
	return resilience.Retry(ctx, cfg, func(ctx context.Context) (*Extraction, error) {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return resilience.Call(ctx, r.breaker, func(ctx context.Context) (*Extraction, error) {
			return r.inner.Extract(ctx, url)
		})
	})
}
