package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MASanner/findbottomlessmimosas-com/internal/auth"
	"github.com/MASanner/findbottomlessmimosas-com/internal/extract"
	"github.com/MASanner/findbottomlessmimosas-com/internal/merge"
	"github.com/MASanner/findbottomlessmimosas-com/internal/metrics"
	"github.com/MASanner/findbottomlessmimosas-com/internal/normalize"
	"github.com/MASanner/findbottomlessmimosas-com/internal/pipeline"
	"github.com/MASanner/findbottomlessmimosas-com/internal/store"
	"github.com/MASanner/findbottomlessmimosas-com/internal/targets"
	anthropicpkg "github.com/MASanner/findbottomlessmimosas-com/pkg/anthropic"
	"github.com/MASanner/findbottomlessmimosas-com/pkg/firecrawl"
)

// runEnv holds the store and orchestrator needed by scrape, replay and
// serve.
type runEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
}

// Close releases resources held by the run environment.
func (e *runEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initRunEnv validates config for mode, opens the store and builds the
// orchestrator. Replay runs get no extractor. Callers should defer
// env.Close().
func initRunEnv(ctx context.Context, mode string, authz *auth.Authorizer, cities []targets.City, m *metrics.Metrics) (*runEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	var ext extract.Extractor
	if mode != "replay" {
		var err error
		ext, err = buildExtractor(newFirecrawlClient())
		if err != nil {
			return nil, err
		}
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	processor := pipeline.NewProcessor(
		normalize.New(normalize.ParseAddressMode(cfg.Pipeline.AddressMode)),
		merge.New(st),
	)
	orch := pipeline.NewOrchestrator(authz, ext, st, processor, cities, pipeline.Options{
		MaxConcurrency: cfg.Pipeline.MaxConcurrency,
		RunTimeout:     cfg.Pipeline.RunTimeout,
	}, m)

	return &runEnv{Store: st, Orchestrator: orch}, nil
}

func newFirecrawlClient() firecrawl.Client {
	return firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
}

// buildExtractor chains the configured backends in order. Each backend gets
// its own retry policy and breaker; the rate limit is shared.
func buildExtractor(fc firecrawl.Client) (extract.Extractor, error) {
	var limiter *rate.Limiter
	if cfg.Resilience.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Resilience.RateLimit), max(1, cfg.Resilience.RateBurst))
	}

	var llm anthropicpkg.Client
	if cfg.Extract.LLM && cfg.Anthropic.Key != "" {
		llm = anthropicpkg.NewClient(cfg.Anthropic.Key)
	}

	var chain []extract.Extractor
	for _, backend := range cfg.Extract.Backends {
		var e extract.Extractor
		switch backend {
		case "firecrawl":
			e = extract.NewFirecrawl(fc)
		case "html":
			e = extract.NewHTML()
		default:
			return nil, eris.Errorf("unknown extract backend: %s", backend)
		}
		if llm != nil {
			e = extract.NewLLM(e, llm,
				extract.WithModel(cfg.Anthropic.Model),
				extract.WithMaxTokens(cfg.Anthropic.MaxTokens),
			)
		}
		chain = append(chain, extract.NewResilient(e, cfg.Resilience.Retry, cfg.Resilience.Breaker, limiter))
	}
	if len(chain) == 0 {
		return nil, eris.New("no extract backends configured")
	}

	zap.L().Debug("extractor ready", zap.Strings("backends", cfg.Extract.Backends), zap.Bool("llm", llm != nil))
	return extract.NewChain(chain...), nil
}

// loadCities returns the configured target cities, or the built-in
// defaults, narrowed to names when given.
// scrapeTargets resolves the cities for a live scrape. Config is validated
// first so a misconfigured run never reaches Firecrawl search.
func scrapeTargets(ctx context.Context, file string, names []string, discover bool, newClient func() firecrawl.Client) ([]targets.City, error) {
	if err := cfg.Validate("scrape"); err != nil {
		return nil, err
	}
	if discover && cfg.Firecrawl.Key == "" {
		return nil, eris.New("config: firecrawl.key is required for --discover")
	}

	cities, err := loadCities(file, names)
	if err != nil {
		return nil, err
	}
	if discover {
		cities = targets.Discover(ctx, newClient(), cities, cfg.Firecrawl.SearchLimit)
	}
	return cities, nil
}

func loadCities(file string, names []string) ([]targets.City, error) {
	if file == "" {
		file = cfg.Pipeline.TargetsFile
	}
	cities := targets.Defaults
	if file != "" {
		var err error
		cities, err = targets.Load(file)
		if err != nil {
			return nil, err
		}
	}
	cities = targets.Filter(cities, names)
	if len(cities) == 0 {
		return nil, eris.New("no target cities selected")
	}
	return cities, nil
}
