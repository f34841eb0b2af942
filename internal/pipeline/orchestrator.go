// Package pipeline runs ingestion batches: extraction or replay feeding the
// normalize, score, validate and merge stages.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MASanner/findbottomlessmimosas-com/internal/auth"
	"github.com/MASanner/findbottomlessmimosas-com/internal/extract"
	"github.com/MASanner/findbottomlessmimosas-com/internal/metrics"
	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
	"github.com/MASanner/findbottomlessmimosas-com/internal/store"
	"github.com/MASanner/findbottomlessmimosas-com/internal/targets"
)

// ErrNotConfigured is returned before any work when a run lacks a required
// collaborator such as the extractor.
var ErrNotConfigured = eris.New("pipeline: not configured")

// ReplaySource is the Source reported by replay runs.
const ReplaySource = "scrape_raw"

// canceledError is the debug error for URLs never started before the run
// was canceled.
const canceledError = "canceled"

const (
	modeScrape = "scrape"
	modeReplay = "replay"
)

// Options tunes a run.
type Options struct {
	// MaxConcurrency bounds the URLs processed at once. Zero means one.
	MaxConcurrency int
	// RunTimeout aborts URLs not yet started. Zero means no timeout.
	RunTimeout time.Duration
}

// Orchestrator drives live scrape runs and replays over a target set.
type Orchestrator struct {
	auth      *auth.Authorizer
	extractor extract.Extractor
	store     store.Store
	processor *Processor
	cities    []targets.City
	opts      Options
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewOrchestrator creates an Orchestrator. extractor may be nil for
// replay-only use; a live Run then fails with ErrNotConfigured.
func NewOrchestrator(
	authz *auth.Authorizer,
	extractor extract.Extractor,
	st store.Store,
	processor *Processor,
	cities []targets.City,
	opts Options,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		auth:      authz,
		extractor: extractor,
		store:     st,
		processor: processor,
		cities:    cities,
		opts:      opts,
		metrics:   m,
		now:       time.Now,
	}
}

// unit is one URL's work. run returns the URL's debug entry and counters;
// a non-nil error marks the URL failed.
type unit struct {
	url string
	run func(ctx context.Context) (model.URLDebug, model.ProcessResult, error)
}

type unitResult struct {
	debug    model.URLDebug
	result   model.ProcessResult
	err      error
	canceled bool
}

// Run authorizes cred, then extracts and processes every target URL. A
// failing URL never aborts the run. Debug is only returned when the run
// made no catalog changes.
func (o *Orchestrator) Run(ctx context.Context, cred string) (*model.RunStats, error) {
	if err := o.auth.Authorize(cred); err != nil {
		return nil, err
	}
	if o.extractor == nil || o.store == nil || o.processor == nil {
		return nil, eris.Wrap(ErrNotConfigured, "pipeline: run needs an extractor and a store")
	}

	start := o.now()
	o.metrics.RunStarted(modeScrape)
	defer func() { o.metrics.RunFinished(modeScrape, o.now().Sub(start)) }()

	source := o.extractor.Name()
	log := zap.L().With(zap.String("source", source))
	log.Info("pipeline: starting scrape run", zap.Int("cities", len(o.cities)))

	type span struct {
		city       targets.City
		start, end int
	}
	var units []unit
	var spans []span
	for _, c := range o.cities {
		if len(c.URLs) == 0 {
			continue
		}
		s := span{city: c, start: len(units)}
		for _, t := range c.Targets() {
			units = append(units, unit{url: t.URL, run: o.scrapeFunc(t)})
		}
		s.end = len(units)
		spans = append(spans, s)
	}

	results := o.execute(ctx, modeScrape, units)

	// Audit rows are written even when the run timed out.
	auditCtx := context.WithoutCancel(ctx)
	for _, s := range spans {
		o.recordCity(auditCtx, source, s.city, results[s.start:s.end], start)
	}

	stats := summarize(results)
	stats.Source = source
	if stats.Inserted > 0 || stats.Updated > 0 {
		stats.Debug = nil
	}
	log.Info("pipeline: scrape run complete",
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("published", stats.Published),
		zap.Int("pending", stats.Pending),
		zap.Duration("elapsed", o.now().Sub(start)),
	)
	return stats, nil
}

// Replay authorizes cred, then reprocesses stored captures without calling
// the extractor. Each URL is processed once, from its most recent capture.
// Replay always returns the per-URL breakdown.
func (o *Orchestrator) Replay(ctx context.Context, cred string) (*model.RunStats, error) {
	if err := o.auth.Authorize(cred); err != nil {
		return nil, err
	}
	if o.store == nil || o.processor == nil {
		return nil, eris.Wrap(ErrNotConfigured, "pipeline: replay needs a store")
	}

	start := o.now()
	o.metrics.RunStarted(modeReplay)
	defer func() { o.metrics.RunFinished(modeReplay, o.now().Sub(start)) }()

	captures, err := o.store.ListCaptures(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list captures")
	}

	seen := make(map[string]bool, len(captures))
	var units []unit
	for _, c := range captures {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		units = append(units, unit{url: c.URL, run: o.replayFunc(c)})
	}
	zap.L().Info("pipeline: starting replay",
		zap.Int("captures", len(captures)),
		zap.Int("urls", len(units)),
	)

	stats := summarize(o.execute(ctx, modeReplay, units))
	stats.Source = ReplaySource
	if stats.Debug == nil {
		stats.Debug = []model.URLDebug{}
	}
	zap.L().Info("pipeline: replay complete",
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Duration("elapsed", o.now().Sub(start)),
	)
	return stats, nil
}

// execute runs units with bounded concurrency under the run timeout.
// Results keep the order of units.
func (o *Orchestrator) execute(ctx context.Context, mode string, units []unit) []unitResult {
	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	results := make([]unitResult, len(units))
	var g errgroup.Group
	g.SetLimit(max(1, o.opts.MaxConcurrency))

	for i, u := range units {
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = unitResult{
					debug:    model.URLDebug{URL: u.url, Error: canceledError},
					canceled: true,
				}
				o.metrics.URLDone(mode, "canceled")
				return nil
			}

			debug, res, err := u.run(ctx)
			debug.URL = u.url
			results[i] = unitResult{debug: debug, result: res, err: err}

			switch {
			case err != nil:
				o.metrics.URLDone(mode, "failed")
			case debug.Extracted == 0:
				o.metrics.URLDone(mode, "empty")
			default:
				o.metrics.URLDone(mode, "ok")
			}
			o.metrics.Processed(res)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) scrapeFunc(t targets.Target) func(context.Context) (model.URLDebug, model.ProcessResult, error) {
	return func(ctx context.Context) (model.URLDebug, model.ProcessResult, error) {
		log := zap.L().With(zap.String("url", t.URL), zap.String("city", t.City))

		ext, err := o.extractor.Extract(ctx, t.URL)
		if err != nil {
			log.Warn("pipeline: extraction failed", zap.Error(err))
			return model.URLDebug{Error: err.Error()}, model.ProcessResult{}, err
		}

		payload := ext.Payload()
		if ext == nil || len(payload.Venues) == 0 {
			log.Warn("pipeline: no venues extracted")
			return model.URLDebug{}, model.ProcessResult{}, nil
		}

		capture := model.RawCapture{
			URL:       t.URL,
			City:      t.City,
			State:     t.State,
			ScrapedAt: o.now().UTC(),
			Payload:   payload,
		}
		if err := o.store.AppendCapture(ctx, capture); err != nil {
			log.Error("pipeline: persist capture failed", zap.Error(err))
		}

		res := o.processor.Process(ctx, payload.Venues, t.URL, t.City, t.State)
		log.Debug("pipeline: url processed",
			zap.Int("extracted", len(payload.Venues)),
			zap.Int("validated", res.Validated),
			zap.Int("inserted", res.Inserted),
			zap.Int("updated", res.Updated),
		)
		return debugFor(len(payload.Venues), res), res, nil
	}
}

func (o *Orchestrator) replayFunc(c model.RawCapture) func(context.Context) (model.URLDebug, model.ProcessResult, error) {
	return func(ctx context.Context) (model.URLDebug, model.ProcessResult, error) {
		var named []model.ExtractedVenue
		for _, v := range c.Payload.Venues {
			if strings.TrimSpace(v.Name) != "" {
				named = append(named, v)
			}
		}
		if len(named) == 0 {
			return model.URLDebug{}, model.ProcessResult{}, nil
		}
		res := o.processor.Process(ctx, named, c.URL, c.City, c.State)
		return debugFor(len(named), res), res, nil
	}
}

// recordCity writes the audit row for one city's batch.
func (o *Orchestrator) recordCity(ctx context.Context, source string, city targets.City, results []unitResult, started time.Time) {
	run := model.ScrapeRun{
		State:       city.State,
		City:        city.City,
		Source:      source,
		Status:      cityStatus(results),
		StartedAt:   started.UTC(),
		CompletedAt: o.now().UTC(),
	}
	for _, r := range results {
		if r.canceled {
			run.Error = canceledError
			break
		}
		if r.err != nil {
			run.Error = r.err.Error()
			break
		}
	}
	if err := o.store.RecordRun(ctx, run); err != nil {
		zap.L().Error("pipeline: record scrape run failed",
			zap.String("city", city.City),
			zap.Error(err),
		)
	}
}

// cityStatus is completed when no URL failed, failed when all did and
// partial otherwise. Canceled URLs count as failed.
func cityStatus(results []unitResult) model.ScrapeRunStatus {
	failed := 0
	for _, r := range results {
		if r.err != nil || r.canceled {
			failed++
		}
	}
	switch {
	case failed == 0:
		return model.ScrapeRunCompleted
	case failed == len(results):
		return model.ScrapeRunFailed
	default:
		return model.ScrapeRunPartial
	}
}

func summarize(results []unitResult) *model.RunStats {
	var total model.ProcessResult
	stats := &model.RunStats{OK: true}
	for _, r := range results {
		total.Add(r.result)
		stats.Debug = append(stats.Debug, r.debug)
	}
	stats.Inserted = total.Inserted
	stats.Updated = total.Updated
	stats.Published = total.Published
	stats.Pending = total.Pending
	return stats
}

func debugFor(extracted int, res model.ProcessResult) model.URLDebug {
	return model.URLDebug{
		Extracted:  extracted,
		Normalized: res.Normalized,
		Scored:     res.Scored,
		Validated:  res.Validated,
	}
}
