// Package metrics exposes Prometheus counters for ingestion runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
)

// Metrics holds the run counters. A nil *Metrics is valid and records nothing.
//
// Metrics:
//   - mimosa_runs_total{mode} - runs started (scrape or replay)
//   - mimosa_urls_total{mode,outcome} - URLs finished (ok, empty, failed, canceled)
//   - mimosa_stage_items_total{stage} - items passing each stage
//   - mimosa_merges_total{outcome} - catalog merges (inserted, updated)
//   - mimosa_published_total{state} - merged items by publication (published, pending)
//   - mimosa_run_duration_seconds{mode} - run wall time
type Metrics struct {
	Runs        *prometheus.CounterVec
	URLs        *prometheus.CounterVec
	StageItems  *prometheus.CounterVec
	Merges      *prometheus.CounterVec
	Publication *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
}

// New registers the run metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mimosa_runs_total",
			Help: "Ingestion runs started.",
		}, []string{"mode"}),
		URLs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mimosa_urls_total",
			Help: "Source URLs finished, by outcome.",
		}, []string{"mode", "outcome"}),
		StageItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mimosa_stage_items_total",
			Help: "Extracted items passing each pipeline stage.",
		}, []string{"stage"}),
		Merges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mimosa_merges_total",
			Help: "Catalog merges, by outcome.",
		}, []string{"outcome"}),
		Publication: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mimosa_published_total",
			Help: "Merged venues, by publication state.",
		}, []string{"state"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mimosa_run_duration_seconds",
			Help:    "Wall time of ingestion runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
	}
}

// RunStarted counts a run in mode.
func (m *Metrics) RunStarted(mode string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(mode).Inc()
}

// RunFinished observes a run's duration.
func (m *Metrics) RunFinished(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// URLDone counts one finished URL.
func (m *Metrics) URLDone(mode, outcome string) {
	if m == nil {
		return
	}
	m.URLs.WithLabelValues(mode, outcome).Inc()
}

// Processed adds the counters of one processed URL.
func (m *Metrics) Processed(r model.ProcessResult) {
	if m == nil {
		return
	}
	m.StageItems.WithLabelValues("normalized").Add(float64(r.Normalized))
	m.StageItems.WithLabelValues("scored").Add(float64(r.Scored))
	m.StageItems.WithLabelValues("validated").Add(float64(r.Validated))
	m.Merges.WithLabelValues("inserted").Add(float64(r.Inserted))
	m.Merges.WithLabelValues("updated").Add(float64(r.Updated))
	m.Publication.WithLabelValues("published").Add(float64(r.Published))
	m.Publication.WithLabelValues("pending").Add(float64(r.Pending))
}
