// Package store persists the venue catalog, raw extractor captures and scrape
// run audit records.
package store

import (
	"context"
	"time"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
)

// RunFilter specifies criteria for listing scrape runs.
type RunFilter struct {
	City   string                `json:"city,omitempty"`
	Status model.ScrapeRunStatus `json:"status,omitempty"`
	Limit  int                   `json:"limit,omitempty"`
}

// Catalog is the venue catalog. UpsertVenue is the only write path and must
// be atomic per dedupe key: insert when absent, otherwise update score,
// snippet, publication and timestamps and append any source URL not already
// recorded. human_reviewed is never written on update.
type Catalog interface {
	FindVenueByKey(ctx context.Context, key string) (*model.VenueRecord, error)
	UpsertVenue(ctx context.Context, row model.ValidatedRow, isPublished bool, now time.Time) (inserted bool, err error)
	ListVenues(ctx context.Context, filter model.VenueFilter) ([]model.VenueRecord, error)
}

// CaptureStore is the append-only raw capture log used for replay.
type CaptureStore interface {
	AppendCapture(ctx context.Context, c model.RawCapture) error
	// ListCaptures returns every capture, most recent first.
	ListCaptures(ctx context.Context) ([]model.RawCapture, error)
}

// RunLog records one audit entry per (source, city) batch.
type RunLog interface {
	RecordRun(ctx context.Context, run model.ScrapeRun) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.ScrapeRun, error)
}

// Store is the full persistence interface.
type Store interface {
	Catalog
	CaptureStore
	RunLog

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
