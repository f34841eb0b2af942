// Package merge folds validated rows into the venue catalog.
package merge

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
	"github.com/MASanner/findbottomlessmimosas-com/internal/store"
)

// PublishThreshold is the minimum confirmation score at which a venue is
// published automatically.
const PublishThreshold = 3

// Outcome reports whether a merge created or updated a catalog record.
type Outcome int

const (
	Inserted Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// IsPublished applies the publication rule to a confirmation score.
func IsPublished(score int) bool {
	return score >= PublishThreshold
}

// Merger is the only writer of the catalog.
type Merger struct {
	catalog store.Catalog
	locks   *KeyedMutex
	now     func() time.Time
}

// New creates a Merger writing to catalog.
func New(catalog store.Catalog) *Merger {
	return &Merger{
		catalog: catalog,
		locks:   NewKeyedMutex(),
		now:     time.Now,
	}
}

// Merge upserts row under its dedupe key. Calls for the same key are
// serialised in-process on top of the store's atomic upsert.
func (m *Merger) Merge(ctx context.Context, row model.ValidatedRow, isPublished bool) (Outcome, error) {
	if row.DedupeKey == "" {
		return 0, eris.New("merge: empty dedupe key")
	}

	unlock := m.locks.Lock(row.DedupeKey)
	defer unlock()

	inserted, err := m.catalog.UpsertVenue(ctx, row, isPublished, m.now().UTC())
	if err != nil {
		return 0, eris.Wrapf(err, "merge: upsert %s", row.Name)
	}

	outcome := Updated
	if inserted {
		outcome = Inserted
	}
	zap.L().Debug("merge: venue merged",
		zap.String("dedupe_key", row.DedupeKey),
		zap.String("outcome", outcome.String()),
		zap.Int("score", row.ConfirmationScore),
		zap.Bool("published", isPublished),
	)
	return outcome, nil
}
