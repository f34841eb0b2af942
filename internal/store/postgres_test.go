package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var venueColumns = []string{
	"id", "name", "address", "city", "state", "phone", "lat", "lon", "mimosa_price",
	"confirmation_score", "source_urls", "scraped_snippet", "dedupe_key", "is_published",
	"human_reviewed", "scraped_at", "created_at", "updated_at",
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS mimosa_spots`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindVenueByKey_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT id, name, address, .* FROM mimosa_spots WHERE dedupe_key = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.FindVenueByKey(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindVenueByKey_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	price := 25
	snippet := "bottomless mimosas"

	mock.ExpectQuery(`FROM mimosa_spots WHERE dedupe_key = \$1`).
		WithArgs("k1").
		WillReturnRows(pgxmock.NewRows(venueColumns).AddRow(
			"v1", "Joe's Brunch", "123 Main St", "Tampa", "FL", "Not listed", 27.95, -82.45, &price,
			4, []string{"https://a.example", "https://b.example"}, &snippet, "k1", true,
			false, now, now, now,
		))

	got, err := s.FindVenueByKey(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v1", got.ID)
	require.NotNil(t, got.MimosaPrice)
	assert.Equal(t, 25, *got.MimosaPrice)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, got.SourceURLs)
	assert.True(t, got.IsPublished)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindVenueByKey_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM mimosa_spots WHERE dedupe_key = \$1`).
		WithArgs("k1").
		WillReturnError(errors.New("connection reset"))

	_, err := s.FindVenueByKey(context.Background(), "k1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find venue")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertVenue(t *testing.T) {
	tests := []struct {
		name     string
		inserted bool
	}{
		{"insert", true},
		{"update", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockPostgresStore(t)
			now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			row := testRow("k1", "https://a.example", 4)

			mock.ExpectQuery(`(?s)INSERT INTO mimosa_spots .* ON CONFLICT \(dedupe_key\) DO UPDATE SET .* RETURNING \(xmax = 0\)`).
				WithArgs(pgxmock.AnyArg(), row.Name, row.Address, row.City, row.State, row.Phone,
					row.Lat, row.Lon, pgxmock.AnyArg(), 4, []string{"https://a.example"},
					pgxmock.AnyArg(), "k1", true, now).
				WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(tt.inserted))

			inserted, err := s.UpsertVenue(context.Background(), row, true, now)
			require.NoError(t, err)
			assert.Equal(t, tt.inserted, inserted)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_UpsertVenue_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	args := make([]any, 15)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mock.ExpectQuery(`INSERT INTO mimosa_spots`).
		WithArgs(args...).
		WillReturnError(errors.New("deadlock detected"))

	_, err := s.UpsertVenue(context.Background(), testRow("k1", "https://a.example", 4), true, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert venue k1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListVenues_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	published := true

	mock.ExpectQuery(`FROM mimosa_spots WHERE 1=1 AND city = \$1 AND is_published = \$2 ORDER BY confirmation_score DESC, name ASC LIMIT \$3`).
		WithArgs("Tampa", true, 100).
		WillReturnRows(pgxmock.NewRows(venueColumns).AddRow(
			"v1", "Joe's Brunch", "123 Main St", "Tampa", "FL", "Not listed", 27.95, -82.45, (*int)(nil),
			3, []string{"https://a.example"}, (*string)(nil), "k1", true,
			false, now, now, now,
		))

	got, err := s.ListVenues(context.Background(), model.VenueFilter{City: "Tampa", Published: &published})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].MimosaPrice)
	assert.Nil(t, got[0].ScrapedSnippet)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendCapture(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := model.CapturePayload{Venues: []model.ExtractedVenue{{Name: "Joe's Brunch"}}}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO scrape_raw`).
		WithArgs("c1", "https://a.example", "Tampa", "FL", raw, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.AppendCapture(context.Background(), model.RawCapture{
		ID: "c1", URL: "https://a.example", City: "Tampa", State: "FL", ScrapedAt: at, Payload: payload,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCaptures(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, url, city, state, payload, scraped_at FROM scrape_raw ORDER BY scraped_at DESC`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "city", "state", "payload", "scraped_at"}).
			AddRow("c2", "https://a.example", "Tampa", "FL", []byte(`{"restaurants":[{"name":"New"}]}`), at.Add(time.Hour)).
			AddRow("c1", "https://a.example", "Tampa", "FL", []byte(`{"restaurants":[{"name":"Old"}]}`), at))

	got, err := s.ListCaptures(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "New", got[0].Payload.Venues[0].Name)
	assert.Equal(t, "Old", got[1].Payload.Venues[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCaptures_BadPayload(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM scrape_raw`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "city", "state", "payload", "scraped_at"}).
			AddRow("c1", "https://a.example", "Tampa", "FL", []byte(`{not json`), time.Now()))

	_, err := s.ListCaptures(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal capture c1")
}

func TestPostgresStore_RecordRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO scrape_jobs`).
		WithArgs(pgxmock.AnyArg(), "FL", "Tampa", "firecrawl", "completed", at, at.Add(time.Minute), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordRun(context.Background(), model.ScrapeRun{
		State: "FL", City: "Tampa", Source: "firecrawl", Status: model.ScrapeRunCompleted,
		StartedAt: at, CompletedAt: at.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := "all urls failed"

	mock.ExpectQuery(`FROM scrape_jobs WHERE 1=1 AND status = \$1 ORDER BY started_at DESC LIMIT \$2`).
		WithArgs("failed", 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "state", "city", "source", "status", "started_at", "completed_at", "error"}).
			AddRow("r1", "FL", "Miami", "firecrawl", "failed", at, at.Add(time.Minute), &msg))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.ScrapeRunFailed, Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.ScrapeRunFailed, runs[0].Status)
	assert.Equal(t, "all urls failed", runs[0].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}
