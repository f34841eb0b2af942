package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/MASanner/findbottomlessmimosas-com/internal/db"
	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS mimosa_spots (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name               TEXT NOT NULL,
	address            TEXT NOT NULL,
	city               TEXT NOT NULL,
	state              TEXT NOT NULL,
	phone              TEXT NOT NULL,
	lat                DOUBLE PRECISION NOT NULL,
	lon                DOUBLE PRECISION NOT NULL,
	mimosa_price       INTEGER,
	confirmation_score INTEGER NOT NULL DEFAULT 0,
	source_urls        TEXT[] NOT NULL DEFAULT '{}',
	scraped_snippet    TEXT,
	dedupe_key         TEXT NOT NULL UNIQUE,
	is_published       BOOLEAN NOT NULL DEFAULT false,
	human_reviewed     BOOLEAN NOT NULL DEFAULT false,
	scraped_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scrape_raw (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url        TEXT NOT NULL,
	city       TEXT NOT NULL,
	state      TEXT NOT NULL,
	payload    JSONB NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scrape_jobs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	state        TEXT NOT NULL,
	city         TEXT NOT NULL,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_mimosa_spots_city ON mimosa_spots(city, state);
CREATE INDEX IF NOT EXISTS idx_mimosa_spots_published ON mimosa_spots(is_published);
CREATE INDEX IF NOT EXISTS idx_scrape_raw_scraped_at ON scrape_raw(scraped_at DESC);
CREATE INDEX IF NOT EXISTS idx_scrape_jobs_started_at ON scrape_jobs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgVenueColumns = `id, name, address, city, state, phone, lat, lon, mimosa_price,
	confirmation_score, source_urls, scraped_snippet, dedupe_key, is_published, human_reviewed,
	scraped_at, created_at, updated_at`

func (s *PostgresStore) FindVenueByKey(ctx context.Context, key string) (*model.VenueRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgVenueColumns+` FROM mimosa_spots WHERE dedupe_key = $1`, key)
	v, err := scanPgVenue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find venue %s", key)
	}
	return v, nil
}

// pgUpsertVenue appends the incoming URLs the stored array does not already
// hold, in their incoming order. xmax is zero only for a freshly inserted row.
const pgUpsertVenue = `
INSERT INTO mimosa_spots (id, name, address, city, state, phone, lat, lon, mimosa_price,
	confirmation_score, source_urls, scraped_snippet, dedupe_key, is_published, human_reviewed,
	scraped_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, false, $15, $15, $15)
ON CONFLICT (dedupe_key) DO UPDATE SET
	confirmation_score = EXCLUDED.confirmation_score,
	scraped_snippet    = EXCLUDED.scraped_snippet,
	is_published       = EXCLUDED.is_published,
	scraped_at         = EXCLUDED.scraped_at,
	updated_at         = EXCLUDED.updated_at,
	source_urls        = mimosa_spots.source_urls || ARRAY(
		SELECT u FROM unnest(EXCLUDED.source_urls) WITH ORDINALITY AS t(u, i)
		WHERE NOT (u = ANY(mimosa_spots.source_urls))
		ORDER BY i
	)
RETURNING (xmax = 0) AS inserted`

func (s *PostgresStore) UpsertVenue(ctx context.Context, row model.ValidatedRow, isPublished bool, now time.Time) (bool, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx, pgUpsertVenue,
		uuid.New().String(), row.Name, row.Address, row.City, row.State, row.Phone,
		row.Lat, row.Lon, row.MimosaPrice, row.ConfirmationScore, nonNilURLs(row.SourceURLs),
		row.ScrapedSnippet, row.DedupeKey, isPublished, now.UTC(),
	).Scan(&inserted)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert venue %s", row.DedupeKey)
	}
	return inserted, nil
}

func (s *PostgresStore) ListVenues(ctx context.Context, filter model.VenueFilter) ([]model.VenueRecord, error) {
	query := `SELECT ` + pgVenueColumns + ` FROM mimosa_spots WHERE 1=1`
	var args []any
	argIdx := 1

	if filter.City != "" {
		query += fmt.Sprintf(" AND city = $%d", argIdx)
		args = append(args, filter.City)
		argIdx++
	}
	if filter.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, filter.State)
		argIdx++
	}
	if filter.Published != nil {
		query += fmt.Sprintf(" AND is_published = $%d", argIdx)
		args = append(args, *filter.Published)
		argIdx++
	}
	query += " ORDER BY confirmation_score DESC, name ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list venues")
	}
	defer rows.Close()

	var venues []model.VenueRecord
	for rows.Next() {
		v, err := scanPgVenue(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan venue")
		}
		venues = append(venues, *v)
	}
	return venues, eris.Wrap(rows.Err(), "postgres: list venues rows")
}

func (s *PostgresStore) AppendCapture(ctx context.Context, c model.RawCapture) error {
	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal capture payload")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO scrape_raw (id, url, city, state, payload, scraped_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.URL, c.City, c.State, payload, c.ScrapedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: append capture %s", c.URL)
}

func (s *PostgresStore) ListCaptures(ctx context.Context) ([]model.RawCapture, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, city, state, payload, scraped_at FROM scrape_raw ORDER BY scraped_at DESC, id DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list captures")
	}
	defer rows.Close()

	var captures []model.RawCapture
	for rows.Next() {
		var (
			c       model.RawCapture
			payload []byte
		)
		if err := rows.Scan(&c.ID, &c.URL, &c.City, &c.State, &payload, &c.ScrapedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan capture")
		}
		if err := json.Unmarshal(payload, &c.Payload); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal capture %s", c.ID)
		}
		captures = append(captures, c)
	}
	return captures, eris.Wrap(rows.Err(), "postgres: list captures rows")
}

func (s *PostgresStore) RecordRun(ctx context.Context, run model.ScrapeRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	var errText *string
	if run.Error != "" {
		errText = &run.Error
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_jobs (id, state, city, source, status, started_at, completed_at, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.State, run.City, run.Source, string(run.Status),
		run.StartedAt.UTC(), run.CompletedAt.UTC(), errText,
	)
	return eris.Wrapf(err, "postgres: record run %s/%s", run.Source, run.City)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ScrapeRun, error) {
	query := `SELECT id, state, city, source, status, started_at, completed_at, error FROM scrape_jobs WHERE 1=1`
	var args []any
	argIdx := 1

	if filter.City != "" {
		query += fmt.Sprintf(" AND city = $%d", argIdx)
		args = append(args, filter.City)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += " ORDER BY started_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.ScrapeRun
	for rows.Next() {
		var (
			r       model.ScrapeRun
			status  string
			errText *string
		)
		if err := rows.Scan(&r.ID, &r.State, &r.City, &r.Source, &status, &r.StartedAt, &r.CompletedAt, &errText); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.ScrapeRunStatus(status)
		if errText != nil {
			r.Error = *errText
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs rows")
}

func scanPgVenue(row pgx.Row) (*model.VenueRecord, error) {
	var v model.VenueRecord
	err := row.Scan(&v.ID, &v.Name, &v.Address, &v.City, &v.State, &v.Phone, &v.Lat, &v.Lon,
		&v.MimosaPrice, &v.ConfirmationScore, &v.SourceURLs, &v.ScrapedSnippet, &v.DedupeKey,
		&v.IsPublished, &v.HumanReviewed, &v.ScrapedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
