package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
)

// sqliteTime keeps timestamps lexically sortable.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps the pragmas below in force and serialises writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS mimosa_spots (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	address            TEXT NOT NULL,
	city               TEXT NOT NULL,
	state              TEXT NOT NULL,
	phone              TEXT NOT NULL,
	lat                REAL NOT NULL,
	lon                REAL NOT NULL,
	mimosa_price       INTEGER,
	confirmation_score INTEGER NOT NULL DEFAULT 0,
	source_urls        TEXT NOT NULL DEFAULT '[]',
	scraped_snippet    TEXT,
	dedupe_key         TEXT NOT NULL UNIQUE,
	is_published       INTEGER NOT NULL DEFAULT 0,
	human_reviewed     INTEGER NOT NULL DEFAULT 0,
	scraped_at         TEXT NOT NULL,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scrape_raw (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	city       TEXT NOT NULL,
	state      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	scraped_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scrape_jobs (
	id           TEXT PRIMARY KEY,
	state        TEXT NOT NULL,
	city         TEXT NOT NULL,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_mimosa_spots_city ON mimosa_spots(city, state);
CREATE INDEX IF NOT EXISTS idx_mimosa_spots_published ON mimosa_spots(is_published);
CREATE INDEX IF NOT EXISTS idx_scrape_raw_scraped_at ON scrape_raw(scraped_at);
CREATE INDEX IF NOT EXISTS idx_scrape_jobs_started_at ON scrape_jobs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteVenueColumns = `id, name, address, city, state, phone, lat, lon, mimosa_price,
	confirmation_score, source_urls, scraped_snippet, dedupe_key, is_published, human_reviewed,
	scraped_at, created_at, updated_at`

func (s *SQLiteStore) FindVenueByKey(ctx context.Context, key string) (*model.VenueRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteVenueColumns+` FROM mimosa_spots WHERE dedupe_key = ?`, key)
	v, err := scanSQLiteVenue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find venue %s", key)
	}
	return v, nil
}

// sqliteUpsertVenue appends the incoming URLs (bound as a JSON array) that the
// stored list does not already hold, keeping the stored order first.
const sqliteUpsertVenue = `
INSERT INTO mimosa_spots (id, name, address, city, state, phone, lat, lon, mimosa_price,
	confirmation_score, source_urls, scraped_snippet, dedupe_key, is_published, human_reviewed,
	scraped_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
ON CONFLICT(dedupe_key) DO UPDATE SET
	confirmation_score = excluded.confirmation_score,
	scraped_snippet    = excluded.scraped_snippet,
	is_published       = excluded.is_published,
	scraped_at         = excluded.scraped_at,
	updated_at         = excluded.updated_at,
	source_urls        = (
		SELECT json_group_array(u) FROM (
			SELECT e.value AS u, 0 AS grp, e.key AS pos
			FROM json_each(mimosa_spots.source_urls) e
			UNION ALL
			SELECT n.value, 1, n.key
			FROM json_each(?) n
			WHERE n.value NOT IN (SELECT o.value FROM json_each(mimosa_spots.source_urls) o)
			ORDER BY grp, pos
		)
	)
RETURNING id`

func (s *SQLiteStore) UpsertVenue(ctx context.Context, row model.ValidatedRow, isPublished bool, now time.Time) (bool, error) {
	urls, err := json.Marshal(nonNilURLs(row.SourceURLs))
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal source urls")
	}
	id := uuid.New().String()
	ts := now.UTC().Format(sqliteTime)

	var gotID string
	err = s.db.QueryRowContext(ctx, sqliteUpsertVenue,
		id, row.Name, row.Address, row.City, row.State, row.Phone, row.Lat, row.Lon,
		nullInt(row.MimosaPrice), row.ConfirmationScore, string(urls), nullString(row.ScrapedSnippet),
		row.DedupeKey, boolInt(isPublished), ts, ts, ts,
		string(urls),
	).Scan(&gotID)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert venue %s", row.DedupeKey)
	}
	return gotID == id, nil
}

func (s *SQLiteStore) ListVenues(ctx context.Context, filter model.VenueFilter) ([]model.VenueRecord, error) {
	query := `SELECT ` + sqliteVenueColumns + ` FROM mimosa_spots WHERE 1=1`
	var args []any

	if filter.City != "" {
		query += " AND city = ?"
		args = append(args, filter.City)
	}
	if filter.State != "" {
		query += " AND state = ?"
		args = append(args, filter.State)
	}
	if filter.Published != nil {
		query += " AND is_published = ?"
		args = append(args, boolInt(*filter.Published))
	}
	query += " ORDER BY confirmation_score DESC, name ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list venues")
	}
	defer rows.Close()

	var venues []model.VenueRecord
	for rows.Next() {
		v, err := scanSQLiteVenue(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan venue")
		}
		venues = append(venues, *v)
	}
	return venues, eris.Wrap(rows.Err(), "sqlite: list venues rows")
}

func (s *SQLiteStore) AppendCapture(ctx context.Context, c model.RawCapture) error {
	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal capture payload")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scrape_raw (id, url, city, state, payload, scraped_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.URL, c.City, c.State, string(payload), c.ScrapedAt.UTC().Format(sqliteTime),
	)
	return eris.Wrapf(err, "sqlite: append capture %s", c.URL)
}

func (s *SQLiteStore) ListCaptures(ctx context.Context) ([]model.RawCapture, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, city, state, payload, scraped_at FROM scrape_raw
		 ORDER BY scraped_at DESC, rowid DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list captures")
	}
	defer rows.Close()

	var captures []model.RawCapture
	for rows.Next() {
		var (
			c         model.RawCapture
			payload   string
			scrapedAt string
		)
		if err := rows.Scan(&c.ID, &c.URL, &c.City, &c.State, &payload, &scrapedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan capture")
		}
		if err := json.Unmarshal([]byte(payload), &c.Payload); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal capture %s", c.ID)
		}
		if c.ScrapedAt, err = time.Parse(sqliteTime, scrapedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse scraped_at")
		}
		captures = append(captures, c)
	}
	return captures, eris.Wrap(rows.Err(), "sqlite: list captures rows")
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run model.ScrapeRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_jobs (id, state, city, source, status, started_at, completed_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.State, run.City, run.Source, string(run.Status),
		run.StartedAt.UTC().Format(sqliteTime), run.CompletedAt.UTC().Format(sqliteTime), errText,
	)
	return eris.Wrapf(err, "sqlite: record run %s/%s", run.Source, run.City)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ScrapeRun, error) {
	query := `SELECT id, state, city, source, status, started_at, completed_at, error FROM scrape_jobs WHERE 1=1`
	var args []any

	if filter.City != "" {
		query += " AND city = ?"
		args = append(args, filter.City)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY started_at DESC, rowid DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.ScrapeRun
	for rows.Next() {
		var (
			r                      model.ScrapeRun
			status                 string
			startedAt, completedAt string
			errText                sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.State, &r.City, &r.Source, &status, &startedAt, &completedAt, &errText); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = model.ScrapeRunStatus(status)
		r.Error = errText.String
		if r.StartedAt, err = time.Parse(sqliteTime, startedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse started_at")
		}
		if r.CompletedAt, err = time.Parse(sqliteTime, completedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse completed_at")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs rows")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteVenue(row scannable) (*model.VenueRecord, error) {
	var (
		v                               model.VenueRecord
		price                           sql.NullInt64
		urls                            string
		snippet                         sql.NullString
		published, reviewed             int
		scrapedAt, createdAt, updatedAt string
	)
	err := row.Scan(&v.ID, &v.Name, &v.Address, &v.City, &v.State, &v.Phone, &v.Lat, &v.Lon,
		&price, &v.ConfirmationScore, &urls, &snippet, &v.DedupeKey, &published, &reviewed,
		&scrapedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		p := int(price.Int64)
		v.MimosaPrice = &p
	}
	if snippet.Valid {
		sn := snippet.String
		v.ScrapedSnippet = &sn
	}
	if err := json.Unmarshal([]byte(urls), &v.SourceURLs); err != nil {
		return nil, eris.Wrap(err, "unmarshal source_urls")
	}
	v.IsPublished = published != 0
	v.HumanReviewed = reviewed != 0
	for _, ts := range []struct {
		dst *time.Time
		src string
	}{{&v.ScrapedAt, scrapedAt}, {&v.CreatedAt, createdAt}, {&v.UpdatedAt, updatedAt}} {
		t, err := time.Parse(sqliteTime, ts.src)
		if err != nil {
			return nil, eris.Wrap(err, "parse timestamp")
		}
		*ts.dst = t
	}
	return &v, nil
}

func nonNilURLs(urls []string) []string {
	if urls == nil {
		return []string{}
	}
	return urls
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
