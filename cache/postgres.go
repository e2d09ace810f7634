package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProvider stores entries in the httpcache_data table.
type PostgresProvider struct {
	pool *pgxpool.Pool
}

const postgresSchema = `CREATE TABLE IF NOT EXISTS httpcache_data (
	key TEXT PRIMARY KEY,
	blob BYTEA,
	head BYTEA NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL,
	response_date TIMESTAMPTZ NOT NULL,
	age BIGINT,
	version TEXT NOT NULL
)`

func NewPostgresProvider(ctx context.Context, dsn string) (PostgresProvider, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return PostgresProvider{}, err
	}
	for _, stmt := range []string{
		postgresSchema,
		"CREATE INDEX IF NOT EXISTS httpcache_data_response_date_idx ON httpcache_data (response_date)",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return PostgresProvider{}, err
		}
	}
	return PostgresProvider{pool: pool}, nil
}

func (p PostgresProvider) Get(ctx context.Context, key string) (Entry, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT key, blob, head, stored_at, response_date, age, version
		FROM httpcache_data WHERE key = $1`, key)
	entry, err := scanPostgresEntry(row, true)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (p PostgresProvider) Put(ctx context.Context, e Entry) error {
	var age *int64
	if e.Age != nil {
		nanos := int64(*e.Age)
		age = &nanos
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO httpcache_data
		(key, blob, head, stored_at, response_date, age, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			blob = EXCLUDED.blob,
			head = EXCLUDED.head,
			stored_at = EXCLUDED.stored_at,
			response_date = EXCLUDED.response_date,
			age = EXCLUDED.age,
			version = EXCLUDED.version`,
		e.Key, e.Blob, e.Head, e.StoredAt, e.ResponseDate, age, e.Version)
	return err
}

func (p PostgresProvider) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM httpcache_data WHERE key = $1", key)
	return err
}

func (p PostgresProvider) DeleteVersion(ctx context.Context, key, version string) (bool, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM httpcache_data WHERE key = $1 AND version = $2", key, version)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (p PostgresProvider) Scan(ctx context.Context, prefix string, fn func(Entry) bool) error {
	entries, err := p.query(ctx, `SELECT key, head, stored_at, response_date, age, version
		FROM httpcache_data WHERE starts_with(key, $1)`, prefix)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !fn(entry) {
			return nil
		}
	}
	return nil
}

func (p PostgresProvider) Match(ctx context.Context, substr string, limit int) ([]Entry, error) {
	var maxRows any
	if limit > 0 {
		maxRows = limit
	}
	return p.query(ctx, `SELECT key, head, stored_at, response_date, age, version
		FROM httpcache_data WHERE strpos(key, $1) > 0
		ORDER BY response_date, key LIMIT $2`, substr, maxRows)
}

func (p PostgresProvider) Clear(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, "TRUNCATE httpcache_data")
	return err
}

func (p PostgresProvider) Close() error {
	p.pool.Close()
	return nil
}

func (p PostgresProvider) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanPostgresEntry(rows, false)
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanPostgresEntry(row pgx.Row, withBlob bool) (Entry, error) {
	var entry Entry
	var age *int64
	dest := []any{&entry.Key, &entry.Head, &entry.StoredAt, &entry.ResponseDate, &age, &entry.Version}
	if withBlob {
		dest = []any{&entry.Key, &entry.Blob, &entry.Head, &entry.StoredAt, &entry.ResponseDate, &age, &entry.Version}
	}
	if err := row.Scan(dest...); err != nil {
		return Entry{}, err
	}
	entry.StoredAt = entry.StoredAt.UTC()
	entry.ResponseDate = entry.ResponseDate.UTC()
	if age != nil {
		entry.Age = durationPtr(time.Duration(*age))
	}
	return entry, nil
}
