package cache

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
)

// SQLiteProvider stores entries in a single SQLite table.
type SQLiteProvider struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS data (
	key TEXT PRIMARY KEY,
	blob BLOB,
	head BLOB,
	stored_at INTEGER,
	response_date INTEGER,
	age INTEGER,
	version TEXT
)`

// NewSQLiteProvider opens (and creates if needed) the cache table in the given file.
// If file name is empty, a new private in-memory db is opened.
func NewSQLiteProvider(ctx context.Context, filename string) (SQLiteProvider, error) {
	inMemory := filename == ""
	if inMemory {
		filename = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteProvider{}, err
	}
	if inMemory {
		// the db lives as long as its last connection
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range []string{
		sqliteSchema,
		"CREATE INDEX IF NOT EXISTS response_date_idx ON data (response_date)",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return SQLiteProvider{}, err
		}
	}
	return SQLiteProvider{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s SQLiteProvider) Get(ctx context.Context, key string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		key, blob, head, stored_at, response_date, age, version
		FROM data WHERE key = ?`, key)
	entry, err := scanSQLiteEntry(row, true)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (s SQLiteProvider) Put(ctx context.Context, e Entry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	var age sql.NullInt64
	if e.Age != nil {
		age = sql.NullInt64{Int64: int64(*e.Age), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO data
		(key, blob, head, stored_at, response_date, age, version) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Key, e.Blob, e.Head, e.StoredAt.UnixMicro(), e.ResponseDate.UnixMicro(), age, e.Version)
	return err
}

func (s SQLiteProvider) Delete(ctx context.Context, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM data WHERE key = ?", key)
	return err
}

func (s SQLiteProvider) DeleteVersion(ctx context.Context, key, version string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	result, err := s.db.ExecContext(ctx, "DELETE FROM data WHERE key = ? AND version = ?", key, version)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s SQLiteProvider) Scan(ctx context.Context, prefix string, fn func(Entry) bool) error {
	// instr() instead of LIKE, so that keys with % and _ are matched literally
	entries, err := s.query(ctx, `SELECT
		key, head, stored_at, response_date, age, version
		FROM data WHERE instr(key, ?) = 1`, prefix)
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

func (s SQLiteProvider) Match(ctx context.Context, substr string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, `SELECT
		key, head, stored_at, response_date, age, version
		FROM data WHERE instr(key, ?) > 0
		ORDER BY response_date, key LIMIT ?`, substr, limit)
}

// Clear truncates the table and reclaims the space.
func (s SQLiteProvider) Clear(ctx context.Context) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM data"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

func (s SQLiteProvider) Close() error {
	return s.db.Close()
}

// query reads all rows before returning, so that no read is pending while
// the caller writes.
func (s SQLiteProvider) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanSQLiteEntry(rows, false)
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLiteEntry(row sqlRow, withBlob bool) (Entry, error) {
	var entry Entry
	var storedAt, responseDate int64
	var age sql.NullInt64
	var version sql.NullString
	dest := []any{&entry.Key, &entry.Head, &storedAt, &responseDate, &age, &version}
	if withBlob {
		dest = []any{&entry.Key, &entry.Blob, &entry.Head, &storedAt, &responseDate, &age, &version}
	}
	if err := row.Scan(dest...); err != nil {
		return Entry{}, err
	}
	entry.StoredAt = time.UnixMicro(storedAt).UTC()
	entry.ResponseDate = time.UnixMicro(responseDate).UTC()
	if age.Valid {
		entry.Age = durationPtr(time.Duration(age.Int64))
	}
	entry.Version = version.String
	return entry, nil
}
