// Package cache holds the storage providers behind the HTTP cache store.
// A provider is a transactional key to row table: it knows nothing about HTTP
// semantics and stores whatever the store hands it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider is the interface for a storage provider.
//
// Implementations must be thread-safe! Put must replace the row for a key
// atomically: concurrent readers observe either the old or the new entry.
type Provider interface {
	// Get returns the entry for the given key, along with a boolean indicating
	// whether the key exists. A missing key is not an error.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Put inserts or replaces the entry with the same key in a single write.
	Put(ctx context.Context, entry Entry) error
	// Delete removes the entry for the given key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeleteVersion removes the entry only if its version still matches.
	// It returns false if the entry changed (or vanished) in the meantime.
	DeleteVersion(ctx context.Context, key, version string) (bool, error)
	// Scan calls fn for every entry whose key has the given prefix, until fn
	// returns false. Entries passed to fn have no Blob. Providers may hold a
	// read snapshot or lock while scanning, so fn must not write to the provider.
	Scan(ctx context.Context, prefix string, fn func(Entry) bool) error
	// Match returns up to limit entries whose key contains substr, ordered by
	// response date (oldest first). Entries have no Blob.
	Match(ctx context.Context, substr string, limit int) ([]Entry, error)
	// Clear removes all entries.
	Clear(ctx context.Context) error
	// Close releases the resources held by the provider.
	Close() error
}

// Entry is one stored row.
type Entry struct {
	Key string
	// Blob is the response body.
	Blob []byte
	// Head is the serialized status line and header snapshot.
	Head []byte
	// StoredAt and ResponseDate are kept with microsecond resolution.
	StoredAt     time.Time
	ResponseDate time.Time
	// Age is the Age header sent by the origin, nil if there was none.
	Age *time.Duration
	// Version changes on every Put. It is used to claim a row before deleting it.
	Version string
}

// Size returns the number of stored bytes.
func (e Entry) Size() int {
	return len(e.Key) + len(e.Blob) + len(e.Head)
}

// Provider names accepted by Open.
const (
	Memory   = "memory"
	SQLite   = "sqlite"
	LevelDB  = "leveldb"
	Redis    = "redis"
	Postgres = "postgres"
)

// ErrUnknownProvider is returned by Open for a provider name it does not know.
var ErrUnknownProvider = errors.New("unknown cache provider")

// Open opens the named provider. The DSN is interpreted by the provider:
// a file name for sqlite (empty for in-memory), a directory for leveldb,
// an address or redis:// URL for redis and a connection string for postgres.
func Open(ctx context.Context, name, dsn string) (Provider, error) {
	switch strings.ToLower(name) {
	case Memory, "":
		return NewMemoryProvider(), nil
	case SQLite:
		return NewSQLiteProvider(ctx, dsn)
	case LevelDB:
		return NewLevelDBProvider(dsn)
	case Redis:
		return NewRedisProvider(ctx, dsn)
	case Postgres:
		return NewPostgresProvider(ctx, dsn)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}

// withoutBlob returns a copy of the entry without the body.
func withoutBlob(e Entry) Entry {
	e.Blob = nil
	return e
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
