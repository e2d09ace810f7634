package cache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var t0 = time.Date(2022, 10, 20, 11, 44, 49, 0, time.UTC)

func entry(key string, responseDate time.Time, version string) Entry {
	return Entry{
		Key:          key,
		Blob:         []byte("body of " + key),
		Head:         []byte("HTTP/1.1 200 OK\r\n\r\n"),
		StoredAt:     t0,
		ResponseDate: responseDate,
		Version:      version,
	}
}

func providers(t *testing.T) map[string]Provider {
	t.Helper()
	ctx := context.Background()
	ps := map[string]Provider{
		"memory": NewMemoryProvider(),
	}
	sqliteMem, err := NewSQLiteProvider(ctx, "")
	if err != nil {
		t.Fatalf("Could not open sqlite: %v", err)
	}
	ps["sqlite-memory"] = sqliteMem
	sqliteFile, err := NewSQLiteProvider(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Could not open sqlite file: %v", err)
	}
	ps["sqlite-file"] = sqliteFile
	ldb, err := NewLevelDBProvider(filepath.Join(t.TempDir(), "leveldb"))
	if err != nil {
		t.Fatalf("Could not open leveldb: %v", err)
	}
	ps["leveldb"] = ldb
	if addr := os.Getenv("HTTPCACHE_TEST_REDIS"); addr != "" {
		r, err := NewRedisProvider(ctx, addr)
		if err != nil {
			t.Fatalf("Could not connect to redis: %v", err)
		}
		r.namespace = "httpcache-test:e:"
		ps["redis"] = r
	}
	if dsn := os.Getenv("HTTPCACHE_TEST_POSTGRES"); dsn != "" {
		p, err := NewPostgresProvider(ctx, dsn)
		if err != nil {
			t.Fatalf("Could not connect to postgres: %v", err)
		}
		ps["postgres"] = p
	}
	for name, p := range ps {
		if err := p.Clear(ctx); err != nil {
			t.Fatalf("%s: could not clear: %v", name, err)
		}
		t.Cleanup(func() { p.Close() })
	}
	return ps
}

func TestGetMissing(t *testing.T) {
	for name, p := range providers(t) {
		if _, ok, err := p.Get(context.Background(), "nope"); ok || err != nil {
			t.Fatalf("%s: ok %v, err %v", name, ok, err)
		}
		if err := p.Delete(context.Background(), "nope"); err != nil {
			t.Fatalf("%s: deleting missing key: %v", name, err)
		}
	}
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		e := entry("GET https://example.com/", t0.Add(-time.Minute), "v1")
		e.Age = durationPtr(30 * time.Second)
		if err := p.Put(ctx, e); err != nil {
			t.Fatalf("%s: put: %v", name, err)
		}
		got, ok, err := p.Get(ctx, e.Key)
		if !ok || err != nil {
			t.Fatalf("%s: get: ok %v, err %v", name, ok, err)
		}
		if !bytes.Equal(got.Blob, e.Blob) || !bytes.Equal(got.Head, e.Head) {
			t.Fatalf("%s: got %q / %q", name, got.Blob, got.Head)
		}
		if !got.StoredAt.Equal(e.StoredAt) || !got.ResponseDate.Equal(e.ResponseDate) {
			t.Fatalf("%s: times are %s / %s", name, got.StoredAt, got.ResponseDate)
		}
		if got.Age == nil || *got.Age != 30*time.Second {
			t.Fatalf("%s: age is %v", name, got.Age)
		}
		if got.Version != "v1" || got.Key != e.Key {
			t.Fatalf("%s: got %+v", name, got)
		}
	}
}

func TestStoredBytesAreNotShared(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		e := entry("k", t0, "v1")
		e.Blob = []byte("hello")
		if err := p.Put(ctx, e); err != nil {
			t.Fatalf("%s: put: %v", name, err)
		}
		e.Blob[0] = 'j'
		e.Head[0] = 'X'

		got, _, _ := p.Get(ctx, "k")
		if string(got.Blob) != "hello" || got.Head[0] != 'H' {
			t.Fatalf("%s: stored entry changed with the caller's buffer: %q / %q", name, got.Blob, got.Head)
		}
		got.Blob[0] = 'y'
		again, _, _ := p.Get(ctx, "k")
		if string(again.Blob) != "hello" {
			t.Fatalf("%s: stored entry changed with a returned buffer: %q", name, again.Blob)
		}
	}
}

func TestTimestampsAfter2262(t *testing.T) {
	ctx := context.Background()
	late := time.Date(2300, 1, 2, 3, 4, 5, 6000, time.UTC)
	for name, p := range providers(t) {
		e := entry("k", late, "v1")
		e.StoredAt = late
		if err := p.Put(ctx, e); err != nil {
			t.Fatalf("%s: put: %v", name, err)
		}
		got, _, err := p.Get(ctx, "k")
		if err != nil {
			t.Fatalf("%s: get: %v", name, err)
		}
		if !got.ResponseDate.Equal(late) || !got.StoredAt.Equal(late) {
			t.Fatalf("%s: times are %s / %s", name, got.StoredAt, got.ResponseDate)
		}
	}
}

func TestPutReplaces(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		first := entry("k", t0, "v1")
		first.Age = durationPtr(time.Second)
		second := entry("k", t0, "v2")
		second.Blob = []byte("replaced")
		if err := p.Put(ctx, first); err != nil {
			t.Fatalf("%s: put: %v", name, err)
		}
		if err := p.Put(ctx, second); err != nil {
			t.Fatalf("%s: put: %v", name, err)
		}
		got, _, _ := p.Get(ctx, "k")
		if string(got.Blob) != "replaced" || got.Version != "v2" || got.Age != nil {
			t.Fatalf("%s: got %+v", name, got)
		}
	}
}

func TestDeleteVersion(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		if err := p.Put(ctx, entry("k", t0, "v2")); err != nil {
			t.Fatalf("%s: put: %v", name, err)
		}
		if deleted, err := p.DeleteVersion(ctx, "k", "v1"); deleted || err != nil {
			t.Fatalf("%s: stale version deleted %v, err %v", name, deleted, err)
		}
		if _, ok, _ := p.Get(ctx, "k"); !ok {
			t.Fatalf("%s: entry should survive", name)
		}
		if deleted, err := p.DeleteVersion(ctx, "k", "v2"); !deleted || err != nil {
			t.Fatalf("%s: current version deleted %v, err %v", name, deleted, err)
		}
		if _, ok, _ := p.Get(ctx, "k"); ok {
			t.Fatalf("%s: entry should be gone", name)
		}
		if deleted, err := p.DeleteVersion(ctx, "k", "v2"); deleted || err != nil {
			t.Fatalf("%s: missing entry deleted %v, err %v", name, deleted, err)
		}
	}
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		for _, key := range []string{"GET a/1", "GET a/2", "GET b/1"} {
			if err := p.Put(ctx, entry(key, t0, "v")); err != nil {
				t.Fatalf("%s: put: %v", name, err)
			}
		}
		seen := map[string]bool{}
		err := p.Scan(ctx, "GET a/", func(e Entry) bool {
			if e.Blob != nil {
				t.Errorf("%s: scan should not load blobs", name)
			}
			seen[e.Key] = true
			return true
		})
		if err != nil || len(seen) != 2 || !seen["GET a/1"] || !seen["GET a/2"] {
			t.Fatalf("%s: seen %v, err %v", name, seen, err)
		}
		count := 0
		p.Scan(ctx, "", func(Entry) bool {
			count++
			return false
		})
		if count != 1 {
			t.Fatalf("%s: scan did not stop, count %d", name, count)
		}
	}
}

func TestMatch(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		p.Put(ctx, entry("GET https://example.com/new", t0, "v"))
		p.Put(ctx, entry("GET https://example.com/old", t0.Add(-time.Hour), "v"))
		p.Put(ctx, entry("GET https://other.org/100%", t0, "v"))

		entries, err := p.Match(ctx, "example.com", 25)
		if err != nil || len(entries) != 2 {
			t.Fatalf("%s: entries %v, err %v", name, entries, err)
		}
		if entries[0].Key != "GET https://example.com/old" {
			t.Fatalf("%s: oldest response should come first, got %s", name, entries[0].Key)
		}
		if entries, _ := p.Match(ctx, "example.com", 1); len(entries) != 1 {
			t.Fatalf("%s: limit not applied, %d entries", name, len(entries))
		}
		if entries, _ := p.Match(ctx, "0%", 0); len(entries) != 1 {
			t.Fatalf("%s: %% should match literally, %d entries", name, len(entries))
		}
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		p.Put(ctx, entry("k1", t0, "v"))
		p.Put(ctx, entry("k2", t0, "v"))
		if err := p.Clear(ctx); err != nil {
			t.Fatalf("%s: clear: %v", name, err)
		}
		if entries, _ := p.Match(ctx, "", 0); len(entries) != 0 {
			t.Fatalf("%s: %d entries left", name, len(entries))
		}
	}
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open(context.Background(), "cassandra", ""); err == nil {
		t.Fatal("Expected an error for an unknown provider")
	}
}
