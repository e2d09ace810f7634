package httpcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/always-cache/httpcache/cache"
	cachekey "github.com/always-cache/httpcache/pkg/cache-key"
	"github.com/always-cache/httpcache/pkg/rules"
	"github.com/always-cache/httpcache/rfc9111"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2022, 10, 20, 11, 44, 49, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestStore(t *testing.T, configure ...func(*Config)) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{now: t0}
	logger := zerolog.Nop()
	config := Config{
		Provider: cache.NewMemoryProvider(),
		Keyer:    cachekey.New("test"),
		Logger:   &logger,
		Now:      clock.Now,
	}
	for _, fn := range configure {
		fn(&config)
	}
	return New(config), clock
}

func header(fields ...string) http.Header {
	h := make(http.Header)
	for i := 0; i+1 < len(fields); i += 2 {
		h.Add(fields[i], fields[i+1])
	}
	return h
}

func dated(fields ...string) http.Header {
	return header(append([]string{"Date", rfc9111.ToHttpDate(t0)}, fields...)...)
}

func TestImmutableNeverExpires(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", Response{Header: dated("Cache-Control", "immutable"), Body: []byte("x")}))

	for _, elapsed := range []time.Duration{0, time.Hour, 10 * 365 * 24 * time.Hour} {
		l, err := store.Get(ctx, "k", t0.Add(elapsed))
		require.NoError(t, err)
		require.Equal(t, rfc9111.Fresh, l.Verdict, "after %s", elapsed)
	}
}

func TestMaxAgeScenario(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "etag", Response{Header: dated("Cache-Control", "max-age=60", "ETag", `"v1"`)}))
	require.NoError(t, store.Put(ctx, "plain", Response{Header: dated("Cache-Control", "max-age=60")}))

	l, err := store.Get(ctx, "etag", t0.Add(30*time.Second))
	require.NoError(t, err)
	require.Equal(t, rfc9111.Fresh, l.Verdict)

	l, err = store.Get(ctx, "etag", t0.Add(90*time.Second))
	require.NoError(t, err)
	require.Equal(t, rfc9111.StaleRevalidate, l.Verdict)
	require.Equal(t, `"v1"`, l.Record.ConditionalHeaders().Get("If-None-Match"))

	l, err = store.Get(ctx, "plain", t0.Add(90*time.Second))
	require.NoError(t, err)
	require.Equal(t, rfc9111.StaleRefetch, l.Verdict)
}

func TestMaxAgeBoundary(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", Response{Header: dated("Cache-Control", "max-age=60")}))

	l, _ := store.Get(ctx, "k", t0.Add(59*time.Second))
	require.True(t, l.Record.IsFresh(t0.Add(59*time.Second)))
	l, _ = store.Get(ctx, "k", t0.Add(60*time.Second))
	require.Equal(t, rfc9111.StaleRefetch, l.Verdict)
}

func TestHeuristicScenario(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	lastModified := rfc9111.ToHttpDate(t0.Add(-100 * time.Second))
	require.NoError(t, store.Put(ctx, "k", Response{Header: dated("Last-Modified", lastModified)}))

	l, _ := store.Get(ctx, "k", t0)
	require.Equal(t, 10*time.Second, l.Record.FreshnessLifetime())
	l, _ = store.Get(ctx, "k", t0.Add(5*time.Second))
	require.Equal(t, rfc9111.Fresh, l.Verdict)
	l, _ = store.Get(ctx, "k", t0.Add(15*time.Second))
	require.Equal(t, rfc9111.StaleRevalidate, l.Verdict)
	require.Equal(t, lastModified, l.Record.ConditionalHeaders().Get("If-Modified-Since"))
}

func TestGenericMode(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.PutBlob(ctx, "blob", []byte("hello")))

	l, err := store.Get(ctx, "blob", t0.Add(100*365*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, rfc9111.Fresh, l.Verdict)
	require.Equal(t, "hello", string(l.Record.Body))
	require.Equal(t, "immutable", l.Record.Header.Get("Cache-Control"))
	require.Equal(t, http.StatusOK, l.Record.StatusCode)
}

func TestGetAbsent(t *testing.T) {
	store, _ := newTestStore(t)
	l, err := store.Get(context.Background(), "missing", t0)
	require.NoError(t, err)
	require.Equal(t, rfc9111.Absent, l.Verdict)
	require.False(t, l.Found())
}

func TestPutIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	res := Response{Header: dated("Cache-Control", "max-age=60", "Content-Type", "text/plain"), Body: []byte("body")}
	require.NoError(t, store.Put(ctx, "k", res))
	first, _ := store.Get(ctx, "k", t0.Add(time.Second))
	require.NoError(t, store.Put(ctx, "k", res))
	second, _ := store.Get(ctx, "k", t0.Add(time.Second))

	require.Equal(t, first.Verdict, second.Verdict)
	require.Equal(t, first.Record.Body, second.Record.Body)
	require.Equal(t, first.Record.Header, second.Record.Header)
	require.Equal(t, first.Record.StoredResponse, second.Record.StoredResponse)
}

func TestNoStore(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	err := store.Put(ctx, "k", Response{Header: dated("Cache-Control", "no-store, max-age=60")})
	require.ErrorIs(t, err, ErrNotCacheable)
	l, err := store.Get(ctx, "k", t0)
	require.NoError(t, err)
	require.Equal(t, rfc9111.Absent, l.Verdict)
}

func TestRejectedPutKeepsPreviousRecord(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", Response{Header: dated("Cache-Control", "max-age=60"), Body: []byte("old")}))
	require.ErrorIs(t, store.Put(ctx, "k", Response{Header: dated("Cache-Control", "no-store"), Body: []byte("new")}), ErrNotCacheable)
	require.ErrorIs(t, store.Put(ctx, "k", Response{StatusCode: 500, Body: []byte("new")}), ErrNotCacheable)
	require.ErrorIs(t, store.Put(ctx, "k", Response{Method: "POST", Body: []byte("new")}), ErrNotCacheable)

	l, _ := store.Get(ctx, "k", t0)
	require.Equal(t, "old", string(l.Record.Body))
}

func TestStorableHeaderOnly(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", Response{Header: dated("Cache-Control", "max-age=60", "Connection", "close", "Transfer-Encoding", "chunked")}))
	l, _ := store.Get(ctx, "k", t0)
	require.Empty(t, l.Record.Header.Get("Connection"))
	require.Empty(t, l.Record.Header.Get("Transfer-Encoding"))
}

func TestRulesApplied(t *testing.T) {
	store, _ := newTestStore(t, func(c *Config) {
		c.Rules = rules.Rules{{Prefix: "/static/", Default: "max-age=3600"}}
	})
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", Response{URL: "https://example.com/static/app.js", Header: dated()}))
	l, _ := store.Get(ctx, "k", t0.Add(time.Minute))
	require.Equal(t, time.Hour, l.Record.FreshnessLifetime())
	require.Equal(t, rfc9111.Fresh, l.Verdict)
}

func TestConfiguredPolicy(t *testing.T) {
	store, _ := newTestStore(t, func(c *Config) {
		c.Policy = rfc9111.Policy{Methods: []string{"GET", "POST"}, StatusCodes: []int{200}}
	})
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", Response{Method: "POST", Header: dated("Cache-Control", "max-age=1")}))
	require.ErrorIs(t, store.Put(ctx, "k", Response{StatusCode: 404}), ErrNotCacheable)
}

func TestKey(t *testing.T) {
	store, _ := newTestStore(t)
	key, err := store.Key("GET", "https://Example.com/a?b=1&a=2", header("Accept-Language", "fi"), header("Vary", "Accept-Language"))
	require.NoError(t, err)
	require.Equal(t, "test:GET:https://example.com/a?a=2&b=1\t\naccept-language: fi", key)
}

func TestConcurrentPutsAreAtomic(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf("body-%d", i)
			store.Put(ctx, "k", Response{Header: dated("Cache-Control", "max-age=60", "X-Body", body), Body: []byte(body)})
		}()
		go func() {
			defer wg.Done()
			if l, err := store.Get(ctx, "k", t0); err == nil && l.Found() {
				if l.Record.Header.Get("X-Body") != string(l.Record.Body) {
					t.Errorf("Header and body of different writes: %s / %s", l.Record.Header.Get("X-Body"), l.Record.Body)
				}
			}
		}()
	}
	wg.Wait()
	require.Zero(t, store.locks.len())
}

func TestMatchAndClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for i, u := range []string{"https://example.com/b", "https://example.com/a", "https://other.org/"} {
		key, _ := store.Key("GET", u, nil, nil)
		date := rfc9111.ToHttpDate(t0.Add(-time.Duration(i) * time.Minute))
		require.NoError(t, store.Put(ctx, key, Response{Header: header("Date", date, "Cache-Control", "max-age=60"), Body: []byte(u)}))
	}

	records, err := store.Match(ctx, "example.com", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Contains(t, records[0].Key, "example.com/a")
	require.Nil(t, records[0].Body)

	records, err = store.Match(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Contains(t, records[0].Key, "other.org")

	require.NoError(t, store.Clear(ctx))
	records, err = store.Match(ctx, "", 0)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestInvalidate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	fi, _ := store.Key("GET", "https://example.com/page", header("Accept-Language", "fi"), header("Vary", "Accept-Language"))
	en, _ := store.Key("GET", "https://example.com/page", header("Accept-Language", "en"), header("Vary", "Accept-Language"))
	other, _ := store.Key("GET", "https://example.com/other", nil, nil)
	for _, key := range []string{fi, en, other} {
		require.NoError(t, store.PutBlob(ctx, key, []byte(key)))
	}

	n, err := store.Invalidate(ctx, "GET", "https://example.com/page", 200)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = store.Invalidate(ctx, "POST", "https://example.com/page", 200)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	l, _ := store.Get(ctx, other, t0)
	require.True(t, l.Found())
	l, _ = store.Get(ctx, fi, t0)
	require.False(t, l.Found())
}

type failingProvider struct {
	cache.MemoryProvider
}

var errDisk = errors.New("disk on fire")

func (failingProvider) Get(context.Context, string) (cache.Entry, bool, error) {
	return cache.Entry{}, false, errDisk
}

func (failingProvider) Put(context.Context, cache.Entry) error {
	return errDisk
}

func TestStorageFailure(t *testing.T) {
	store, _ := newTestStore(t, func(c *Config) {
		c.Provider = failingProvider{cache.NewMemoryProvider()}
	})
	ctx := context.Background()

	err := store.Put(ctx, "k", Response{Header: dated("Cache-Control", "max-age=60")})
	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, errDisk)

	_, err = store.Get(ctx, "k", t0)
	require.ErrorIs(t, err, ErrStorage)

	l := store.Lookup(ctx, "k")
	require.Equal(t, rfc9111.Absent, l.Verdict)
}

type recordingRefresher struct {
	keys        []string
	conditional []http.Header
}

func (r *recordingRefresher) Refresh(_ context.Context, key string, conditional http.Header) error {
	r.keys = append(r.keys, key)
	r.conditional = append(r.conditional, conditional)
	return nil
}

func TestLookupRefreshesStaleWhileRevalidate(t *testing.T) {
	refresher := &recordingRefresher{}
	store, clock := newTestStore(t, func(c *Config) {
		c.Refresher = refresher
	})
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", Response{Header: dated("Cache-Control", "max-age=60, stale-while-revalidate=30", "ETag", `"a"`)}))

	clock.Set(t0.Add(30 * time.Second))
	l := store.Lookup(ctx, "k")
	require.Equal(t, rfc9111.Fresh, l.Verdict)
	require.Empty(t, refresher.keys)

	clock.Set(t0.Add(80 * time.Second))
	l = store.Lookup(ctx, "k")
	require.Equal(t, rfc9111.StaleRevalidate, l.Verdict)
	require.True(t, l.ServeStale)
	require.Equal(t, []string{"k"}, refresher.keys)
	require.Equal(t, `"a"`, refresher.conditional[0].Get("If-None-Match"))

	clock.Set(t0.Add(95 * time.Second))
	l = store.Lookup(ctx, "k")
	require.False(t, l.ServeStale)
	require.Len(t, refresher.keys, 1)
}

func TestConditionalHeaders(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	h, err := store.ConditionalHeaders(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, h)

	require.NoError(t, store.Put(ctx, "k", Response{Header: dated("ETag", `"x"`)}))
	h, err = store.ConditionalHeaders(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, `"x"`, h.Get("If-None-Match"))
}

func TestPutBlobKeepsOwnCopy(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	body := []byte("hello")
	require.NoError(t, store.PutBlob(ctx, "k", body))
	body[0] = 'j'

	l, err := store.Get(ctx, "k", t0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(l.Record.Body))
	l.Record.Body[0] = 'y'

	l, err = store.Get(ctx, "k", t0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(l.Record.Body))
}

func TestPragmaKeepsCapturedDirectives(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", Response{Header: dated(
		"Last-Modified", rfc9111.ToHttpDate(t0.Add(-1000*time.Second)),
		"Pragma", "no-cache",
	)}))

	l, err := store.Get(ctx, "k", t0.Add(5*time.Second))
	require.NoError(t, err)
	require.Equal(t, rfc9111.Fresh, l.Verdict)
	require.Empty(t, l.Record.Header.Values("Cache-Control"))
}
