// Package httpcache is a key/blob store for HTTP responses that applies the
// HTTP caching rules (RFC 9111) on top of a storage provider: it decides what
// may be stored, computes freshness when records are read and merges
// validation responses back into stored records.
package httpcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/always-cache/httpcache/cache"
	cachekey "github.com/always-cache/httpcache/pkg/cache-key"
	"github.com/always-cache/httpcache/pkg/rules"
	"github.com/always-cache/httpcache/rfc9111"

	"github.com/rs/zerolog"
)

var (
	// ErrNotCacheable is returned when a response must not be stored.
	// It is a policy decision, not a failure: the caller simply does not cache.
	ErrNotCacheable = errors.New("response is not cacheable")
	// ErrStorage wraps every error of the storage provider.
	ErrStorage = errors.New("cache storage failure")
)

// Refresher revalidates a record out of band, e.g. by queueing a job.
type Refresher interface {
	Refresh(ctx context.Context, key string, conditional http.Header) error
}

type Config struct {
	// Storage for records. An in-memory provider is used if nil.
	Provider cache.Provider
	// Keyer used by Key and for scoping sweeps.
	Keyer cachekey.Keyer
	// Methods and status codes that are stored. The zero value stores GET
	// responses with the default status codes.
	Policy rfc9111.Policy
	// Rules adjusting Cache-Control before the policy is checked.
	Rules rules.Rules
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Clock used when writing records. time.Now if nil.
	Now func() time.Time
	// Optional refresher called by Lookup for records served stale.
	Refresher Refresher
}

// Store is the only component writing records.
type Store struct {
	provider  cache.Provider
	keyer     cachekey.Keyer
	policy    rfc9111.Policy
	rules     rules.Rules
	log       zerolog.Logger
	now       func() time.Time
	refresher Refresher
	locks     *keyLocks
}

// New creates a store from the config.
func New(config Config) *Store {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("namespace", config.Keyer.Namespace).
		Logger()

	s := &Store{
		provider:  config.Provider,
		keyer:     config.Keyer,
		policy:    config.Policy,
		rules:     config.Rules,
		log:       logger,
		now:       config.Now,
		refresher: config.Refresher,
		locks:     newKeyLocks(),
	}
	if s.provider == nil {
		s.provider = cache.NewMemoryProvider()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Key returns the key a response to the request is stored under.
func (s *Store) Key(method, rawURL string, reqHeader, resHeader http.Header) (string, error) {
	prefix, err := s.keyer.Prefix(method, rawURL)
	if err != nil {
		return "", err
	}
	return s.keyer.WithVary(prefix, reqHeader, resHeader), nil
}

// Keyer returns the keyer of the store.
func (s *Store) Keyer() cachekey.Keyer {
	return s.keyer
}

// Put stores the response under the key, replacing any previous record.
// It returns ErrNotCacheable, leaving the previous record untouched, if the
// response must not be stored.
func (s *Store) Put(ctx context.Context, key string, res Response) error {
	unlock := s.locks.lock(key)
	defer unlock()
	_, err := s.put(ctx, key, res, s.now())
	return err
}

// PutBlob stores a body without any HTTP metadata. It never expires.
func (s *Store) PutBlob(ctx context.Context, key string, body []byte) error {
	return s.Put(ctx, key, Response{Body: body})
}

// put expects the key to be locked.
func (s *Store) put(ctx context.Context, key string, res Response, now time.Time) (Record, error) {
	rec, err := s.builder().build(key, res, now)
	if err != nil {
		s.log.Trace().Str("key", key).Str("method", res.method()).Int("status", res.statusCode()).Msg("Not storing response")
		return Record{}, err
	}
	s.logDropped(key, rec.CacheControl)
	if err := s.write(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Store) builder() recordBuilder {
	return recordBuilder{policy: s.policy, rules: s.rules}
}

// recordBuilder turns responses into records without any I/O. Put, Merge
// and Revalidate all build records through it.
type recordBuilder struct {
	policy rfc9111.Policy
	rules  rules.Rules
}

// build applies rules and policy to a response stored as a whole.
func (b recordBuilder) build(key string, res Response, now time.Time) (Record, error) {
	method, status := res.method(), res.statusCode()
	header := res.Header
	if res.URL != "" {
		header = b.rules.Apply(method, res.URL, status, header)
	}
	header = rfc9111.StorableHeader(header)
	if header == nil {
		header = make(http.Header)
	}
	if !rfc9111.HasExplicitFreshness(header) {
		// generic mode: a blob without HTTP semantics is kept until deleted
		header.Set("Cache-Control", rfc9111.Immutable.String())
	}
	return b.check(newRecord(key, status, header, res.Body, now), method)
}

// freshen merges a 304 into the record. The merged header goes through the
// rules and the policy like a stored response would.
func (b recordBuilder) freshen(rec Record, res Response, now time.Time) (Record, error) {
	method := res.method()
	header := rfc9111.Freshen(rec.Header, res.Header)
	if res.URL != "" {
		header = b.rules.Apply(method, res.URL, rec.StatusCode, header)
	}
	return b.check(newRecord(rec.Key, rec.StatusCode, header, rec.Body, now), method)
}

func (b recordBuilder) check(rec Record, method string) (Record, error) {
	if !b.policy.IsCacheable(rec.CacheControl, method, rec.StatusCode) {
		return Record{}, ErrNotCacheable
	}
	return rec, nil
}

func (s *Store) write(ctx context.Context, rec Record) error {
	entry, err := rec.entry()
	if err != nil {
		return err
	}
	s.log.Trace().Str("key", rec.Key).Int("bytes", entry.Size()).Msg("Writing to cache")
	if err := s.provider.Put(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("key", rec.Key).Msg("Could not write to cache")
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

func (s *Store) logDropped(key string, cc rfc9111.CacheControl) {
	if len(cc.Dropped) > 0 {
		s.log.Debug().Str("key", key).Strs("dropped", cc.Dropped).Msg("Ignoring malformed Cache-Control directives")
	}
}

// Get returns the record stored under the key and its verdict at time now.
// A missing record is not an error: the verdict is Absent.
// Get never deletes anything, not even stale records.
func (s *Store) Get(ctx context.Context, key string, now time.Time) (Lookup, error) {
	rec, ok, err := s.load(ctx, key)
	if err != nil || !ok {
		return Lookup{Verdict: rfc9111.Absent}, err
	}
	return lookup(rec, now), nil
}

func lookup(rec Record, now time.Time) Lookup {
	verdict := rec.Verdict(now)
	return Lookup{
		Verdict:    verdict,
		Record:     &rec,
		ServeStale: verdict.IsStale() && rec.MayServeStale(now),
	}
}

func (s *Store) load(ctx context.Context, key string) (Record, bool, error) {
	entry, ok, err := s.provider.Get(ctx, key)
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if !ok {
		s.log.Trace().Str("key", key).Msg("Not found in cache")
		return Record{}, false, nil
	}
	rec, err := recordFromEntry(entry)
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return rec, true, nil
}

// Lookup is Get with the store's clock that treats storage failures as a
// miss. Records that may be served stale are handed to the refresher.
func (s *Store) Lookup(ctx context.Context, key string) Lookup {
	l, err := s.Get(ctx, key, s.now())
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Treating cache failure as miss")
		return Lookup{Verdict: rfc9111.Absent}
	}
	if l.ServeStale && s.refresher != nil {
		if err := s.refresher.Refresh(ctx, key, l.Record.ConditionalHeaders()); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("Could not schedule refresh")
		}
	}
	return l
}

// ConditionalHeaders returns the header fields for validating the stored
// record, or nil if there is no record.
func (s *Store) ConditionalHeaders(ctx context.Context, key string) (http.Header, error) {
	rec, ok, err := s.load(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	return rec.ConditionalHeaders(), nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	unlock := s.locks.lock(key)
	defer unlock()
	if err := s.provider.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.log.Trace().Str("key", key).Msg("Deleted from cache")
	return nil
}

// Invalidate deletes all stored variants of the URL if a response with the
// given status to a request with the given method invalidates them
// (unsafe method, non-error status). It returns the number of deleted records.
func (s *Store) Invalidate(ctx context.Context, method, rawURL string, statusCode int) (int, error) {
	if !rfc9111.InvalidatesTarget(method, statusCode) {
		return 0, nil
	}
	prefix, err := s.keyer.Prefix(http.MethodGet, rawURL)
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0)
	err = s.provider.Scan(ctx, prefix, func(e cache.Entry) bool {
		keys = append(keys, e.Key)
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	for i, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return i, err
		}
	}
	s.log.Debug().Str("url", rawURL).Int("count", len(keys)).Msg("Invalidated stored responses")
	return len(keys), nil
}

// DefaultMatchLimit is used by Match for a non-positive limit.
const DefaultMatchLimit = 25

// Match returns up to limit records whose key contains substr, oldest
// response first. Bodies are not loaded.
func (s *Store) Match(ctx context.Context, substr string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultMatchLimit
	}
	entries, err := s.provider.Match(ctx, substr, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		rec, err := recordFromEntry(e)
		if err != nil {
			s.log.Warn().Err(err).Str("key", e.Key).Msg("Skipping unreadable record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Clear removes all records.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.provider.Clear(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.log.Info().Msg("Cleared cache")
	return nil
}

// Close closes the provider.
func (s *Store) Close() error {
	return s.provider.Close()
}
