package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProvider stores every entry as a hash under "httpcache:e:<key>".
type RedisProvider struct {
	client    *redis.Client
	namespace string
}

const redisNamespace = "httpcache:e:"

// NewRedisProvider connects to the given address ("host:port") or redis:// URL.
func NewRedisProvider(ctx context.Context, dsn string) (RedisProvider, error) {
	var opts *redis.Options
	if strings.HasPrefix(dsn, "redis://") || strings.HasPrefix(dsn, "rediss://") {
		parsed, err := redis.ParseURL(dsn)
		if err != nil {
			return RedisProvider{}, err
		}
		opts = parsed
	} else {
		if dsn == "" {
			dsn = "localhost:6379"
		}
		opts = &redis.Options{Addr: dsn}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return RedisProvider{}, err
	}
	return RedisProvider{client: client, namespace: redisNamespace}, nil
}

func (r RedisProvider) hashKey(key string) string {
	return r.namespace + key
}

var redisMetaFields = []string{"head", "stored_at", "response_date", "age", "version"}

func (r RedisProvider) Get(ctx context.Context, key string) (Entry, bool, error) {
	values, err := r.client.HGetAll(ctx, r.hashKey(key)).Result()
	if err != nil {
		return Entry{}, false, err
	}
	if len(values) == 0 {
		return Entry{}, false, nil
	}
	entry, err := redisEntry(key, values)
	if err != nil {
		return Entry{}, false, err
	}
	entry.Blob = []byte(values["blob"])
	return entry, true, nil
}

// Put replaces the hash in a MULTI/EXEC transaction, so that fields of the
// old entry (e.g. its age) never survive.
func (r RedisProvider) Put(ctx context.Context, e Entry) error {
	fields := map[string]any{
		"blob":          e.Blob,
		"head":          e.Head,
		"stored_at":     e.StoredAt.UnixMicro(),
		"response_date": e.ResponseDate.UnixMicro(),
		"version":       e.Version,
	}
	if e.Age != nil {
		fields["age"] = int64(*e.Age)
	}
	hashKey := r.hashKey(e.Key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, hashKey)
		pipe.HSet(ctx, hashKey, fields)
		return nil
	})
	return err
}

func (r RedisProvider) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.hashKey(key)).Err()
}

// DeleteVersion watches the hash, so that the delete fails if the entry is
// written between the version check and the delete.
func (r RedisProvider) DeleteVersion(ctx context.Context, key, version string) (bool, error) {
	hashKey := r.hashKey(key)
	deleted := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, hashKey, "version").Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, hashKey)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, hashKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return deleted, err
}

func (r RedisProvider) Scan(ctx context.Context, prefix string, fn func(Entry) bool) error {
	iter := r.client.Scan(ctx, 0, r.namespace+escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		entry, ok, err := r.getMeta(ctx, strings.TrimPrefix(iter.Val(), r.namespace))
		if err != nil {
			return err
		}
		if ok && !fn(entry) {
			return nil
		}
	}
	return iter.Err()
}

func (r RedisProvider) Match(ctx context.Context, substr string, limit int) ([]Entry, error) {
	entries := make([]Entry, 0)
	err := r.Scan(ctx, "", func(e Entry) bool {
		if strings.Contains(e.Key, substr) {
			entries = append(entries, e)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sortByResponseDate(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Clear deletes the hashes of this namespace only; the database may be shared.
func (r RedisProvider) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.namespace+"*", 500).Iterator()
	keys := make([]string, 0, 500)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == cap(keys) {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

func (r RedisProvider) Close() error {
	return r.client.Close()
}

func (r RedisProvider) getMeta(ctx context.Context, key string) (Entry, bool, error) {
	values, err := r.client.HMGet(ctx, r.hashKey(key), redisMetaFields...).Result()
	if err != nil {
		return Entry{}, false, err
	}
	fields := make(map[string]string, len(values))
	for i, value := range values {
		if s, ok := value.(string); ok {
			fields[redisMetaFields[i]] = s
		}
	}
	if len(fields) == 0 {
		// deleted while scanning
		return Entry{}, false, nil
	}
	entry, err := redisEntry(key, fields)
	return entry, err == nil, err
}

func redisEntry(key string, fields map[string]string) (Entry, error) {
	entry := Entry{
		Key:     key,
		Head:    []byte(fields["head"]),
		Version: fields["version"],
	}
	storedAt, err := strconv.ParseInt(fields["stored_at"], 10, 64)
	if err != nil {
		return Entry{}, err
	}
	responseDate, err := strconv.ParseInt(fields["response_date"], 10, 64)
	if err != nil {
		return Entry{}, err
	}
	entry.StoredAt = time.UnixMicro(storedAt).UTC()
	entry.ResponseDate = time.UnixMicro(responseDate).UTC()
	if age, ok := fields["age"]; ok {
		nanos, err := strconv.ParseInt(age, 10, 64)
		if err != nil {
			return Entry{}, err
		}
		entry.Age = durationPtr(time.Duration(nanos))
	}
	return entry, nil
}

// escapeGlob escapes the characters that are special in SCAN MATCH patterns.
func escapeGlob(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`).Replace(s)
}
