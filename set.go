package httpcache

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
)

// StringSet is a set of unique strings persisted as a single record.
// The record is stored without HTTP metadata and therefore never expires.
type StringSet struct {
	store *Store
	key   string
}

// StringSet returns the set stored under the key.
func (s *Store) StringSet(key string) StringSet {
	return StringSet{store: s, key: key}
}

// Retrieve returns the members, sorted.
func (set StringSet) Retrieve(ctx context.Context) ([]string, error) {
	rec, ok, err := set.store.load(ctx, set.key)
	if err != nil || !ok {
		return []string{}, err
	}
	return decodeSet(rec.Body)
}

// Append adds the values that are not yet members.
func (set StringSet) Append(ctx context.Context, values ...string) error {
	return set.update(ctx, func(members []string) []string {
		return append(members, values...)
	})
}

// Remove removes the values from the set.
func (set StringSet) Remove(ctx context.Context, values ...string) error {
	return set.update(ctx, func(members []string) []string {
		return slices.DeleteFunc(members, func(m string) bool {
			return slices.Contains(values, m)
		})
	})
}

// Clear deletes the set.
func (set StringSet) Clear(ctx context.Context) error {
	return set.store.Delete(ctx, set.key)
}

func (set StringSet) update(ctx context.Context, fn func([]string) []string) error {
	unlock := set.store.locks.lock(set.key)
	defer unlock()
	members := []string{}
	rec, ok, err := set.store.load(ctx, set.key)
	if err != nil {
		return err
	}
	if ok {
		if members, err = decodeSet(rec.Body); err != nil {
			return err
		}
	}
	members = fn(members)
	slices.Sort(members)
	members = slices.Compact(members)
	body, err := json.Marshal(members)
	if err != nil {
		return err
	}
	_, err = set.store.put(ctx, set.key, Response{Body: body}, set.store.now())
	return err
}

func decodeSet(body []byte) ([]string, error) {
	members := []string{}
	if len(body) == 0 {
		return members, nil
	}
	if err := json.Unmarshal(body, &members); err != nil {
		return nil, fmt.Errorf("stored set is not a list of strings: %w", err)
	}
	return members, nil
}
