package cache

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryProvider keeps entries in a map. It is used in tests and for caches
// that do not need to survive a restart.
type MemoryProvider struct {
	mutex *sync.RWMutex
	db    map[string]Entry
}

func NewMemoryProvider() MemoryProvider {
	return MemoryProvider{
		mutex: &sync.RWMutex{},
		db:    make(map[string]Entry),
	}
}

func (m MemoryProvider) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[key]
	return cloneEntry(entry), ok, nil
}

func (m MemoryProvider) Put(_ context.Context, entry Entry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[entry.Key] = cloneEntry(entry)
	return nil
}

func (m MemoryProvider) Delete(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
	return nil
}

func (m MemoryProvider) DeleteVersion(_ context.Context, key, version string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry, ok := m.db[key]
	if !ok || entry.Version != version {
		return false, nil
	}
	delete(m.db, key)
	return true, nil
}

func (m MemoryProvider) Scan(ctx context.Context, prefix string, fn func(Entry) bool) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for key, entry := range m.db {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(key, prefix) && !fn(cloneEntry(withoutBlob(entry))) {
			return nil
		}
	}
	return nil
}

func (m MemoryProvider) Match(_ context.Context, substr string, limit int) ([]Entry, error) {
	m.mutex.RLock()
	entries := make([]Entry, 0)
	for key, entry := range m.db {
		if strings.Contains(key, substr) {
			entries = append(entries, cloneEntry(withoutBlob(entry)))
		}
	}
	m.mutex.RUnlock()
	sortByResponseDate(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m MemoryProvider) Clear(_ context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	clear(m.db)
	return nil
}

func (m MemoryProvider) Close() error {
	return nil
}

// cloneEntry copies the byte slices so that neither the caller nor the map
// sees later changes made by the other.
func cloneEntry(e Entry) Entry {
	e.Blob = bytes.Clone(e.Blob)
	e.Head = bytes.Clone(e.Head)
	if e.Age != nil {
		e.Age = durationPtr(*e.Age)
	}
	return e
}

// sortByResponseDate orders entries the way Match returns them: oldest
// response first, ties broken by key.
func sortByResponseDate(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ResponseDate.Equal(entries[j].ResponseDate) {
			return entries[i].ResponseDate.Before(entries[j].ResponseDate)
		}
		return entries[i].Key < entries[j].Key
	})
}
