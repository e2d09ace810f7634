package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBProvider stores every entry as two records written in one batch:
// "m:<key>" holds the gob encoded entry without the body, "b:<key>" the body.
// Scans only read the "m:" records.
type LevelDBProvider struct {
	db         *leveldb.DB
	writeMutex *sync.Mutex
}

var (
	metaPrefix = []byte("m:")
	blobPrefix = []byte("b:")
)

func NewLevelDBProvider(path string) (LevelDBProvider, error) {
	if path == "" {
		return LevelDBProvider{}, errors.New("leveldb provider needs a directory")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return LevelDBProvider{}, err
	}
	return LevelDBProvider{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func metaKey(key string) []byte {
	return append(append([]byte{}, metaPrefix...), key...)
}

func blobKey(key string) []byte {
	return append(append([]byte{}, blobPrefix...), key...)
}

func (l LevelDBProvider) Get(_ context.Context, key string) (Entry, bool, error) {
	// a snapshot, so that meta and blob come from the same write
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return Entry{}, false, err
	}
	defer snap.Release()
	meta, err := snap.Get(metaKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	if err := decodeGob(meta, &entry); err != nil {
		return Entry{}, false, err
	}
	blob, err := snap.Get(blobKey(key), nil)
	if err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return Entry{}, false, err
	}
	entry.Key = key
	entry.Blob = blob
	return entry, true, nil
}

func (l LevelDBProvider) Put(_ context.Context, entry Entry) error {
	meta, err := encodeGob(withoutBlob(entry))
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put(metaKey(entry.Key), meta)
	batch.Put(blobKey(entry.Key), entry.Blob)
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	return l.db.Write(batch, nil)
}

func (l LevelDBProvider) Delete(_ context.Context, key string) error {
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	return l.delete(key)
}

func (l LevelDBProvider) delete(key string) error {
	batch := new(leveldb.Batch)
	batch.Delete(metaKey(key))
	batch.Delete(blobKey(key))
	return l.db.Write(batch, nil)
}

// DeleteVersion checks the version and deletes while holding the write
// mutex; every write goes through that mutex.
func (l LevelDBProvider) DeleteVersion(_ context.Context, key, version string) (bool, error) {
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	meta, err := l.db.Get(metaKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var entry Entry
	if err := decodeGob(meta, &entry); err != nil {
		return false, err
	}
	if entry.Version != version {
		return false, nil
	}
	return true, l.delete(key)
}

func (l LevelDBProvider) Scan(ctx context.Context, prefix string, fn func(Entry) bool) error {
	it := l.db.NewIterator(util.BytesPrefix(metaKey(prefix)), nil)
	defer it.Release()
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var entry Entry
		if err := decodeGob(it.Value(), &entry); err != nil {
			continue
		}
		entry.Key = string(bytes.TrimPrefix(it.Key(), metaPrefix))
		if !fn(entry) {
			break
		}
	}
	return it.Error()
}

func (l LevelDBProvider) Match(ctx context.Context, substr string, limit int) ([]Entry, error) {
	entries := make([]Entry, 0)
	err := l.Scan(ctx, "", func(e Entry) bool {
		if bytes.Contains([]byte(e.Key), []byte(substr)) {
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

// Clear deletes all records and compacts the whole key range.
func (l LevelDBProvider) Clear(_ context.Context) error {
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	batch := new(leveldb.Batch)
	it := l.db.NewIterator(nil, nil)
	for it.Next() {
		batch.Delete(append([]byte{}, it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}
	if err := l.db.Write(batch, nil); err != nil {
		return err
	}
	return l.db.CompactRange(util.Range{})
}

func (l LevelDBProvider) Close() error {
	return l.db.Close()
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
