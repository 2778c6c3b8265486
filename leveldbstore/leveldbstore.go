// Package leveldbstore provides metadata and entity stores backed by a
// LevelDB database via github.com/syndtr/goleveldb. Both stores can share
// one database; they use disjoint key prefixes.
package leveldbstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/sandrolain/gatecache"
)

const (
	metaPrefix   = "meta:"
	entityPrefix = "entity:"
)

// Open opens (or creates) the database at path and returns both stores on
// top of it. Close the returned database when done.
func Open(path string) (*MetaStore, *EntityStore, *leveldb.DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("leveldb open failed for %q: %w", path, err)
	}
	return NewMetaStore(db), NewEntityStore(db), db, nil
}

// MetaStore is a gatecache.MetaStore persisting record lists as JSON
// values under meta-prefixed keys.
type MetaStore struct {
	mu sync.Mutex
	db *leveldb.DB
}

// NewMetaStore returns a MetaStore on an already-open database.
func NewMetaStore(db *leveldb.DB) *MetaStore {
	return &MetaStore{db: db}
}

// Lookup returns the records stored under key, newest first.
func (m *MetaStore) Lookup(_ context.Context, key string) ([]gatecache.Record, error) {
	data, err := m.db.Get([]byte(metaPrefix+key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("leveldb meta lookup failed for %q: %w", key, err)
	}
	return gatecache.DecodeRecords(data)
}

// Store prepends rec under key.
func (m *MetaStore) Store(ctx context.Context, key string, rec gatecache.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.Lookup(ctx, key)
	if err != nil {
		records = nil
	}
	data, err := gatecache.EncodeRecords(gatecache.PrependRecord(records, rec))
	if err != nil {
		return err
	}
	if err := m.db.Put([]byte(metaPrefix+key), data, nil); err != nil {
		return fmt.Errorf("leveldb meta store failed for %q: %w", key, err)
	}
	return nil
}

// Purge removes every record stored under key.
func (m *MetaStore) Purge(_ context.Context, key string) error {
	if err := m.db.Delete([]byte(metaPrefix+key), nil); err != nil && err != leveldb.ErrNotFound {
		return fmt.Errorf("leveldb meta purge failed for %q: %w", key, err)
	}
	return nil
}

// Snapshot returns the full metadata contents.
func (m *MetaStore) Snapshot(_ context.Context) (map[string][]gatecache.Record, error) {
	out := map[string][]gatecache.Record{}
	iter := m.db.NewIterator(util.BytesPrefix([]byte(metaPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		key := string(iter.Key())[len(metaPrefix):]
		records, err := gatecache.DecodeRecords(append([]byte(nil), iter.Value()...))
		if err != nil {
			continue
		}
		out[key] = records
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// EntityStore is a gatecache.EntityStore storing bodies under
// entity-prefixed keys.
type EntityStore struct {
	db *leveldb.DB
}

// NewEntityStore returns an EntityStore on an already-open database.
func NewEntityStore(db *leveldb.DB) *EntityStore {
	return &EntityStore{db: db}
}

// Write stores body under its computed digest.
func (e *EntityStore) Write(ctx context.Context, body io.Reader) (string, int64, error) {
	return gatecache.WriteEntity(ctx, e, body)
}

// WriteKeyed stores body under the supplied digest.
func (e *EntityStore) WriteKeyed(_ context.Context, digest string, body io.Reader) (int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}
	if err := e.db.Put([]byte(entityPrefix+digest), data, nil); err != nil {
		return 0, fmt.Errorf("leveldb entity write failed for %q: %w", digest, err)
	}
	return int64(len(data)), nil
}

// Read returns a reader over the body stored under digest.
func (e *EntityStore) Read(_ context.Context, digest string) (io.ReadCloser, error) {
	data, err := e.db.Get([]byte(entityPrefix+digest), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, gatecache.ErrEntityNotFound
		}
		return nil, fmt.Errorf("leveldb entity read failed for %q: %w", digest, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Purge removes the body stored under digest.
func (e *EntityStore) Purge(_ context.Context, digest string) error {
	if err := e.db.Delete([]byte(entityPrefix+digest), nil); err != nil && err != leveldb.ErrNotFound {
		return fmt.Errorf("leveldb entity purge failed for %q: %w", digest, err)
	}
	return nil
}

var (
	_ gatecache.MetaStore        = (*MetaStore)(nil)
	_ gatecache.KeyedEntityStore = (*EntityStore)(nil)
)
