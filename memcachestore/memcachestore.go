// Package memcachestore provides metadata and entity stores backed by
// memcache servers via github.com/bradfitz/gomemcache. Metadata
// read-modify-write uses compare-and-swap so concurrent writers to the
// same key serialize across processes.
package memcachestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/sandrolain/gatecache"
)

const (
	metaKeyPrefix   = "gatecache:meta:"
	entityKeyPrefix = "gatecache:entity:"

	storeRetries = 16
)

// MetaStore is a gatecache.MetaStore persisting record lists as JSON
// values. Snapshot is unsupported: memcache cannot enumerate its keyspace.
type MetaStore struct {
	client *memcache.Client
}

// NewMetaStore returns a MetaStore using the provided memcache server(s)
// with equal weight.
func NewMetaStore(servers ...string) *MetaStore {
	return NewMetaStoreWithClient(memcache.New(servers...))
}

// NewMetaStoreWithClient returns a MetaStore with the given client.
func NewMetaStoreWithClient(client *memcache.Client) *MetaStore {
	return &MetaStore{client: client}
}

// Lookup returns the records stored under key, newest first.
func (m *MetaStore) Lookup(_ context.Context, key string) ([]gatecache.Record, error) {
	item, err := m.client.Get(hashKey(metaKeyPrefix, key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("memcache meta lookup failed for %q: %w", key, err)
	}
	return gatecache.DecodeRecords(item.Value)
}

// Store prepends rec under key with a compare-and-swap loop.
func (m *MetaStore) Store(_ context.Context, key string, rec gatecache.Record) error {
	mkey := hashKey(metaKeyPrefix, key)

	var lastErr error
	for i := 0; i < storeRetries; i++ {
		item, err := m.client.Get(mkey)
		switch {
		case errors.Is(err, memcache.ErrCacheMiss):
			data, eerr := gatecache.EncodeRecords(gatecache.PrependRecord(nil, rec))
			if eerr != nil {
				return eerr
			}
			lastErr = m.client.Add(&memcache.Item{Key: mkey, Value: data})
			if !errors.Is(lastErr, memcache.ErrNotStored) {
				return lastErr
			}
		case err != nil:
			return fmt.Errorf("memcache meta store failed for %q: %w", key, err)
		default:
			records, derr := gatecache.DecodeRecords(item.Value)
			if derr != nil {
				records = nil
			}
			data, eerr := gatecache.EncodeRecords(gatecache.PrependRecord(records, rec))
			if eerr != nil {
				return eerr
			}
			item.Value = data
			lastErr = m.client.CompareAndSwap(item)
			if !errors.Is(lastErr, memcache.ErrCASConflict) {
				return lastErr
			}
		}
	}
	return fmt.Errorf("memcache meta store contention for %q: %w", key, lastErr)
}

// Purge removes every record stored under key.
func (m *MetaStore) Purge(_ context.Context, key string) error {
	err := m.client.Delete(hashKey(metaKeyPrefix, key))
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("memcache meta purge failed for %q: %w", key, err)
	}
	return nil
}

// Snapshot is unsupported on memcache.
func (m *MetaStore) Snapshot(_ context.Context) (map[string][]gatecache.Record, error) {
	return nil, errors.New("memcachestore: snapshot not supported")
}

// EntityStore is a gatecache.EntityStore storing bodies as plain values.
type EntityStore struct {
	client *memcache.Client
}

// NewEntityStore returns an EntityStore using the provided memcache
// server(s) with equal weight.
func NewEntityStore(servers ...string) *EntityStore {
	return NewEntityStoreWithClient(memcache.New(servers...))
}

// NewEntityStoreWithClient returns an EntityStore with the given client.
func NewEntityStoreWithClient(client *memcache.Client) *EntityStore {
	return &EntityStore{client: client}
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
	if err := e.client.Set(&memcache.Item{Key: entityKeyPrefix + digest, Value: data}); err != nil {
		return 0, fmt.Errorf("memcache entity write failed for %q: %w", digest, err)
	}
	return int64(len(data)), nil
}

// Read returns a reader over the body stored under digest.
func (e *EntityStore) Read(_ context.Context, digest string) (io.ReadCloser, error) {
	item, err := e.client.Get(entityKeyPrefix + digest)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, gatecache.ErrEntityNotFound
		}
		return nil, fmt.Errorf("memcache entity read failed for %q: %w", digest, err)
	}
	return io.NopCloser(bytes.NewReader(item.Value)), nil
}

// Purge removes the body stored under digest.
func (e *EntityStore) Purge(_ context.Context, digest string) error {
	err := e.client.Delete(entityKeyPrefix + digest)
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("memcache entity purge failed for %q: %w", digest, err)
	}
	return nil
}

// hashKey folds a cache key into memcache's 250-byte key limit.
func hashKey(prefix, key string) string {
	return prefix + gatecache.EntityDigest([]byte(key))
}

var (
	_ gatecache.MetaStore        = (*MetaStore)(nil)
	_ gatecache.KeyedEntityStore = (*EntityStore)(nil)
)
