// Package freecachestore provides an entity store backed by
// github.com/coocood/freecache: a fixed-size, zero-GC in-memory ring with
// LRU eviction. Bodies evicted under memory pressure simply read back as
// missing, which the gateway treats as a miss.
//
// No MetaStore is provided: freecache caps value sizes at 1/1024 of the
// cache and evicts silently, both of which break the ordered-record-list
// contract. Pair this entity store with any metadata backend.
package freecachestore

import (
	"bytes"
	"context"
	"io"

	"github.com/coocood/freecache"

	"github.com/sandrolain/gatecache"
)

// EntityStore is a gatecache.EntityStore over a freecache ring.
type EntityStore struct {
	cache *freecache.Cache
}

// New returns an EntityStore with the given ring size in bytes. freecache
// enforces a 512KB minimum.
func New(size int) *EntityStore {
	return &EntityStore{cache: freecache.NewCache(size)}
}

// NewWithCache returns an EntityStore over an existing freecache instance.
func NewWithCache(cache *freecache.Cache) *EntityStore {
	return &EntityStore{cache: cache}
}

// Write stores body under its computed digest.
func (e *EntityStore) Write(ctx context.Context, body io.Reader) (string, int64, error) {
	return gatecache.WriteEntity(ctx, e, body)
}

// WriteKeyed stores body under the supplied digest. Entries never expire;
// they leave only by LRU eviction.
func (e *EntityStore) WriteKeyed(_ context.Context, digest string, body io.Reader) (int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}
	if err := e.cache.Set([]byte(digest), data, 0); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// Read returns a reader over the body stored under digest.
func (e *EntityStore) Read(_ context.Context, digest string) (io.ReadCloser, error) {
	data, err := e.cache.Get([]byte(digest))
	if err != nil {
		return nil, gatecache.ErrEntityNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Purge removes the body stored under digest.
func (e *EntityStore) Purge(_ context.Context, digest string) error {
	e.cache.Del([]byte(digest))
	return nil
}

// Clear removes every stored body.
func (e *EntityStore) Clear() {
	e.cache.Clear()
}

var _ gatecache.KeyedEntityStore = (*EntityStore)(nil)
