// Package hazelcaststore provides metadata and entity stores backed by a
// Hazelcast cluster map. Per-key metadata writes serialize on the map's
// distributed key lock.
package hazelcaststore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hazelcast/hazelcast-go-client"

	"github.com/sandrolain/gatecache"
)

const (
	metaKeyPrefix   = "gatecache:meta:"
	entityKeyPrefix = "gatecache:entity:"
)

// Stores bundles the two stores over one map and the owned client.
type Stores struct {
	Meta   *MetaStore
	Entity *EntityStore

	client *hazelcast.Client
}

// New starts a Hazelcast client with the given configuration (nil for
// defaults) and returns both stores over the named map. Call Close when
// done.
func New(ctx context.Context, mapName string, config *hazelcast.Config) (*Stores, error) {
	if mapName == "" {
		return nil, errors.New("hazelcaststore: map name is required")
	}

	var client *hazelcast.Client
	var err error
	if config != nil {
		client, err = hazelcast.StartNewClientWithConfig(ctx, *config)
	} else {
		client, err = hazelcast.StartNewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("hazelcaststore: client start failed: %w", err)
	}

	m, err := client.GetMap(ctx, mapName)
	if err != nil {
		_ = client.Shutdown(ctx)
		return nil, fmt.Errorf("hazelcaststore: map %q unavailable: %w", mapName, err)
	}

	return &Stores{
		Meta:   NewMetaStore(m),
		Entity: NewEntityStore(m),
		client: client,
	}, nil
}

// Close shuts down the client owned by New.
func (s *Stores) Close(ctx context.Context) error {
	if s.client != nil {
		return s.client.Shutdown(ctx)
	}
	return nil
}

// MetaStore is a gatecache.MetaStore over a Hazelcast map.
type MetaStore struct {
	m *hazelcast.Map
}

// NewMetaStore returns a MetaStore over an existing map.
func NewMetaStore(m *hazelcast.Map) *MetaStore {
	return &MetaStore{m: m}
}

// Lookup returns the records stored under key, newest first.
func (m *MetaStore) Lookup(ctx context.Context, key string) ([]gatecache.Record, error) {
	val, err := m.m.Get(ctx, metaKeyPrefix+key)
	if err != nil {
		return nil, fmt.Errorf("hazelcast meta lookup failed for %q: %w", key, err)
	}
	if val == nil {
		return nil, nil
	}
	data, ok := val.([]byte)
	if !ok {
		return nil, fmt.Errorf("hazelcast meta lookup failed for %q: unexpected value type %T", key, val)
	}
	return gatecache.DecodeRecords(data)
}

// Store prepends rec under key, holding the map's key lock for the
// read-modify-write.
func (m *MetaStore) Store(ctx context.Context, key string, rec gatecache.Record) error {
	mkey := metaKeyPrefix + key

	lockCtx := m.m.NewLockContext(ctx)
	if err := m.m.Lock(lockCtx, mkey); err != nil {
		return fmt.Errorf("hazelcast meta store failed for %q: %w", key, err)
	}
	defer func() { _ = m.m.Unlock(lockCtx, mkey) }()

	var records []gatecache.Record
	val, err := m.m.Get(lockCtx, mkey)
	if err != nil {
		return fmt.Errorf("hazelcast meta store failed for %q: %w", key, err)
	}
	if data, ok := val.([]byte); ok {
		if records, err = gatecache.DecodeRecords(data); err != nil {
			records = nil
		}
	}

	data, err := gatecache.EncodeRecords(gatecache.PrependRecord(records, rec))
	if err != nil {
		return err
	}
	if err := m.m.Set(lockCtx, mkey, data); err != nil {
		return fmt.Errorf("hazelcast meta store failed for %q: %w", key, err)
	}
	return nil
}

// Purge removes every record stored under key.
func (m *MetaStore) Purge(ctx context.Context, key string) error {
	if _, err := m.m.Remove(ctx, metaKeyPrefix+key); err != nil {
		return fmt.Errorf("hazelcast meta purge failed for %q: %w", key, err)
	}
	return nil
}

// Snapshot returns the metadata contents of the map.
func (m *MetaStore) Snapshot(ctx context.Context) (map[string][]gatecache.Record, error) {
	keys, err := m.m.GetKeySet(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string][]gatecache.Record{}
	for _, k := range keys {
		skey, ok := k.(string)
		if !ok || len(skey) <= len(metaKeyPrefix) || skey[:len(metaKeyPrefix)] != metaKeyPrefix {
			continue
		}
		val, err := m.m.Get(ctx, skey)
		if err != nil {
			continue
		}
		data, ok := val.([]byte)
		if !ok {
			continue
		}
		records, err := gatecache.DecodeRecords(data)
		if err != nil {
			continue
		}
		out[skey[len(metaKeyPrefix):]] = records
	}
	return out, nil
}

// EntityStore is a gatecache.EntityStore over a Hazelcast map.
type EntityStore struct {
	m *hazelcast.Map
}

// NewEntityStore returns an EntityStore over an existing map.
func NewEntityStore(m *hazelcast.Map) *EntityStore {
	return &EntityStore{m: m}
}

// Write stores body under its computed digest.
func (e *EntityStore) Write(ctx context.Context, body io.Reader) (string, int64, error) {
	return gatecache.WriteEntity(ctx, e, body)
}

// WriteKeyed stores body under the supplied digest.
func (e *EntityStore) WriteKeyed(ctx context.Context, digest string, body io.Reader) (int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}
	if err := e.m.Set(ctx, entityKeyPrefix+digest, data); err != nil {
		return 0, fmt.Errorf("hazelcast entity write failed for %q: %w", digest, err)
	}
	return int64(len(data)), nil
}

// Read returns a reader over the body stored under digest.
func (e *EntityStore) Read(ctx context.Context, digest string) (io.ReadCloser, error) {
	val, err := e.m.Get(ctx, entityKeyPrefix+digest)
	if err != nil {
		return nil, fmt.Errorf("hazelcast entity read failed for %q: %w", digest, err)
	}
	data, ok := val.([]byte)
	if !ok {
		return nil, gatecache.ErrEntityNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Purge removes the body stored under digest.
func (e *EntityStore) Purge(ctx context.Context, digest string) error {
	if _, err := e.m.Remove(ctx, entityKeyPrefix+digest); err != nil {
		return fmt.Errorf("hazelcast entity purge failed for %q: %w", digest, err)
	}
	return nil
}

var (
	_ gatecache.MetaStore        = (*MetaStore)(nil)
	_ gatecache.KeyedEntityStore = (*EntityStore)(nil)
)
