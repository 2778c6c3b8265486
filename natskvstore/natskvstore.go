// Package natskvstore provides metadata and entity stores backed by a NATS
// JetStream Key/Value bucket. Cache keys are hashed before use because
// JetStream restricts the key alphabet.
package natskvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sandrolain/gatecache"
)

const (
	metaKeyPrefix   = "meta."
	entityKeyPrefix = "entity."

	storeRetries = 16
)

// Config holds the configuration for creating the NATS K/V stores.
type Config struct {
	// URL is the NATS server URL. Defaults to nats.DefaultURL.
	URL string

	// Bucket is the name of the K/V bucket. Required.
	Bucket string

	// Description is an optional description for the bucket.
	Description string

	// TTL expires entries after the given duration. Optional; zero means
	// no expiry.
	TTL time.Duration

	// Options are additional options passed to nats.Connect.
	Options []nats.Option
}

// Stores bundles the two stores over one bucket and the owned connection.
type Stores struct {
	Meta   *MetaStore
	Entity *EntityStore

	nc *nats.Conn
}

// New connects to NATS, creates or updates the configured bucket and
// returns both stores. Call Close when done.
func New(ctx context.Context, config Config) (*Stores, error) {
	if config.Bucket == "" {
		return nil, errors.New("natskvstore: bucket name is required")
	}
	url := config.URL
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url, config.Options...)
	if err != nil {
		return nil, fmt.Errorf("natskvstore: connect failed: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natskvstore: jetstream init failed: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: config.Description,
		TTL:         config.TTL,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natskvstore: bucket setup failed: %w", err)
	}

	return &Stores{
		Meta:   NewMetaStore(kv),
		Entity: NewEntityStore(kv),
		nc:     nc,
	}, nil
}

// Close closes the connection owned by New. It is a no-op for stores built
// directly on a caller-provided KeyValue.
func (s *Stores) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// MetaStore is a gatecache.MetaStore over a JetStream K/V bucket. Stores
// use the bucket revision for optimistic concurrency, so writers to the
// same key serialize across processes.
type MetaStore struct {
	kv jetstream.KeyValue
}

// NewMetaStore returns a MetaStore over an existing bucket.
func NewMetaStore(kv jetstream.KeyValue) *MetaStore {
	return &MetaStore{kv: kv}
}

// Lookup returns the records stored under key, newest first.
func (m *MetaStore) Lookup(ctx context.Context, key string) ([]gatecache.Record, error) {
	entry, err := m.kv.Get(ctx, metaKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("nats meta lookup failed for %q: %w", key, err)
	}
	return gatecache.DecodeRecords(entry.Value())
}

// Store prepends rec under key, retrying on revision conflicts.
func (m *MetaStore) Store(ctx context.Context, key string, rec gatecache.Record) error {
	kkey := metaKey(key)

	var lastErr error
	for i := 0; i < storeRetries; i++ {
		entry, err := m.kv.Get(ctx, kkey)
		var records []gatecache.Record
		var revision uint64
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
			// create below
		case err != nil:
			return fmt.Errorf("nats meta store failed for %q: %w", key, err)
		default:
			revision = entry.Revision()
			if records, err = gatecache.DecodeRecords(entry.Value()); err != nil {
				records = nil
			}
		}

		data, err := gatecache.EncodeRecords(gatecache.PrependRecord(records, rec))
		if err != nil {
			return err
		}
		if revision == 0 {
			_, lastErr = m.kv.Create(ctx, kkey, data)
		} else {
			_, lastErr = m.kv.Update(ctx, kkey, data, revision)
		}
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, jetstream.ErrKeyExists) && !isWrongSequence(lastErr) {
			return fmt.Errorf("nats meta store failed for %q: %w", key, lastErr)
		}
	}
	return fmt.Errorf("nats meta store contention for %q: %w", key, lastErr)
}

// Purge removes every record stored under key.
func (m *MetaStore) Purge(ctx context.Context, key string) error {
	if err := m.kv.Delete(ctx, metaKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats meta purge failed for %q: %w", key, err)
	}
	return nil
}

// Snapshot returns the metadata contents. Keys are hashes of the original
// cache keys.
func (m *MetaStore) Snapshot(ctx context.Context) (map[string][]gatecache.Record, error) {
	out := map[string][]gatecache.Record{}
	lister, err := m.kv.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	for key := range lister.Keys() {
		if len(key) <= len(metaKeyPrefix) || key[:len(metaKeyPrefix)] != metaKeyPrefix {
			continue
		}
		entry, err := m.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		records, err := gatecache.DecodeRecords(entry.Value())
		if err != nil {
			continue
		}
		out[key[len(metaKeyPrefix):]] = records
	}
	return out, nil
}

// EntityStore is a gatecache.EntityStore over a JetStream K/V bucket.
type EntityStore struct {
	kv jetstream.KeyValue
}

// NewEntityStore returns an EntityStore over an existing bucket.
func NewEntityStore(kv jetstream.KeyValue) *EntityStore {
	return &EntityStore{kv: kv}
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
	if _, err := e.kv.Put(ctx, entityKeyPrefix+digest, data); err != nil {
		return 0, fmt.Errorf("nats entity write failed for %q: %w", digest, err)
	}
	return int64(len(data)), nil
}

// Read returns a reader over the body stored under digest.
func (e *EntityStore) Read(ctx context.Context, digest string) (io.ReadCloser, error) {
	entry, err := e.kv.Get(ctx, entityKeyPrefix+digest)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, gatecache.ErrEntityNotFound
		}
		return nil, fmt.Errorf("nats entity read failed for %q: %w", digest, err)
	}
	return io.NopCloser(bytes.NewReader(entry.Value())), nil
}

// Purge removes the body stored under digest.
func (e *EntityStore) Purge(ctx context.Context, digest string) error {
	if err := e.kv.Delete(ctx, entityKeyPrefix+digest); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats entity purge failed for %q: %w", digest, err)
	}
	return nil
}

// metaKey hashes a cache key into the JetStream key alphabet.
func metaKey(key string) string {
	return metaKeyPrefix + gatecache.EntityDigest([]byte(key))
}

func isWrongSequence(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}

var (
	_ gatecache.MetaStore        = (*MetaStore)(nil)
	_ gatecache.KeyedEntityStore = (*EntityStore)(nil)
)
