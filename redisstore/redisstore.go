// Package redisstore provides metadata and entity stores backed by a Redis
// server via github.com/redis/go-redis/v9. Metadata read-modify-write runs
// inside an optimistic WATCH transaction so concurrent writers to the same
// key serialize across processes.
package redisstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandrolain/gatecache"
)

const (
	metaKeyPrefix   = "gatecache:meta:"
	entityKeyPrefix = "gatecache:entity:"

	// storeRetries bounds the optimistic transaction loop.
	storeRetries = 16
)

// Config holds the configuration for creating the Redis stores.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	// Required unless Client is set.
	Address string

	// Password is the Redis password for authentication. Optional.
	Password string

	// DB is the Redis database number to use. Optional, defaults to 0.
	DB int

	// TTL expires stored keys after the given duration. Optional; zero
	// means no expiry.
	TTL time.Duration

	// Client is an optional pre-built client; when set, Address, Password
	// and DB are ignored and the caller owns the client's lifecycle.
	Client *redis.Client
}

func (c Config) client() (*redis.Client, error) {
	if c.Client != nil {
		return c.Client, nil
	}
	if c.Address == "" {
		return nil, errors.New("redisstore: address is required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Address,
		Password: c.Password,
		DB:       c.DB,
	}), nil
}

// MetaStore is a gatecache.MetaStore persisting record lists as JSON
// values.
type MetaStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMetaStore returns a MetaStore for the given configuration.
func NewMetaStore(config Config) (*MetaStore, error) {
	rdb, err := config.client()
	if err != nil {
		return nil, err
	}
	return &MetaStore{rdb: rdb, ttl: config.TTL}, nil
}

// Lookup returns the records stored under key, newest first.
func (m *MetaStore) Lookup(ctx context.Context, key string) ([]gatecache.Record, error) {
	data, err := m.rdb.Get(ctx, metaKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis meta lookup failed for %q: %w", key, err)
	}
	return gatecache.DecodeRecords(data)
}

// Store prepends rec under key inside a WATCH transaction, retrying on
// concurrent modification.
func (m *MetaStore) Store(ctx context.Context, key string, rec gatecache.Record) error {
	rkey := metaKeyPrefix + key

	txf := func(tx *redis.Tx) error {
		var records []gatecache.Record
		data, err := tx.Get(ctx, rkey).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			if records, err = gatecache.DecodeRecords(data); err != nil {
				records = nil
			}
		}
		encoded, err := gatecache.EncodeRecords(gatecache.PrependRecord(records, rec))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, encoded, m.ttl)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < storeRetries; i++ {
		err = m.rdb.Watch(ctx, txf, rkey)
		if err != redis.TxFailedErr {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("redis meta store failed for %q: %w", key, err)
	}
	return nil
}

// Purge removes every record stored under key.
func (m *MetaStore) Purge(ctx context.Context, key string) error {
	if err := m.rdb.Del(ctx, metaKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis meta purge failed for %q: %w", key, err)
	}
	return nil
}

// Snapshot scans the metadata keyspace and returns its contents.
func (m *MetaStore) Snapshot(ctx context.Context) (map[string][]gatecache.Record, error) {
	out := map[string][]gatecache.Record{}
	iter := m.rdb.Scan(ctx, 0, metaKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		rkey := iter.Val()
		data, err := m.rdb.Get(ctx, rkey).Bytes()
		if err != nil {
			continue
		}
		records, err := gatecache.DecodeRecords(data)
		if err != nil {
			continue
		}
		out[rkey[len(metaKeyPrefix):]] = records
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// EntityStore is a gatecache.EntityStore storing bodies as plain values.
type EntityStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewEntityStore returns an EntityStore for the given configuration.
func NewEntityStore(config Config) (*EntityStore, error) {
	rdb, err := config.client()
	if err != nil {
		return nil, err
	}
	return &EntityStore{rdb: rdb, ttl: config.TTL}, nil
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
	if err := e.rdb.Set(ctx, entityKeyPrefix+digest, data, e.ttl).Err(); err != nil {
		return 0, fmt.Errorf("redis entity write failed for %q: %w", digest, err)
	}
	return int64(len(data)), nil
}

// Read returns a reader over the body stored under digest.
func (e *EntityStore) Read(ctx context.Context, digest string) (io.ReadCloser, error) {
	data, err := e.rdb.Get(ctx, entityKeyPrefix+digest).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, gatecache.ErrEntityNotFound
		}
		return nil, fmt.Errorf("redis entity read failed for %q: %w", digest, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Purge removes the body stored under digest.
func (e *EntityStore) Purge(ctx context.Context, digest string) error {
	if err := e.rdb.Del(ctx, entityKeyPrefix+digest).Err(); err != nil {
		return fmt.Errorf("redis entity purge failed for %q: %w", digest, err)
	}
	return nil
}

var (
	_ gatecache.MetaStore        = (*MetaStore)(nil)
	_ gatecache.KeyedEntityStore = (*EntityStore)(nil)
)
