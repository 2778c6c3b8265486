// Package mongostore provides metadata and entity stores backed by MongoDB
// via the official driver. Metadata lists are replaced whole-document, so
// per-key writes serialize on MongoDB's document-level atomicity plus a
// process-local mutex for the read-modify-write.
package mongostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sandrolain/gatecache"
)

// Config holds the configuration for creating the MongoDB stores.
type Config struct {
	// URI is the MongoDB connection URI (e.g., "mongodb://localhost:27017").
	// Required.
	URI string

	// Database is the database name. Required.
	Database string

	// MetaCollection is the metadata collection name.
	// Optional - defaults to "gatecache_meta".
	MetaCollection string

	// EntityCollection is the entity collection name.
	// Optional - defaults to "gatecache_entity".
	EntityCollection string

	// Timeout bounds database operations. Optional - defaults to 5s.
	Timeout time.Duration

	// TTL, when set, creates a TTL index expiring documents after the
	// given duration.
	TTL time.Duration

	// ClientOptions are additional options passed to mongo.Connect.
	ClientOptions *options.ClientOptions
}

type metaDoc struct {
	Key       string    `bson:"_id"`
	Records   []byte    `bson:"records"`
	CreatedAt time.Time `bson:"createdAt"`
}

type entityDoc struct {
	Digest    string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Stores bundles the two stores and the owned client.
type Stores struct {
	Meta   *MetaStore
	Entity *EntityStore

	client *mongo.Client
}

// New connects to MongoDB and returns both stores. Call Close when done.
func New(ctx context.Context, config Config) (*Stores, error) {
	if config.URI == "" || config.Database == "" {
		return nil, errors.New("mongostore: URI and Database are required")
	}
	if config.MetaCollection == "" {
		config.MetaCollection = "gatecache_meta"
	}
	if config.EntityCollection == "" {
		config.EntityCollection = "gatecache_entity"
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	opts := config.ClientOptions
	if opts == nil {
		opts = options.Client()
	}
	opts = opts.ApplyURI(config.URI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}
	db := client.Database(config.Database)

	s := &Stores{
		Meta:   &MetaStore{coll: db.Collection(config.MetaCollection), timeout: config.Timeout},
		Entity: &EntityStore{coll: db.Collection(config.EntityCollection), timeout: config.Timeout},
		client: client,
	}
	if config.TTL > 0 {
		if err := s.createTTLIndexes(ctx, config.TTL); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
	}
	return s, nil
}

func (s *Stores) createTTLIndexes(ctx context.Context, ttl time.Duration) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
	}
	for _, coll := range []*mongo.Collection{s.Meta.coll, s.Entity.coll} {
		if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("mongostore: TTL index creation failed: %w", err)
		}
	}
	return nil
}

// Close disconnects the client owned by New.
func (s *Stores) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// MetaStore is a gatecache.MetaStore storing one document per cache key.
type MetaStore struct {
	mu      sync.Mutex
	coll    *mongo.Collection
	timeout time.Duration
}

func (m *MetaStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

// Lookup returns the records stored under key, newest first.
func (m *MetaStore) Lookup(ctx context.Context, key string) ([]gatecache.Record, error) {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	var doc metaDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongo meta lookup failed for %q: %w", key, err)
	}
	return gatecache.DecodeRecords(doc.Records)
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

	ctx, cancel := m.opCtx(ctx)
	defer cancel()
	doc := metaDoc{Key: key, Records: data, CreatedAt: time.Now()}
	_, err = m.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo meta store failed for %q: %w", key, err)
	}
	return nil
}

// Purge removes every record stored under key.
func (m *MetaStore) Purge(ctx context.Context, key string) error {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()
	if _, err := m.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("mongo meta purge failed for %q: %w", key, err)
	}
	return nil
}

// Snapshot returns the full metadata contents.
func (m *MetaStore) Snapshot(ctx context.Context) (map[string][]gatecache.Record, error) {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	cursor, err := m.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	out := map[string][]gatecache.Record{}
	for cursor.Next(ctx) {
		var doc metaDoc
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		records, err := gatecache.DecodeRecords(doc.Records)
		if err != nil {
			continue
		}
		out[doc.Key] = records
	}
	return out, cursor.Err()
}

// EntityStore is a gatecache.EntityStore storing one document per digest.
type EntityStore struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func (e *EntityStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
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
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	doc := entityDoc{Digest: digest, Data: data, CreatedAt: time.Now()}
	_, err = e.coll.ReplaceOne(ctx, bson.M{"_id": digest}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return 0, fmt.Errorf("mongo entity write failed for %q: %w", digest, err)
	}
	return int64(len(data)), nil
}

// Read returns a reader over the body stored under digest.
func (e *EntityStore) Read(ctx context.Context, digest string) (io.ReadCloser, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	var doc entityDoc
	err := e.coll.FindOne(ctx, bson.M{"_id": digest}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gatecache.ErrEntityNotFound
		}
		return nil, fmt.Errorf("mongo entity read failed for %q: %w", digest, err)
	}
	return io.NopCloser(bytes.NewReader(doc.Data)), nil
}

// Purge removes the body stored under digest.
func (e *EntityStore) Purge(ctx context.Context, digest string) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	if _, err := e.coll.DeleteOne(ctx, bson.M{"_id": digest}); err != nil {
		return fmt.Errorf("mongo entity purge failed for %q: %w", digest, err)
	}
	return nil
}

var (
	_ gatecache.MetaStore        = (*MetaStore)(nil)
	_ gatecache.KeyedEntityStore = (*EntityStore)(nil)
)
