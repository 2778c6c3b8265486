// Package diskstore provides metadata and entity stores that persist to
// the local filesystem through the diskv package. Entity bodies are
// content-addressed files; metadata records are JSON files keyed by a hash
// of the cache key.
package diskstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path/filepath"
	"sync"

	"github.com/peterbourgon/diskv"

	"github.com/sandrolain/gatecache"
)

// MetaStore is a gatecache.MetaStore backed by one JSON file per cache
// key. Writers to the same key serialize on a process-local mutex; cross-
// process writers last-write-win at the file level.
type MetaStore struct {
	mu sync.Mutex
	d  *diskv.Diskv
}

// NewMetaStore returns a MetaStore rooted at basePath.
func NewMetaStore(basePath string) *MetaStore {
	return &MetaStore{
		d: diskv.New(diskv.Options{
			BasePath:     filepath.Join(basePath, "meta"),
			CacheSizeMax: 8 * 1024 * 1024, // 8MB of hot metadata
		}),
	}
}

// Lookup returns the records stored under key, newest first.
func (m *MetaStore) Lookup(_ context.Context, key string) ([]gatecache.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(key)
}

// Store prepends rec under key.
func (m *MetaStore) Store(_ context.Context, key string, rec gatecache.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.read(key)
	if err != nil {
		// A corrupt file is replaced rather than poisoning every store.
		records = nil
	}
	data, err := gatecache.EncodeRecords(gatecache.PrependRecord(records, rec))
	if err != nil {
		return err
	}
	return m.d.WriteStream(keyToFilename(key), bytes.NewReader(data), true)
}

// Purge removes every record stored under key.
func (m *MetaStore) Purge(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.d.Erase(keyToFilename(key)); err != nil {
		// Erasing a missing key is not an error.
		if m.d.Has(keyToFilename(key)) {
			return err
		}
	}
	return nil
}

// Snapshot returns the full store contents. Filenames are hashes, so the
// snapshot is keyed by hash rather than the original cache key.
func (m *MetaStore) Snapshot(_ context.Context) (map[string][]gatecache.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string][]gatecache.Record{}
	for key := range m.d.Keys(nil) {
		data, err := m.d.Read(key)
		if err != nil {
			continue
		}
		records, err := gatecache.DecodeRecords(data)
		if err != nil {
			continue
		}
		out[key] = records
	}
	return out, nil
}

func (m *MetaStore) read(key string) ([]gatecache.Record, error) {
	data, err := m.d.Read(keyToFilename(key))
	if err != nil {
		// diskv reports missing files as errors; treat as empty.
		return nil, nil
	}
	return gatecache.DecodeRecords(data)
}

// EntityStore is a gatecache.EntityStore storing one file per body digest.
type EntityStore struct {
	d *diskv.Diskv
}

// NewEntityStore returns an EntityStore rooted at basePath.
func NewEntityStore(basePath string) *EntityStore {
	return &EntityStore{
		d: diskv.New(diskv.Options{
			BasePath:     filepath.Join(basePath, "entity"),
			CacheSizeMax: 100 * 1024 * 1024, // 100MB of hot bodies
		}),
	}
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
	if err := e.d.WriteStream(digest, bytes.NewReader(data), true); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// Read returns a reader over the body stored under digest.
func (e *EntityStore) Read(_ context.Context, digest string) (io.ReadCloser, error) {
	rc, err := e.d.ReadStream(digest, false)
	if err != nil {
		return nil, gatecache.ErrEntityNotFound
	}
	return rc, nil
}

// Purge removes the body stored under digest.
func (e *EntityStore) Purge(_ context.Context, digest string) error {
	if !e.d.Has(digest) {
		return nil
	}
	return e.d.Erase(digest)
}

// keyToFilename hashes a cache key into a filesystem-safe name.
func keyToFilename(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

var (
	_ gatecache.MetaStore        = (*MetaStore)(nil)
	_ gatecache.KeyedEntityStore = (*EntityStore)(nil)
)
