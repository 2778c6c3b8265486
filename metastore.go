package gatecache

import (
	"context"
	"sync"
)

// A MetaStore maps a cache key to an ordered list of stored records,
// newest first. Implementations serialize writers to the same key so the
// prepend order stays well-defined; reads see either the state before or
// after a concurrent write, never a torn list.
type MetaStore interface {
	// Lookup returns the records stored under key, newest first. A missing
	// key yields an empty list and no error.
	Lookup(ctx context.Context, key string) ([]Record, error)
	// Store prepends rec under key, pruning older records that the new
	// record supersedes under its Vary rules.
	Store(ctx context.Context, key string, rec Record) error
	// Purge removes every record stored under key. Purging an absent key
	// is not an error.
	Purge(ctx context.Context, key string) error
	// Snapshot returns a copy of the entire store contents, keyed by cache
	// key, or by the hashed key in backends that store hashes. It exists
	// for diagnostics and tests.
	Snapshot(ctx context.Context) (map[string][]Record, error)
}

// PrependRecord returns records with rec prepended, dropping older records
// whose stored request-header subset matches rec's under rec's Vary rules.
// Metadata backends share this to keep replacement semantics uniform.
func PrependRecord(records []Record, rec Record) []Record {
	fields := varyFields(rec.ResponseHeaders)
	out := make([]Record, 0, len(records)+1)
	out = append(out, rec)
	for _, old := range records {
		if supersedes(rec, old, fields) {
			continue
		}
		out = append(out, old)
	}
	return out
}

// supersedes reports whether the new record replaces old: their stored
// request-header subsets agree on every vary dimension of the new record.
func supersedes(rec, old Record, fields []string) bool {
	for _, name := range fields {
		if name == "*" {
			return false
		}
		if !headerValuesEquivalent(rec.RequestHeaders.Get(name), old.RequestHeaders.Get(name)) {
			return false
		}
	}
	return true
}

// MemoryMetaStore is a MetaStore backed by an in-process map. It is safe
// for concurrent use and is the default store for a new Gateway.
type MemoryMetaStore struct {
	mu      sync.RWMutex
	entries map[string][]Record
}

// NewMemoryMetaStore returns an empty in-memory metadata store.
func NewMemoryMetaStore() *MemoryMetaStore {
	return &MemoryMetaStore{entries: map[string][]Record{}}
}

// Lookup returns the records stored under key, newest first.
func (m *MemoryMetaStore) Lookup(_ context.Context, key string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.entries[key]
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out, nil
}

// Store prepends rec under key.
func (m *MemoryMetaStore) Store(_ context.Context, key string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = PrependRecord(m.entries[key], rec.Clone())
	return nil
}

// Purge removes every record stored under key.
func (m *MemoryMetaStore) Purge(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Snapshot returns a deep copy of the store contents.
func (m *MemoryMetaStore) Snapshot(_ context.Context) (map[string][]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]Record, len(m.entries))
	for key, records := range m.entries {
		copied := make([]Record, len(records))
		for i, r := range records {
			copied[i] = r.Clone()
		}
		out[key] = copied
	}
	return out, nil
}
