package compressstore

import (
	"fmt"

	"github.com/golang/snappy"

	"github.com/sandrolain/gatecache"
)

// SnappyStore wraps an entity store with snappy compression: fastest,
// lower ratio.
type SnappyStore struct {
	*baseStore
}

// SnappyConfig holds the configuration for snappy compression.
type SnappyConfig struct {
	// Store is the underlying entity store (required).
	Store gatecache.KeyedEntityStore

	// MinSize is the body size below which compression is skipped
	// (default: 256 bytes).
	MinSize int
}

// NewSnappy returns a SnappyStore.
func NewSnappy(config SnappyConfig) (*SnappyStore, error) {
	compress := func(data []byte) ([]byte, error) {
		return snappy.Encode(nil, data), nil
	}
	decompress := func(data []byte) ([]byte, error) {
		plain, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("snappy decode failed: %w", err)
		}
		return plain, nil
	}

	base, err := newBaseStore(config.Store, config.MinSize, compress, decompress)
	if err != nil {
		return nil, err
	}
	return &SnappyStore{baseStore: base}, nil
}

var _ gatecache.KeyedEntityStore = (*SnappyStore)(nil)
