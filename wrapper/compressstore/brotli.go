package compressstore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/sandrolain/gatecache"
)

// BrotliStore wraps an entity store with brotli compression: best ratio,
// slower writes.
type BrotliStore struct {
	*baseStore
}

// BrotliConfig holds the configuration for brotli compression.
type BrotliConfig struct {
	// Store is the underlying entity store (required).
	Store gatecache.KeyedEntityStore

	// Quality is the brotli quality, 1-11; 0 selects
	// brotli.DefaultCompression.
	Quality int

	// MinSize is the body size below which compression is skipped
	// (default: 256 bytes).
	MinSize int
}

// NewBrotli returns a BrotliStore.
func NewBrotli(config BrotliConfig) (*BrotliStore, error) {
	quality := config.Quality
	if quality == 0 {
		quality = brotli.DefaultCompression
	}
	if quality < brotli.BestSpeed || quality > brotli.BestCompression {
		return nil, fmt.Errorf("compressstore: invalid brotli quality %d", quality)
	}

	compress := func(data []byte) ([]byte, error) {
		var buf bytes.Buffer
		w := brotli.NewWriterLevel(&buf, quality)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	decompress := func(data []byte) ([]byte, error) {
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	}

	base, err := newBaseStore(config.Store, config.MinSize, compress, decompress)
	if err != nil {
		return nil, err
	}
	return &BrotliStore{baseStore: base}, nil
}

var _ gatecache.KeyedEntityStore = (*BrotliStore)(nil)
