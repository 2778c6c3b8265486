package compressstore

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/sandrolain/gatecache"
)

// GzipStore wraps an entity store with gzip compression: a good balance of
// ratio and speed.
type GzipStore struct {
	*baseStore
}

// GzipConfig holds the configuration for gzip compression.
type GzipConfig struct {
	// Store is the underlying entity store (required).
	Store gatecache.KeyedEntityStore

	// Level is the gzip compression level (default:
	// gzip.DefaultCompression).
	Level int

	// MinSize is the body size below which compression is skipped
	// (default: 256 bytes).
	MinSize int
}

// NewGzip returns a GzipStore.
func NewGzip(config GzipConfig) (*GzipStore, error) {
	level := config.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("compressstore: invalid gzip level %d", level)
	}

	compress := func(data []byte) ([]byte, error) {
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, level)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	decompress := func(data []byte) ([]byte, error) {
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		plain, err := io.ReadAll(r)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		return plain, err
	}

	base, err := newBaseStore(config.Store, config.MinSize, compress, decompress)
	if err != nil {
		return nil, err
	}
	return &GzipStore{baseStore: base}, nil
}

var _ gatecache.KeyedEntityStore = (*GzipStore)(nil)
