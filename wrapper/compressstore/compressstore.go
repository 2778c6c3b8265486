// Package compressstore wraps an entity store with transparent
// compression, reducing storage for text-heavy response bodies. Gzip,
// brotli and snappy codecs are provided.
//
// Digests keep addressing the uncompressed body, so cached entries verify
// unchanged against X-Content-Digest when read back.
package compressstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sandrolain/gatecache"
)

const (
	markerRaw        = 0x00
	markerCompressed = 0x01

	// defaultMinSize is the body size below which compression is skipped.
	defaultMinSize = 256
)

// Stats holds compression statistics.
type Stats struct {
	CompressedBytes   int64   // total bytes after compression
	UncompressedBytes int64   // total bytes before compression
	CompressedCount   int64   // number of compressed bodies
	UncompressedCount int64   // number of bodies stored raw (too small)
	CompressionRatio  float64 // compressed/uncompressed, lower is better
	SavingsPercent    float64 // space savings percentage
}

type compressFunc func([]byte) ([]byte, error)
type decompressFunc func([]byte) ([]byte, error)

// baseStore provides the shared wrapping logic for all codecs.
type baseStore struct {
	inner      gatecache.KeyedEntityStore
	minSize    int
	compress   compressFunc
	decompress decompressFunc

	compressedBytes   atomic.Int64
	uncompressedBytes atomic.Int64
	compressedCount   atomic.Int64
	uncompressedCount atomic.Int64
}

func newBaseStore(inner gatecache.KeyedEntityStore, minSize int, c compressFunc, d decompressFunc) (*baseStore, error) {
	if inner == nil {
		return nil, fmt.Errorf("compressstore: inner store cannot be nil")
	}
	if minSize <= 0 {
		minSize = defaultMinSize
	}
	return &baseStore{inner: inner, minSize: minSize, compress: c, decompress: d}, nil
}

// Write stores body under its computed digest.
func (s *baseStore) Write(ctx context.Context, body io.Reader) (string, int64, error) {
	return gatecache.WriteEntity(ctx, s, body)
}

// WriteKeyed compresses body when worthwhile and stores it under digest
// with a one-byte marker.
func (s *baseStore) WriteKeyed(ctx context.Context, digest string, body io.Reader) (int64, error) {
	plain, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}

	stored := make([]byte, 1, len(plain)+1)
	if len(plain) < s.minSize {
		stored[0] = markerRaw
		stored = append(stored, plain...)
		s.uncompressedCount.Add(1)
	} else {
		compressed, err := s.compress(plain)
		if err != nil {
			return 0, fmt.Errorf("compressstore: compression failed for %q: %w", digest, err)
		}
		stored[0] = markerCompressed
		stored = append(stored, compressed...)
		s.compressedCount.Add(1)
		s.compressedBytes.Add(int64(len(compressed)))
		s.uncompressedBytes.Add(int64(len(plain)))
	}

	if _, err := s.inner.WriteKeyed(ctx, digest, bytes.NewReader(stored)); err != nil {
		return 0, err
	}
	return int64(len(plain)), nil
}

// Read returns the decompressed body stored under digest.
func (s *baseStore) Read(ctx context.Context, digest string) (io.ReadCloser, error) {
	rc, err := s.inner.Read(ctx, digest)
	if err != nil {
		return nil, err
	}
	stored, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	if len(stored) == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	switch stored[0] {
	case markerRaw:
		return io.NopCloser(bytes.NewReader(stored[1:])), nil
	case markerCompressed:
		plain, err := s.decompress(stored[1:])
		if err != nil {
			return nil, fmt.Errorf("compressstore: decompression failed for %q: %w", digest, err)
		}
		return io.NopCloser(bytes.NewReader(plain)), nil
	default:
		return nil, fmt.Errorf("compressstore: unknown marker %#x for %q", stored[0], digest)
	}
}

// Purge removes the body stored under digest.
func (s *baseStore) Purge(ctx context.Context, digest string) error {
	return s.inner.Purge(ctx, digest)
}

// Stats returns compression statistics.
func (s *baseStore) Stats() Stats {
	stats := Stats{
		CompressedBytes:   s.compressedBytes.Load(),
		UncompressedBytes: s.uncompressedBytes.Load(),
		CompressedCount:   s.compressedCount.Load(),
		UncompressedCount: s.uncompressedCount.Load(),
	}
	if stats.UncompressedBytes > 0 {
		stats.CompressionRatio = float64(stats.CompressedBytes) / float64(stats.UncompressedBytes)
		stats.SavingsPercent = (1 - stats.CompressionRatio) * 100
	}
	return stats
}
