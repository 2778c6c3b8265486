package compressstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandrolain/gatecache"
	"github.com/sandrolain/gatecache/test"
)

func codecs(t *testing.T) map[string]gatecache.KeyedEntityStore {
	t.Helper()
	gz, err := NewGzip(GzipConfig{Store: gatecache.NewMemoryEntityStore()})
	require.NoError(t, err)
	br, err := NewBrotli(BrotliConfig{Store: gatecache.NewMemoryEntityStore()})
	require.NoError(t, err)
	sn, err := NewSnappy(SnappyConfig{Store: gatecache.NewMemoryEntityStore()})
	require.NoError(t, err)
	return map[string]gatecache.KeyedEntityStore{"gzip": gz, "brotli": br, "snappy": sn}
}

func TestCompressStoreConformance(t *testing.T) {
	for name, store := range codecs(t) {
		t.Run(name, func(t *testing.T) {
			test.EntityStore(t, store)
		})
	}
}

func TestCompressStoreShrinksLargeBodies(t *testing.T) {
	ctx := context.Background()
	body := []byte(strings.Repeat("all work and no play makes a dull cache ", 200))

	for _, name := range []string{"gzip", "brotli", "snappy"} {
		t.Run(name, func(t *testing.T) {
			inner := gatecache.NewMemoryEntityStore()
			var wrapped gatecache.KeyedEntityStore
			var stats func() Stats
			switch name {
			case "gzip":
				s, err := NewGzip(GzipConfig{Store: inner})
				require.NoError(t, err)
				wrapped, stats = s, s.Stats
			case "brotli":
				s, err := NewBrotli(BrotliConfig{Store: inner})
				require.NoError(t, err)
				wrapped, stats = s, s.Stats
			case "snappy":
				s, err := NewSnappy(SnappyConfig{Store: inner})
				require.NoError(t, err)
				wrapped, stats = s, s.Stats
			}

			digest, size, err := wrapped.Write(ctx, bytes.NewReader(body))
			require.NoError(t, err)
			assert.Equal(t, gatecache.EntityDigest(body), digest)
			assert.Equal(t, int64(len(body)), size)

			// The inner store holds less than the plaintext.
			rc, err := inner.Read(ctx, digest)
			require.NoError(t, err)
			raw, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Less(t, len(raw), len(body))

			s := stats()
			assert.Equal(t, int64(1), s.CompressedCount)
			assert.Less(t, s.CompressionRatio, 1.0)
			assert.Greater(t, s.SavingsPercent, 0.0)

			// And the wrapper round-trips the plaintext.
			rc, err = wrapped.Read(ctx, digest)
			require.NoError(t, err)
			plain, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, body, plain)
		})
	}
}

func TestCompressStoreSkipsSmallBodies(t *testing.T) {
	ctx := context.Background()
	inner := gatecache.NewMemoryEntityStore()
	s, err := NewGzip(GzipConfig{Store: inner})
	require.NoError(t, err)

	body := []byte("tiny")
	digest, _, err := s.Write(ctx, bytes.NewReader(body))
	require.NoError(t, err)

	rc, err := inner.Read(ctx, digest)
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	require.NotEmpty(t, raw)
	assert.Equal(t, byte(markerRaw), raw[0])
	assert.Equal(t, body, raw[1:])
	assert.Equal(t, int64(1), s.Stats().UncompressedCount)
}

func TestCompressStoreRequiresInner(t *testing.T) {
	_, err := NewGzip(GzipConfig{})
	assert.Error(t, err)
	_, err = NewBrotli(BrotliConfig{})
	assert.Error(t, err)
	_, err = NewSnappy(SnappyConfig{})
	assert.Error(t, err)
}
