// Package blobstore provides an entity store on Go Cloud Development Kit
// blob storage, giving cloud-agnostic body persistence.
//
// Supported providers depend on the driver packages imported by the
// application:
//
//	import (
//	    _ "gocloud.dev/blob/s3blob"   // Amazon S3
//	    _ "gocloud.dev/blob/gcsblob"  // Google Cloud Storage
//	    _ "gocloud.dev/blob/azureblob"// Azure Blob Storage
//	    _ "gocloud.dev/blob/fileblob" // local filesystem
//	    _ "gocloud.dev/blob/memblob"  // in-memory, for tests
//	)
//
// Bodies are content-addressed, so no MetaStore is provided here: blob
// listings have no useful ordering for record lists. Pair with any
// metadata backend.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/sandrolain/gatecache"
)

// Config holds the configuration for the blob entity store.
type Config struct {
	// BucketURL is the Go Cloud blob URL (e.g., "s3://bucket?region=us-west-2").
	// Required unless Bucket is set.
	BucketURL string

	// KeyPrefix is prepended to all blob keys (default: "gatecache/").
	KeyPrefix string

	// Timeout bounds blob operations when the caller's context has no
	// deadline (default: 30s).
	Timeout time.Duration

	// Bucket is an optional pre-opened bucket; when set, BucketURL is
	// ignored and the caller owns the bucket's lifecycle.
	Bucket *blob.Bucket
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "gatecache/",
		Timeout:   30 * time.Second,
	}
}

// EntityStore is a gatecache.EntityStore over a blob bucket.
type EntityStore struct {
	bucket     *blob.Bucket
	keyPrefix  string
	timeout    time.Duration
	ownsBucket bool
}

// New opens the configured bucket and returns the store. Call Close to
// release the bucket when it was opened here.
func New(ctx context.Context, config Config) (*EntityStore, error) {
	if config.BucketURL == "" && config.Bucket == nil {
		return nil, fmt.Errorf("blobstore: either BucketURL or Bucket must be provided")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	bucket := config.Bucket
	ownsBucket := false
	if bucket == nil {
		var err error
		bucket, err = blob.OpenBucket(ctx, config.BucketURL)
		if err != nil {
			return nil, fmt.Errorf("blobstore: failed to open bucket: %w", err)
		}
		ownsBucket = true
	}

	return &EntityStore{
		bucket:     bucket,
		keyPrefix:  config.KeyPrefix,
		timeout:    config.Timeout,
		ownsBucket: ownsBucket,
	}, nil
}

func (e *EntityStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *EntityStore) blobKey(digest string) string {
	return e.keyPrefix + digest
}

// Write stores body under its computed digest.
func (e *EntityStore) Write(ctx context.Context, body io.Reader) (string, int64, error) {
	return gatecache.WriteEntity(ctx, e, body)
}

// WriteKeyed stores body under the supplied digest.
func (e *EntityStore) WriteKeyed(ctx context.Context, digest string, body io.Reader) (int64, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	w, err := e.bucket.NewWriter(ctx, e.blobKey(digest), nil)
	if err != nil {
		return 0, fmt.Errorf("blob entity write failed for %q: %w", digest, err)
	}
	n, copyErr := io.Copy(w, body)
	closeErr := w.Close()
	if copyErr != nil {
		return 0, fmt.Errorf("blob entity write failed for %q: %w", digest, copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("blob entity write failed for %q: %w", digest, closeErr)
	}
	return n, nil
}

// Read returns a reader over the body stored under digest.
func (e *EntityStore) Read(ctx context.Context, digest string) (io.ReadCloser, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	r, err := e.bucket.NewReader(ctx, e.blobKey(digest), nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, gatecache.ErrEntityNotFound
		}
		return nil, fmt.Errorf("blob entity read failed for %q: %w", digest, err)
	}
	data, err := io.ReadAll(r)
	closeErr := r.Close()
	if err != nil {
		return nil, fmt.Errorf("blob entity read failed for %q: %w", digest, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("blob entity read failed for %q: %w", digest, closeErr)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Purge removes the body stored under digest.
func (e *EntityStore) Purge(ctx context.Context, digest string) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	err := e.bucket.Delete(ctx, e.blobKey(digest))
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("blob entity purge failed for %q: %w", digest, err)
	}
	return nil
}

// Close releases the bucket if it was opened by New.
func (e *EntityStore) Close() error {
	if e.ownsBucket {
		if err := e.bucket.Close(); err != nil {
			return fmt.Errorf("blobstore: failed to close bucket: %w", err)
		}
	}
	return nil
}

var _ gatecache.KeyedEntityStore = (*EntityStore)(nil)
