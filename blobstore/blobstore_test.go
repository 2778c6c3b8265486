package blobstore

import (
	"context"
	"testing"

	"gocloud.dev/blob/memblob"

	"github.com/sandrolain/gatecache/test"
)

func TestBlobEntityStore(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer func() {
		if err := bucket.Close(); err != nil {
			t.Errorf("bucket close failed: %v", err)
		}
	}()

	es, err := New(context.Background(), Config{Bucket: bucket})
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	test.EntityStore(t, es)
}

func TestBlobConfigValidation(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error with neither BucketURL nor Bucket")
	}
}

func TestBlobKeyPrefix(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer func() { _ = bucket.Close() }()

	es, err := New(context.Background(), Config{Bucket: bucket, KeyPrefix: "bodies/"})
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	if got := es.blobKey("abc"); got != "bodies/abc" {
		t.Fatalf("unexpected blob key %q", got)
	}
}
