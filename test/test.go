// Package test exercises MetaStore and EntityStore implementations with a
// shared conformance suite. Backend test packages call these helpers
// against their store.
package test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/sandrolain/gatecache"
)

// MetaStore exercises a gatecache.MetaStore implementation.
func MetaStore(t *testing.T, ms gatecache.MetaStore) {
	t.Helper()
	ctx := context.Background()
	key := "http://example.org/resource"

	records, err := ms.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("error looking up key: %v", err)
	}
	if len(records) != 0 {
		t.Fatal("lookup returned records before any store")
	}

	first := gatecache.Record{
		Status:          200,
		RequestHeaders:  http.Header{},
		ResponseHeaders: http.Header{"Content-Type": {"text/plain"}, "X-Content-Digest": {"aaa"}},
	}
	if err := ms.Store(ctx, key, first); err != nil {
		t.Fatalf("error storing record: %v", err)
	}

	records, err = ms.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("error looking up key: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if got := records[0].ResponseHeaders.Get("X-Content-Digest"); got != "aaa" {
		t.Fatalf("stored digest mismatch: %q", got)
	}

	// A record with the same vary identity replaces the previous one.
	second := first.Clone()
	second.ResponseHeaders.Set("X-Content-Digest", "bbb")
	if err := ms.Store(ctx, key, second); err != nil {
		t.Fatalf("error storing replacement record: %v", err)
	}
	records, err = ms.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("error looking up key: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("replacement should not grow the list, got %d records", len(records))
	}
	if got := records[0].ResponseHeaders.Get("X-Content-Digest"); got != "bbb" {
		t.Fatalf("newest record not first: %q", got)
	}

	// A record varying on a different request header value is kept
	// alongside, newest first.
	varied := gatecache.Record{
		Status:          200,
		RequestHeaders:  http.Header{"Accept": {"application/json"}},
		ResponseHeaders: http.Header{"Vary": {"Accept"}, "X-Content-Digest": {"ccc"}},
	}
	if err := ms.Store(ctx, key, varied); err != nil {
		t.Fatalf("error storing varied record: %v", err)
	}
	records, err = ms.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("error looking up key: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records after vary split, got %d", len(records))
	}
	if got := records[0].ResponseHeaders.Get("X-Content-Digest"); got != "ccc" {
		t.Fatalf("newest record not first: %q", got)
	}

	if err := ms.Purge(ctx, key); err != nil {
		t.Fatalf("error purging key: %v", err)
	}
	records, err = ms.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("error looking up key: %v", err)
	}
	if len(records) != 0 {
		t.Fatal("purged key still has records")
	}

	// Purging an absent key is not an error.
	if err := ms.Purge(ctx, key); err != nil {
		t.Fatalf("error purging absent key: %v", err)
	}
}

// EntityStore exercises a gatecache.EntityStore implementation.
func EntityStore(t *testing.T, es gatecache.EntityStore) {
	t.Helper()
	ctx := context.Background()
	body := []byte("You're not going to believe what just happened")

	digest, size, err := es.Write(ctx, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("error writing entity: %v", err)
	}
	if digest != gatecache.EntityDigest(body) {
		t.Fatalf("unexpected digest %q", digest)
	}
	if size != int64(len(body)) {
		t.Fatalf("unexpected size %d", size)
	}

	rc, err := es.Read(ctx, digest)
	if err != nil {
		t.Fatalf("error reading entity: %v", err)
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("error reading entity body: %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("error closing entity body: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatal("read back a different body than was written")
	}

	// Rewriting the same body is idempotent.
	digest2, _, err := es.Write(ctx, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("error rewriting entity: %v", err)
	}
	if digest2 != digest {
		t.Fatalf("rewrite changed the digest: %q != %q", digest2, digest)
	}

	if err := es.Purge(ctx, digest); err != nil {
		t.Fatalf("error purging entity: %v", err)
	}
	if _, err := es.Read(ctx, digest); err == nil {
		t.Fatal("purged entity still readable")
	}

	// Purging an absent digest is not an error.
	if err := es.Purge(ctx, digest); err != nil {
		t.Fatalf("error purging absent digest: %v", err)
	}
}
