package diskstore

import (
	"context"
	"testing"

	"github.com/sandrolain/gatecache/test"
)

func TestDiskMetaStore(t *testing.T) {
	test.MetaStore(t, NewMetaStore(t.TempDir()))
}

func TestDiskEntityStore(t *testing.T) {
	test.EntityStore(t, NewEntityStore(t.TempDir()))
}

func TestDiskMetaStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	ms := NewMetaStore(dir)
	rec := sampleRecord("abc")
	if err := ms.Store(ctx, "http://example.org/", rec); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	reopened := NewMetaStore(dir)
	records, err := reopened.Lookup(ctx, "http://example.org/")
	if err != nil {
		t.Fatalf("lookup after reopen failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after reopen, got %d", len(records))
	}
	if got := records[0].ResponseHeaders.Get("X-Content-Digest"); got != "abc" {
		t.Fatalf("unexpected digest after reopen: %q", got)
	}
}
