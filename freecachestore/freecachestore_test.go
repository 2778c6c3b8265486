package freecachestore

import (
	"bytes"
	"context"
	"testing"

	"github.com/sandrolain/gatecache"
	"github.com/sandrolain/gatecache/test"
)

func TestFreecacheEntityStore(t *testing.T) {
	test.EntityStore(t, New(1024*1024))
}

func TestFreecacheClear(t *testing.T) {
	ctx := context.Background()
	es := New(1024 * 1024)

	digest, _, err := es.Write(ctx, bytes.NewReader([]byte("ephemeral")))
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	es.Clear()
	if _, err := es.Read(ctx, digest); err != gatecache.ErrEntityNotFound {
		t.Fatalf("expected ErrEntityNotFound after clear, got %v", err)
	}
}
