//go:build integration

package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sandrolain/gatecache/test"
)

func TestPostgresStoresIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skipping integration test; set TEST_POSTGRES_DSN to enable")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool setup failed: %v", err)
	}
	defer pool.Close()

	stores, err := New(pool, Config{})
	if err != nil {
		t.Fatalf("store setup failed: %v", err)
	}
	if err := stores.CreateTables(ctx); err != nil {
		t.Fatalf("table creation failed: %v", err)
	}

	test.MetaStore(t, stores.Meta)
	test.EntityStore(t, stores.Entity)
}
