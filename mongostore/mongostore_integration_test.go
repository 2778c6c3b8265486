//go:build integration

package mongostore

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	mongocontainer "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/sandrolain/gatecache/test"
)

const mongoImage = "mongo:7"

func startMongo(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := mongocontainer.Run(ctx, mongoImage)
	if err != nil {
		t.Fatalf("failed to start MongoDB container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Errorf("failed to terminate MongoDB container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get MongoDB connection string: %v", err)
	}
	return uri
}

func TestMongoStoresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	uri := startMongo(t)

	stores, err := New(ctx, Config{URI: uri, Database: "gatecache_test"})
	if err != nil {
		t.Fatalf("store setup failed: %v", err)
	}
	defer func() {
		if err := stores.Close(ctx); err != nil {
			t.Errorf("close failed: %v", err)
		}
	}()

	test.MetaStore(t, stores.Meta)
	test.EntityStore(t, stores.Entity)
}
