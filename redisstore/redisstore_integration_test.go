//go:build integration

package redisstore

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/sandrolain/gatecache/test"
)

const redisImage = "redis:7-alpine"

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := rediscontainer.Run(ctx, redisImage)
	if err != nil {
		t.Fatalf("failed to start Redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Errorf("failed to terminate Redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get Redis endpoint: %v", err)
	}
	return endpoint
}

func TestRedisStoresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	endpoint := startRedis(t)

	ms, err := NewMetaStore(Config{Address: endpoint})
	if err != nil {
		t.Fatalf("meta store setup failed: %v", err)
	}
	test.MetaStore(t, ms)

	es, err := NewEntityStore(Config{Address: endpoint})
	if err != nil {
		t.Fatalf("entity store setup failed: %v", err)
	}
	test.EntityStore(t, es)
}
