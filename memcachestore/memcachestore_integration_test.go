//go:build integration

package memcachestore

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	memcachedcontainer "github.com/testcontainers/testcontainers-go/modules/memcached"

	"github.com/sandrolain/gatecache/test"
)

const memcachedImage = "memcached:1.6-alpine"

func startMemcached(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := memcachedcontainer.Run(ctx, memcachedImage)
	if err != nil {
		t.Fatalf("failed to start memcached container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Errorf("failed to terminate memcached container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get memcached endpoint: %v", err)
	}
	return endpoint
}

func TestMemcacheStoresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	endpoint := startMemcached(t)

	test.MetaStore(t, NewMetaStore(endpoint))
	test.EntityStore(t, NewEntityStore(endpoint))
}
