//go:build integration

package natskvstore

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"

	"github.com/sandrolain/gatecache/test"
)

const natsImage = "nats:2-alpine"

func startNATSContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := natscontainer.Run(ctx, natsImage, testcontainers.WithCmd("-js"))
	if err != nil {
		t.Fatalf("failed to start NATS container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Errorf("failed to terminate NATS container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get NATS endpoint: %v", err)
	}
	return endpoint
}

func TestNATSStoresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	endpoint := startNATSContainer(t)

	stores, err := New(ctx, Config{URL: endpoint, Bucket: "gatecache-integration"})
	if err != nil {
		t.Fatalf("store setup failed: %v", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
	}()

	test.MetaStore(t, stores.Meta)
	test.EntityStore(t, stores.Entity)
}
