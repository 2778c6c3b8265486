package natskvstore

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sandrolain/gatecache/test"
)

// startNATSServer starts an embedded NATS server for testing.
func startNATSServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		JetStream: true,
		Port:      -1, // random port
		Host:      "127.0.0.1",
		StoreDir:  t.TempDir(),
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("failed to create NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(4 * time.Second) {
		t.Fatal("NATS server did not start in time")
	}
	return ns
}

func setupBucket(t *testing.T) jetstream.KeyValue {
	t.Helper()

	ns := startNATSServer(t)
	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		t.Fatalf("failed to connect to NATS: %v", err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
	})

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("failed to create JetStream context: %v", err)
	}
	kv, err := js.CreateKeyValue(context.Background(), jetstream.KeyValueConfig{
		Bucket: "gatecache-test",
	})
	if err != nil {
		t.Fatalf("failed to create K/V bucket: %v", err)
	}
	return kv
}

func TestNATSMetaStore(t *testing.T) {
	kv := setupBucket(t)
	test.MetaStore(t, NewMetaStore(kv))
}

func TestNATSEntityStore(t *testing.T) {
	kv := setupBucket(t)
	test.EntityStore(t, NewEntityStore(kv))
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without bucket name")
	}
}
