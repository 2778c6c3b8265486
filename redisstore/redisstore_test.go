package redisstore

import (
	"testing"
)

func TestConfigRequiresAddress(t *testing.T) {
	if _, err := NewMetaStore(Config{}); err == nil {
		t.Fatal("expected error without address or client")
	}
	if _, err := NewEntityStore(Config{}); err == nil {
		t.Fatal("expected error without address or client")
	}
}

func TestConfigAcceptsAddress(t *testing.T) {
	ms, err := NewMetaStore(Config{Address: "localhost:6379"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms == nil {
		t.Fatal("expected a store")
	}
}
