package mongostore

import (
	"context"
	"testing"
)

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without URI and database")
	}
	if _, err := New(context.Background(), Config{URI: "mongodb://localhost:27017"}); err == nil {
		t.Fatal("expected error without database")
	}
}
