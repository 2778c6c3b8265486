package leveldbstore

import (
	"path/filepath"
	"testing"

	"github.com/sandrolain/gatecache/test"
)

func TestLevelDBStores(t *testing.T) {
	ms, es, db, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
	}()

	test.MetaStore(t, ms)
	test.EntityStore(t, es)
}

func TestLevelDBPrefixesDisjoint(t *testing.T) {
	if metaPrefix == entityPrefix {
		t.Fatal("meta and entity prefixes must differ")
	}
}
