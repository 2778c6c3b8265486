// Package pgstore provides metadata and entity stores backed by PostgreSQL
// via github.com/jackc/pgx/v5. Metadata read-modify-write runs in a
// transaction with SELECT ... FOR UPDATE, so concurrent writers to the
// same key serialize across processes.
package pgstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sandrolain/gatecache"
)

const (
	// DefaultMetaTable is the default table for metadata records.
	DefaultMetaTable = "gatecache_meta"
	// DefaultEntityTable is the default table for entity bodies.
	DefaultEntityTable = "gatecache_entity"
)

// Config holds the configuration for the PostgreSQL stores.
type Config struct {
	// MetaTable is the metadata table name (default: "gatecache_meta").
	MetaTable string
	// EntityTable is the entity table name (default: "gatecache_entity").
	EntityTable string
	// Timeout bounds database operations (default: 5s).
	Timeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MetaTable:   DefaultMetaTable,
		EntityTable: DefaultEntityTable,
		Timeout:     5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MetaTable == "" {
		c.MetaTable = d.MetaTable
	}
	if c.EntityTable == "" {
		c.EntityTable = d.EntityTable
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Stores bundles the two stores over one pool.
type Stores struct {
	Meta   *MetaStore
	Entity *EntityStore

	pool *pgxpool.Pool
}

// New returns both stores over the given pool.
func New(pool *pgxpool.Pool, config Config) (*Stores, error) {
	if pool == nil {
		return nil, errors.New("pgstore: pool cannot be nil")
	}
	config = config.withDefaults()
	return &Stores{
		Meta:   &MetaStore{pool: pool, table: config.MetaTable, timeout: config.Timeout},
		Entity: &EntityStore{pool: pool, table: config.EntityTable, timeout: config.Timeout},
		pool:   pool,
	}, nil
}

// CreateTables creates the cache tables if they don't exist.
func (s *Stores) CreateTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.Meta.table + ` (
			key TEXT PRIMARY KEY,
			records JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + s.Entity.table + ` (
			digest TEXT PRIMARY KEY,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: table creation failed: %w", err)
		}
	}
	return nil
}

// MetaStore is a gatecache.MetaStore storing one row per cache key with
// the record list as JSONB.
type MetaStore struct {
	pool    *pgxpool.Pool
	table   string
	timeout time.Duration
}

func (m *MetaStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

// Lookup returns the records stored under key, newest first.
func (m *MetaStore) Lookup(ctx context.Context, key string) ([]gatecache.Record, error) {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	var data []byte
	err := m.pool.QueryRow(ctx, `SELECT records FROM `+m.table+` WHERE key = $1`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres meta lookup failed for %q: %w", key, err)
	}
	return gatecache.DecodeRecords(data)
}

// Store prepends rec under key inside a row-locking transaction.
func (m *MetaStore) Store(ctx context.Context, key string, rec gatecache.Record) error {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres meta store failed for %q: %w", key, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existing []byte
	var records []gatecache.Record
	err = tx.QueryRow(ctx, `SELECT records FROM `+m.table+` WHERE key = $1 FOR UPDATE`, key).Scan(&existing)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// first record under this key
	case err != nil:
		return fmt.Errorf("postgres meta store failed for %q: %w", key, err)
	default:
		if records, err = gatecache.DecodeRecords(existing); err != nil {
			records = nil
		}
	}

	data, err := gatecache.EncodeRecords(gatecache.PrependRecord(records, rec))
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO `+m.table+` (key, records, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET records = $2, updated_at = $3
	`, key, data, time.Now())
	if err != nil {
		return fmt.Errorf("postgres meta store failed for %q: %w", key, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres meta store failed for %q: %w", key, err)
	}
	return nil
}

// Purge removes every record stored under key.
func (m *MetaStore) Purge(ctx context.Context, key string) error {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()
	if _, err := m.pool.Exec(ctx, `DELETE FROM `+m.table+` WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres meta purge failed for %q: %w", key, err)
	}
	return nil
}

// Snapshot returns the full metadata contents.
func (m *MetaStore) Snapshot(ctx context.Context) (map[string][]gatecache.Record, error) {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	rows, err := m.pool.Query(ctx, `SELECT key, records FROM `+m.table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]gatecache.Record{}
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, err
		}
		records, err := gatecache.DecodeRecords(data)
		if err != nil {
			continue
		}
		out[key] = records
	}
	return out, rows.Err()
}

// EntityStore is a gatecache.EntityStore storing one row per digest.
type EntityStore struct {
	pool    *pgxpool.Pool
	table   string
	timeout time.Duration
}

func (e *EntityStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

// Write stores body under its computed digest.
func (e *EntityStore) Write(ctx context.Context, body io.Reader) (string, int64, error) {
	return gatecache.WriteEntity(ctx, e, body)
}

// WriteKeyed stores body under the supplied digest.
func (e *EntityStore) WriteKeyed(ctx context.Context, digest string, body io.Reader) (int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	_, err = e.pool.Exec(ctx, `
		INSERT INTO `+e.table+` (digest, data, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (digest) DO NOTHING
	`, digest, data, time.Now())
	if err != nil {
		return 0, fmt.Errorf("postgres entity write failed for %q: %w", digest, err)
	}
	return int64(len(data)), nil
}

// Read returns a reader over the body stored under digest.
func (e *EntityStore) Read(ctx context.Context, digest string) (io.ReadCloser, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	var data []byte
	err := e.pool.QueryRow(ctx, `SELECT data FROM `+e.table+` WHERE digest = $1`, digest).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gatecache.ErrEntityNotFound
		}
		return nil, fmt.Errorf("postgres entity read failed for %q: %w", digest, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Purge removes the body stored under digest.
func (e *EntityStore) Purge(ctx context.Context, digest string) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	if _, err := e.pool.Exec(ctx, `DELETE FROM `+e.table+` WHERE digest = $1`, digest); err != nil {
		return fmt.Errorf("postgres entity purge failed for %q: %w", digest, err)
	}
	return nil
}

var (
	_ gatecache.MetaStore        = (*MetaStore)(nil)
	_ gatecache.KeyedEntityStore = (*EntityStore)(nil)
)
