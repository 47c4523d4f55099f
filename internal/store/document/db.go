// Package document implements store.Store on top of a Postgres JSONB table,
// one row per logical document (project, schema, identity source, or
// individual policy, template, template link or entity), keyed by
// (project_id, kind, doc_id).
package document

import (
	"context"
	"fmt"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB holds connection pools for write and read operations.
type DB struct {
	writePool *pgxpool.Pool
	readPool  *pgxpool.Pool
}

// NewDB creates a new DB instance with write and optional read pools.
func NewDB(ctx context.Context, writeURL, readURL string, maxConns, minConns int32) (*DB, error) {
	writePool, err := newPool(ctx, writeURL, maxConns, minConns)
	if err != nil {
		return nil, fmt.Errorf("connect to write db: %w", err)
	}

	readPool := writePool
	if readURL != "" && readURL != writeURL {
		readPool, err = newPool(ctx, readURL, maxConns, minConns)
		if err != nil {
			writePool.Close()
			return nil, fmt.Errorf("connect to read db: %w", err)
		}
	}

	return &DB{writePool: writePool, readPool: readPool}, nil
}

func newPool(ctx context.Context, url string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Close closes all database connections.
func (db *DB) Close() {
	db.writePool.Close()
	if db.readPool != db.writePool {
		db.readPool.Close()
	}
}

// PingContext checks both pools are reachable.
func (db *DB) PingContext(ctx context.Context) error {
	if err := db.writePool.Ping(ctx); err != nil {
		return fmt.Errorf("write pool: %w", err)
	}
	if db.readPool != db.writePool {
		if err := db.readPool.Ping(ctx); err != nil {
			return fmt.Errorf("read pool: %w", err)
		}
	}
	return nil
}

// Migrate creates the single documents table and its supporting index.
// Cedrus ships no migration framework; this mirrors the original's
// create-if-not-exists bootstrap rather than a versioned migration chain.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.writePool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cedrus_documents (
	project_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	entity_type TEXT NOT NULL DEFAULT '',
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (project_id, kind, doc_id)
);
CREATE INDEX IF NOT EXISTS cedrus_documents_entity_type_idx
	ON cedrus_documents (project_id, entity_type) WHERE kind = 'entity';
`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
