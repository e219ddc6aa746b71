// Package db provides PostgreSQL storage for scan history.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scans (
	id             UUID PRIMARY KEY,
	root           TEXT NOT NULL,
	rules_source   TEXT NOT NULL DEFAULT '',
	app_package    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	sdk_count      INTEGER NOT NULL DEFAULT 0,
	used_sdk_count INTEGER NOT NULL DEFAULT 0,
	finding_count  INTEGER NOT NULL DEFAULT 0,
	result         JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS scan_findings (
	id               BIGSERIAL PRIMARY KEY,
	scan_id          UUID NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
	position         INTEGER NOT NULL,
	sdk_id           TEXT NOT NULL,
	pvp_id           TEXT NOT NULL,
	law              TEXT NOT NULL,
	severity         TEXT NOT NULL,
	triggering_rule  TEXT NOT NULL DEFAULT '',
	evidence_summary TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_scan_findings_scan_id ON scan_findings(scan_id);
`

// EnsureSchema creates the scan history tables when they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
