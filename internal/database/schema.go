// Package database manages the PostgreSQL schema for the service.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements run in order on startup. Every statement is idempotent
// so restarting the server against an existing database is safe.
//
// timestamp is a reserved word in PostgreSQL and is quoted here and in
// every query that touches it.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS glucose_levels (
		id            BIGSERIAL PRIMARY KEY,
		user_id       TEXT NOT NULL,
		"timestamp"   TIMESTAMPTZ NOT NULL,
		glucose_value DOUBLE PRECISION NOT NULL
	)`,

	// ListLevels filters on user_id with an optional timestamp range.
	`CREATE INDEX IF NOT EXISTS idx_glucose_levels_user_timestamp
		ON glucose_levels (user_id, "timestamp")`,

	`CREATE TABLE IF NOT EXISTS ingest_runs (
		id            UUID PRIMARY KEY,
		file_name     TEXT NOT NULL,
		status        TEXT NOT NULL,
		total_rows    INTEGER NOT NULL,
		inserted_rows INTEGER NOT NULL,
		failed_rows   INTEGER NOT NULL,
		duration_ms   BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables and indexes the service needs. pgx
// sends one statement per Exec, so the DDL is a list of statements
// rather than a single script.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
