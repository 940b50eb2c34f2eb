package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// IngestRun is one recorded CSV ingest, kept for operational history.
type IngestRun struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	Status     string    `json:"status"`
	TotalRows  int       `json:"total_rows"`
	Inserted   int       `json:"inserted_rows"`
	FailedRows int       `json:"failed_rows"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Ingest run statuses.
const (
	IngestStatusCompleted = "completed"
	IngestStatusFailed    = "failed"
)

// Limits for the ingest history listing.
const (
	DefaultIngestHistoryLimit = 50
	MaxIngestHistoryLimit     = 200
)

const insertIngestRunSQL = `
INSERT INTO ingest_runs (id, file_name, status, total_rows, inserted_rows, failed_rows, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// ingestStatus classifies a finished run. A file where every row failed
// counts as failed; anything else, including an empty body, completed.
func ingestStatus(result *IngestResult) string {
	if result.TotalRows > 0 && result.Inserted == 0 {
		return IngestStatusFailed
	}
	return IngestStatusCompleted
}

// recordIngestRun writes the history row inside the ingest transaction,
// under its own savepoint so a history failure never discards the
// measurements that were just inserted. Failures are logged, not
// returned.
func (s *Service) recordIngestRun(ctx context.Context, tx pgx.Tx, result *IngestResult) {
	if _, err := tx.Exec(ctx, "SAVEPOINT sp_history"); err != nil {
		slog.Warn("ingest history not recorded", "ingest_id", result.IngestID, "error", err)
		return
	}

	_, err := tx.Exec(ctx, insertIngestRunSQL,
		ToPgUUID(result.IngestID),
		result.FileName,
		ingestStatus(result),
		result.TotalRows,
		result.Inserted,
		len(result.FailedRows),
		result.Duration.Milliseconds(),
	)
	if err != nil {
		if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT sp_history"); rbErr != nil {
			slog.Warn("ingest history rollback failed", "ingest_id", result.IngestID, "error", rbErr)
			return
		}
		slog.Warn("ingest history not recorded", "ingest_id", result.IngestID, "error", err)
		return
	}

	if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT sp_history"); err != nil {
		slog.Warn("ingest history savepoint not released", "ingest_id", result.IngestID, "error", err)
	}
}

const recentIngestsSQL = `
SELECT id, file_name, status, total_rows, inserted_rows, failed_rows, duration_ms, created_at
FROM ingest_runs
ORDER BY created_at DESC, id
LIMIT $1`

// RecentIngests returns the most recent ingest runs, newest first.
// A non-positive limit uses the default.
func (s *Service) RecentIngests(ctx context.Context, limit int) ([]IngestRun, error) {
	if limit <= 0 {
		limit = DefaultIngestHistoryLimit
	}
	if limit > MaxIngestHistoryLimit {
		limit = MaxIngestHistoryLimit
	}

	rows, err := s.pool.Query(ctx, recentIngestsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query ingest runs: %w", err)
	}
	defer rows.Close()

	runs := make([]IngestRun, 0, limit)
	for rows.Next() {
		var (
			run IngestRun
			id  pgtype.UUID
		)
		err := rows.Scan(&id, &run.FileName, &run.Status, &run.TotalRows,
			&run.Inserted, &run.FailedRows, &run.DurationMs, &run.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan ingest run: %w", err)
		}
		run.ID = PgUUIDToString(id)
		run.CreatedAt = run.CreatedAt.UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return runs, nil
}
