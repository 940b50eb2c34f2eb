// Package core provides the business logic for glucose measurement storage:
// CSV ingestion, querying, and export. This package has no HTTP dependencies
// and can be used by any transport layer.
package core

import (
	"context"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Level is a single stored glucose measurement.
type Level struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	Timestamp    time.Time `json:"timestamp"`
	GlucoseValue float64   `json:"glucose_value"`
}

// NewLevel carries the fields for a measurement that has not been stored yet.
type NewLevel struct {
	UserID       string
	Timestamp    time.Time
	GlucoseValue float64
}

// SortSpec represents a single sort column and direction.
type SortSpec struct {
	Column string // "id", "user_id", "timestamp" or "glucose_value"
	Dir    string // "asc" or "desc"
}

// LevelQuery describes a paginated measurement listing for one user.
// Start and Stop are inclusive bounds; nil leaves the range open on that side.
type LevelQuery struct {
	UserID   string
	Start    *time.Time
	Stop     *time.Time
	Page     int
	PageSize int
	Sort     SortSpec
}

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// IngestOptions describes a CSV ingest request.
type IngestOptions struct {
	// FileName is the uploaded file's name, used for reporting and as the
	// user id fallback for device exports.
	FileName string

	// UserID overrides the user id for device exports that carry no
	// user_id column. Ignored for files with a canonical header.
	UserID string

	// Reader is the raw upload stream. It may contain a BOM or invalid
	// UTF-8; the ingest pipeline sanitizes it.
	Reader io.Reader
}

// FailedRow contains information about a row that could not be ingested.
type FailedRow struct {
	FileName   string
	LineNumber int
	Reason     string
	Data       []string
}

// IngestResult contains the final result of an ingest operation.
// Inserted plus len(FailedRows) always equals TotalRows.
type IngestResult struct {
	IngestID   string
	FileName   string
	TotalRows  int
	Inserted   int
	FailedRows []FailedRow
	Duration   time.Duration
}
