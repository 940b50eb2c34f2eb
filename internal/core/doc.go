// Package core provides the business logic for glucose measurement storage.
//
// This package contains all domain logic independent of any transport layer.
// It can be used by web handlers, CLI tools, or tests without modification.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Service: The main entry point for all operations (ingest, query,
//     create, export).
//   - Streaming: Memory-efficient cleanup of uploaded CSV bytes.
//   - Error Mapping: Technical errors become coded user messages.
//   - Ingest History: Every upload is recorded for later inspection.
//
// # CSV Ingest
//
// Uploads stream through cleanup readers and into the database row by row,
// so memory usage stays flat regardless of file size. The flow is:
//
//  1. Client calls [Service.IngestCSV] with an io.Reader
//  2. The reader is wrapped with BOM skipping and UTF-8 sanitization
//  3. The header row is located among the leading rows, in either the
//     canonical user_id,timestamp,glucose_value form or the meter export form
//  4. Each data row is validated and inserted under its own savepoint, so
//     one bad row is reported without discarding the rest of the file
//
// The result counts every data row as either inserted or failed.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB007: Database errors (duplicates, constraints, connections)
//   - VAL001-VAL004: Validation errors (timestamps, values, headers)
//   - FILE001-FILE005: File errors (size, encoding, format)
//   - REQ001-REQ002: Request errors (cancelled, timeout)
//
// # Ingest History
//
// Each upload writes a row to ingest_runs in the same transaction as the
// data, recording counts, status and duration. [Service.RecentIngests]
// returns the latest runs.
package core
