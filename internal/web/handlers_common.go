// This file contains shared utilities and helper functions used across handlers.
package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/glucolog/glucolog/internal/core"
)

// maxReportedErrors caps how many row errors a load-data response lists.
// The full count is always in error_count.
const maxReportedErrors = 100

// parseIntParam parses a positive integer query parameter with a default
// for when the parameter is absent. A present but malformed value is an
// error, not a silent fallback.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", name, val)
	}
	return i, nil
}

// parseTimeParam parses an optional timestamp query parameter.
// Returns nil when the parameter is absent.
func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return nil, nil
	}
	t, err := core.ParseTimestamp(val)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: use an ISO 8601 timestamp", name, val)
	}
	return &t, nil
}

// sanitizeFileName keeps a user-supplied value safe for use inside a
// Content-Disposition header.
func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

// LoadDataResponse wraps an ingest result for JSON encoding.
type LoadDataResponse struct {
	Message       string   `json:"message"`
	IngestID      string   `json:"ingest_id"`
	FileName      string   `json:"file_name"`
	TotalRows     int      `json:"total_rows"`
	InsertedCount int      `json:"inserted_count"`
	ErrorCount    int      `json:"error_count"`
	Errors        []string `json:"errors,omitempty"`
	Duration      string   `json:"duration"`
}

// toLoadDataResponse converts an IngestResult to a JSON-friendly format.
// At most maxReportedErrors row errors are listed so a pathological file
// cannot blow up the response body.
func toLoadDataResponse(result *core.IngestResult) LoadDataResponse {
	resp := LoadDataResponse{
		Message:       "data loaded",
		IngestID:      result.IngestID,
		FileName:      result.FileName,
		TotalRows:     result.TotalRows,
		InsertedCount: result.Inserted,
		ErrorCount:    len(result.FailedRows),
		Duration:      result.Duration.String(),
	}
	for i, row := range result.FailedRows {
		if i == maxReportedErrors {
			resp.Errors = append(resp.Errors,
				fmt.Sprintf("... and %d more", len(result.FailedRows)-maxReportedErrors))
			break
		}
		resp.Errors = append(resp.Errors, fmt.Sprintf("line %d: %s", row.LineNumber, row.Reason))
	}
	return resp
}
