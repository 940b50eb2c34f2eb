package core

// convert.go provides parsing and formatting helpers for CSV cells.
//
// These functions handle the messy reality of user-provided CSV data:
//   - Multiple timestamp formats (RFC 3339, space-separated, date-only)
//   - Decimal commas from locales that use them ("5,5" meaning 5.5)
//   - Excel formula prefixes (="value")
//   - Common CSV artifacts (BOM, weird quotes)
//
// Parse* functions return an error describing the bad value; the message
// ends up verbatim in the failed-row report, so it names the offending
// input rather than the internal parse step.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// timestampLayouts are tried in order when parsing a timestamp cell.
// RFC 3339 comes first since that is what our own exports produce.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// deviceTimestampLayout matches the day-first format used by glucose
// meter export files ("18-02-2021 10:57").
const deviceTimestampLayout = "02-01-2006 15:04"

// ParseTimestamp parses a timestamp cell, trying each supported layout.
// Layouts without a zone offset are interpreted as UTC. The result is
// always normalized to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("invalid timestamp: empty value")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// ParseDeviceTimestamp parses the day-first timestamp format found in
// meter export files. Device clocks carry no zone information, so the
// value is interpreted as UTC.
func ParseDeviceTimestamp(s string) (time.Time, error) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("invalid timestamp: empty value")
	}
	t, err := time.ParseInLocation(deviceTimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

// ParseGlucose parses a glucose value cell. A decimal comma is accepted
// when the cell contains no decimal point, since spreadsheet exports
// from comma-decimal locales produce "5,5" for 5.5.
func ParseGlucose(s string) (float64, error) {
	s = CleanCell(s)
	if s == "" {
		return 0, fmt.Errorf("invalid glucose value: empty value")
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid glucose value %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid glucose value %q", s)
	}
	return v, nil
}

// FormatGlucose renders a glucose value for CSV export without trailing
// zeros, so 5.5 round-trips as "5.5" and 100 as "100".
func FormatGlucose(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatTimestamp renders a timestamp for CSV export in RFC 3339 UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ToPgUUID converts a string to pgtype.UUID.
// Returns invalid if the string is empty or not a valid UUID.
func ToPgUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

// PgUUIDToString converts a pgtype.UUID to its string representation.
// Returns empty string if the UUID is invalid.
func PgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are lowercased for case-insensitive matching.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		idx[key] = i
	}
	return idx
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}
