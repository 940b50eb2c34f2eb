package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Pagination limits for measurement listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// sortColumns maps accepted sort columns to their SQL spelling.
// timestamp needs quoting because it is a reserved word.
var sortColumns = map[string]string{
	"id":            "id",
	"user_id":       "user_id",
	"timestamp":     `"timestamp"`,
	"glucose_value": "glucose_value",
}

// DefaultSort orders newest measurements first.
var DefaultSort = SortSpec{Column: "timestamp", Dir: "desc"}

// ParseSort parses a sort parameter in "column.direction" form, such
// as "timestamp.desc". Both parts are validated against a whitelist.
func ParseSort(s string) (SortSpec, error) {
	col, dir, ok := strings.Cut(s, ".")
	if !ok {
		return SortSpec{}, fmt.Errorf("invalid sort %q: expected column.direction", s)
	}
	col = strings.ToLower(strings.TrimSpace(col))
	dir = strings.ToLower(strings.TrimSpace(dir))
	if _, known := sortColumns[col]; !known {
		return SortSpec{}, fmt.Errorf("invalid sort column %q: must be one of id, user_id, timestamp, glucose_value", col)
	}
	if dir != "asc" && dir != "desc" {
		return SortSpec{}, fmt.Errorf("invalid sort direction %q: must be asc or desc", dir)
	}
	return SortSpec{Column: col, Dir: dir}, nil
}

// buildListQuery assembles the SELECT for ListLevels. An unknown sort
// column falls back to the default rather than reaching the SQL text,
// so callers cannot inject through SortSpec.
func buildListQuery(q LevelQuery) (string, []interface{}) {
	col, known := sortColumns[q.Sort.Column]
	if !known {
		col = sortColumns[DefaultSort.Column]
		q.Sort.Dir = DefaultSort.Dir
	}
	dir := strings.ToLower(q.Sort.Dir)
	if dir != "asc" && dir != "desc" {
		dir = DefaultSort.Dir
	}

	conditions := []string{"user_id = $1"}
	args := []interface{}{q.UserID}

	if q.Start != nil {
		args = append(args, q.Start.UTC())
		conditions = append(conditions, fmt.Sprintf(`"timestamp" >= $%d`, len(args)))
	}
	if q.Stop != nil {
		args = append(args, q.Stop.UTC())
		conditions = append(conditions, fmt.Sprintf(`"timestamp" <= $%d`, len(args)))
	}

	orderBy := col + " " + dir
	if col != "id" {
		// Tie-break on id so pages never overlap when the sort column
		// repeats
		orderBy += ", id asc"
	}

	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)
	query := fmt.Sprintf(
		`SELECT id, user_id, "timestamp", glucose_value FROM glucose_levels WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "),
		orderBy,
		len(args)-1,
		len(args),
	)
	return query, args
}

// ListLevels returns one page of a user's measurements. A page beyond
// the data, or an unknown user, yields an empty slice rather than an
// error.
func (s *Service) ListLevels(ctx context.Context, q LevelQuery) ([]Level, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}

	query, args := buildListQuery(q)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query levels: %w", err)
	}
	defer rows.Close()

	// Non-nil so an empty page serializes as [] rather than null
	levels := make([]Level, 0, q.PageSize)
	for rows.Next() {
		var lvl Level
		if err := rows.Scan(&lvl.ID, &lvl.UserID, &lvl.Timestamp, &lvl.GlucoseValue); err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		lvl.Timestamp = lvl.Timestamp.UTC()
		levels = append(levels, lvl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return levels, nil
}

const getLevelSQL = `
SELECT id, user_id, "timestamp", glucose_value
FROM glucose_levels
WHERE id = $1`

// GetLevel fetches a single measurement by id.
// Returns ErrNotFound when no such measurement exists.
func (s *Service) GetLevel(ctx context.Context, id int64) (*Level, error) {
	var lvl Level
	err := s.pool.QueryRow(ctx, getLevelSQL, id).
		Scan(&lvl.ID, &lvl.UserID, &lvl.Timestamp, &lvl.GlucoseValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query level %d: %w", id, err)
	}
	lvl.Timestamp = lvl.Timestamp.UTC()
	return &lvl, nil
}
