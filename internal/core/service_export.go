package core

import (
	"context"
	"fmt"
)

const exportLevelsSQL = `
SELECT id, user_id, "timestamp", glucose_value
FROM glucose_levels
WHERE user_id = $1
ORDER BY "timestamp" ASC, id ASC`

// StreamLevels streams all of a user's measurements in chronological
// order via callback, avoiding memory accumulation on large exports.
// Returns after all rows are processed or on first error.
func (s *Service) StreamLevels(ctx context.Context, userID string, fn func(Level) error) error {
	rows, err := s.pool.Query(ctx, exportLevelsSQL, userID)
	if err != nil {
		return fmt.Errorf("query levels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		// Check for context cancellation (client closed the connection)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var lvl Level
		if err := rows.Scan(&lvl.ID, &lvl.UserID, &lvl.Timestamp, &lvl.GlucoseValue); err != nil {
			return fmt.Errorf("scan level: %w", err)
		}
		lvl.Timestamp = lvl.Timestamp.UTC()

		if err := fn(lvl); err != nil {
			return err
		}
	}

	return rows.Err()
}
