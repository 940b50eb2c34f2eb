package core

import (
	"context"
	"fmt"
)

// timestamp is a reserved word in PostgreSQL, so the column is quoted
// everywhere it appears.
const insertLevelSQL = `
INSERT INTO glucose_levels (user_id, "timestamp", glucose_value)
VALUES ($1, $2, $3)
RETURNING id, user_id, "timestamp", glucose_value`

// insertLevel stores one measurement and returns it with its assigned
// id. Runs on either the pool or an open transaction.
func insertLevel(ctx context.Context, db DBTX, nl NewLevel) (Level, error) {
	var lvl Level
	err := db.QueryRow(ctx, insertLevelSQL,
		nl.UserID, nl.Timestamp.UTC(), nl.GlucoseValue,
	).Scan(&lvl.ID, &lvl.UserID, &lvl.Timestamp, &lvl.GlucoseValue)
	if err != nil {
		return Level{}, err
	}
	lvl.Timestamp = lvl.Timestamp.UTC()
	return lvl, nil
}

// CreateLevel stores a single measurement and returns the stored record
// including its assigned id. Use IsConflict on the returned error to
// distinguish integrity violations from other failures.
func (s *Service) CreateLevel(ctx context.Context, nl NewLevel) (*Level, error) {
	lvl, err := insertLevel(ctx, s.pool, nl)
	if err != nil {
		return nil, fmt.Errorf("insert level: %w", err)
	}
	return &lvl, nil
}
