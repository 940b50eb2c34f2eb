package core

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Service provides the business logic for glucose measurement storage:
// CSV ingestion, querying, and export. All state lives in PostgreSQL;
// the service itself only holds the connection pool, so a single
// instance is safe for concurrent use and horizontal scaling.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new Service backed by the given pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Ping verifies database connectivity. Used by the health endpoint.
func (s *Service) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
