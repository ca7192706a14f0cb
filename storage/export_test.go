package storage

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// GetPool returns the underlying connection pool.
// This is used by tests to query the database directly.
func (pgr *PostgresRepo) GetPool() *pgxpool.Pool {
	return pgr.pool
}

// SetClock replaces the clock stamping memory rows.
func (r *MemoryRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// QueueLen counts the matchmaking entries still held.
func (r *MemoryRepo) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}
