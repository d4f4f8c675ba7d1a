package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Transactor opens the transactions order updates run in. Every transaction
// gets a local lock_timeout so a request queued behind another writer's
// SELECT ... FOR UPDATE on the same order fails instead of hanging.
type Transactor struct {
	pool        Pool
	lockTimeout time.Duration
}

// NewTransactor returns a Transactor over pool. A zero lockTimeout leaves the
// server default in place.
func NewTransactor(pool Pool, lockTimeout time.Duration) *Transactor {
	return &Transactor{pool: pool, lockTimeout: lockTimeout}
}

// Begin starts a transaction with the configured lock timeout applied.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if t.lockTimeout <= 0 {
		return tx, nil
	}
	ms := fmt.Sprintf("%dms", t.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}
	return tx, nil
}
