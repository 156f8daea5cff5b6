package database

import (
	"context"
	"database/sql"
)

// Store wraps a sql.DB with scoped transaction execution. It exists so
// transactional units of work receive an explicitly injected handle
// instead of reaching for an ambient pool, and so rollback is guaranteed
// on every exit path.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store over the given database handle.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// RunInTx begins a transaction, runs fn, and commits if fn returns nil.
// On error or panic the transaction is rolled back. Context cancellation
// aborts the transaction through the driver, so a disconnected caller
// cannot leave a lock held or effects half-applied.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
