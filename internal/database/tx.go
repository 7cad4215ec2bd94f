package database

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by repositories.  Both *sql.DB
// and *sql.Tx satisfy it, so the same repository method can run inside or
// outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn, and commits when fn returns nil.
// Any error or panic rolls the transaction back; panics are rethrown.  The
// rollback also runs when commit itself fails, so no row lock outlives the
// call.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if err = tx.Commit(); err != nil {
			_ = tx.Rollback()
		}
	}()

	err = fn(ctx, tx)
	return err
}
