package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/scan-rewards/internal/database"
	"github.com/iliyamo/scan-rewards/internal/model"
)

// LedgerRepo appends to and reads coin_transactions.  Rows are never
// updated or deleted.
type LedgerRepo struct {
	db *database.DB
}

func NewLedgerRepo(db *database.DB) *LedgerRepo { return &LedgerRepo{db: db} }

// AppendTx writes e inside the caller's transaction.  e.ID is not filled
// in; nothing on the scan path needs it.
func (r *LedgerRepo) AppendTx(ctx context.Context, tx *sql.Tx, e model.LedgerEntry) error {
	q := r.db.Dialect.Rebind(`INSERT INTO coin_transactions (user_id, delta, type, scanner_id, created_at) VALUES (?, ?, ?, ?, ?)`)
	_, err := tx.ExecContext(ctx, q, e.UserID, e.Delta, e.Type, nullID(e.ScannerID), e.CreatedAt.UTC())
	return err
}

// ListByUser returns up to limit entries for userID, newest first.
func (r *LedgerRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.LedgerEntry, error) {
	q := r.db.Dialect.Rebind(`SELECT id, user_id, delta, type, scanner_id, created_at
		FROM coin_transactions WHERE user_id = ? ORDER BY id DESC LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.LedgerEntry{}
	for rows.Next() {
		var (
			e       model.LedgerEntry
			scanner sql.NullInt64
			created database.NullTime
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Type, &scanner, &created); err != nil {
			return nil, err
		}
		if scanner.Valid {
			id := uint64(scanner.Int64)
			e.ScannerID = &id
		}
		e.CreatedAt = created.Time
		out = append(out, e)
	}
	return out, rows.Err()
}
