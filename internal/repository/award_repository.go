package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/scan-rewards/internal/database"
)

// AwardRepo writes coin_daily_awards.  The (user_id, award_date) key is
// what makes a second credit on the same day impossible.
type AwardRepo struct {
	db *database.DB
}

func NewAwardRepo(db *database.DB) *AwardRepo { return &AwardRepo{db: db} }

// InsertIfAbsentTx records that userID was awarded on day.  created is
// false when a row for that day already existed, in which case nothing
// was written.
func (r *AwardRepo) InsertIfAbsentTx(ctx context.Context, tx *sql.Tx, userID uint64, day string, scannerID *uint64, now time.Time) (created bool, err error) {
	q := r.db.Dialect.Rebind(r.db.Dialect.InsertIfAbsent(
		`INSERT INTO coin_daily_awards (user_id, award_date, scanner_id, created_at) VALUES (?, ?, ?, ?)`,
		"user_id, award_date", "user_id"))
	res, err := tx.ExecContext(ctx, q, userID, day, nullID(scannerID), now.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// nullID turns an optional id into a driver value.
func nullID(id *uint64) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}
