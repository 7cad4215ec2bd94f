package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/scan-rewards/internal/database"
	"github.com/iliyamo/scan-rewards/internal/model"
)

// QRTokenRepo stores scan tokens in user_qr_tokens.  Days are passed as
// YYYY-MM-DD strings so comparisons behave the same on every dialect.
type QRTokenRepo struct {
	db *database.DB
}

// NewQRTokenRepo returns a QRTokenRepo bound to db.
func NewQRTokenRepo(db *database.DB) *QRTokenRepo { return &QRTokenRepo{db: db} }

const qrTokenColumns = `id, user_id, token_value, token_hash, status, valid_from, valid_until, created_at, revoked_at, last_used_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQRToken(row rowScanner) (*model.QRToken, error) {
	var (
		t                  model.QRToken
		from, until        database.Day
		created, rev, used database.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.TokenValue, &t.TokenHash, &t.Status,
		&from, &until, &created, &rev, &used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.ValidFrom, t.ValidUntil = string(from), string(until)
	t.CreatedAt = created.Time
	t.RevokedAt = rev.Ptr()
	t.LastUsedAt = used.Ptr()
	return &t, nil
}

// FindActive returns the user's active token whose window contains day.
// The active-per-user key allows at most one, the ORDER BY only matters
// while a stale row is being rotated out.
func (r *QRTokenRepo) FindActive(ctx context.Context, userID uint64, day string) (*model.QRToken, error) {
	q := r.db.Dialect.Rebind(`SELECT ` + qrTokenColumns + ` FROM user_qr_tokens
		WHERE user_id = ? AND status = ? AND valid_from <= ? AND valid_until >= ?
		ORDER BY created_at DESC, id DESC LIMIT 1`)
	return scanQRToken(r.db.QueryRowContext(ctx, q, userID, model.TokenStatusActive, day, day))
}

// FindActiveAny returns the user's active token whatever its window.
func (r *QRTokenRepo) FindActiveAny(ctx context.Context, userID uint64) (*model.QRToken, error) {
	q := r.db.Dialect.Rebind(`SELECT ` + qrTokenColumns + ` FROM user_qr_tokens
		WHERE user_id = ? AND status = ? ORDER BY valid_from DESC, created_at DESC LIMIT 1`)
	return scanQRToken(r.db.QueryRowContext(ctx, q, userID, model.TokenStatusActive))
}

// FindByHash returns the active token with the given hash whose window
// contains day.  Expired, rotated and unknown tokens all yield ErrNotFound.
func (r *QRTokenRepo) FindByHash(ctx context.Context, hash, day string) (*model.QRToken, error) {
	q := r.db.Dialect.Rebind(`SELECT ` + qrTokenColumns + ` FROM user_qr_tokens
		WHERE token_hash = ? AND status = ? AND valid_from <= ? AND valid_until >= ?
		LIMIT 1`)
	return scanQRToken(r.db.QueryRowContext(ctx, q, hash, model.TokenStatusActive, day, day))
}

// Create inserts t.  A collision on token_hash or on the one-active-token
// key is reported as ErrDuplicate.
func (r *QRTokenRepo) Create(ctx context.Context, t *model.QRToken) error {
	q := r.db.Dialect.Rebind(`INSERT INTO user_qr_tokens
		(id, user_id, token_value, token_hash, status, valid_from, valid_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, t.ID, t.UserID, t.TokenValue, t.TokenHash,
		t.Status, t.ValidFrom, t.ValidUntil, t.CreatedAt.UTC())
	if database.IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// RotateStale marks the user's active tokens that ended before windowStart
// as rotated and returns how many rows changed.
func (r *QRTokenRepo) RotateStale(ctx context.Context, userID uint64, windowStart string, now time.Time) (int64, error) {
	q := r.db.Dialect.Rebind(`UPDATE user_qr_tokens SET status = ?, revoked_at = ?
		WHERE user_id = ? AND status = ? AND valid_until < ?`)
	res, err := r.db.ExecContext(ctx, q, model.TokenStatusRotated, now.UTC(),
		userID, model.TokenStatusActive, windowStart)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TouchTx records a scan of the token inside the caller's transaction.
func (r *QRTokenRepo) TouchTx(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	q := r.db.Dialect.Rebind(`UPDATE user_qr_tokens SET last_used_at = ? WHERE id = ?`)
	_, err := tx.ExecContext(ctx, q, now.UTC(), id)
	return err
}
