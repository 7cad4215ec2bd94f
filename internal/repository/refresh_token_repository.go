package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/scan-rewards/internal/database"
)

// RefreshTokenRepo persists/validates refresh tokens (single 'token_hash' column).
type RefreshTokenRepo struct{ db *database.DB }

func NewRefreshTokenRepo(db *database.DB) *RefreshTokenRepo { return &RefreshTokenRepo{db: db} }

// Store inserts a refresh token hash row.
func (r *RefreshTokenRepo) Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	q := r.db.Dialect.Rebind("INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?)")
	_, err := r.db.ExecContext(ctx, q, userID, tokenHash, exp.UTC(), time.Now().UTC())
	if database.IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// Validate returns the userID if a non-revoked token exists that has not
// expired at now.
func (r *RefreshTokenRepo) Validate(ctx context.Context, tokenHash string, now time.Time) (uint64, error) {
	var (
		userID    uint64
		expiresAt database.NullTime
		revokedAt database.NullTime
	)
	q := r.db.Dialect.Rebind("SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1")
	err := r.db.QueryRowContext(ctx, q, tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if revokedAt.Valid || !now.Before(expiresAt.Time) {
		return 0, ErrNotFound
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked.
func (r *RefreshTokenRepo) RevokeByHash(ctx context.Context, tokenHash string, now time.Time) error {
	q := r.db.Dialect.Rebind("UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL")
	_, err := r.db.ExecContext(ctx, q, now.UTC(), tokenHash)
	return err
}

// RevokeAllForUser revokes all user's active tokens.
func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID uint64, now time.Time) error {
	q := r.db.Dialect.Rebind("UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL")
	_, err := r.db.ExecContext(ctx, q, now.UTC(), userID)
	return err
}
