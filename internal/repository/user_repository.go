package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/scan-rewards/internal/database"
	"github.com/iliyamo/scan-rewards/internal/model"
)

// UserRepo reads members and maintains their coin balance.  Accounts are
// created by the wider platform, so there is no Create here.
type UserRepo struct {
	db *database.DB
}

func NewUserRepo(db *database.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, password_hash, role, first_name, last_name, credits, is_active, created_at, updated_at`

func scanUser(row rowScanner) (model.User, error) {
	var (
		u                model.User
		created, updated database.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.FirstName, &u.LastName,
		&u.Credits, &u.IsActive, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	u.CreatedAt, u.UpdatedAt = created.Time, updated.Time
	return u, err
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	q := r.db.Dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ? LIMIT 1`)
	return scanUser(r.db.QueryRowContext(ctx, q, email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	q := r.db.Dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1`)
	return scanUser(r.db.QueryRowContext(ctx, q, id))
}

// LockBalanceTx reads the balance and locks the user row until the
// transaction ends.  Concurrent scans for the same member queue here.
func (r *UserRepo) LockBalanceTx(ctx context.Context, tx *sql.Tx, userID uint64) (int64, error) {
	q := r.db.Dialect.Rebind(`SELECT credits FROM users WHERE id = ?` + r.db.Dialect.ForUpdate())
	var credits int64
	err := tx.QueryRowContext(ctx, q, userID).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return credits, err
}

// SetBalanceTx writes a new balance.  The caller must hold the row lock
// taken by LockBalanceTx.
func (r *UserRepo) SetBalanceTx(ctx context.Context, tx *sql.Tx, userID uint64, credits int64, now time.Time) error {
	q := r.db.Dialect.Rebind(`UPDATE users SET credits = ?, updated_at = ? WHERE id = ?`)
	return execOne(ctx, tx, q, credits, now.UTC(), userID)
}

// UpdatePasswordHash replaces a user's password hash.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, userID uint64, hash string, now time.Time) error {
	q := r.db.Dialect.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`)
	return execOne(ctx, r.db, q, hash, now.UTC(), userID)
}

// execOne runs an UPDATE that must touch a row; none is ErrNotFound.
func execOne(ctx context.Context, q database.DBTX, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
