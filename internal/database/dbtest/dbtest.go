// Package dbtest opens throwaway migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/scan-rewards/internal/database"
)

// New returns a migrated SQLite database in t.TempDir().  The pool holds a
// single connection, so transactions from concurrent goroutines run one
// after another the way row locks serialise them on MySQL.
func New(t *testing.T) *database.DB {
	t.Helper()
	raw, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "scan.db"))
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	raw.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = raw.Close() })

	db := database.Wrap(raw, database.SQLite)
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

// User is a row inserted by SeedUser.
type User struct {
	Email        string
	PasswordHash string
	Role         string
	FirstName    string
	LastName     string
	Credits      int64
	Inactive     bool
}

// SeedUser inserts a user and returns its id.
func SeedUser(t *testing.T, db *database.DB, u User) uint64 {
	t.Helper()
	if u.Role == "" {
		u.Role = "MEMBER"
	}
	if u.PasswordHash == "" {
		u.PasswordHash = "x"
	}
	active := 1
	if u.Inactive {
		active = 0
	}
	res, err := db.ExecContext(context.Background(),
		`INSERT INTO users (email, password_hash, role, first_name, last_name, credits, is_active) VALUES (?,?,?,?,?,?,?)`,
		u.Email, u.PasswordHash, u.Role, u.FirstName, u.LastName, u.Credits, active)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

// Credits reads a user's balance directly.
func Credits(t *testing.T, db *database.DB, userID uint64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.QueryRowContext(context.Background(),
		`SELECT credits FROM users WHERE id = ?`, userID).Scan(&n))
	return n
}

// Count runs SELECT COUNT(*) with the given tail ("FROM t WHERE ...").
func Count(t *testing.T, db *database.DB, tail string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) "+tail, args...).Scan(&n))
	return n
}

// Date is shorthand for a UTC instant at noon on the given day.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}
