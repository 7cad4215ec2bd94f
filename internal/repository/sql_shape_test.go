package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/scan-rewards/internal/database"
	"github.com/iliyamo/scan-rewards/internal/model"
	"github.com/iliyamo/scan-rewards/internal/repository"
)

func newMock(t *testing.T, d database.Dialect) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return database.Wrap(raw, d), mock
}

func beginMock(t *testing.T, db *database.DB, mock sqlmock.Sqlmock) *sql.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	return tx
}

func TestMySQL_LockBalanceTakesRowLock(t *testing.T) {
	db, mock := newMock(t, database.MySQL)
	tx := beginMock(t, db, mock)

	mock.ExpectQuery(`(?s)^SELECT credits FROM users WHERE id = \? FOR UPDATE$`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(41)))

	bal, err := repository.NewUserRepo(db).LockBalanceTx(context.Background(), tx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(41), bal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQL_InsertIfAbsentBranchesOnRowsAffected(t *testing.T) {
	db, mock := newMock(t, database.MySQL)
	tx := beginMock(t, db, mock)
	repo := repository.NewAwardRepo(db)
	q := `(?s)^INSERT INTO coin_daily_awards \(user_id, award_date, scanner_id, created_at\) VALUES \(\?, \?, \?, \?\) ON DUPLICATE KEY UPDATE user_id = user_id$`
	scanner := uint64(3)

	mock.ExpectExec(q).
		WithArgs(int64(7), "2024-03-15", int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs(int64(7), "2024-03-15", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.InsertIfAbsentTx(context.Background(), tx, 7, "2024-03-15", &scanner, time.Now())
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.InsertIfAbsentTx(context.Background(), tx, 7, "2024-03-15", nil, time.Now())
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQL_CreateTokenMapsDuplicate(t *testing.T) {
	db, mock := newMock(t, database.MySQL)
	mock.ExpectExec(`(?s)^INSERT INTO user_qr_tokens`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repository.NewQRTokenRepo(db).Create(context.Background(), &model.QRToken{
		ID: "01A", UserID: 1, TokenValue: "AAAA", TokenHash: "h",
		Status: model.TokenStatusActive, ValidFrom: "2024-03-01", ValidUntil: "2024-03-31",
	})
	require.ErrorIs(t, err, repository.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindByHashUsesNumberedPlaceholders(t *testing.T) {
	db, mock := newMock(t, database.Postgres)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)FROM user_qr_tokens\s+WHERE token_hash = \$1 AND status = \$2 AND valid_from <= \$3 AND valid_until >= \$4`).
		WithArgs("h", "active", "2024-03-15", "2024-03-15").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "token_value", "token_hash", "status",
			"valid_from", "valid_until", "created_at", "revoked_at", "last_used_at",
		}).AddRow("01A", int64(9), "AAAA", "h", "active", from, until, created, nil, nil))

	tok, err := repository.NewQRTokenRepo(db).FindByHash(context.Background(), "h", "2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), tok.UserID)
	assert.Equal(t, "2024-03-01", tok.ValidFrom)
	assert.Equal(t, "2024-03-31", tok.ValidUntil)
	assert.True(t, tok.IsActive("2024-03-15"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertIfAbsentUsesOnConflict(t *testing.T) {
	db, mock := newMock(t, database.Postgres)
	tx := beginMock(t, db, mock)
	mock.ExpectExec(`(?s)VALUES \(\$1, \$2, \$3, \$4\) ON CONFLICT \(user_id, award_date\) DO NOTHING$`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repository.NewAwardRepo(db).InsertIfAbsentTx(context.Background(), tx, 1, "2024-03-15", nil, time.Now())
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}
