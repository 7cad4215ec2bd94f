package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/scan-rewards/internal/database/dbtest"
	"github.com/iliyamo/scan-rewards/internal/model"
	"github.com/iliyamo/scan-rewards/internal/repository"
)

func march(uid uint64, id, value string) *model.QRToken {
	return &model.QRToken{
		ID:         id,
		UserID:     uid,
		TokenValue: value,
		TokenHash:  "hash-" + value,
		Status:     model.TokenStatusActive,
		ValidFrom:  "2024-03-01",
		ValidUntil: "2024-03-31",
		CreatedAt:  dbtest.Date(2024, time.March, 1),
	}
}

func TestQRTokenRepo_CreateAndFind(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	uid := dbtest.SeedUser(t, db, dbtest.User{Email: "a@example.com"})
	repo := repository.NewQRTokenRepo(db)

	require.NoError(t, repo.Create(ctx, march(uid, "01HQ0000000000000000000001", "AAAA")))

	got, err := repo.FindActive(ctx, uid, "2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, "AAAA", got.TokenValue)
	assert.Equal(t, "2024-03-01", got.ValidFrom)
	assert.Equal(t, "2024-03-31", got.ValidUntil)
	assert.True(t, got.CreatedAt.Equal(dbtest.Date(2024, time.March, 1)))
	assert.Nil(t, got.RevokedAt)
	assert.Nil(t, got.LastUsedAt)

	for _, day := range []string{"2024-03-01", "2024-03-31"} {
		_, err = repo.FindActive(ctx, uid, day)
		require.NoError(t, err, day)
	}
	for _, day := range []string{"2024-02-29", "2024-04-01"} {
		_, err = repo.FindActive(ctx, uid, day)
		require.ErrorIs(t, err, repository.ErrNotFound, day)
	}

	byHash, err := repo.FindByHash(ctx, "hash-AAAA", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, got.ID, byHash.ID)
	_, err = repo.FindByHash(ctx, "hash-AAAA", "2024-04-01")
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.FindByHash(ctx, "nope", "2024-03-15")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestQRTokenRepo_CreateDuplicate(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	a := dbtest.SeedUser(t, db, dbtest.User{Email: "a@example.com"})
	b := dbtest.SeedUser(t, db, dbtest.User{Email: "b@example.com"})
	repo := repository.NewQRTokenRepo(db)

	require.NoError(t, repo.Create(ctx, march(a, "01A", "AAAA")))
	// second active token for the same user
	require.ErrorIs(t, repo.Create(ctx, march(a, "01B", "BBBB")), repository.ErrDuplicate)
	// same hash, other user
	require.ErrorIs(t, repo.Create(ctx, march(b, "01C", "AAAA")), repository.ErrDuplicate)
}

func TestQRTokenRepo_RotateStale(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	uid := dbtest.SeedUser(t, db, dbtest.User{Email: "a@example.com"})
	repo := repository.NewQRTokenRepo(db)

	feb := march(uid, "01A", "FEB")
	feb.ValidFrom, feb.ValidUntil = "2024-02-01", "2024-02-29"
	require.NoError(t, repo.Create(ctx, feb))

	n, err := repo.RotateStale(ctx, uid, "2024-02-01", dbtest.Date(2024, time.February, 10))
	require.NoError(t, err)
	assert.Zero(t, n, "current window must not be rotated")

	now := dbtest.Date(2024, time.March, 1)
	n, err = repo.RotateStale(ctx, uid, "2024-03-01", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.FindActiveAny(ctx, uid)
	require.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 1, dbtest.Count(t, db,
		"FROM user_qr_tokens WHERE id = '01A' AND status = 'rotated' AND revoked_at IS NOT NULL"))

	require.NoError(t, repo.Create(ctx, march(uid, "01B", "MAR")))
	active, err := repo.FindActiveAny(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "MAR", active.TokenValue)
	_, err = repo.FindActive(ctx, uid, "2024-02-15")
	require.ErrorIs(t, err, repository.ErrNotFound, "outside its window only FindActiveAny sees it")
}

func TestQRTokenRepo_TouchTx(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	uid := dbtest.SeedUser(t, db, dbtest.User{Email: "a@example.com"})
	repo := repository.NewQRTokenRepo(db)
	require.NoError(t, repo.Create(ctx, march(uid, "01A", "AAAA")))

	used := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	require.NoError(t, db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return repo.TouchTx(ctx, tx, "01A", used)
	}))
	got, err := repo.FindActive(ctx, uid, "2024-03-15")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, got.LastUsedAt.Equal(used))
}

func TestUserRepo_Lookups(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	uid := dbtest.SeedUser(t, db, dbtest.User{
		Email: "ana@example.com", Role: model.RoleScanner, FirstName: "Ana", LastName: "Lopez", Credits: 7,
	})
	repo := repository.NewUserRepo(db)

	u, err := repo.GetByEmail(ctx, "  ANA@example.com ")
	require.NoError(t, err)
	assert.Equal(t, uid, u.ID)
	assert.Equal(t, model.RoleScanner, u.Role)
	assert.Equal(t, "Ana", u.FirstName)
	assert.Equal(t, int64(7), u.Credits)
	assert.True(t, u.IsActive)
	assert.False(t, u.CreatedAt.IsZero())

	u, err = repo.GetByID(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)

	_, err = repo.GetByID(ctx, uid+100)
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.UpdatePasswordHash(ctx, uid, "new-hash", time.Now()))
	u, err = repo.GetByID(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", u.PasswordHash)
	require.ErrorIs(t, repo.UpdatePasswordHash(ctx, uid+100, "x", time.Now()), repository.ErrNotFound)
}

func TestUserRepo_Balance(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	uid := dbtest.SeedUser(t, db, dbtest.User{Email: "a@example.com", Credits: 10})
	repo := repository.NewUserRepo(db)

	err := db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		bal, err := repo.LockBalanceTx(ctx, tx, uid)
		if err != nil {
			return err
		}
		return repo.SetBalanceTx(ctx, tx, uid, bal+5, time.Now())
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15), dbtest.Credits(t, db, uid))

	err = db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := repo.LockBalanceTx(ctx, tx, uid+1)
		return err
	})
	require.ErrorIs(t, err, repository.ErrNotFound)

	err = db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return repo.SetBalanceTx(ctx, tx, uid+1, 1, time.Now())
	})
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAwardRepo_InsertIfAbsentTx(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	uid := dbtest.SeedUser(t, db, dbtest.User{Email: "a@example.com"})
	scanner := dbtest.SeedUser(t, db, dbtest.User{Email: "s@example.com", Role: model.RoleScanner})
	repo := repository.NewAwardRepo(db)
	now := dbtest.Date(2024, time.March, 15)

	insert := func(day string, scannerID *uint64) bool {
		var created bool
		require.NoError(t, db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			var err error
			created, err = repo.InsertIfAbsentTx(ctx, tx, uid, day, scannerID, now)
			return err
		}))
		return created
	}

	assert.True(t, insert("2024-03-15", &scanner))
	assert.False(t, insert("2024-03-15", nil))
	assert.True(t, insert("2024-03-16", nil))
	assert.Equal(t, 2, dbtest.Count(t, db, "FROM coin_daily_awards WHERE user_id = ?", uid))
	assert.Equal(t, 1, dbtest.Count(t, db, "FROM coin_daily_awards WHERE scanner_id = ?", scanner))
}

func TestLedgerRepo_AppendAndList(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	uid := dbtest.SeedUser(t, db, dbtest.User{Email: "a@example.com"})
	other := dbtest.SeedUser(t, db, dbtest.User{Email: "b@example.com"})
	scanner := uint64(99)
	repo := repository.NewLedgerRepo(db)

	require.NoError(t, db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for i, u := range []uint64{uid, uid, other, uid} {
			e := model.LedgerEntry{
				UserID:    u,
				Delta:     int64(i + 1),
				Type:      model.LedgerTypeScanReward,
				CreatedAt: dbtest.Date(2024, time.March, 10+i),
			}
			if i == 3 {
				e.ScannerID = &scanner
			}
			if err := repo.AppendTx(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	list, err := repo.ListByUser(ctx, uid, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(4), list[0].Delta)
	require.NotNil(t, list[0].ScannerID)
	assert.Equal(t, scanner, *list[0].ScannerID)
	assert.True(t, list[0].CreatedAt.Equal(dbtest.Date(2024, time.March, 13)))
	assert.Equal(t, int64(2), list[1].Delta)
	assert.Nil(t, list[1].ScannerID)

	list, err = repo.ListByUser(ctx, uid+other+10, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}

func TestRefreshTokenRepo_Lifecycle(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	uid := dbtest.SeedUser(t, db, dbtest.User{Email: "a@example.com"})
	repo := repository.NewRefreshTokenRepo(db)
	now := time.Now().UTC()

	require.NoError(t, repo.Store(ctx, uid, "h1", now.Add(time.Hour)))
	require.NoError(t, repo.Store(ctx, uid, "h2", now.Add(time.Hour)))
	require.ErrorIs(t, repo.Store(ctx, uid, "h1", now.Add(time.Hour)), repository.ErrDuplicate)

	got, err := repo.Validate(ctx, "h1", now)
	require.NoError(t, err)
	assert.Equal(t, uid, got)

	_, err = repo.Validate(ctx, "h1", now.Add(2*time.Hour))
	require.ErrorIs(t, err, repository.ErrNotFound, "expired")
	_, err = repo.Validate(ctx, "missing", now)
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.RevokeByHash(ctx, "h1", now))
	_, err = repo.Validate(ctx, "h1", now)
	require.ErrorIs(t, err, repository.ErrNotFound, "revoked")

	require.NoError(t, repo.RevokeAllForUser(ctx, uid, now))
	_, err = repo.Validate(ctx, "h2", now)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

