// Package service holds the token lifecycle and scan redemption logic.
// Persistence is reached through the repository package; HTTP concerns
// stay in handler.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/scan-rewards/internal/metrics"
	"github.com/iliyamo/scan-rewards/internal/model"
	"github.com/iliyamo/scan-rewards/internal/qrcode"
	"github.com/iliyamo/scan-rewards/internal/repository"
)

// TokenStore is the persistence the token manager needs.  It is
// implemented by repository.QRTokenRepo.
type TokenStore interface {
	FindActive(ctx context.Context, userID uint64, day string) (*model.QRToken, error)
	FindActiveAny(ctx context.Context, userID uint64) (*model.QRToken, error)
	FindByHash(ctx context.Context, hash, day string) (*model.QRToken, error)
	Create(ctx context.Context, t *model.QRToken) error
	RotateStale(ctx context.Context, userID uint64, windowStart string, now time.Time) (int64, error)
}

// TokenManager keeps exactly one active token per member and calendar
// month, and resolves scanned barcodes back to tokens.
type TokenManager struct {
	store   TokenStore
	codec   *qrcode.Codec
	loc     *time.Location
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// NewTokenManager wires a manager.  loc decides where a calendar day
// starts; nil means UTC.  m and log may be nil.
func NewTokenManager(store TokenStore, codec *qrcode.Codec, loc *time.Location, m *metrics.Metrics, log logrus.FieldLogger) *TokenManager {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &TokenManager{store: store, codec: codec, loc: loc, metrics: m, log: log}
}

// Location is the time zone calendar days are evaluated in.
func (m *TokenManager) Location() *time.Location { return m.loc }

// Day returns the award day of t.
func (m *TokenManager) Day(t time.Time) string { return qrcode.Day(t.In(m.loc)) }

// Barcode renders the printable value of tok.
func (m *TokenManager) Barcode(tok *model.QRToken) string {
	return m.codec.FormatBarcode(tok.TokenValue, qrcode.YearMonthOf(tok.ValidFrom))
}

// GetOrCreateActive returns the member's token for the month containing
// asOf.  When there is none, stale active tokens are rotated out first and
// a new one is created.  Concurrent callers for the same member converge on
// a single token.
func (m *TokenManager) GetOrCreateActive(ctx context.Context, userID uint64, asOf time.Time) (*model.QRToken, error) {
	local := asOf.In(m.loc)
	day := qrcode.Day(local)

	tok, err := m.store.FindActive(ctx, userID, day)
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find active token: %w", err)
	}

	w := qrcode.MonthWindow(local)
	n, err := m.store.RotateStale(ctx, userID, w.ValidFrom, asOf)
	if err != nil {
		return nil, fmt.Errorf("rotate stale tokens: %w", err)
	}
	if n > 0 {
		m.metrics.TokensRotated(n)
		m.log.WithFields(logrus.Fields{"user_id": userID, "rotated": n}).Info("stale scan tokens rotated")
	}
	return m.createForMonth(ctx, userID, w, day, asOf)
}

// createForMonth inserts a fresh token for window w.  A unique key
// violation means either another request created the member's token first
// (return that one) or the hash collided with someone else's token (try
// once more with a new secret).
func (m *TokenManager) createForMonth(ctx context.Context, userID uint64, w qrcode.Window, day string, now time.Time) (*model.QRToken, error) {
	for attempt := 1; attempt <= 2; attempt++ {
		tok, err := m.newToken(userID, w, now)
		if err != nil {
			return nil, err
		}
		err = m.store.Create(ctx, tok)
		if err == nil {
			m.metrics.TokenIssued()
			m.log.WithFields(logrus.Fields{"user_id": userID, "token_id": tok.ID, "valid_from": w.ValidFrom}).
				Info("scan token issued")
			return tok, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("create token: %w", err)
		}

		m.metrics.TokenCollision()
		existing, ferr := m.store.FindActive(ctx, userID, day)
		if ferr == nil {
			return existing, nil
		}
		if !errors.Is(ferr, repository.ErrNotFound) {
			return nil, fmt.Errorf("find active token after collision: %w", ferr)
		}
		// RotateStale only retires earlier windows; a later active token
		// holds the per-user key and every retry would collide with it.
		other, ferr := m.store.FindActiveAny(ctx, userID)
		if ferr == nil {
			return nil, fmt.Errorf("user %d holds token %s valid from %s, want %s: %w",
				userID, other.ID, other.ValidFrom, w.ValidFrom, ErrActiveOutsideWindow)
		}
		if !errors.Is(ferr, repository.ErrNotFound) {
			return nil, fmt.Errorf("find any active token after collision: %w", ferr)
		}
		m.log.WithFields(logrus.Fields{"user_id": userID, "attempt": attempt}).Warn("scan token collided, no active token found")
	}
	return nil, fmt.Errorf("user %d: %w", userID, ErrTokenCollision)
}

func (m *TokenManager) newToken(userID uint64, w qrcode.Window, now time.Time) (*model.QRToken, error) {
	value, err := m.codec.NewToken()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return nil, fmt.Errorf("token id: %w", err)
	}
	return &model.QRToken{
		ID:         id.String(),
		UserID:     userID,
		TokenValue: value,
		TokenHash:  qrcode.Hash(value),
		Status:     model.TokenStatusActive,
		ValidFrom:  w.ValidFrom,
		ValidUntil: w.ValidUntil,
		CreatedAt:  now.UTC(),
	}, nil
}

// FindByBarcode resolves scanner input to the active token valid on the
// day of now.  Every failure to match is ErrInvalidOrExpired.
func (m *TokenManager) FindByBarcode(ctx context.Context, barcode string, now time.Time) (*model.QRToken, error) {
	value, ok := m.codec.ParseBarcode(barcode)
	if !ok {
		return nil, ErrInvalidOrExpired
	}
	tok, err := m.store.FindByHash(ctx, qrcode.Hash(value), m.Day(now))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidOrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("find token by hash: %w", err)
	}
	return tok, nil
}
