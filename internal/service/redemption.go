package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/scan-rewards/internal/database"
	"github.com/iliyamo/scan-rewards/internal/metrics"
	"github.com/iliyamo/scan-rewards/internal/model"
)

// Outcome is the resolved result of one scan.
type Outcome string

const (
	ScanAwarded          Outcome = "awarded"
	ScanAlreadyAwarded   Outcome = "already_awarded"
	ScanInvalidOrExpired Outcome = "invalid_or_expired"
	ScanFailed           Outcome = "failed"
)

// Messages returned to scanners.  They never carry internal detail.
const (
	MsgAlreadyAwarded   = "credit already awarded today"
	MsgInvalidOrExpired = "barcode is invalid or expired"
	MsgFailed           = "scan could not be processed"
)

// ScanResult describes what a scan did.  Balance is the member's balance
// after the scan; Delta is non-zero only for ScanAwarded.
type ScanResult struct {
	Outcome  Outcome
	UserID   uint64
	TokenID  string
	AwardDay string
	Balance  int64
	Delta    int64
	Message  string
}

// Awarded reports whether the scan credited the member.
func (r ScanResult) Awarded() bool { return r.Outcome == ScanAwarded }

type balanceStore interface {
	LockBalanceTx(ctx context.Context, tx *sql.Tx, userID uint64) (int64, error)
	SetBalanceTx(ctx context.Context, tx *sql.Tx, userID uint64, credits int64, now time.Time) error
}

type awardStore interface {
	InsertIfAbsentTx(ctx context.Context, tx *sql.Tx, userID uint64, day string, scannerID *uint64, now time.Time) (bool, error)
}

type ledgerStore interface {
	AppendTx(ctx context.Context, tx *sql.Tx, e model.LedgerEntry) error
}

type tokenToucher interface {
	TouchTx(ctx context.Context, tx *sql.Tx, id string, now time.Time) error
}

// RedemptionDeps groups what a RedemptionEngine is built from.  The
// repository types satisfy the store interfaces.
type RedemptionDeps struct {
	DB      *database.DB
	Tokens  *TokenManager
	Touch   tokenToucher
	Users   balanceStore
	Awards  awardStore
	Ledger  ledgerStore
	Reward  int64
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
}

// RedemptionEngine awards at most one credit per member and calendar day.
type RedemptionEngine struct {
	db      *database.DB
	tokens  *TokenManager
	touch   tokenToucher
	users   balanceStore
	awards  awardStore
	ledger  ledgerStore
	reward  int64
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

func NewRedemptionEngine(d RedemptionDeps) *RedemptionEngine {
	if d.Reward <= 0 {
		d.Reward = 1
	}
	if d.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		d.Log = l
	}
	return &RedemptionEngine{
		db:      d.DB,
		tokens:  d.Tokens,
		touch:   d.Touch,
		users:   d.Users,
		awards:  d.Awards,
		ledger:  d.Ledger,
		reward:  d.Reward,
		metrics: d.Metrics,
		log:     d.Log,
	}
}

// Scan redeems barcode at now on behalf of scannerID (nil when unknown).
//
// An empty barcode yields a zero result and ErrEmptyBarcode.  Any other
// returned error comes with a ScanFailed result and is meant for the server
// log; the result's Message is what the caller may show.  Invalid and
// expired codes are a normal outcome, not an error.
func (e *RedemptionEngine) Scan(ctx context.Context, barcode string, scannerID *uint64, now time.Time) (res ScanResult, err error) {
	start := time.Now()
	defer func() {
		if res.Outcome != "" {
			e.metrics.ObserveScan(string(res.Outcome), time.Since(start))
		}
	}()

	if strings.TrimSpace(barcode) == "" {
		return ScanResult{}, ErrEmptyBarcode
	}

	tok, err := e.tokens.FindByBarcode(ctx, barcode, now)
	if errors.Is(err, ErrInvalidOrExpired) {
		return ScanResult{Outcome: ScanInvalidOrExpired, Message: MsgInvalidOrExpired}, nil
	}
	if err != nil {
		return ScanResult{Outcome: ScanFailed, Message: MsgFailed}, err
	}

	day := e.tokens.Day(now)
	res = ScanResult{UserID: tok.UserID, TokenID: tok.ID, AwardDay: day}

	// A client that disconnects must not abort the transaction halfway;
	// it runs to commit or rollback on its own.
	txCtx := context.WithoutCancel(ctx)
	err = e.db.WithTx(txCtx, func(ctx context.Context, tx *sql.Tx) error {
		balance, err := e.users.LockBalanceTx(ctx, tx, tok.UserID)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}

		created, err := e.awards.InsertIfAbsentTx(ctx, tx, tok.UserID, day, scannerID, now)
		if err != nil {
			return fmt.Errorf("insert daily award: %w", err)
		}

		if !created {
			if err := e.touch.TouchTx(ctx, tx, tok.ID, now); err != nil {
				return fmt.Errorf("touch token: %w", err)
			}
			res.Outcome, res.Balance, res.Message = ScanAlreadyAwarded, balance, MsgAlreadyAwarded
			return nil
		}

		balance += e.reward
		if err := e.users.SetBalanceTx(ctx, tx, tok.UserID, balance, now); err != nil {
			return fmt.Errorf("set balance: %w", err)
		}
		if err := e.ledger.AppendTx(ctx, tx, model.LedgerEntry{
			UserID:    tok.UserID,
			Delta:     e.reward,
			Type:      model.LedgerTypeScanReward,
			ScannerID: scannerID,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append ledger: %w", err)
		}
		if err := e.touch.TouchTx(ctx, tx, tok.ID, now); err != nil {
			return fmt.Errorf("touch token: %w", err)
		}
		res.Outcome, res.Balance, res.Delta = ScanAwarded, balance, e.reward
		return nil
	})
	if err != nil {
		return ScanResult{Outcome: ScanFailed, UserID: tok.UserID, Message: MsgFailed},
			fmt.Errorf("scan for user %d: %w", tok.UserID, err)
	}

	if res.Awarded() {
		e.metrics.CreditsAwarded(res.Delta)
	}
	e.log.WithFields(logrus.Fields{
		"user_id":    res.UserID,
		"scanner_id": scannerValue(scannerID),
		"award_day":  day,
		"outcome":    res.Outcome,
		"balance":    res.Balance,
	}).Info("scan resolved")
	return res, nil
}

func scannerValue(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}
