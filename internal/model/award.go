package model

import "time"

// LedgerTypeScanReward tags ledger entries written by the scan path.
const LedgerTypeScanReward = "scan_reward"

// DailyAward represents a row in `coin_daily_awards`: user U was awarded
// on calendar day D.  (user_id, award_date) is unique and is the only thing
// that prevents a second credit on the same day.  ScannerID is informational.
type DailyAward struct {
	UserID    uint64    // coin_daily_awards.user_id
	AwardDate string    // coin_daily_awards.award_date (YYYY-MM-DD)
	ScannerID *uint64   // coin_daily_awards.scanner_id (nullable)
	CreatedAt time.Time // coin_daily_awards.created_at
}

// LedgerEntry is an append-only balance change in `coin_transactions`.
type LedgerEntry struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"user_id"`
	Delta     int64     `json:"delta"`
	Type      string    `json:"type"`
	ScannerID *uint64   `json:"scanner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
