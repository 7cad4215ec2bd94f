package model

import "time"

// Token status values stored in user_qr_tokens.status.
const (
	TokenStatusActive  = "active"
	TokenStatusRotated = "rotated"
)

// QRToken represents a row in the `user_qr_tokens` table.  A token
// grants its owner scan eligibility for one calendar month.  Only the
// SHA‑256 hash is used for lookups; the token value itself is kept so the
// barcode can be shown again on the member's profile.
//
// Fields:
//  ID         – ULID primary key.
//  UserID     – owner of the token.
//  TokenValue – base-32 token printed inside the barcode.
//  TokenHash  – hex SHA‑256 of TokenValue (unique).
//  Status     – active or rotated.
//  ValidFrom  – first day of the window (YYYY-MM-DD, inclusive).
//  ValidUntil – last day of the window (YYYY-MM-DD, inclusive).
//  CreatedAt  – creation timestamp.
//  RevokedAt  – set when the token is rotated out (nullable).
//  LastUsedAt – last successful scan, including repeat scans (nullable).
type QRToken struct {
	ID         string     // user_qr_tokens.id
	UserID     uint64     // user_qr_tokens.user_id
	TokenValue string     // user_qr_tokens.token_value
	TokenHash  string     // user_qr_tokens.token_hash
	Status     string     // user_qr_tokens.status
	ValidFrom  string     // user_qr_tokens.valid_from
	ValidUntil string     // user_qr_tokens.valid_until
	CreatedAt  time.Time  // user_qr_tokens.created_at
	RevokedAt  *time.Time // user_qr_tokens.revoked_at (nullable)
	LastUsedAt *time.Time // user_qr_tokens.last_used_at (nullable)
}

// IsActive reports whether the token is active and its window contains day.
func (t *QRToken) IsActive(day string) bool {
	return t != nil && t.Status == TokenStatusActive && t.ValidFrom <= day && day <= t.ValidUntil
}
