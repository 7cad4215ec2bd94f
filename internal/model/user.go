package model

import "time"

// Roles carried in the JWT "role" claim.
const (
	RoleMember  = "MEMBER"
	RoleScanner = "SCANNER"
	RoleAdmin   = "ADMIN"
)

// User represents a program member as stored in the `users` table.
// Identity and account creation belong to the wider benefits platform;
// this service reads the row and, in the scan path, writes Credits under a
// row lock.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address used to log in.
//  PasswordHash – bcrypt hashed password.
//  Role         – MEMBER, SCANNER or ADMIN.
//  FirstName    – given name shown on the profile.
//  LastName     – family name shown on the profile.
//  Credits      – current coin balance.
//  IsActive     – whether the account may log in.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	FirstName    string    // users.first_name
	LastName     string    // users.last_name
	Credits      int64     // users.credits
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  The plain
// token is never stored, only its SHA‑256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
