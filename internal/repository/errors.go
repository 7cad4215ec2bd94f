// Package repository holds the SQL access for users, scan tokens, daily
// awards and the coin ledger.  The sentinel errors below let the service
// and handler layers branch without looking at driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.  Handlers
// translate it into an HTTP 404 (or 401 for credentials).
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert hits a unique key, whatever the
// driver.  The token manager relies on it to detect a lost creation race.
var ErrDuplicate = errors.New("duplicate key")
