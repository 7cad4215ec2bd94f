package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DB couples a connection pool with the SQL dialect spoken by its driver.
// Repositories use Dialect to rebind placeholders and pick conflict clauses.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Wrap attaches a dialect to an already opened pool (tests, sqlmock).
func Wrap(db *sql.DB, d Dialect) *DB { return &DB{DB: db, Dialect: d} }

// MySQLDSN builds the DSN for go-sql-driver/mysql.
func MySQLDSN(user, pass, host, port, name string) string {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)
}

// NormalizeDSN adjusts a DSN to what the repositories rely on.  For MySQL
// it turns clientFoundRows off: insert-if-absent reads "row already there"
// from an affected-row count of 0, which found-rows mode reports as 1.
func NormalizeDSN(d Dialect, dsn string) (string, error) {
	if d != MySQL {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ClientFoundRows = false
	return cfg.FormatDSN(), nil
}

// Open connects with the driver behind d and verifies the connection.
func Open(d Dialect, dsn string) (*DB, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	dsn, err := NormalizeDSN(d, dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	if d == SQLite {
		// one writer at a time; extra connections only queue on the file lock
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{DB: db, Dialect: d}, nil
}
