// Package database wraps a *sql.DB connection pool, the way every service
// method in this codebase expects to receive it: Query, QueryRow, Exec and
// Begin passed straight through to the underlying driver.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB is a thin handle around the connection pool. Kept as its own type
// (rather than a bare *sql.DB alias) so callers can add instrumentation at
// a single seam later without touching every service.
type DB struct {
	*sql.DB
}

// Connect opens a Postgres connection pool at connStr and verifies it with
// a ping.
func Connect(connStr string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}
