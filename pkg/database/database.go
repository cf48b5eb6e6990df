// Package database bootstraps the storage connections: PostgreSQL via
// lib/pq for production, embedded SQLite for lite mode. It owns pool
// sizing, the session timezone, and the startup connectivity probe.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"          // Postgres driver
	_ "modernc.org/sqlite"         // SQLite driver (lite mode)
)

// Pool sizing: 10 base + 20 overflow, 1800s recycle.
const (
	maxOpenConns    = 30
	maxIdleConns    = 10
	connMaxLifetime = 1800 * time.Second
)

// OpenPostgres opens a pooled Postgres connection with the given session
// timezone applied to every connection, and verifies connectivity with an
// exponential-backoff ping.
func OpenPostgres(ctx context.Context, dsn, timezone string) (*sql.DB, error) {
	dsn, err := withTimezone(dsn, timezone)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := pingWithBackoff(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// OpenSQLite opens (creating if needed) the lite-mode database file.
func OpenSQLite(ctx context.Context, dataDir string) (*sql.DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "webhookd.db")
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite writes serialize anyway; a small pool avoids lock churn.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return db, nil
}

// OpenSQLiteMemory opens a private in-memory database. Used by tests and
// safe to discard.
func OpenSQLiteMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// A single connection keeps every statement on the same in-memory DB.
	db.SetMaxOpenConns(1)
	return db, nil
}

func pingWithBackoff(ctx context.Context, db *sql.DB) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx))
}

// withTimezone ensures the DSN carries the session timezone so that every
// pooled connection starts with it. Both URL and keyword/value DSN forms
// are supported; an explicit timezone in the DSN wins.
func withTimezone(dsn, timezone string) (string, error) {
	if timezone == "" {
		return dsn, nil
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse database url: %w", err)
		}
		q := u.Query()
		if q.Get("timezone") == "" {
			q.Set("timezone", timezone)
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	}

	if strings.Contains(dsn, "timezone=") {
		return dsn, nil
	}
	return dsn + " timezone=" + timezone, nil
}
