package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/confluencr/webhookd/pkg/money"
)

// SQLiteStore implements Store on an embedded SQLite database. It backs
// lite mode (no DATABASE_URL configured) and integration-style tests.
// Timestamps are stored as fixed-width UTC text so range comparisons in
// SQL match chronological order.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open SQLite handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Init creates the transactions table and its indexes if absent.
func (s *SQLiteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id                       INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id           TEXT NOT NULL,
			source_account           TEXT NOT NULL,
			destination_account      TEXT NOT NULL,
			amount                   TEXT NOT NULL,
			currency                 TEXT NOT NULL,
			status                   TEXT NOT NULL CHECK (status IN ('PROCESSING','PROCESSED','FAILED')),
			created_at               TEXT NOT NULL,
			updated_at               TEXT NOT NULL,
			processed_at             TEXT,
			processing_started_at    TEXT,
			error_message            TEXT,
			payload_hash             TEXT NOT NULL,
			duplicate_conflict_count INTEGER NOT NULL DEFAULT 0,
			last_conflict_at         TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_transaction_id ON transactions (transaction_id)`,
		`CREATE INDEX IF NOT EXISTS ix_transactions_status ON transactions (status)`,
		`CREATE INDEX IF NOT EXISTS ix_transactions_status_started ON transactions (status, processing_started_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init transactions schema: %w", wrapUnavailable(err))
		}
	}
	return nil
}

// InsertIfAbsent inserts via ON CONFLICT DO NOTHING on transaction_id.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, row NewTransaction) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			transaction_id, source_account, destination_account, amount, currency,
			status, processing_started_at, payload_hash, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id) DO NOTHING`,
		row.TransactionID, row.SourceAccount, row.DestinationAccount,
		row.Amount.String(), row.Currency, string(row.Status),
		encodeSQLiteTime(row.ProcessingStartedAt), row.PayloadHash,
		encodeSQLiteTime(row.CreatedAt), encodeSQLiteTime(row.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert transaction %s: %w", row.TransactionID, wrapUnavailable(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert transaction %s: rows affected: %w", row.TransactionID, wrapUnavailable(err))
	}
	return n == 1, nil
}

// GetByTransactionID returns the committed row, or (nil, nil) when absent.
func (s *SQLiteStore) GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE transaction_id = ?`,
		transactionID,
	)

	var (
		t          Transaction
		amountStr  string
		statusStr  string
		createdAt  string
		updatedAt  string
		processed  sql.NullString
		started    sql.NullString
		errMsg     sql.NullString
		conflictAt sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.TransactionID, &t.SourceAccount, &t.DestinationAccount,
		&amountStr, &t.Currency, &statusStr, &createdAt, &updatedAt,
		&processed, &started, &errMsg, &t.PayloadHash,
		&t.DuplicateConflictCount, &conflictAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", transactionID, wrapUnavailable(err))
	}

	amount, err := money.Parse(amountStr)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", transactionID, err)
	}
	t.Amount = amount
	t.Status = Status(statusStr)
	if t.CreatedAt, err = decodeSQLiteTime(createdAt); err != nil {
		return nil, fmt.Errorf("get transaction %s: created_at: %w", transactionID, err)
	}
	if t.UpdatedAt, err = decodeSQLiteTime(updatedAt); err != nil {
		return nil, fmt.Errorf("get transaction %s: updated_at: %w", transactionID, err)
	}
	if t.ProcessedAt, err = decodeSQLiteTimePtr(processed); err != nil {
		return nil, fmt.Errorf("get transaction %s: processed_at: %w", transactionID, err)
	}
	if t.ProcessingStartedAt, err = decodeSQLiteTimePtr(started); err != nil {
		return nil, fmt.Errorf("get transaction %s: processing_started_at: %w", transactionID, err)
	}
	if t.LastConflictAt, err = decodeSQLiteTimePtr(conflictAt); err != nil {
		return nil, fmt.Errorf("get transaction %s: last_conflict_at: %w", transactionID, err)
	}
	if errMsg.Valid {
		v := errMsg.String
		t.ErrorMessage = &v
	}
	return &t, nil
}

// Update applies a guarded patch; the affected-row count tells the caller
// whether the guard matched.
func (s *SQLiteStore) Update(ctx context.Context, transactionID string, patch Patch, guard Guard) (bool, error) {
	query, args := buildUpdate(sqliteDialect, transactionID, patch, guard)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update transaction %s: %w", transactionID, wrapUnavailable(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update transaction %s: rows affected: %w", transactionID, wrapUnavailable(err))
	}
	return n == 1, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func encodeSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func decodeSQLiteTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func decodeSQLiteTimePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := decodeSQLiteTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
