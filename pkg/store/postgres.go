package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/confluencr/webhookd/pkg/money"
)

// PostgresStore implements Store on PostgreSQL via database/sql + lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the transactions table and its indexes if absent.
func (s *PostgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id                       BIGSERIAL PRIMARY KEY,
			transaction_id           VARCHAR(128) NOT NULL,
			source_account           VARCHAR(128) NOT NULL,
			destination_account      VARCHAR(128) NOT NULL,
			amount                   NUMERIC(18,2) NOT NULL,
			currency                 VARCHAR(3) NOT NULL,
			status                   TEXT NOT NULL CHECK (status IN ('PROCESSING','PROCESSED','FAILED')),
			created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at             TIMESTAMPTZ,
			processing_started_at    TIMESTAMPTZ,
			error_message            TEXT,
			payload_hash             VARCHAR(64) NOT NULL,
			duplicate_conflict_count INTEGER NOT NULL DEFAULT 0,
			last_conflict_at         TIMESTAMPTZ
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

// InsertIfAbsent inserts via ON CONFLICT DO NOTHING. The unique index on
// transaction_id is the serialization point for concurrent deliveries.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, row NewTransaction) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			transaction_id, source_account, destination_account, amount, currency,
			status, processing_started_at, payload_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (transaction_id) DO NOTHING`,
		row.TransactionID, row.SourceAccount, row.DestinationAccount,
		row.Amount.String(), row.Currency, string(row.Status),
		row.ProcessingStartedAt.UTC(), row.PayloadHash,
		row.CreatedAt.UTC(), row.UpdatedAt.UTC(),
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

const selectColumns = `id, transaction_id, source_account, destination_account, amount, currency,
	status, created_at, updated_at, processed_at, processing_started_at, error_message,
	payload_hash, duplicate_conflict_count, last_conflict_at`

// GetByTransactionID returns the committed row, or (nil, nil) when absent.
func (s *PostgresStore) GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE transaction_id = $1`,
		transactionID,
	)

	var (
		t           Transaction
		amountStr   string
		statusStr   string
		processedAt sql.NullTime
		startedAt   sql.NullTime
		errMsg      sql.NullString
		conflictAt  sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.TransactionID, &t.SourceAccount, &t.DestinationAccount,
		&amountStr, &t.Currency, &statusStr, &t.CreatedAt, &t.UpdatedAt,
		&processedAt, &startedAt, &errMsg, &t.PayloadHash,
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
	if processedAt.Valid {
		v := processedAt.Time
		t.ProcessedAt = &v
	}
	if startedAt.Valid {
		v := startedAt.Time
		t.ProcessingStartedAt = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		t.ErrorMessage = &v
	}
	if conflictAt.Valid {
		v := conflictAt.Time
		t.LastConflictAt = &v
	}
	return &t, nil
}

// Update applies a guarded patch; the affected-row count tells the caller
// whether the guard matched.
func (s *PostgresStore) Update(ctx context.Context, transactionID string, patch Patch, guard Guard) (bool, error) {
	query, args := buildUpdate(postgresDialect, transactionID, patch, guard)
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

// Close closes the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
