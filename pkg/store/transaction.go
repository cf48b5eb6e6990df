// Package store persists transaction rows. It exposes row-level operations
// with atomicity guarantees: insert-if-absent on the unique transaction_id
// key, committed reads, and guarded field-level patches. Two backends are
// provided: PostgreSQL for production and SQLite for lite mode and tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/confluencr/webhookd/pkg/money"
)

// ErrUnavailable is the distinct error kind for underlying storage
// failures. Callers decide the HTTP mapping (503).
var ErrUnavailable = errors.New("store unavailable")

// Status is the transaction lifecycle state. The three string literals are
// part of the persisted contract.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusProcessed  Status = "PROCESSED"
	StatusFailed     Status = "FAILED"
)

// Valid reports whether s is one of the three lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// Transaction is the single core entity: one row per unique
// client-supplied transaction_id.
type Transaction struct {
	ID                     int64
	TransactionID          string
	SourceAccount          string
	DestinationAccount     string
	Amount                 money.Amount
	Currency               string
	Status                 Status
	CreatedAt              time.Time
	UpdatedAt              time.Time
	ProcessingStartedAt    *time.Time
	ProcessedAt            *time.Time
	ErrorMessage           *string
	PayloadHash            string
	DuplicateConflictCount int
	LastConflictAt         *time.Time
}

// NewTransaction carries the fields for a first-delivery insert.
type NewTransaction struct {
	TransactionID       string
	SourceAccount       string
	DestinationAccount  string
	Amount              money.Amount
	Currency            string
	Status              Status
	ProcessingStartedAt time.Time
	PayloadHash         string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Patch is a field-level update. Only fields explicitly set (non-nil
// pointer or flag) are written; updated_at is always bumped.
type Patch struct {
	Status *Status

	ProcessingStartedAt      *time.Time
	ClearProcessingStartedAt bool

	ProcessedAt *time.Time

	ErrorMessage      *string
	ClearErrorMessage bool

	IncrementConflictCount bool
	LastConflictAt         *time.Time

	UpdatedAt time.Time
}

// Guard restricts an update to rows in a given state. An update whose
// guard does not match is a no-op; the affected-row count is how callers
// detect that they lost a race.
type Guard struct {
	StatusEquals              *Status
	ProcessedAtIsNull         bool
	ProcessingStartedAtIsNull bool
	// ProcessingStartedAtNullOrBefore matches rows whose
	// processing_started_at is NULL or strictly older than the instant.
	ProcessingStartedAtNullOrBefore *time.Time
}

// GuardStatus builds a Guard on status equality.
func GuardStatus(s Status) Guard {
	return Guard{StatusEquals: &s}
}

// Store is the durable transactions table. All writes commit before
// returning; reads see committed state.
type Store interface {
	// Init creates the schema objects if absent.
	Init(ctx context.Context) error
	// InsertIfAbsent atomically inserts the row unless one with the same
	// transaction_id exists. It reports whether the insert happened.
	InsertIfAbsent(ctx context.Context, row NewTransaction) (bool, error)
	// GetByTransactionID returns the row, or (nil, nil) when absent.
	GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error)
	// Update applies a guarded patch and reports whether a row matched.
	Update(ctx context.Context, transactionID string, patch Patch, guard Guard) (bool, error)
	// Close releases the underlying connections.
	Close() error
}
