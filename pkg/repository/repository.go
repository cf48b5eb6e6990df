// Package repository wraps the Store with transition-specific methods.
// Every mutation is a guarded conditional update: the affected-row count
// decides races, so no transition needs a session-held row object or a
// coarse lock. Repository methods are the only legal writers of
// transaction rows.
package repository

import (
	"context"
	"time"

	"github.com/confluencr/webhookd/pkg/money"
	"github.com/confluencr/webhookd/pkg/store"
)

// Repository encodes the legal state transitions over a Store.
type Repository struct {
	store store.Store
}

// New builds a Repository over the given store.
func New(st store.Store) *Repository {
	return &Repository{store: st}
}

// CreateFields carries the business fields of a first delivery.
type CreateFields struct {
	TransactionID      string
	SourceAccount      string
	DestinationAccount string
	Amount             money.Amount
	Currency           string
	PayloadHash        string
}

// CreateIfNotExists attempts the first-delivery insert with
// status=PROCESSING and processing_started_at=now. It returns the created
// row, or nil when a row with that transaction_id already exists. It never
// overwrites.
func (r *Repository) CreateIfNotExists(ctx context.Context, f CreateFields, now time.Time) (*store.Transaction, error) {
	inserted, err := r.store.InsertIfAbsent(ctx, store.NewTransaction{
		TransactionID:       f.TransactionID,
		SourceAccount:       f.SourceAccount,
		DestinationAccount:  f.DestinationAccount,
		Amount:              f.Amount,
		Currency:            f.Currency,
		Status:              store.StatusProcessing,
		ProcessingStartedAt: now,
		PayloadHash:         f.PayloadHash,
		CreatedAt:           now,
		UpdatedAt:           now,
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}
	return r.store.GetByTransactionID(ctx, f.TransactionID)
}

// GetByTransactionID returns the current row, or (nil, nil) when absent.
func (r *Repository) GetByTransactionID(ctx context.Context, transactionID string) (*store.Transaction, error) {
	return r.store.GetByTransactionID(ctx, transactionID)
}

// RecordDuplicateConflict increments duplicate_conflict_count and stamps
// last_conflict_at. Business fields are untouched; the increment runs in
// SQL so concurrent conflicts never lose the existence signal.
func (r *Repository) RecordDuplicateConflict(ctx context.Context, transactionID string, now time.Time) error {
	_, err := r.store.Update(ctx, transactionID, store.Patch{
		IncrementConflictCount: true,
		LastConflictAt:         &now,
		UpdatedAt:              now,
	}, store.Guard{})
	return err
}

// MarkForRetryIfStale re-opens a stuck row: it reports true iff the row is
// PROCESSING, not yet processed, and processing_started_at is null or
// older than now-staleTimeout. On success it stamps processing_started_at
// and clears error_message so the next processor starts clean.
func (r *Repository) MarkForRetryIfStale(ctx context.Context, transactionID string, now time.Time, staleTimeout time.Duration) (bool, error) {
	processing := store.StatusProcessing
	cutoff := now.Add(-staleTimeout)
	return r.store.Update(ctx, transactionID, store.Patch{
		ProcessingStartedAt: &now,
		ClearErrorMessage:   true,
		UpdatedAt:           now,
	}, store.Guard{
		StatusEquals:                    &processing,
		ProcessedAtIsNull:               true,
		ProcessingStartedAtNullOrBefore: &cutoff,
	})
}

// EnsureProcessingStarted stamps processing_started_at iff it is null.
// Idempotent.
func (r *Repository) EnsureProcessingStarted(ctx context.Context, transactionID string, now time.Time) error {
	_, err := r.store.Update(ctx, transactionID, store.Patch{
		ProcessingStartedAt: &now,
		UpdatedAt:           now,
	}, store.Guard{ProcessingStartedAtIsNull: true})
	return err
}

// MarkInterrupted records a cooperative shutdown: processing_started_at is
// cleared and the reason stored, while status stays PROCESSING so the row
// is immediately retry-eligible on the next delivery.
func (r *Repository) MarkInterrupted(ctx context.Context, transactionID, message string, now time.Time) error {
	processing := store.StatusProcessing
	_, err := r.store.Update(ctx, transactionID, store.Patch{
		ClearProcessingStartedAt: true,
		ErrorMessage:             &message,
		UpdatedAt:                now,
	}, store.Guard{StatusEquals: &processing})
	return err
}

// MarkProcessed performs the successful terminal transition. It reports
// false when the row already left PROCESSING, in which case nothing was
// written.
func (r *Repository) MarkProcessed(ctx context.Context, transactionID string, processedAt time.Time) (bool, error) {
	processed := store.StatusProcessed
	processing := store.StatusProcessing
	return r.store.Update(ctx, transactionID, store.Patch{
		Status:            &processed,
		ProcessedAt:       &processedAt,
		ClearErrorMessage: true,
		UpdatedAt:         processedAt,
	}, store.Guard{StatusEquals: &processing})
}

// MarkFailed performs the failure terminal transition; processed_at stays
// null. It reports false when the row already left PROCESSING.
func (r *Repository) MarkFailed(ctx context.Context, transactionID, message string, now time.Time) (bool, error) {
	failed := store.StatusFailed
	processing := store.StatusProcessing
	return r.store.Update(ctx, transactionID, store.Patch{
		Status:       &failed,
		ErrorMessage: &message,
		UpdatedAt:    now,
	}, store.Guard{StatusEquals: &processing})
}
