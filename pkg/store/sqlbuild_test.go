package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildUpdateAlwaysBumpsUpdatedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	query, args := buildUpdate(postgresDialect, "txn_1", Patch{UpdatedAt: now}, Guard{})

	assert.Equal(t, "UPDATE transactions SET updated_at = $1 WHERE transaction_id = $2", query)
	assert.Equal(t, []any{now, "txn_1"}, args)
}

func TestBuildUpdateTerminalTransition(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	processed := StatusProcessed
	processing := StatusProcessing
	query, args := buildUpdate(postgresDialect, "txn_1", Patch{
		Status:            &processed,
		ProcessedAt:       &now,
		ClearErrorMessage: true,
		UpdatedAt:         now,
	}, Guard{StatusEquals: &processing})

	assert.Equal(t,
		"UPDATE transactions SET updated_at = $1, status = $2, processed_at = $3, error_message = NULL"+
			" WHERE transaction_id = $4 AND status = $5",
		query)
	assert.Equal(t, []any{now, "PROCESSED", now, "txn_1", "PROCESSING"}, args)
}

func TestBuildUpdateStaleRetryGuard(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cutoff := now.Add(-2 * time.Minute)
	processing := StatusProcessing
	query, args := buildUpdate(postgresDialect, "txn_1", Patch{
		ProcessingStartedAt: &now,
		ClearErrorMessage:   true,
		UpdatedAt:           now,
	}, Guard{
		StatusEquals:                    &processing,
		ProcessedAtIsNull:               true,
		ProcessingStartedAtNullOrBefore: &cutoff,
	})

	assert.Equal(t,
		"UPDATE transactions SET updated_at = $1, processing_started_at = $2, error_message = NULL"+
			" WHERE transaction_id = $3 AND status = $4 AND processed_at IS NULL"+
			" AND (processing_started_at IS NULL OR processing_started_at < $5)",
		query)
	assert.Equal(t, []any{now, now, "txn_1", "PROCESSING", cutoff}, args)
}

func TestBuildUpdateConflictIncrement(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	query, args := buildUpdate(sqliteDialect, "txn_1", Patch{
		IncrementConflictCount: true,
		LastConflictAt:         &now,
		UpdatedAt:              now,
	}, Guard{})

	assert.Equal(t,
		"UPDATE transactions SET updated_at = ?, duplicate_conflict_count = duplicate_conflict_count + 1,"+
			" last_conflict_at = ? WHERE transaction_id = ?",
		query)
	assert.Len(t, args, 3)
}

func TestBuildUpdateClearBeatsSet(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	query, _ := buildUpdate(postgresDialect, "txn_1", Patch{
		ProcessingStartedAt:      &now,
		ClearProcessingStartedAt: true,
		UpdatedAt:                now,
	}, Guard{ProcessingStartedAtIsNull: true})

	assert.Contains(t, query, "processing_started_at = NULL")
	assert.Contains(t, query, "processing_started_at IS NULL")
	assert.NotContains(t, query, "processing_started_at = $2")
}

func TestSQLiteTimeLayoutOrdersLexicographically(t *testing.T) {
	// Fixed-width encoding is what makes "<" comparisons on stored text
	// valid. Fractional seconds were the historical trap.
	a := time.Date(2026, 3, 1, 10, 0, 10, 0, time.UTC)
	b := time.Date(2026, 3, 1, 10, 0, 10, 500_000_000, time.UTC)
	assert.Less(t, encodeSQLiteTime(a), encodeSQLiteTime(b))

	c := time.Date(2026, 3, 1, 10, 0, 10, 123_000_000, time.UTC)
	assert.Less(t, encodeSQLiteTime(c), encodeSQLiteTime(b))
}
