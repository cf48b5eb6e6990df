package store

import (
	"fmt"
	"strings"
	"time"
)

// dialect abstracts the two backends' placeholder style and timestamp
// encoding so the patch/guard compiler can be shared.
type dialect struct {
	// placeholder renders the 1-based positional parameter marker.
	placeholder func(i int) string
	// encodeTime converts a timestamp to its driver representation.
	encodeTime func(t time.Time) any
}

var postgresDialect = dialect{
	placeholder: func(i int) string { return fmt.Sprintf("$%d", i) },
	encodeTime:  func(t time.Time) any { return t.UTC() },
}

// sqliteTimeLayout is fixed-width so that lexicographic comparison of
// stored values matches chronological order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

var sqliteDialect = dialect{
	placeholder: func(i int) string { return "?" },
	encodeTime:  func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
}

// buildUpdate compiles a guarded patch into an UPDATE statement and its
// positional arguments. updated_at is always written.
func buildUpdate(d dialect, transactionID string, p Patch, g Guard) (string, []any) {
	var (
		sets  []string
		where []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return d.placeholder(len(args))
	}

	sets = append(sets, "updated_at = "+next(d.encodeTime(p.UpdatedAt)))
	if p.Status != nil {
		sets = append(sets, "status = "+next(string(*p.Status)))
	}
	switch {
	case p.ClearProcessingStartedAt:
		sets = append(sets, "processing_started_at = NULL")
	case p.ProcessingStartedAt != nil:
		sets = append(sets, "processing_started_at = "+next(d.encodeTime(*p.ProcessingStartedAt)))
	}
	if p.ProcessedAt != nil {
		sets = append(sets, "processed_at = "+next(d.encodeTime(*p.ProcessedAt)))
	}
	switch {
	case p.ClearErrorMessage:
		sets = append(sets, "error_message = NULL")
	case p.ErrorMessage != nil:
		sets = append(sets, "error_message = "+next(*p.ErrorMessage))
	}
	if p.IncrementConflictCount {
		sets = append(sets, "duplicate_conflict_count = duplicate_conflict_count + 1")
	}
	if p.LastConflictAt != nil {
		sets = append(sets, "last_conflict_at = "+next(d.encodeTime(*p.LastConflictAt)))
	}

	where = append(where, "transaction_id = "+next(transactionID))
	if g.StatusEquals != nil {
		where = append(where, "status = "+next(string(*g.StatusEquals)))
	}
	if g.ProcessedAtIsNull {
		where = append(where, "processed_at IS NULL")
	}
	if g.ProcessingStartedAtIsNull {
		where = append(where, "processing_started_at IS NULL")
	}
	if g.ProcessingStartedAtNullOrBefore != nil {
		where = append(where, "(processing_started_at IS NULL OR processing_started_at < "+
			next(d.encodeTime(*g.ProcessingStartedAtNullOrBefore))+")")
	}

	query := "UPDATE transactions SET " + strings.Join(sets, ", ") +
		" WHERE " + strings.Join(where, " AND ")
	return query, args
}
