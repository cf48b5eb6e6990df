package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/confluencr/webhookd/pkg/repository"
	"github.com/confluencr/webhookd/pkg/store"
)

// ErrInternalInconsistency means the insert reported a conflict but the
// follow-up fetch found no row. Absent external deletion this is a bug;
// the request fails transiently.
var ErrInternalInconsistency = errors.New("transaction disappeared after conflict check")

// Outcome classifies an inbound delivery against the existing row state.
type Outcome int

const (
	// OutcomeFresh: no row existed, a new one was inserted.
	OutcomeFresh Outcome = iota
	// OutcomeSameDuplicate: a row exists with an identical payload hash.
	OutcomeSameDuplicate
	// OutcomeConflictingDuplicate: a row exists with a different payload
	// hash.
	OutcomeConflictingDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFresh:
		return "fresh"
	case OutcomeSameDuplicate:
		return "same_duplicate"
	case OutcomeConflictingDuplicate:
		return "conflicting_duplicate"
	}
	return "unknown"
}

// Decision is the arbiter's classification plus the row it applies to.
type Decision struct {
	Outcome Outcome
	Row     *store.Transaction
}

// Arbiter decides whether a delivery is first, a true duplicate, or a
// conflicting duplicate. The ordering is load-bearing: it attempts the
// insert first and only fetches on conflict, so the unique key is the
// serialization point and at most one row per transaction_id can ever
// exist, even under a concurrent burst.
type Arbiter struct {
	repo *repository.Repository
}

// NewArbiter builds an Arbiter over the repository.
func NewArbiter(repo *repository.Repository) *Arbiter {
	return &Arbiter{repo: repo}
}

// Classify runs the insert-first protocol for a delivery whose canonical
// hash is already computed in f.PayloadHash.
func (a *Arbiter) Classify(ctx context.Context, f repository.CreateFields, now time.Time) (Decision, error) {
	created, err := a.repo.CreateIfNotExists(ctx, f, now)
	if err != nil {
		return Decision{}, err
	}
	if created != nil {
		return Decision{Outcome: OutcomeFresh, Row: created}, nil
	}

	existing, err := a.repo.GetByTransactionID(ctx, f.TransactionID)
	if err != nil {
		return Decision{}, err
	}
	if existing == nil {
		return Decision{}, ErrInternalInconsistency
	}

	if existing.PayloadHash != f.PayloadHash {
		return Decision{Outcome: OutcomeConflictingDuplicate, Row: existing}, nil
	}
	return Decision{Outcome: OutcomeSameDuplicate, Row: existing}, nil
}
