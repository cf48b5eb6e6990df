// Package ingest implements the idempotent acceptance of webhook
// deliveries. The arbiter classifies each delivery against the unique
// transaction_id key; the service applies the side effects of that
// classification (conflict accounting, stale-retry reopening) and tells
// the caller whether a background task should be scheduled. Every
// delivery that reaches a decision is acknowledged; only storage
// failures surface as errors.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluencr/webhookd/pkg/clock"
	"github.com/confluencr/webhookd/pkg/repository"
	"github.com/confluencr/webhookd/pkg/store"
)

// ServiceConfig bounds the ingest side of the pipeline.
type ServiceConfig struct {
	// StaleTimeout is how long a PROCESSING row may sit with an untouched
	// processing_started_at before a duplicate delivery may re-open it.
	StaleTimeout time.Duration
	// OperationTimeout caps the total storage work for one delivery.
	OperationTimeout time.Duration
}

// Result is what the HTTP layer needs to acknowledge a delivery.
type Result struct {
	TransactionID  string
	Outcome        Outcome
	ShouldSchedule bool
}

// Service runs the ingest decision for validated payloads.
type Service struct {
	repo    *repository.Repository
	arbiter *Arbiter
	clock   clock.Clock
	cfg     ServiceConfig
	log     *slog.Logger
}

// NewService wires the ingest service. A nil clock means the system
// clock; a nil logger means slog.Default.
func NewService(repo *repository.Repository, cfg ServiceConfig, clk clock.Clock, log *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:    repo,
		arbiter: NewArbiter(repo),
		clock:   clk,
		cfg:     cfg,
		log:     log.With("component", "ingest"),
	}
}

// Ingest classifies one validated, normalized delivery and applies its
// side effects. A duplicate with a different payload is still
// acknowledged; only the conflict counter records that it happened. Any
// storage failure, including the deadline expiring, comes back wrapped
// in store.ErrUnavailable.
func (s *Service) Ingest(ctx context.Context, p Payload) (Result, error) {
	hash, err := p.Hash()
	if err != nil {
		return Result{}, fmt.Errorf("canonicalize payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	now := s.clock.Now()
	decision, err := s.arbiter.Classify(ctx, repository.CreateFields{
		TransactionID:      p.TransactionID,
		SourceAccount:      p.SourceAccount,
		DestinationAccount: p.DestinationAccount,
		Amount:             p.Amount,
		Currency:           p.Currency,
		PayloadHash:        hash,
	}, now)
	if err != nil {
		return Result{}, s.asUnavailable(err)
	}

	res := Result{TransactionID: p.TransactionID, Outcome: decision.Outcome}

	switch decision.Outcome {
	case OutcomeFresh:
		res.ShouldSchedule = true
		return res, nil

	case OutcomeConflictingDuplicate:
		s.log.WarnContext(ctx, "conflicting duplicate delivery",
			"transaction_id", p.TransactionID,
			"stored_hash", decision.Row.PayloadHash,
			"delivered_hash", hash)
		if err := s.repo.RecordDuplicateConflict(ctx, p.TransactionID, now); err != nil {
			return Result{}, s.asUnavailable(err)
		}
	}

	// Duplicates of either kind may re-open a stuck row. The guarded
	// update decides staleness; losing the race simply means another
	// worker owns the row.
	reopened, err := s.repo.MarkForRetryIfStale(ctx, p.TransactionID, now, s.cfg.StaleTimeout)
	if err != nil {
		return Result{}, s.asUnavailable(err)
	}
	if reopened {
		s.log.InfoContext(ctx, "stale transaction re-opened for retry",
			"transaction_id", p.TransactionID,
			"stale_timeout", s.cfg.StaleTimeout)
		res.ShouldSchedule = true
	}
	return res, nil
}

// asUnavailable folds deadline expiry into the storage-failure kind so
// the HTTP layer maps every non-validation failure to one status.
func (s *Service) asUnavailable(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, store.ErrUnavailable) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	if errors.Is(err, ErrInternalInconsistency) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}
