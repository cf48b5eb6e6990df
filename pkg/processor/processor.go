// Package processor runs the asynchronous half of the pipeline. Each
// scheduled transaction gets one goroutine that waits out the processing
// delay and then attempts the terminal transition. The goroutines are
// registered with the runtime so shutdown can interrupt them
// cooperatively; an interrupted row keeps status PROCESSING with a null
// start stamp, which makes it immediately retry-eligible.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluencr/webhookd/pkg/clock"
	"github.com/confluencr/webhookd/pkg/observability"
	"github.com/confluencr/webhookd/pkg/repository"
	"github.com/confluencr/webhookd/pkg/runtime"
	"github.com/confluencr/webhookd/pkg/store"
)

const interruptedMessage = "processing interrupted by shutdown"

// Config bounds one background task.
type Config struct {
	// Delay is the simulated work duration before the terminal transition.
	Delay time.Duration
	// OperationTimeout caps each individual storage call.
	OperationTimeout time.Duration
}

// Processor schedules and runs background processing tasks.
type Processor struct {
	repo  *repository.Repository
	rt    *runtime.Runtime
	clock clock.Clock
	obs   *observability.Provider
	log   *slog.Logger
	cfg   Config
}

// New wires a Processor. A nil clock means the system clock; a nil
// logger means slog.Default.
func New(repo *repository.Repository, rt *runtime.Runtime, obs *observability.Provider, cfg Config, clk clock.Clock, log *slog.Logger) *Processor {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		repo:  repo,
		rt:    rt,
		clock: clk,
		obs:   obs,
		log:   log.With("component", "processor"),
		cfg:   cfg,
	}
}

// Schedule registers a background task for the transaction. It reports
// false when the runtime is already shutting down, in which case the row
// stays PROCESSING and a later delivery re-opens it via the stale path.
func (p *Processor) Schedule(transactionID string, failForTesting bool) bool {
	_, ok := p.rt.Spawn("process:"+transactionID, func() {
		p.run(transactionID, failForTesting)
	})
	if !ok {
		p.log.Warn("task refused, runtime is shutting down",
			"transaction_id", transactionID)
	}
	return ok
}

// run executes one task to completion. Every storage step gets a fresh
// bounded context; the long wait in the middle is interruptible but not
// deadline-bound.
func (p *Processor) run(transactionID string, failForTesting bool) {
	ctx := context.Background()
	p.obs.TaskStarted(ctx)
	result := "superseded"
	defer func() { p.obs.TaskFinished(ctx, result) }()

	// A panic inside processing is persisted to the row, not propagated;
	// the guarded transition still protects rows that already finished.
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("processing panicked", "transaction_id", transactionID, "panic", rec)
			result = "failed"
			p.finish(transactionID, func(sc context.Context) (bool, error) {
				return p.repo.MarkFailed(sc, transactionID, fmt.Sprint(rec), p.clock.Now())
			}, &result)
		}
	}()

	var row *store.Transaction
	err := p.step(func(sc context.Context) error {
		var err error
		row, err = p.repo.GetByTransactionID(sc, transactionID)
		return err
	})
	if err != nil {
		p.log.Error("load transaction", "transaction_id", transactionID, "error", err)
		return
	}
	if row == nil {
		p.log.Warn("transaction vanished before processing", "transaction_id", transactionID)
		return
	}
	if row.Status != store.StatusProcessing {
		p.log.Debug("transaction already terminal, skipping", "transaction_id", transactionID)
		return
	}

	if err := p.step(func(sc context.Context) error {
		return p.repo.EnsureProcessingStarted(sc, transactionID, p.clock.Now())
	}); err != nil {
		p.log.Error("stamp processing start", "transaction_id", transactionID, "error", err)
		return
	}

	timer := time.NewTimer(p.cfg.Delay)
	defer timer.Stop()
	select {
	case <-p.rt.ShutdownSignal():
		result = "interrupted"
		p.interrupt(transactionID)
		return
	case <-timer.C:
	}

	if failForTesting {
		result = "failed"
		p.finish(transactionID, func(sc context.Context) (bool, error) {
			return p.repo.MarkFailed(sc, transactionID, "Simulated processing failure", p.clock.Now())
		}, &result)
		return
	}

	result = "processed"
	p.finish(transactionID, func(sc context.Context) (bool, error) {
		return p.repo.MarkProcessed(sc, transactionID, p.clock.Now())
	}, &result)
}

// step runs one storage call under its own deadline, detached from the
// request that scheduled the task.
func (p *Processor) step(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.OperationTimeout)
	defer cancel()
	return fn(ctx)
}

// finish applies a terminal transition and downgrades the result to
// superseded when the guard reports the row already left PROCESSING.
func (p *Processor) finish(transactionID string, fn func(context.Context) (bool, error), result *string) {
	var applied bool
	err := p.step(func(sc context.Context) error {
		var err error
		applied, err = fn(sc)
		return err
	})
	if err != nil {
		p.log.Error("terminal transition", "transaction_id", transactionID, "error", err)
		*result = "error"
		return
	}
	if !applied {
		p.log.Info("terminal transition lost the race", "transaction_id", transactionID)
		*result = "superseded"
		return
	}
	p.log.Info("transaction finished", "transaction_id", transactionID, "result", *result)
}

// interrupt clears the start stamp so the row is immediately
// retry-eligible and records why processing stopped.
func (p *Processor) interrupt(transactionID string) {
	err := p.step(func(sc context.Context) error {
		return p.repo.MarkInterrupted(sc, transactionID, interruptedMessage, p.clock.Now())
	})
	if err != nil {
		p.log.Error("mark interrupted", "transaction_id", transactionID, "error", err)
		return
	}
	p.log.Info("task interrupted by shutdown", "transaction_id", transactionID)
}
