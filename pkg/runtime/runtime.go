// Package runtime holds the process-wide coordination state: a one-shot
// shutdown signal and the registry of live background tasks. A single
// Runtime value is created at startup and passed by reference into
// handlers and processors; there is no per-event-loop or global implicit
// registry.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Runtime coordinates graceful shutdown across background tasks.
type Runtime struct {
	log *slog.Logger

	shutdown chan struct{}
	once     sync.Once

	wg    sync.WaitGroup
	mu    sync.Mutex
	tasks map[string]string // task id -> name
}

// New creates a Runtime with the shutdown signal cleared.
func New(log *slog.Logger) *Runtime {
	if log == nil {
		log = slog.Default()
	}
	return &Runtime{
		log:      log,
		shutdown: make(chan struct{}),
		tasks:    make(map[string]string),
	}
}

// ShutdownSignal returns the channel closed when shutdown is signalled.
// Tasks race this channel against their work timers.
func (r *Runtime) ShutdownSignal() <-chan struct{} { return r.shutdown }

// ShuttingDown reports whether the signal has fired.
func (r *Runtime) ShuttingDown() bool {
	select {
	case <-r.shutdown:
		return true
	default:
		return false
	}
}

// SignalShutdown fires the one-shot shutdown signal. The transition is
// monotonic: once set it never clears for the process lifetime.
func (r *Runtime) SignalShutdown() {
	r.once.Do(func() {
		r.log.Info("shutdown signalled")
		close(r.shutdown)
	})
}

// Spawn registers and starts a background task. It returns the task id
// and whether the task was accepted; tasks are refused once shutdown has
// been signalled. Panics inside fn are recovered and logged so a broken
// task never crashes the process.
func (r *Runtime) Spawn(name string, fn func()) (string, bool) {
	if r.ShuttingDown() {
		r.log.Warn("task refused, shutting down", "task", name)
		return "", false
	}

	id := uuid.NewString()
	r.mu.Lock()
	r.tasks[id] = name
	r.mu.Unlock()
	r.wg.Add(1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("background task panicked", "task", name, "task_id", id, "panic", rec)
			}
			r.mu.Lock()
			delete(r.tasks, id)
			r.mu.Unlock()
			r.wg.Done()
		}()
		fn()
	}()
	return id, true
}

// Live returns the number of registered tasks still running.
func (r *Runtime) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Drain waits for all live tasks to complete or for ctx to expire.
// Cooperative tasks observe the shutdown signal and finish quickly;
// stragglers left behind at ctx expiry are logged and abandoned.
func (r *Runtime) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("background tasks drained")
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		for id, name := range r.tasks {
			r.log.Error("task did not drain", "task", name, "task_id", id)
		}
		r.mu.Unlock()
		return ctx.Err()
	}
}
