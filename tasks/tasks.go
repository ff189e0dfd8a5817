// Package tasks runs detached background work with panic isolation and a
// drain on shutdown.
package tasks

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultTimeout bounds a single background task. Fan-out work (emails,
// calendar inserts) is throttled per recipient, so large batches need room.
const DefaultTimeout = 5 * time.Minute

// Runner launches fire-and-forget tasks. Each task gets its own timeout
// context, panics are recovered and logged, and Shutdown waits for in-flight
// tasks to drain.
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewRunner creates a task runner. A zero timeout means DefaultTimeout.
func NewRunner(logger *slog.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Go runs fn on its own goroutine with a fresh timeout context. The request
// that spawned the task has usually already returned, so the task must not
// inherit the request context. Tasks submitted after Shutdown are dropped
// with a warning.
func (r *Runner) Go(name string, fn func(ctx context.Context)) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("Runner stopped, dropping task", "task", name)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("Background task panicked",
					"task", name,
					"panic", rec,
					"stack", string(debug.Stack()))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		start := time.Now()
		r.logger.Info("Background task started", "task", name)
		fn(ctx)
		r.logger.Info("Background task finished", "task", name, "duration", time.Since(start))
	}()
}

// Shutdown stops accepting new tasks and waits for running ones until ctx
// expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.logger.Warn("Shutdown deadline reached with tasks still running")
		return ctx.Err()
	}
}
