// Package queue runs task execution units under a concurrency bound with
// cooperative, cause-tagged cancellation.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Cancellation causes. Units observe them through their context and the
// orchestrator uses them to decide the post-abort task status.
var (
	// ErrPauseAbort tags cancellations caused by a workflow pause. Aborted
	// tasks are restored to their pre-pause status on resume.
	ErrPauseAbort = errors.New("execution aborted: workflow paused")

	// ErrStopAbort tags cancellations caused by a workflow stop. Aborted
	// tasks are reset for a future fresh run.
	ErrStopAbort = errors.New("execution aborted: workflow stopped")
)

// Unit is one task's execution. It must return promptly once its context is
// cancelled; the queue never interrupts it forcibly.
type Unit func(ctx context.Context) error

// DoneFunc receives the unit's outcome after its slot is released. A nil err
// means success; ErrPauseAbort and ErrStopAbort surface via errors.Is.
type DoneFunc func(id string, err error)

// Queue bounds how many units run at once. Units submitted beyond the bound
// wait for a slot and can still be cancelled while waiting.
type Queue struct {
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelCauseFunc
	wg       sync.WaitGroup
}

// New creates a queue running at most maxConcurrency units at once.
// A bound below one falls back to one.
func New(maxConcurrency int, logger *slog.Logger) *Queue {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		sem:      semaphore.NewWeighted(int64(maxConcurrency)),
		logger:   logger,
		inflight: make(map[string]context.CancelCauseFunc),
	}
}

// Submit schedules a unit under the given id. The unit starts once a slot is
// free; done is always called exactly once, including for units cancelled
// before they acquired a slot. Submitting an id already in flight is a no-op
// so a unit never runs twice concurrently.
func (q *Queue) Submit(ctx context.Context, id string, unit Unit, done DoneFunc) bool {
	q.mu.Lock()
	if _, exists := q.inflight[id]; exists {
		q.mu.Unlock()
		return false
	}
	uctx, cancel := context.WithCancelCause(ctx)
	q.inflight[id] = cancel
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()

		err := q.sem.Acquire(uctx, 1)
		if err == nil {
			err = unit(uctx)
			q.sem.Release(1)
		}
		err = resolveCause(uctx, err)

		q.mu.Lock()
		delete(q.inflight, id)
		q.mu.Unlock()
		cancel(nil)

		if err != nil {
			q.logger.Debug("unit finished with error", "id", id, "error", err)
		}
		if done != nil {
			done(id, err)
		}
	}()
	return true
}

// resolveCause maps a bare context cancellation to the cause it was cancelled
// with, so callers can distinguish pause from stop.
func resolveCause(ctx context.Context, err error) error {
	if err == nil || !errors.Is(err, context.Canceled) {
		return err
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return err
}

// Cancel cancels the unit registered under id with the given cause.
// Returns false when no such unit is in flight.
func (q *Queue) Cancel(id string, cause error) bool {
	q.mu.Lock()
	cancel, ok := q.inflight[id]
	q.mu.Unlock()
	if !ok {
		return false
	}
	cancel(cause)
	return true
}

// CancelAll cancels every in-flight unit with the given cause.
func (q *Queue) CancelAll(cause error) {
	q.mu.Lock()
	cancels := make([]context.CancelCauseFunc, 0, len(q.inflight))
	for _, cancel := range q.inflight {
		cancels = append(cancels, cancel)
	}
	q.mu.Unlock()

	for _, cancel := range cancels {
		cancel(cause)
	}
}

// InFlight returns the number of units submitted and not yet finished,
// including units still waiting for a slot.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Wait blocks until every submitted unit has finished and its done callback
// has returned.
func (q *Queue) Wait() {
	q.wg.Wait()
}
