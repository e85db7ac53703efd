package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"innsearch/internal/resolution"
)

var (
	ErrBufferFull    = errors.New("event buffer full")
	ErrWorkerStopped = errors.New("event worker stopped")
)

// Worker decouples resolution tasks from the broker: Publish only enqueues,
// and a background loop forwards events to the next publisher.
type Worker struct {
	next   resolution.EventPublisher
	inbox  chan resolution.Event
	logger *slog.Logger

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewWorker(next resolution.EventPublisher, capacity int, logger *slog.Logger) *Worker {
	if capacity <= 0 {
		capacity = 1024
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{
		next:   next,
		inbox:  make(chan resolution.Event, capacity),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Publish enqueues without blocking. A full buffer drops the event.
func (w *Worker) Publish(_ context.Context, event resolution.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrWorkerStopped
	}
	select {
	case w.inbox <- event:
		return nil
	default:
		w.dropped.Add(1)
		return ErrBufferFull
	}
}

// Run forwards events until Close drains the inbox. ctx bounds each publish.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for event := range w.inbox {
		if err := w.next.Publish(ctx, event); err != nil {
			w.failed.Add(1)
			w.logger.WarnContext(ctx, "event publish failed",
				"person_id", event.PersonID,
				"status", event.Status,
				"error", err,
			)
		}
	}
}

// Close stops accepting events and waits for the backlog to be forwarded, or
// for ctx to end.
func (w *Worker) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.inbox)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) Dropped() int64 { return w.dropped.Load() }

func (w *Worker) Failed() int64 { return w.failed.Load() }
