package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"innsearch/internal/person"
	"innsearch/internal/resolution/metrics"
)

// SinkWriteError reports a failed commit. The run continues.
type SinkWriteError struct {
	PersonID string
	Err      error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("commit person %s: %v", e.PersonID, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// Guard serializes commits to a ResultSink so a read-modify-append-save cycle
// never interleaves with another.
type Guard struct {
	mu      sync.Mutex
	sink    ResultSink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewGuard(sink ResultSink, logger *slog.Logger, m *metrics.Metrics) (*Guard, error) {
	if sink == nil {
		return nil, fmt.Errorf("result sink is required")
	}
	return &Guard{sink: sink, logger: logger, metrics: m}, nil
}

// Commit writes p under the guard's lock. A failure is logged with the full
// payload and returned as *SinkWriteError.
func (g *Guard) Commit(ctx context.Context, p person.Person) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sink.Commit(ctx, p); err != nil {
		g.metrics.IncrementSinkFailure()
		if g.logger != nil {
			payload, _ := json.Marshal(p)
			g.logger.ErrorContext(ctx, "result sink write failed",
				"person_id", p.ID(),
				"payload", string(payload),
				"error", err,
			)
		}
		return &SinkWriteError{PersonID: p.ID(), Err: err}
	}
	return nil
}
