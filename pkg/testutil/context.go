package testutil

import (
	"context"
	"time"

	"innsearch/pkg/requestcontext"
)

// RunContext returns a context carrying a run ID and a fixed clock, the way
// the orchestrator stamps a run.
func RunContext(runID string, now time.Time) context.Context {
	ctx := requestcontext.WithRunID(context.Background(), runID)
	return requestcontext.WithTime(ctx, now)
}
