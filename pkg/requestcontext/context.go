// Package requestcontext provides context accessors for run-scoped and
// person-scoped values.
//
// The orchestrator sets the values; sources, sinks and the log handler read
// them. Keeping them here avoids import cycles between those packages.
//
// Usage in services (read values):
//
//	runID := requestcontext.RunID(ctx)
//	personID := requestcontext.PersonID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	runIDKey       struct{}
	personIDKey    struct{}
	sourceKey      struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRunID       = runIDKey{}
	ContextKeyPersonID    = personIDKey{}
	ContextKeySource      = sourceKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// RunID retrieves the batch run identifier from the context.
func RunID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return v
	}
	return ""
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// PersonID retrieves the ID of the person being resolved.
func PersonID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyPersonID).(string); ok {
		return v
	}
	return ""
}

func WithPersonID(ctx context.Context, personID string) context.Context {
	return context.WithValue(ctx, ContextKeyPersonID, personID)
}

// Source retrieves the name of the lookup source currently queried.
func Source(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeySource).(string); ok {
		return v
	}
	return ""
}

func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, ContextKeySource, source)
}

// Now returns the time injected into the context, or time.Now if none.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok && !t.IsZero() {
		return t
	}
	return time.Now()
}

// WithTime injects a fixed time, for tests and for stamping a whole run.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
