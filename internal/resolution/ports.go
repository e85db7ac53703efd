package resolution

import (
	"context"
	"time"

	"innsearch/internal/person"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks PersonSource,ResultSink,IdentifierCache,EventPublisher,Gate

// PersonSource yields the batch to resolve. Rows with incomplete identity
// fields are excluded by the implementation.
type PersonSource interface {
	Read(ctx context.Context) ([]person.Person, error)
}

// ResultSink durably stores one resolved person. Implementations need not be
// safe for concurrent use; the Guard serializes calls.
type ResultSink interface {
	Commit(ctx context.Context, p person.Person) error
}

// IdentifierCache remembers found identifiers across runs, keyed by person
// ID. Find returns sentinel.ErrNotFound on a miss.
type IdentifierCache interface {
	Find(ctx context.Context, personID string) (person.SearchOutcome, error)
	Save(ctx context.Context, personID string, outcome person.SearchOutcome) error
}

// EventPublisher announces committed outcomes to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Gate is held by every resolution task before it issues network calls.
type Gate interface {
	Acquire(ctx context.Context) error
}

// Event is the record published for every committed outcome.
type Event struct {
	RunID      string        `json:"run_id"`
	PersonID   string        `json:"person_id"`
	Status     person.Status `json:"status"`
	Identifier string        `json:"identifier,omitempty"`
	Source     string        `json:"source,omitempty"`
	Error      string        `json:"error,omitempty"`
	ResolvedAt time.Time     `json:"resolved_at"`
}
