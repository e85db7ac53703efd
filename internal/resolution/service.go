// Package resolution resolves identifiers for a batch of persons: sources are
// tried in priority order under a global admission cap, and every outcome is
// committed through a serialized sink.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"innsearch/internal/person"
	"innsearch/internal/resolution/metrics"
	"innsearch/internal/retry"
	"innsearch/internal/source"
	"innsearch/pkg/platform/circuit"
	"innsearch/pkg/platform/sentinel"
	"innsearch/pkg/requestcontext"
)

// DefaultMaxConcurrent is the number of persons resolved at once.
const DefaultMaxConcurrent = 15

var (
	ErrNoPersons        = errors.New("person source yielded no persons")
	ErrSourcesExhausted = errors.New("all sources failed")
	ErrSourceSuspended  = errors.New("source suspended by circuit breaker")
)

// Result pairs a person, carrying its outcome, with the commit result.
type Result struct {
	Person    person.Person
	Outcome   person.SearchOutcome
	CommitErr error
}

// Summary totals a finished run.
type Summary struct {
	RunID        string
	Total        int
	Found        int
	NotFound     int
	Errors       int
	CacheHits    int
	SinkFailures int
	Duration     time.Duration
}

func (s *Summary) add(r Result) {
	s.Total++
	switch r.Outcome.Status {
	case person.StatusFound:
		s.Found++
	case person.StatusNotFound:
		s.NotFound++
	default:
		s.Errors++
	}
	if r.Outcome.Source == CacheSource {
		s.CacheHits++
	}
	if r.CommitErr != nil {
		s.SinkFailures++
	}
}

// CacheSource marks outcomes answered from the identifier cache.
const CacheSource = "cache"

// Service is the resolution orchestrator.
type Service struct {
	sources       []source.Source
	guard         *Guard
	sem           *semaphore.Weighted
	maxConcurrent int64
	policy        retry.Policy
	gate          Gate
	cache         IdentifierCache
	events        EventPublisher
	breakers      map[string]*circuit.Breaker
	runID         string
	metrics       *metrics.Metrics
	logger        *slog.Logger
	tracer        trace.Tracer

	breakerThreshold int
	breakerCooldown  time.Duration
}

type Option func(*Service)

func WithMaxConcurrent(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrent = int64(n)
		}
	}
}

// WithRetryPolicy sets the policy wrapped around every source lookup.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithGate makes every task acquire the gate before its first network call.
func WithGate(g Gate) Option {
	return func(s *Service) {
		s.gate = g
	}
}

func WithCache(c IdentifierCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithEvents(p EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithCircuitBreaker suspends a source after threshold consecutive failed
// lookups, probing it again once per cooldown.
func WithCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(s *Service) {
		s.breakerThreshold = threshold
		s.breakerCooldown = cooldown
	}
}

func WithRunID(id string) Option {
	return func(s *Service) {
		s.runID = id
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New builds the orchestrator. Sources are tried in the given order.
func New(sources []source.Source, sink ResultSink, opts ...Option) (*Service, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}
	for i, src := range sources {
		if src == nil {
			return nil, fmt.Errorf("source %d is nil", i)
		}
	}

	s := &Service{
		maxConcurrent: DefaultMaxConcurrent,
		policy:        retry.Default(),
		logger:        slog.Default(),
		tracer:        otel.Tracer("innsearch/resolution"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	guard, err := NewGuard(sink, s.logger, s.metrics)
	if err != nil {
		return nil, err
	}
	s.guard = guard
	s.sem = semaphore.NewWeighted(s.maxConcurrent)

	if s.breakerThreshold > 0 {
		s.breakers = make(map[string]*circuit.Breaker, len(sources))
	}
	for _, src := range sources {
		if s.breakers != nil {
			s.breakers[src.Name()] = circuit.New(src.Name(),
				circuit.WithFailureThreshold(s.breakerThreshold),
				circuit.WithCooldown(s.breakerCooldown),
			)
		}
		s.sources = append(s.sources, retry.Source(src, s.retryPolicy(src.Name())))
	}
	return s, nil
}

// retryPolicy adds logging and metrics to the configured policy.
func (s *Service) retryPolicy(name string) retry.Policy {
	p := s.policy
	next := p.OnRetry
	p.OnRetry = func(ctx context.Context, a retry.Attempt) {
		s.metrics.IncrementRetry(name)
		s.logger.WarnContext(ctx, "source lookup failed, retrying",
			"source", name,
			"person_id", requestcontext.PersonID(ctx),
			"attempt", a.Number,
			"wait", a.Wait,
			"category", source.GetCategory(a.Err),
			"error", a.Err,
		)
		if next != nil {
			next(ctx, a)
		}
	}
	return p
}

func (s *Service) RunID() string { return s.runID }

// Run reads the batch, resolves it and returns the totals. Only a failing or
// empty person source is an error; per-person failures end up in the Summary.
func (s *Service) Run(ctx context.Context, persons PersonSource) (Summary, error) {
	ctx = requestcontext.WithRunID(ctx, s.runID)
	summary := Summary{RunID: s.runID}
	start := time.Now()

	batch, err := persons.Read(ctx)
	if err != nil {
		return summary, fmt.Errorf("read persons: %w", err)
	}
	if len(batch) == 0 {
		return summary, ErrNoPersons
	}
	s.logger.InfoContext(ctx, "resolution run started", "run_id", s.runID, "persons", len(batch))

	for r := range s.ResolveAll(ctx, batch) {
		summary.add(r)
	}
	summary.Duration = time.Since(start)

	s.logger.InfoContext(ctx, "resolution run finished",
		"run_id", s.runID,
		"total", summary.Total,
		"found", summary.Found,
		"not_found", summary.NotFound,
		"errors", summary.Errors,
		"cache_hits", summary.CacheHits,
		"sink_failures", summary.SinkFailures,
		"duration", summary.Duration,
	)
	return summary, nil
}

// ResolveAll resolves every person concurrently and streams the results in
// completion order. Each outcome is committed before it is emitted. The
// channel is closed once every person has been emitted exactly once.
func (s *Service) ResolveAll(ctx context.Context, persons []person.Person) <-chan Result {
	if requestcontext.RunID(ctx) == "" {
		ctx = requestcontext.WithRunID(ctx, s.runID)
	}
	out := make(chan Result, len(persons))

	var wg sync.WaitGroup
	for _, p := range persons {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out <- s.resolveAndCommit(ctx, p)
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (s *Service) resolveAndCommit(ctx context.Context, p person.Person) Result {
	ctx = requestcontext.WithPersonID(ctx, p.ID())

	var outcome person.SearchOutcome
	if err := s.sem.Acquire(ctx, 1); err != nil {
		outcome = person.ErrorOutcome("", fmt.Errorf("admission: %w", err))
	} else {
		s.metrics.IncInFlight()
		outcome = s.Resolve(ctx, p)
		s.metrics.DecInFlight()
		s.sem.Release(1)
	}

	resolved := p.WithOutcome(outcome)
	commitErr := s.guard.Commit(context.WithoutCancel(ctx), resolved)
	s.publish(ctx, resolved, outcome)
	s.metrics.IncrementOutcome(string(outcome.Status))

	return Result{Person: resolved, Outcome: outcome, CommitErr: commitErr}
}

// Resolve runs the fallback chain for one person. It never returns an error;
// failures become an Error outcome carrying the cause.
func (s *Service) Resolve(ctx context.Context, p person.Person) person.SearchOutcome {
	ctx = requestcontext.WithPersonID(ctx, p.ID())
	ctx, span := s.tracer.Start(ctx, "resolution.resolve",
		trace.WithAttributes(attribute.String("person_id", p.ID())))
	defer span.End()

	start := time.Now()
	outcome := s.resolve(ctx, p)
	s.metrics.ObserveResolveLatency(time.Since(start))

	span.SetAttributes(attribute.String("status", string(outcome.Status)))
	if outcome.Status == person.StatusError {
		span.RecordError(outcome.Cause)
		span.SetStatus(codes.Error, "resolution failed")
		s.logger.ErrorContext(ctx, "identifier resolution failed",
			"person_id", p.ID(),
			"error", outcome.Cause,
		)
	} else {
		s.logger.InfoContext(ctx, "identifier resolved",
			"person_id", p.ID(),
			"status", outcome.Status,
			"source", outcome.Source,
		)
	}
	return outcome
}

func (s *Service) resolve(ctx context.Context, p person.Person) person.SearchOutcome {
	if s.gate != nil {
		if err := s.gate.Acquire(ctx); err != nil {
			return person.ErrorOutcome("", fmt.Errorf("acquire anonymity session: %w", err))
		}
	}

	if hit, ok := s.fromCache(ctx, p); ok {
		return hit
	}

	// The last source attempted decides between NotFound and Error.
	var (
		causes []error
		last   person.SearchOutcome
	)
	for _, src := range s.sources {
		out, err := s.lookup(ctx, src, p)
		if err != nil {
			err = fmt.Errorf("%s: %w", src.Name(), err)
			causes = append(causes, err)
			last = person.ErrorOutcome(src.Name(), err)
			continue
		}
		if out.Found() {
			s.toCache(ctx, p, out)
			return out
		}
		last = out
	}

	if last.Status == person.StatusError && len(causes) == len(s.sources) {
		return person.ErrorOutcome("", fmt.Errorf("%w: %w", ErrSourcesExhausted, errors.Join(causes...)))
	}
	return last
}

func (s *Service) lookup(ctx context.Context, src source.Source, p person.Person) (person.SearchOutcome, error) {
	name := src.Name()
	breaker := s.breakers[name]
	if breaker != nil && !breaker.Allow() {
		s.metrics.IncrementLookupResult(name, "skipped")
		return person.SearchOutcome{}, fmt.Errorf("%w: %s", ErrSourceSuspended, name)
	}

	ctx = requestcontext.WithSource(ctx, name)
	ctx, span := s.tracer.Start(ctx, "resolution.lookup",
		trace.WithAttributes(attribute.String("source", name)))
	defer span.End()

	start := time.Now()
	out, err := src.Lookup(ctx, p)
	s.metrics.ObserveLookupLatency(name, time.Since(start))

	if err == nil && !out.Found() && out.Status != person.StatusNotFound {
		err = source.Protocol(name, "invalid outcome status %q with identifier %q", out.Status, out.Identifier)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(source.GetCategory(err)))
		s.metrics.IncrementLookupResult(name, "error")
		s.logger.WarnContext(ctx, "source lookup failed",
			"source", name,
			"person_id", p.ID(),
			"category", source.GetCategory(err),
			"error", err,
		)
		if breaker != nil && !errors.Is(err, context.Canceled) {
			if _, change := breaker.RecordFailure(); change.Opened {
				s.logger.WarnContext(ctx, "source suspended", "source", name)
			}
		}
		return person.SearchOutcome{}, err
	}

	if breaker != nil {
		if _, change := breaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "source resumed", "source", name)
		}
	}
	span.SetAttributes(attribute.String("status", string(out.Status)))
	s.metrics.IncrementLookupResult(name, string(out.Status))
	return out, nil
}

func (s *Service) fromCache(ctx context.Context, p person.Person) (person.SearchOutcome, bool) {
	if s.cache == nil {
		return person.SearchOutcome{}, false
	}
	out, err := s.cache.Find(ctx, p.ID())
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "identifier cache lookup failed", "person_id", p.ID(), "error", err)
		}
		return person.SearchOutcome{}, false
	}
	if !out.Found() {
		return person.SearchOutcome{}, false
	}
	s.metrics.IncrementCacheHit()
	return person.FoundOutcome(CacheSource, out.Identifier), true
}

func (s *Service) toCache(ctx context.Context, p person.Person, out person.SearchOutcome) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(ctx, p.ID(), out); err != nil {
		s.logger.WarnContext(ctx, "identifier cache save failed", "person_id", p.ID(), "error", err)
	}
}

func (s *Service) publish(ctx context.Context, p person.Person, outcome person.SearchOutcome) {
	if s.events == nil {
		return
	}
	event := Event{
		RunID:      requestcontext.RunID(ctx),
		PersonID:   p.ID(),
		Status:     outcome.Status,
		Identifier: outcome.Identifier,
		Source:     outcome.Source,
		ResolvedAt: requestcontext.Now(ctx),
	}
	if outcome.Cause != nil {
		event.Error = outcome.Cause.Error()
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WarnContext(ctx, "outcome event publish failed", "person_id", p.ID(), "error", err)
	}
}
