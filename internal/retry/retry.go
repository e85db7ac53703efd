// Package retry runs a call again on retryable failures with a fixed base
// delay plus bounded random jitter.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"innsearch/internal/person"
	"innsearch/internal/source"
)

const (
	DefaultMaxAttempts = 10
	DefaultBaseDelay   = 3 * time.Second
	DefaultMaxJitter   = 2 * time.Second
)

// Attempt describes a failed attempt that is about to be retried.
type Attempt struct {
	Number int
	Err    error
	// Wait is the delay before the next attempt.
	Wait time.Duration
	// Waited is the cumulative delay so far, including Wait.
	Waited time.Duration
}

// Policy is a value; the zero value is filled from the defaults on use.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration

	// Retryable decides whether a failure is worth another attempt.
	// Defaults to source.IsRetryable.
	Retryable func(error) bool

	// OnRetry is called before each wait.
	OnRetry func(ctx context.Context, a Attempt)

	// Sleep and Jitter are replaceable for tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration
}

// Default returns the lookup policy: 10 attempts, 3s base delay, up to 2s
// jitter.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxJitter:   DefaultMaxJitter,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxJitter < 0 {
		p.MaxJitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = source.IsRetryable
	}
	if p.Sleep == nil {
		p.Sleep = sleep
	}
	if p.Jitter == nil {
		p.Jitter = randomJitter
	}
	return p
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempt budget runs out. The error of the last attempt is returned as is.
// Cancellation during a wait returns the context error.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var waited time.Duration
	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= p.MaxAttempts || !p.Retryable(err) {
			return result, err
		}

		wait := p.BaseDelay + p.Jitter(p.MaxJitter)
		waited += wait
		if p.OnRetry != nil {
			p.OnRetry(ctx, Attempt{Number: attempt, Err: err, Wait: wait, Waited: waited})
		}
		if serr := p.Sleep(ctx, wait); serr != nil {
			var zero T
			return zero, serr
		}
	}
}

// Source wraps a lookup source so that each Lookup runs under the policy.
// Every attempt repeats the whole token-then-search exchange.
func Source(src source.Source, p Policy) source.Source {
	return &retryingSource{src: src, policy: p}
}

type retryingSource struct {
	src    source.Source
	policy Policy
}

func (r *retryingSource) Name() string { return r.src.Name() }

func (r *retryingSource) Lookup(ctx context.Context, p person.Person) (person.SearchOutcome, error) {
	return Do(ctx, r.policy, func(ctx context.Context) (person.SearchOutcome, error) {
		return r.src.Lookup(ctx, p)
	})
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max + 1)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
