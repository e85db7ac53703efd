package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record applies a sequence of results: 'f' for failure, 's' for success.
func record(b *Breaker, results string) {
	for _, r := range results {
		if r == 'f' {
			b.RecordFailure()
		} else {
			b.RecordSuccess()
		}
	}
}

func TestNewBreakerStartsClosed(t *testing.T) {
	b := New("nalog")
	assert.Equal(t, "nalog", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerState(t *testing.T) {
	cases := []struct {
		name     string
		failures int
		recovery int
		results  string
		wantOpen bool
	}{
		{name: "below threshold", failures: 3, recovery: 1, results: "ff", wantOpen: false},
		{name: "at threshold", failures: 3, recovery: 1, results: "fff", wantOpen: true},
		{name: "success clears the failure streak", failures: 3, recovery: 1, results: "ffsff", wantOpen: false},
		{name: "streak after reset opens", failures: 3, recovery: 1, results: "ffsfff", wantOpen: true},
		{name: "one success short of recovery", failures: 1, recovery: 2, results: "fs", wantOpen: true},
		{name: "recovered", failures: 1, recovery: 2, results: "fss", wantOpen: false},
		{name: "failure restarts recovery", failures: 1, recovery: 3, results: "fssfss", wantOpen: true},
		{name: "recovered after restart", failures: 1, recovery: 3, results: "fssfsss", wantOpen: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := New("ogu", WithFailureThreshold(tc.failures), WithSuccessThreshold(tc.recovery))
			record(b, tc.results)
			assert.Equal(t, tc.wantOpen, b.IsOpen())
		})
	}
}

func TestRecordReportsTransitionsOnce(t *testing.T) {
	b := New("nalog", WithFailureThreshold(2), WithSuccessThreshold(1))

	fallback, change := b.RecordFailure()
	assert.False(t, fallback)
	assert.Equal(t, StateChange{}, change)

	fallback, change = b.RecordFailure()
	require.True(t, fallback)
	assert.True(t, change.Opened)

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.False(t, change.Opened, "already open")

	primary, change := b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)

	primary, change = b.RecordSuccess()
	assert.True(t, primary)
	assert.False(t, change.Closed, "already closed")
}

func TestResetClosesOpenBreaker(t *testing.T) {
	b := New("nalog", WithFailureThreshold(1))
	record(b, "f")
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	record(b, "f")
	assert.True(t, b.IsOpen(), "counters start over after reset")
}

func TestOpenBreakerLetsOneProbeThroughPerCooldown(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b := New("ogu", WithFailureThreshold(1), WithCooldown(30*time.Second), WithClock(func() time.Time { return now }))

	record(b, "f")
	assert.False(t, b.Allow())

	now = now.Add(30 * time.Second)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "probe already taken")

	// A failed probe pushes the next window out.
	record(b, "f")
	now = now.Add(15 * time.Second)
	assert.False(t, b.Allow())
	now = now.Add(15 * time.Second)
	assert.True(t, b.Allow())

	record(b, "s")
	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
}
