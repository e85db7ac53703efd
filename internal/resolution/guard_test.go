package resolution

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"innsearch/internal/person"
)

// overlapSink fails the test's expectations if two commits ever overlap.
type overlapSink struct {
	active     atomic.Int32
	overlapped atomic.Bool
	rows       []string
	err        error
}

func (s *overlapSink) Commit(_ context.Context, p person.Person) error {
	if s.active.Add(1) > 1 {
		s.overlapped.Store(true)
	}
	defer s.active.Add(-1)
	time.Sleep(time.Millisecond)
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, p.ID())
	return nil
}

func TestGuardSerializesCommits(t *testing.T) {
	sink := &overlapSink{}
	g, err := NewGuard(sink, nil, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := person.Person{DocumentSeries: "0012", DocumentNumber: string(rune('0' + i%10))}
			assert.NoError(t, g.Commit(context.Background(), p))
		}()
	}
	wg.Wait()

	assert.False(t, sink.overlapped.Load())
	assert.Len(t, sink.rows, 20)
}

func TestGuardLogsFailedPayload(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sinkErr := errors.New("permission denied")
	g, err := NewGuard(&overlapSink{err: sinkErr}, logger, nil)
	require.NoError(t, err)

	p := person.Person{LastName: "Петров", DocumentSeries: "0012", DocumentNumber: "003456", Identifier: "770000000001", Status: person.StatusFound}
	err = g.Commit(context.Background(), p)

	var swe *SinkWriteError
	require.ErrorAs(t, err, &swe)
	assert.Equal(t, "0012 003456", swe.PersonID)
	assert.ErrorIs(t, err, sinkErr)
	assert.Contains(t, buf.String(), "result sink write failed")
	assert.Contains(t, buf.String(), "770000000001")
	assert.Contains(t, buf.String(), "Петров")

	// The lock is released on failure.
	assert.Error(t, g.Commit(context.Background(), p))
}

func TestNewGuardRequiresSink(t *testing.T) {
	_, err := NewGuard(nil, nil, nil)
	assert.Error(t, err)
}
