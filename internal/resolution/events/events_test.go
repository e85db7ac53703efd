package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"innsearch/internal/person"
	"innsearch/internal/resolution"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func TestKafkaPublisher(t *testing.T) {
	producer := &fakeProducer{}
	pub, err := NewKafkaPublisher(producer, "inn-resolutions")
	require.NoError(t, err)

	event := resolution.Event{
		RunID:      "run-1",
		PersonID:   "0012 003456",
		Status:     person.StatusFound,
		Identifier: "770000000001",
		Source:     "nalog",
		ResolvedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(context.Background(), event))

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "inn-resolutions", rec.Topic)
	assert.Equal(t, "0012 003456", string(rec.Key))

	var decoded resolution.Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, event, decoded)

	t.Run("produce errors are returned", func(t *testing.T) {
		producer.err = errors.New("not leader for partition")
		assert.Error(t, pub.Publish(context.Background(), event))
	})
}

func TestNewKafkaPublisherValidation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "t")
	assert.Error(t, err)
	_, err = NewKafkaPublisher(&fakeProducer{}, "")
	assert.Error(t, err)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []resolution.Event
	err    error
	block  chan struct{}
}

func (r *recordingPublisher) Publish(_ context.Context, e resolution.Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func TestWorkerForwardsAndDrains(t *testing.T) {
	next := &recordingPublisher{}
	w := NewWorker(next, 16, nil)
	go w.Run(context.Background())

	for i := 0; i < 10; i++ {
		require.NoError(t, w.Publish(context.Background(), resolution.Event{PersonID: string(rune('a' + i))}))
	}
	require.NoError(t, w.Close(context.Background()))

	assert.Len(t, next.events, 10)
	assert.ErrorIs(t, w.Publish(context.Background(), resolution.Event{}), ErrWorkerStopped)
	assert.NoError(t, w.Close(context.Background()))
}

func TestWorkerDropsWhenFull(t *testing.T) {
	next := &recordingPublisher{block: make(chan struct{})}
	w := NewWorker(next, 1, nil)

	// Nothing is draining yet, so the second event overflows.
	require.NoError(t, w.Publish(context.Background(), resolution.Event{PersonID: "a"}))
	assert.ErrorIs(t, w.Publish(context.Background(), resolution.Event{PersonID: "b"}), ErrBufferFull)
	assert.Equal(t, int64(1), w.Dropped())

	go w.Run(context.Background())
	close(next.block)
	require.NoError(t, w.Close(context.Background()))
	assert.Len(t, next.events, 1)
}

func TestWorkerCountsFailures(t *testing.T) {
	next := &recordingPublisher{err: errors.New("broker down")}
	w := NewWorker(next, 4, nil)
	go w.Run(context.Background())
	require.NoError(t, w.Publish(context.Background(), resolution.Event{}))
	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, int64(1), w.Failed())
}

func TestWorkerCloseRespectsDeadline(t *testing.T) {
	next := &recordingPublisher{block: make(chan struct{})}
	defer close(next.block)
	w := NewWorker(next, 4, nil)
	go w.Run(context.Background())
	require.NoError(t, w.Publish(context.Background(), resolution.Event{}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Close(ctx), context.DeadlineExceeded)
}
