package anonymity

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeProcesses struct {
	mu       sync.Mutex
	running  bool
	startsUp bool
	starts   int
	kills    int
	listErr  error
}

func (f *fakeProcesses) Running(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, f.listErr
}

func (f *fakeProcesses) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startsUp {
		f.running = true
	}
	return nil
}

func (f *fakeProcesses) Kill(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills++
	f.running = false
	return nil
}

func (f *fakeProcesses) setRunning(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = v
}

type fakeController struct {
	progress  []int
	polls     atomic.Int32
	newnyms   atomic.Int32
	newnymErr error
	closed    atomic.Bool
	block     chan struct{}
}

func (c *fakeController) BootstrapProgress(context.Context) (int, error) {
	n := int(c.polls.Add(1)) - 1
	if n >= len(c.progress) {
		n = len(c.progress) - 1
	}
	return c.progress[n], nil
}

func (c *fakeController) NewIdentity(context.Context) error {
	if c.block != nil {
		<-c.block
	}
	c.newnyms.Add(1)
	return c.newnymErr
}

func (c *fakeController) Close() error {
	c.closed.Store(true)
	return nil
}

type countingRecorder struct {
	ok, failed atomic.Int32
}

func (r *countingRecorder) RecordRotation(success bool) {
	if success {
		r.ok.Add(1)
	} else {
		r.failed.Add(1)
	}
}

// SessionSuite covers the proxy lifecycle against fake process and control
// surfaces.
//
// Justification for unit tests: start timeouts, bootstrap polling and the
// bounded join on release are timing contracts that cannot be driven through a
// real proxy process in CI.
type SessionSuite struct {
	suite.Suite
	procs *fakeProcesses
	ctrl  *fakeController
	dials atomic.Int32
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.procs = &fakeProcesses{running: true}
	s.ctrl = &fakeController{progress: []int{100}}
	s.dials.Store(0)
}

func (s *SessionSuite) newSession(mutate func(*Config), opts ...Option) *Session {
	cfg := DefaultConfig()
	cfg.StartTimeout = 50 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.BootstrapTimeout = 50 * time.Millisecond
	cfg.RotationInterval = 5 * time.Millisecond
	cfg.JoinTimeout = 50 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	dial := func(context.Context, string, string) (Controller, error) {
		s.dials.Add(1)
		return s.ctrl, nil
	}
	all := append([]Option{WithProcessManager(s.procs), WithControllerDialer(dial)}, opts...)
	session, err := New(cfg, all...)
	s.Require().NoError(err)
	return session
}

// =============================================================================
// Acquire
// =============================================================================

func (s *SessionSuite) TestAcquire() {
	ctx := context.Background()

	s.Run("reuses running process", func() {
		s.SetupTest()
		session := s.newSession(nil)
		s.Require().NoError(session.Acquire(ctx))
		s.Zero(s.procs.starts)
		s.Require().NoError(session.Release(ctx))
	})

	s.Run("starts absent process", func() {
		s.SetupTest()
		s.procs.running = false
		s.procs.startsUp = true
		session := s.newSession(nil)
		s.Require().NoError(session.Acquire(ctx))
		s.Equal(1, s.procs.starts)
		s.Require().NoError(session.Release(ctx))
	})

	s.Run("process that never appears is fatal", func() {
		s.SetupTest()
		s.procs.running = false
		session := s.newSession(nil)
		err := session.Acquire(ctx)
		s.ErrorIs(err, ErrStartTimeout)
		s.Zero(s.dials.Load())
	})

	s.Run("waits for full bootstrap", func() {
		s.SetupTest()
		s.ctrl.progress = []int{10, 45, 80, 100}
		session := s.newSession(nil)
		s.Require().NoError(session.Acquire(ctx))
		s.Equal(int32(4), s.ctrl.polls.Load())
		s.Require().NoError(session.Release(ctx))
	})

	s.Run("stalled bootstrap is fatal", func() {
		s.SetupTest()
		s.ctrl.progress = []int{5}
		session := s.newSession(nil)
		s.ErrorIs(session.Acquire(ctx), ErrBootstrapTimeout)
		s.True(s.ctrl.closed.Load())
	})

	s.Run("second acquire is a no-op", func() {
		s.SetupTest()
		session := s.newSession(nil)
		s.Require().NoError(session.Acquire(ctx))
		s.Require().NoError(session.Acquire(ctx))
		s.Equal(int32(1), s.dials.Load())
		s.Require().NoError(session.Release(ctx))
	})

	s.Run("concurrent acquire dials once", func() {
		s.SetupTest()
		session := s.newSession(nil)
		var wg sync.WaitGroup
		for i := 0; i < 15; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.NoError(session.Acquire(ctx))
			}()
		}
		wg.Wait()
		s.Equal(int32(1), s.dials.Load())
		s.Require().NoError(session.Release(ctx))
	})

	s.Run("acquire after release fails", func() {
		s.SetupTest()
		session := s.newSession(nil)
		s.Require().NoError(session.Release(ctx))
		s.Error(session.Acquire(ctx))
	})
}

// =============================================================================
// Rotation
// =============================================================================

func (s *SessionSuite) TestRotation() {
	ctx := context.Background()

	s.Run("requests new identities in the background", func() {
		s.SetupTest()
		rec := &countingRecorder{}
		session := s.newSession(nil, WithMetrics(rec))
		s.Require().NoError(session.Acquire(ctx))
		s.Eventually(func() bool { return s.ctrl.newnyms.Load() >= 3 }, time.Second, time.Millisecond)
		s.Require().NoError(session.Release(ctx))
		s.GreaterOrEqual(rec.ok.Load(), int32(3))
		s.True(s.ctrl.closed.Load())
	})

	s.Run("failed rotation keeps the loop alive", func() {
		s.SetupTest()
		s.ctrl.newnymErr = errors.New("551 rate limited")
		rec := &countingRecorder{}
		session := s.newSession(nil, WithMetrics(rec))
		s.Require().NoError(session.Acquire(ctx))
		s.Eventually(func() bool { return rec.failed.Load() >= 2 }, time.Second, time.Millisecond)
		s.Require().NoError(session.Release(ctx))
	})

	s.Run("loop exits when the process is gone", func() {
		s.SetupTest()
		session := s.newSession(nil)
		s.Require().NoError(session.Acquire(ctx))
		s.procs.setRunning(false)
		s.Eventually(func() bool { return s.ctrl.closed.Load() }, time.Second, time.Millisecond)
		s.Require().NoError(session.Release(ctx))
	})
}

// =============================================================================
// Release
// =============================================================================

func (s *SessionSuite) TestRelease() {
	ctx := context.Background()

	s.Run("kills the process", func() {
		s.SetupTest()
		session := s.newSession(nil)
		s.Require().NoError(session.Acquire(ctx))
		s.Require().NoError(session.Release(ctx))
		s.Equal(1, s.procs.kills)
		s.Require().NoError(session.Release(ctx))
		s.Equal(1, s.procs.kills)
	})

	s.Run("join is bounded when the loop is stuck", func() {
		s.SetupTest()
		s.ctrl.block = make(chan struct{})
		defer close(s.ctrl.block)
		session := s.newSession(nil)
		s.Require().NoError(session.Acquire(ctx))
		time.Sleep(20 * time.Millisecond)

		start := time.Now()
		s.Require().NoError(session.Release(ctx))
		s.Less(time.Since(start), time.Second)
		s.Equal(1, s.procs.kills)
	})
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{ControlAddr: "127.0.0.1:9051"})
	assert.Error(t, err)
	_, err = New(Config{SocksAddr: "127.0.0.1:9050"})
	assert.Error(t, err)
}

func TestTransportUsesSocksProxy(t *testing.T) {
	session, err := New(DefaultConfig())
	require.NoError(t, err)
	tr, ok := session.Transport().(*http.Transport)
	require.True(t, ok)

	req := &http.Request{URL: &url.URL{Scheme: "https", Host: "service.nalog.ru"}}
	proxy, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "socks5://127.0.0.1:9050", proxy.String())
}

func TestParseProgress(t *testing.T) {
	n, err := ParseProgress(`NOTICE BOOTSTRAP PROGRESS=85 TAG=ap_handshake_done SUMMARY="Handshake finished"`)
	require.NoError(t, err)
	assert.Equal(t, 85, n)

	_, err = ParseProgress("NOTICE BOOTSTRAP")
	assert.Error(t, err)
}
