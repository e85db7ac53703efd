// Package anonymity owns the local onion-routing proxy for a run: it starts
// the proxy if needed, waits for bootstrap, rotates the circuit in the
// background and tears everything down on release.
package anonymity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

var (
	ErrStartTimeout     = errors.New("proxy process did not start in time")
	ErrBootstrapTimeout = errors.New("proxy did not finish bootstrap in time")
)

// RotationRecorder observes circuit rotation requests.
type RotationRecorder interface {
	RecordRotation(success bool)
}

// Session holds the proxy for the whole run. Acquire is idempotent and safe to
// call from every resolution task; only the first call does any work.
type Session struct {
	cfg     Config
	procs   ProcessManager
	dial    ControllerDialer
	logger  *slog.Logger
	metrics RotationRecorder

	mu        sync.Mutex
	acquired  bool
	released  bool
	stop      context.CancelFunc
	done      chan struct{}
	transport *http.Transport
}

type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithMetrics(m RotationRecorder) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

func WithProcessManager(pm ProcessManager) Option {
	return func(s *Session) {
		s.procs = pm
	}
}

func WithControllerDialer(d ControllerDialer) Option {
	return func(s *Session) {
		s.dial = d
	}
}

func New(cfg Config, opts ...Option) (*Session, error) {
	if cfg.SocksAddr == "" {
		return nil, fmt.Errorf("socks address is required")
	}
	if cfg.ControlAddr == "" {
		return nil, fmt.Errorf("control address is required")
	}
	proxyURL, err := url.Parse("socks5://" + cfg.SocksAddr)
	if err != nil {
		return nil, fmt.Errorf("parse socks address: %w", err)
	}
	defaults := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaults.StartTimeout
	}
	if cfg.BootstrapTimeout <= 0 {
		cfg.BootstrapTimeout = defaults.BootstrapTimeout
	}
	if cfg.RotationInterval <= 0 {
		cfg.RotationInterval = defaults.RotationInterval
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = defaults.JoinTimeout
	}

	s := &Session{
		cfg:  cfg,
		dial: DialController,
		transport: &http.Transport{
			Proxy:               http.ProxyURL(proxyURL),
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.procs == nil {
		s.procs = NewOSProcesses(cfg)
	}
	return s, nil
}

// Transport routes requests through the proxy's SOCKS port.
func (s *Session) Transport() http.RoundTripper {
	return s.transport
}

// Acquire makes sure the proxy runs and has bootstrapped, then starts the
// rotation loop. A failed acquisition can be retried.
func (s *Session) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return errors.New("session already released")
	}
	if s.acquired {
		return nil
	}

	if err := s.ensureRunning(ctx); err != nil {
		return err
	}

	ctrl, err := s.dial(ctx, s.cfg.ControlAddr, s.cfg.ControlPassword)
	if err != nil {
		return err
	}
	if err := s.waitBootstrap(ctx, ctrl); err != nil {
		_ = ctrl.Close()
		return err
	}

	loopCtx, stop := context.WithCancel(context.Background())
	s.stop = stop
	s.done = make(chan struct{})
	go s.rotate(loopCtx, ctrl)

	s.acquired = true
	s.info(ctx, "anonymity session acquired", "socks_addr", s.cfg.SocksAddr)
	return nil
}

func (s *Session) ensureRunning(ctx context.Context) error {
	running, err := s.procs.Running(ctx)
	if err != nil {
		return err
	}
	if running {
		return nil
	}

	s.info(ctx, "starting proxy process", "binary", s.cfg.Binary)
	if err := s.procs.Start(ctx); err != nil {
		return err
	}
	deadline := time.Now().Add(s.cfg.StartTimeout)
	for time.Now().Before(deadline) {
		if running, err := s.procs.Running(ctx); err == nil && running {
			return nil
		}
		if err := wait(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %s", ErrStartTimeout, s.cfg.StartTimeout)
}

func (s *Session) waitBootstrap(ctx context.Context, ctrl Controller) error {
	deadline := time.Now().Add(s.cfg.BootstrapTimeout)
	for {
		progress, err := ctrl.BootstrapProgress(ctx)
		if err != nil {
			return err
		}
		if progress >= 100 {
			return nil
		}
		s.debug(ctx, "waiting for proxy bootstrap", "progress", progress)
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: stuck at %d%%", ErrBootstrapTimeout, progress)
		}
		if err := wait(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// rotate requests a new identity whenever the rate limit allows. It exits
// when stopped or when the proxy process has gone away.
func (s *Session) rotate(ctx context.Context, ctrl Controller) {
	defer close(s.done)
	defer ctrl.Close()

	ticker := time.NewTicker(s.cfg.RotationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if running, err := s.procs.Running(ctx); err == nil && !running {
			s.warn(ctx, "proxy process gone, rotation stopped")
			return
		}
		err := ctrl.NewIdentity(ctx)
		if s.metrics != nil {
			s.metrics.RecordRotation(err == nil)
		}
		if err != nil {
			s.warn(ctx, "circuit rotation failed", "error", err)
			continue
		}
		s.debug(ctx, "circuit rotated")
	}
}

// Release stops the rotation loop, waiting at most the join timeout, then
// kills the proxy process. Safe to call more than once.
func (s *Session) Release(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true

	if s.stop != nil {
		s.stop()
		select {
		case <-s.done:
		case <-time.After(s.cfg.JoinTimeout):
			s.warn(ctx, "rotation loop did not stop in time", "join_timeout", s.cfg.JoinTimeout)
		}
	}
	s.transport.CloseIdleConnections()

	if err := s.procs.Kill(ctx); err != nil {
		return fmt.Errorf("terminate proxy process: %w", err)
	}
	s.info(ctx, "anonymity session released")
	return nil
}

func (s *Session) info(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, msg, args...)
	}
}

func (s *Session) warn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, args...)
	}
}

func (s *Session) debug(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.DebugContext(ctx, msg, args...)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
