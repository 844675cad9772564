// Package executor is the single path by which a command and argument list
// run against a fleet host. It wraps acquire/execute/release around the
// connection pool, enforces a per-call timeout, and translates outcomes
// into the error taxonomy in internal/remote.
package executor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fleetdock/fleetdock/internal/pool"
	"github.com/fleetdock/fleetdock/internal/remote"
)

// DefaultTimeout applies when a call does not specify its own.
const DefaultTimeout = 30 * time.Second

// Runner is the outbound contract consumed by the command catalogue
// (internal/docker, internal/hostinfo). Implemented by Service.
type Runner interface {
	Execute(ctx context.Context, host remote.Host, command string, args ...string) (string, error)
	Stream(ctx context.Context, host remote.Host, command string, args ...string) (io.ReadCloser, error)
}

// Service executes commands through a connection pool.
type Service struct {
	pool    *pool.Pool
	timeout time.Duration
}

// New creates a Service on top of p. timeout is the default per-command
// limit; zero means DefaultTimeout.
func New(p *pool.Pool, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{pool: p, timeout: timeout}
}

// Execute runs command with the service's default timeout and returns
// trimmed stdout. See ExecuteTimeout for the full contract.
func (s *Service) Execute(ctx context.Context, host remote.Host, command string, args ...string) (string, error) {
	return s.ExecuteTimeout(ctx, host, s.timeout, command, args...)
}

// ExecuteTimeout runs command+args against host, bounded by timeout.
//
// Pool errors (credential, connect, capacity) propagate unchanged. A
// non-zero exit becomes a *remote.CommandError; the timer firing first
// becomes a *remote.TimeoutError. The timeout is client-side abandonment
// only — the remote process may keep running after the call returns. The
// borrowed session is released on every exit path, including timeout.
func (s *Service) ExecuteTimeout(ctx context.Context, host remote.Host, timeout time.Duration, command string, args ...string) (string, error) {
	if timeout <= 0 {
		timeout = s.timeout
	}

	sess, err := s.pool.Get(ctx, host)
	if err != nil {
		return "", err
	}
	defer s.pool.Release(host, sess)

	commandLine := joinCommand(command, args)

	type runResult struct {
		res remote.Result
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		res, err := sess.Run(ctx, commandLine)
		done <- runResult{res, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		return "", &remote.TimeoutError{
			Host:        host.Identity(),
			CommandLine: commandLine,
			Timeout:     timeout,
		}
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("execute on %s: %w", host.Identity(), r.err)
		}
		if r.res.ExitCode != 0 {
			return "", &remote.CommandError{
				Host:        host.Identity(),
				CommandLine: commandLine,
				ExitCode:    r.res.ExitCode,
				Stdout:      r.res.Stdout,
				Stderr:      strings.TrimSpace(r.res.Stderr),
			}
		}
		return strings.TrimSpace(r.res.Stdout), nil
	}
}

// Stream starts command+args on host and returns a reader over its stdout.
// The pooled session stays busy until the reader is closed; Close releases
// it, preserving the scoped-acquisition guarantee for streams.
func (s *Service) Stream(ctx context.Context, host remote.Host, command string, args ...string) (io.ReadCloser, error) {
	sess, err := s.pool.Get(ctx, host)
	if err != nil {
		return nil, err
	}

	rc, err := sess.Stream(ctx, joinCommand(command, args))
	if err != nil {
		s.pool.Release(host, sess)
		return nil, fmt.Errorf("stream on %s: %w", host.Identity(), err)
	}
	release := func() { s.pool.Release(host, sess) }
	return &releasingStream{reader: rc, release: release}, nil
}

// Stats exposes the pool counters for observability endpoints.
func (s *Service) Stats() pool.Stats {
	return s.pool.Stats()
}

// Close shuts down the underlying pool. Intended for process signal
// handlers.
func (s *Service) Close() {
	s.pool.CloseAll()
}

func joinCommand(command string, args []string) string {
	// Argument sanitization happens upstream in the request validation
	// layer; this layer trusts its input strings.
	return strings.Join(append([]string{command}, args...), " ")
}

// releasingStream returns the pooled session exactly once, when the
// consumer closes the stream.
type releasingStream struct {
	reader  io.ReadCloser
	release func()
	once    sync.Once
}

func (r *releasingStream) Read(p []byte) (int, error) { return r.reader.Read(p) }

func (r *releasingStream) Close() error {
	err := r.reader.Close()
	r.once.Do(r.release)
	return err
}

var _ Runner = (*Service)(nil)
