// Package service runs the components of a service daemon together and tears them down as a whole.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Service runs HTTP servers and background runners until one of them stops or Quit is called.
type Service struct {
	name    string
	servers []HTTPServer
	runners map[string]Runner

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context requests the components to stop after their current work.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc

	maxDegradedDuration time.Duration

	mu      sync.Mutex
	running chan struct{} // Closed when the service is not running.
}

// HTTPServer is an HTTP server run by the service.
type HTTPServer interface {
	Name() string
	ListenAndServe() error
	Shutdown(ctx context.Context) error
	Close() error
}

// Runner is a background component run by the service, like a message consumer.
// Run must return once ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to a Runner.
type RunnerFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f RunnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type options struct {
	maxDegradedDuration time.Duration
}

// Option is a function which tweaks the creation of the Service.
type Option func(*options)

var (
	// errServiceClosed is returned when the service is already closed.
	errServiceClosed = errors.New("service closed")

	// ErrTeardownTimeout is returned when the service takes too long to shut down.
	// A force Quit may be required to cleanup the service.
	ErrTeardownTimeout = errors.New("service teardown timed out")
)

// New creates a new service named name, running servers and runners.
func New(ctx context.Context, name string, servers []HTTPServer, runners map[string]Runner, args ...Option) *Service {
	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	opts := options{
		maxDegradedDuration: 2 * time.Minute,
	}
	for _, arg := range args {
		arg(&opts)
	}

	running := make(chan struct{})
	close(running) // Close immediately to avoid blocking on the channel.
	return &Service{
		name:    name,
		servers: servers,
		runners: runners,

		ctx:            ctx,
		cancel:         cancel,
		gracefulCtx:    gCtx,
		gracefulCancel: gCancel,

		maxDegradedDuration: opts.maxDegradedDuration,

		running: running,
	}
}

// Run starts all components of the service.
//
// Returns once all components have completed, or after an extended time being in a degraded state.
func (s *Service) Run() error {
	select {
	case <-s.gracefulCtx.Done():
		return errServiceClosed
	default:
	}

	n := len(s.servers) + len(s.runners)
	if n == 0 {
		return errors.New("service has nothing to run")
	}

	slog.Info("Service started", "service", s.name)

	running := make(chan struct{})
	s.mu.Lock()
	s.running = running
	s.mu.Unlock()
	defer close(running)
	defer s.cancel() // Ensure we cancel the context when done, regardless of result.

	done := make(chan error, n)
	for _, srv := range s.servers {
		go func() { done <- s.runServer(srv) }()
	}
	for name, r := range s.runners {
		go func() { done <- s.runRunner(name, r) }()
	}

	// Ensure we don't get stuck in a degraded state if one of the components fails.
	err := <-done
	slog.Info("Waiting for service components to finish", "service", s.name)

	timeout := time.After(s.maxDegradedDuration)
	for range n - 1 {
		select {
		case <-timeout:
			// We've waited for teardown for too long, give up even though errors may be lost.
			slog.Warn("Service teardown timed out", "service", s.name)
			return errors.Join(err, ErrTeardownTimeout)
		case e := <-done:
			err = errors.Join(err, e)
		}
	}

	slog.Info("Service stopped", "service", s.name)
	return err
}

func (s *Service) runRunner(name string, r Runner) error {
	slog.Info("Starting runner", "runner", name)
	defer s.gracefulCancel() // Request stop if a runner ends.

	if err := r.Run(s.gracefulCtx); err != nil && !errors.Is(err, s.gracefulCtx.Err()) {
		slog.Error("Runner encountered an error", "runner", name, "err", err)
		return fmt.Errorf("%s error: %v", name, err)
	}
	slog.Info("Runner stopped", "runner", name)
	return nil
}

func (s *Service) runServer(srv HTTPServer) error {
	name := srv.Name()
	slog.Info("Starting server", "server", name)
	defer s.gracefulCancel() // Request stop if a server fails.

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-s.gracefulCtx.Done():
		// gracefulCtx is also done when ctx is.
		if s.ctx.Err() != nil {
			slog.Info("Closing server", "server", name, "reason", s.ctx.Err())
			srv.Close()
			return nil
		}
		slog.Info("Graceful shutdown initiated", "server", name)
		if err := srv.Shutdown(s.ctx); err != nil {
			slog.Error("Server graceful shutdown encountered error", "server", name, "err", err)
			return fmt.Errorf("%s server shutdown error: %v", name, err)
		}
	case err := <-errCh:
		// No need to shutdown or close, just propagate the error.
		if err != nil {
			slog.Error("Server encountered error", "server", name, "err", err)
			return fmt.Errorf("%s server error: %v", name, err)
		}
	}
	slog.Info("Server shut down gracefully", "server", name)
	return nil
}

// Quit stops the service.
// Blocks until the service has finished running.
func (s *Service) Quit(force bool) {
	slog.Info("Stopping service", "service", s.name, "force", force)

	if force {
		s.cancel()
		for _, srv := range s.servers {
			srv.Close()
		}
	} else {
		s.gracefulCancel()
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	<-running // Wait for the service to finish running.
}
