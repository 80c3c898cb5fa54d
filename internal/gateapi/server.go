// Package gateapi serves gate diagnostics over localhost HTTP: liveness and
// readiness endpoints for CI tooling that wants to poll the gate itself, a
// JSON progress snapshot, the statusz page, and Prometheus metrics.
package gateapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kubegate/kubegate/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerOpts provides a way to configure a Server
type ServerOpts func(*Server)

// WithLogger sets the logger for the server
func WithLogger(l logger.Logger, debug bool) ServerOpts {
	return func(s *Server) {
		s.Logger = l
		s.debug = debug
	}
}

// WithAddr sets the TCP address the server listens on
func WithAddr(addr string) ServerOpts {
	return func(s *Server) {
		s.Addr = addr
	}
}

// WithState sets the state the server reports. If not set, a fresh empty
// state is used.
func WithState(state *State) ServerOpts {
	return func(s *Server) {
		s.state = state
	}
}

// WithMetricsHandler replaces the /metrics handler, which defaults to
// promhttp against the default registry.
func WithMetricsHandler(h http.Handler) ServerOpts {
	return func(s *Server) {
		s.metrics = h
	}
}

// Server is the gate diagnostics HTTP server. It is read-only: nothing it
// serves mutates the gate.
type Server struct {
	// Addr is the TCP address the server is (or will be) listening on
	Addr   string
	Logger logger.Logger
	debug  bool

	state   *State
	metrics http.Handler

	ln      net.Listener
	httpSvr *http.Server
}

// NewServer creates a gate diagnostics server.
func NewServer(opts ...ServerOpts) (*Server, error) {
	s := &Server{}

	for _, o := range opts {
		o(s)
	}

	if s.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if s.Addr == "" {
		return nil, errors.New("listen address is required")
	}
	if s.state == nil {
		s.state = NewState("")
	}
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}

	return s, nil
}

// State returns the state the server reports from.
func (s *Server) State() *State {
	return s.state
}

// Start begins serving in a goroutine, returning an error if the listener
// can't be opened.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.Addr, err)
	}
	s.ln = ln
	s.httpSvr = &http.Server{Handler: s.router()}

	go func() {
		if err := s.httpSvr.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error("Diagnostics server: %v", err)
		}
	}()

	s.Logger.Info("Diagnostics server listening on http://%s", ln.Addr())
	return nil
}

// ListenAddr reports the bound address, useful when Addr had port 0.
func (s *Server) ListenAddr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop gracefully shuts the server down, blocking until in-flight requests
// have been served or the grace period has expired. It returns an error if
// the server has not been started.
func (s *Server) Stop() error {
	if s.httpSvr == nil {
		return errors.New("diagnostics server not started")
	}

	// Shutdown signal with grace period of 10 seconds
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpSvr.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.Logger.Warn("Diagnostics server shutdown timed out, server shutdown forced")
		}
		return fmt.Errorf("shutting down diagnostics server: %w", err)
	}

	s.Logger.Debug("Diagnostics server shut down")
	return nil
}
