// Package server provides the HTTP servers run by the services.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is a struct that holds the HTTP server and its configuration.
type Server struct {
	name string

	addr       net.Addr
	httpServer *http.Server

	mu sync.RWMutex
}

// Config holds the configuration for an HTTP server.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration // Zero disables the per request timeout.
	MaxHeaderBytes int
}

// New creates a new server named name, serving handler.
func New(name string, cfg Config, handler http.Handler) *Server {
	if cfg.RequestTimeout > 0 {
		handler = http.TimeoutHandler(handler, cfg.RequestTimeout, `{"detail":"Request timed out"}`)
	}

	return &Server{
		name: name,
		httpServer: &http.Server{
			Addr:           net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
	}
}

// NewMetrics creates a server exposing the metrics gathered by reg on /metrics.
func NewMetrics(cfg Config, reg prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return New("metrics", cfg, mux)
}

// Name returns the name of the server, for logging.
func (s *Server) Name() string {
	return s.name
}

// ListenAndServe starts the HTTP server and listens for incoming requests.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.addr = listener.Addr()
	s.mu.Unlock()

	return s.httpServer.Serve(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close stops the server.
func (s *Server) Close() error {
	return s.httpServer.Close()
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}
