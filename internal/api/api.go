// Package api provides the building blocks shared by the services HTTP APIs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// MaxBodyBytes is the maximum size of a request body.
const MaxBodyBytes = 1 << 16

// Router dispatches requests to the service endpoints and instruments them.
type Router struct {
	mux     *http.ServeMux
	metrics endpointMetrics
}

// NewRouter returns a router registering its metrics on reg.
func NewRouter(reg prometheus.Registerer) *Router {
	return &Router{
		mux:     http.NewServeMux(),
		metrics: newEndpointMetrics(reg),
	}
}

// Handle registers h for pattern. name identifies the endpoint in the metrics.
func (r *Router) Handle(pattern, name string, h http.Handler) {
	r.mux.Handle(pattern, r.metrics.instrument(name, h))
}

// HandleFunc registers f for pattern. name identifies the endpoint in the metrics.
func (r *Router) HandleFunc(pattern, name string, f http.HandlerFunc) {
	r.Handle(pattern, name, f)
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	RequestID(r.mux).ServeHTTP(w, req)
}

type detail struct {
	Detail string `json:"detail"`
}

// WriteJSON writes v as the JSON body of a response with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "err", err)
	}
}

// WriteDetail writes an error response with the given status code and message.
func WriteDetail(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, detail{Detail: msg})
}

// DecodeJSON decodes the JSON body of r into v. Unknown fields are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body: unexpected data after the JSON object")
	}
	return nil
}

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterProbes registers the liveness, readiness and version endpoints.
// The service is ready when all pingers succeed.
func (r *Router) RegisterProbes(version string, pingers ...Pinger) {
	r.HandleFunc("GET /healthz", "healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.HandleFunc("GET /readyz", "readyz", func(w http.ResponseWriter, req *http.Request) {
		for _, p := range pingers {
			if err := p.Ping(req.Context()); err != nil {
				slog.Warn("Readiness check failed", "req_id", ReqID(req.Context()), "err", err)
				WriteDetail(w, http.StatusServiceUnavailable, "Service unavailable")
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.HandleFunc("GET /version", "version", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"version": version})
	})
}
