package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id, both ways.
const RequestIDHeader = "X-Request-ID"

type reqIDKey struct{}

// maxRequestIDLength bounds client provided request ids.
const maxRequestIDLength = 128

// RequestID is a middleware attaching a request id to every request and logging it once served.
// A client provided X-Request-ID is kept, otherwise a new one is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), reqIDKey{}, id))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		slog.Info("Request served", "req_id", id, "method", r.Method, "path", r.URL.Path,
			"code", rec.code, "duration", time.Since(start))
	})
}

// ReqID returns the request id stored in ctx by RequestID, or an empty string.
func ReqID(ctx context.Context) string {
	id, _ := ctx.Value(reqIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
