package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var endpointLabels = []string{"endpoint", "method", "code"}

// endpointMetrics are the request metrics of the endpoints of a router.
type endpointMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.SummaryVec
}

func newEndpointMetrics(reg prometheus.Registerer) endpointMetrics {
	f := promauto.With(reg)
	return endpointMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Number of API requests, by endpoint, method and status code.",
		}, endpointLabels),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "api_request_duration_seconds",
			Help: "Latency of API requests.",
			// 5ms to about 10s.
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, endpointLabels),
		size: f.NewSummaryVec(prometheus.SummaryOpts{
			Name: "api_request_size_bytes",
			Help: "Size of API requests.",
		}, endpointLabels),
	}
}

// instrument records the requests served by h under the endpoint name.
func (m endpointMetrics) instrument(name string, h http.Handler) http.Handler {
	l := prometheus.Labels{"endpoint": name}

	h = promhttp.InstrumentHandlerRequestSize(m.size.MustCurryWith(l), h)
	h = promhttp.InstrumentHandlerDuration(m.duration.MustCurryWith(l), h)
	return promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(l), h)
}
