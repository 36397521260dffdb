package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a consumed message, used as metric label values.
const (
	outcomeAck        = "ack"
	outcomeRequeue    = "requeue"
	outcomeDeadLetter = "dead_letter"
)

type clientMetrics struct {
	published       *prometheus.CounterVec
	consumed        *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
}

func newClientMetrics(reg prometheus.Registerer) clientMetrics {
	return clientMetrics{
		published: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "messaging_published_total",
				Help: "Number of messages published, by routing key and result.",
			}, []string{"routing_key", "result"},
		),
		consumed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "messaging_consumed_total",
				Help: "Number of messages consumed, by queue and outcome.",
			}, []string{"queue", "outcome"},
		),
		handlerDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "messaging_handler_duration_seconds",
				Help:    "Time spent handling a consumed message.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			}, []string{"queue"},
		),
	}
}
