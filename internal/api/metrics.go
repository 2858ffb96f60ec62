package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts backend calls per endpoint and outcome.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	expiries prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chemviz_api_requests_total",
			Help: "Backend requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chemviz_api_request_duration_seconds",
			Help:    "Backend request latency, including body download.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"endpoint"}),
		expiries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chemviz_session_expiries_total",
			Help: "Sessions ended because the backend answered 401.",
		}),
	}
	reg.MustRegister(m.requests, m.latency, m.expiries)
	return m
}

func (m *Metrics) observe(endpoint string, res Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, res.Outcome.String()).Inc()
	m.latency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	if res.Expired() {
		m.expiries.Inc()
	}
}
