package identity

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records verification outcomes per method. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// NewMetrics registers collectors with reg. A nil registerer yields
// unregistered collectors, which keeps tests independent of the default
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pactline_identity_verifications_total",
			Help: "Identity verification attempts by method and result",
		}, []string{"method", "result"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pactline_identity_verification_duration_seconds",
			Help:    "Time spent verifying a signer identity",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
	}
}

func (m *Metrics) observe(method Method, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(string(method), result).Inc()
	m.Latency.WithLabelValues(string(method)).Observe(d.Seconds())
}
