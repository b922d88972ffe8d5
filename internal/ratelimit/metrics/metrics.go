package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected    *prometheus.CounterVec
	Degraded    prometheus.Gauge
	CheckErrors prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pactline_ratelimit_rejected_total",
			Help: "Requests rejected by rate limiting, by scope",
		}, []string{"scope"}),
		Degraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "pactline_ratelimit_degraded",
			Help: "1 while the shared limiter is unavailable and the in-memory fallback is active",
		}),
		CheckErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "pactline_ratelimit_check_errors_total",
			Help: "Errors returned by the primary rate limit store",
		}),
	}
}

func (m *Metrics) IncRejected(scope string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(scope).Inc()
}

func (m *Metrics) SetDegraded(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}

func (m *Metrics) IncCheckErrors() {
	if m == nil {
		return
	}
	m.CheckErrors.Inc()
}
