package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Emitted         *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pactline_audit_records_emitted_total",
			Help: "Audit records persisted outside ledger commits, by action",
		}, []string{"action"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "pactline_audit_persist_failures_total",
			Help: "Audit records that could not be persisted",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pactline_audit_persist_duration_seconds",
			Help:    "Time spent persisting an audit record",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observe(action Action, d time.Duration) {
	if m == nil {
		return
	}
	m.Emitted.WithLabelValues(string(action)).Inc()
	m.PersistDuration.Observe(d.Seconds())
}

func (m *Metrics) incPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}
