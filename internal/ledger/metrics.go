package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Appends     *prometheus.CounterVec
	Attempts    prometheus.Histogram
	Conflicts   prometheus.Counter
	Unavailable prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Appends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pactline_ledger_appends_total",
			Help: "Events committed to signature chains by kind",
		}, []string{"kind"}),
		Attempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pactline_ledger_append_attempts",
			Help:    "Optimistic attempts needed per committed event",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}),
		Conflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "pactline_ledger_conflicts_total",
			Help: "Commits rejected because the chain head moved",
		}),
		Unavailable: f.NewCounter(prometheus.CounterOpts{
			Name: "pactline_ledger_unavailable_total",
			Help: "Appends that failed because storage timed out or was unreachable",
		}),
	}
}

func (m *Metrics) observeAppend(kind Kind, attempts int) {
	if m == nil {
		return
	}
	m.Appends.WithLabelValues(string(kind)).Inc()
	m.Attempts.Observe(float64(attempts))
}

func (m *Metrics) incConflict() {
	if m == nil {
		return
	}
	m.Conflicts.Inc()
}

func (m *Metrics) incUnavailable() {
	if m == nil {
		return
	}
	m.Unavailable.Inc()
}
