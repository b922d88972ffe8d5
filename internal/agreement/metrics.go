package agreement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Transitions *prometheus.CounterVec
	Signatures  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pactline_agreement_transitions_total",
			Help: "Agreement status transitions by target status",
		}, []string{"status"}),
		Signatures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pactline_agreement_signature_attempts_total",
			Help: "Signing attempts by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) incTransition(s Status) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(string(s)).Inc()
}

func (m *Metrics) incSignature(result string) {
	if m == nil {
		return
	}
	m.Signatures.WithLabelValues(result).Inc()
}
