package verification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Issued   prometheus.Counter
	Resolved *prometheus.CounterVec
	Revoked  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounter(prometheus.CounterOpts{
			Name: "pactline_verification_codes_issued_total",
			Help: "Verification codes minted outside the completing commit",
		}),
		Resolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pactline_verification_resolutions_total",
			Help: "Verification lookups by verdict",
		}, []string{"verdict"}),
		Revoked: f.NewCounter(prometheus.CounterOpts{
			Name: "pactline_verification_codes_revoked_total",
			Help: "Verification codes revoked administratively",
		}),
	}
}

func (m *Metrics) incIssued() {
	if m == nil {
		return
	}
	m.Issued.Inc()
}

func (m *Metrics) incResolved(verdict string) {
	if m == nil {
		return
	}
	m.Resolved.WithLabelValues(verdict).Inc()
}

func (m *Metrics) incRevoked() {
	if m == nil {
		return
	}
	m.Revoked.Inc()
}
