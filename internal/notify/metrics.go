package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Delivered *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Pending   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Delivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pactline_notify_delivered_total",
			Help: "Outbound notifications delivered by type",
		}, []string{"type"}),
		Failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pactline_notify_failed_total",
			Help: "Outbound notification delivery failures by type",
		}, []string{"type"}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "pactline_notify_batch_size",
			Help: "Messages fetched in the last outbox batch",
		}),
	}
}

func (m *Metrics) incDelivered(t EventType) {
	if m == nil {
		return
	}
	m.Delivered.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) incFailed(t EventType) {
	if m == nil {
		return
	}
	m.Failed.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(n))
}
