// Package metrics exposes prometheus instruments for the relay hub. All
// record methods are nil-receiver safe so components can run uninstrumented
// in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relay"

type Metrics struct {
	activeSessions *prometheus.GaugeVec
	framesRelayed  *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	protocolErrors *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		activeSessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions registered per room",
		}, []string{"room"}),

		framesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_relayed_total",
			Help:      "Video frames fanned out, counted once per recipient",
		}, []string{"room"}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped due to full or dead queues",
		}, []string{"room", "reason"}),

		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Malformed inbound frames that closed a connection",
		}, []string{"room"}),
	}
}

func (m *Metrics) SessionRegistered(room string) {
	if m != nil {
		m.activeSessions.WithLabelValues(room).Inc()
	}
}

func (m *Metrics) SessionDeregistered(room string) {
	if m != nil {
		m.activeSessions.WithLabelValues(room).Dec()
	}
}

func (m *Metrics) FrameRelayed(room string) {
	if m != nil {
		m.framesRelayed.WithLabelValues(room).Inc()
	}
}

func (m *Metrics) MessageDropped(room, reason string) {
	if m != nil {
		m.dropped.WithLabelValues(room, reason).Inc()
	}
}

func (m *Metrics) ProtocolError(room string) {
	if m != nil {
		m.protocolErrors.WithLabelValues(room).Inc()
	}
}
