// Package metrics exposes relay counters to prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "echoclass"

type Metrics struct {
	rooms        prometheus.Gauge
	participants *prometheus.GaugeVec
	edges        *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	teardowns    *prometheus.CounterVec
	negotiation  prometheus.Histogram
	signaling    prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rooms_open",
			Help: "Rooms currently open.",
		}),
		participants: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "room_participants",
			Help: "Participants with a live transport leg, per room.",
		}, []string{"room"}),
		edges: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "room_forward_edges",
			Help: "Forward edges in the room's mixing graph.",
		}, []string{"room"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "leg_transitions_total",
			Help: "Transport leg state transitions by target state.",
		}, []string{"state"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signaling_dropped_total",
			Help: "Signaling messages dropped by the coordinator.",
		}, []string{"kind", "reason"}),
		teardowns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "leg_teardowns_total",
			Help: "Completed leg teardowns by final state.",
		}, []string{"state"}),
		negotiation: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "negotiation_seconds",
			Help:    "Time from a remote offer to the emitted answer.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		signaling: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "signaling_connections",
			Help: "Open signaling websocket connections.",
		}),
	}
}

func (m *Metrics) RoomOpened() {
	if m == nil {
		return
	}
	m.rooms.Inc()
}

func (m *Metrics) RoomClosed(roomID string) {
	if m == nil {
		return
	}
	m.rooms.Dec()
	m.participants.DeleteLabelValues(roomID)
	m.edges.DeleteLabelValues(roomID)
}

func (m *Metrics) SetRoomSize(roomID string, participants, edges int) {
	if m == nil {
		return
	}
	m.participants.WithLabelValues(roomID).Set(float64(participants))
	m.edges.WithLabelValues(roomID).Set(float64(edges))
}

func (m *Metrics) LegTransition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) Dropped(kind, reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) Teardown(state string) {
	if m == nil {
		return
	}
	m.teardowns.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveNegotiation(d time.Duration) {
	if m == nil {
		return
	}
	m.negotiation.Observe(d.Seconds())
}

func (m *Metrics) SignalingConnected() {
	if m == nil {
		return
	}
	m.signaling.Inc()
}

func (m *Metrics) SignalingDisconnected() {
	if m == nil {
		return
	}
	m.signaling.Dec()
}
