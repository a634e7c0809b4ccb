package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RoomOpened()
		m.SetRoomSize("r", 1, 2)
		m.LegTransition("connected")
		m.Dropped("candidate", "unknown_participant")
		m.Teardown("closed")
		m.ObserveNegotiation(time.Millisecond)
		m.SignalingConnected()
		m.SignalingDisconnected()
		m.RoomClosed("r")
	})
}

func TestMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RoomOpened()
	m.SetRoomSize("math", 3, 6)
	m.Dropped("answer", "negotiation_conflict")
	m.Dropped("answer", "negotiation_conflict")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.rooms))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.edges.WithLabelValues("math")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dropped.WithLabelValues("answer", "negotiation_conflict")))

	m.RoomClosed("math")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.rooms))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
