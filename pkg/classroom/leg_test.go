package classroom

import (
	"context"
	"sync"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to LegState
		want     bool
	}{
		{LegIdle, LegHaveRemoteOffer, true},
		{LegIdle, LegAnswered, false},
		{LegHaveRemoteOffer, LegAnswered, true},
		{LegAnswered, LegConnected, true},
		{LegHaveRemoteOffer, LegConnected, true},
		{LegConnected, LegDisconnected, true},
		{LegDisconnected, LegConnected, true},
		{LegConnected, LegIdle, false},
		{LegClosed, LegConnected, false},
		{LegFailed, LegClosed, false},
		{LegIdle, LegClosed, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestLeg_TransitionRejectsIllegal(t *testing.T) {
	l := newLeg(context.Background(), "p", 1)
	err := l.transition(LegConnected)
	assert.ErrorIs(t, err, ErrNegotiationConflict)
	assert.Equal(t, LegIdle, l.State())

	require.NoError(t, l.transition(LegHaveRemoteOffer))
	require.NoError(t, l.transition(LegClosed))
	assert.False(t, l.live())
}

func TestLeg_CandidateDedupAndOrder(t *testing.T) {
	l := newLeg(context.Background(), "p", 1)
	mid := "0"
	var idx uint16

	assert.True(t, l.acceptCandidate(webrtc.ICECandidateInit{Candidate: "x"}))
	assert.False(t, l.acceptCandidate(webrtc.ICECandidateInit{Candidate: "x"}))
	assert.True(t, l.acceptCandidate(webrtc.ICECandidateInit{Candidate: "x", SDPMid: &mid}))
	assert.True(t, l.acceptCandidate(webrtc.ICECandidateInit{Candidate: "x", SDPMid: &mid, SDPMLineIndex: &idx}))

	for _, c := range []string{"1", "2", "3"} {
		l.queueCandidate(webrtc.ICECandidateInit{Candidate: c})
	}
	got := l.drainCandidates()
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].Candidate)
	assert.Equal(t, "3", got[2].Candidate)
	assert.Empty(t, l.drainCandidates())
}

func TestLegState_Text(t *testing.T) {
	b, err := LegHaveRemoteOffer.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "have-remote-offer", string(b))

	var back LegState
	require.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, LegHaveRemoteOffer, back)
	assert.Error(t, back.UnmarshalText([]byte("dancing")))
	assert.True(t, LegFailed.Terminal())
	assert.False(t, LegDisconnected.Terminal())
	assert.Equal(t, "closing", RoomClosing.String())
}

func TestMailbox_FIFOAndClose(t *testing.T) {
	m := newMailbox()
	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, m.post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			fn, ok := m.next()
			if !ok {
				return
			}
			fn()
			mu.Lock()
			n := len(got)
			mu.Unlock()
			if n == 100 {
				m.close()
			}
		}
	}()
	<-done

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.False(t, m.post(func() {}))
}
