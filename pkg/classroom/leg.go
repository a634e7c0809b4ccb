package classroom

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/LingByte/EchoClass/pkg/mixer"
	"github.com/pion/webrtc/v3"
)

var legTransitions = map[LegState][]LegState{
	LegIdle:            {LegHaveRemoteOffer, LegFailed, LegClosed},
	LegHaveRemoteOffer: {LegAnswered, LegConnected, LegFailed, LegClosed},
	LegAnswered:        {LegConnected, LegFailed, LegClosed},
	LegConnected:       {LegDisconnected, LegFailed, LegClosed},
	LegDisconnected:    {LegConnected, LegFailed, LegClosed},
}

// CanTransition reports whether from -> to is a legal leg transition.
func CanTransition(from, to LegState) bool {
	for _, s := range legTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Leg is the transport leg of one participant. All fields are owned by the
// room's event loop.
type Leg struct {
	ParticipantID string
	Generation    uint64

	state     LegState
	transport Transport
	bus       *mixer.Bus

	// candidates waiting for the remote description, in arrival order
	pending       []webrtc.ICECandidateInit
	seen          map[string]struct{}
	remoteApplied bool

	negotiating   bool
	renegotiating bool
	offerSDP      string
	offerAt       time.Time
	answer        *webrtc.SessionDescription

	hostSender Sender
	mixSender  Sender
	inbound    map[string]InboundTrack

	graceTimer *time.Timer
	terminated bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newLeg(parent context.Context, participantID string, generation uint64) *Leg {
	ctx, cancel := context.WithCancel(parent)
	return &Leg{
		ParticipantID: participantID,
		Generation:    generation,
		state:         LegIdle,
		seen:          make(map[string]struct{}),
		inbound:       make(map[string]InboundTrack),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (l *Leg) State() LegState {
	return l.state
}

func (l *Leg) transition(to LegState) error {
	if !CanTransition(l.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrNegotiationConflict, l.state, to)
	}
	l.state = to
	return nil
}

// live reports whether continuations may still act on the leg.
func (l *Leg) live() bool {
	return !l.terminated && !l.state.Terminal()
}

func candidateKey(c webrtc.ICECandidateInit) string {
	key := c.Candidate
	if c.SDPMid != nil {
		key += "|" + *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		key += "|" + strconv.Itoa(int(*c.SDPMLineIndex))
	}
	return key
}

// acceptCandidate records c and reports whether it was new.
func (l *Leg) acceptCandidate(c webrtc.ICECandidateInit) bool {
	key := candidateKey(c)
	if _, dup := l.seen[key]; dup {
		return false
	}
	l.seen[key] = struct{}{}
	return true
}

func (l *Leg) queueCandidate(c webrtc.ICECandidateInit) {
	l.pending = append(l.pending, c)
}

func (l *Leg) drainCandidates() []webrtc.ICECandidateInit {
	out := l.pending
	l.pending = nil
	return out
}

func (l *Leg) outboundCount() int {
	n := 0
	if l.hostSender != nil {
		n++
	}
	if l.mixSender != nil {
		n++
	}
	return n
}

func (l *Leg) stopGraceTimer() {
	if l.graceTimer != nil {
		l.graceTimer.Stop()
		l.graceTimer = nil
	}
}

func (l *Leg) info(roomID string) LegInfo {
	return LegInfo{
		RoomID:        roomID,
		ParticipantID: l.ParticipantID,
		Generation:    l.Generation,
		State:         l.state,
	}
}
