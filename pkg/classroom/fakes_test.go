package classroom

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/LingByte/EchoClass/pkg/mixer"
	"github.com/LingByte/EchoClass/pkg/protocol"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errFake = errors.New("fake failure")

type fakeSender struct {
	mu      sync.Mutex
	stopped int
}

func (s *fakeSender) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	return nil
}

func (s *fakeSender) Stopped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeTrack struct {
	id string

	mu      sync.Mutex
	sink    media.FrameSink
	stopped int
}

func newFakeTrack(id string) *fakeTrack {
	return &fakeTrack{id: id}
}

func (t *fakeTrack) ID() string { return t.id }

func (t *fakeTrack) Start(sink media.FrameSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

func (t *fakeTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped++
	t.sink = nil
	return nil
}

func (t *fakeTrack) Stopped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Push feeds a frame as if it had been decoded off the wire.
func (t *fakeTrack) Push(frame media.Frame) {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink != nil {
		sink.Push(frame)
	}
}

type fakeTransport struct {
	participantID string
	handler       TransportHandler

	// remoteGate, when set, holds SetRemoteDescription until closed.
	remoteGate chan struct{}
	remoteErr  error
	answerErr  error

	mu           sync.Mutex
	remotes      []webrtc.SessionDescription
	candidates   []webrtc.ICECandidateInit
	earlyCands   int
	hostAttaches int
	mixAttaches  int
	mixBus       *mixer.Bus
	senders      []*fakeSender
	closed       int
}

func (t *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if t.remoteGate != nil {
		<-t.remoteGate
	}
	if t.remoteErr != nil {
		return t.remoteErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remotes = append(t.remotes, desc)
	return nil
}

func (t *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	if t.answerErr != nil {
		return webrtc.SessionDescription{}, t.answerErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	last := t.remotes[len(t.remotes)-1]
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer:" + last.SDP}, nil
}

func (t *fakeTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.remotes) == 0 {
		t.earlyCands++
	}
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *fakeTransport) AttachHost(HostTrack) (Sender, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hostAttaches++
	s := &fakeSender{}
	t.senders = append(t.senders, s)
	return s, nil
}

func (t *fakeTransport) AttachMix(bus *mixer.Bus) (Sender, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mixAttaches++
	t.mixBus = bus
	s := &fakeSender{}
	t.senders = append(t.senders, s)
	return s, nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *fakeTransport) Closed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) Candidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.candidates))
	for _, c := range t.candidates {
		out = append(out, c.Candidate)
	}
	return out
}

func (t *fakeTransport) Remotes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.remotes)
}

func (t *fakeTransport) Bus() *mixer.Bus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mixBus
}

func (t *fakeTransport) Senders() []*fakeSender {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeSender(nil), t.senders...)
}

type fakeHost struct {
	mu     sync.Mutex
	closed int
}

func (h *fakeHost) ID() string { return "host-audio" }

func (h *fakeHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
	return nil
}

func (h *fakeHost) Closed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakePlayback struct {
	mu     sync.Mutex
	frames int
	closed bool
}

func (p *fakePlayback) WriteFrame(media.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames++
	return nil
}

func (p *fakePlayback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeEngine struct {
	format media.Format

	mu          sync.Mutex
	hostErr     error
	playbackErr error
	gate        chan struct{}
	transports  map[string][]*fakeTransport
	hosts       []*fakeHost
	playbacks   []*fakePlayback
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		format:     media.NewFormat(8000),
		transports: make(map[string][]*fakeTransport),
	}
}

func (e *fakeEngine) Format() media.Format { return e.format }

func (e *fakeEngine) NewTransport(participantID string, handler TransportHandler) (Transport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := &fakeTransport{participantID: participantID, handler: handler, remoteGate: e.gate}
	e.transports[participantID] = append(e.transports[participantID], t)
	return t, nil
}

func (e *fakeEngine) OpenHostTrack(string) (HostTrack, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hostErr != nil {
		return nil, e.hostErr
	}
	h := &fakeHost{}
	e.hosts = append(e.hosts, h)
	return h, nil
}

func (e *fakeEngine) OpenPlayback(string) (media.Playback, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playbackErr != nil {
		return nil, e.playbackErr
	}
	p := &fakePlayback{}
	e.playbacks = append(e.playbacks, p)
	return p, nil
}

// transport returns the latest transport created for participantID.
func (e *fakeEngine) transport(participantID string) *fakeTransport {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts := e.transports[participantID]
	if len(ts) == 0 {
		return nil
	}
	return ts[len(ts)-1]
}

func (e *fakeEngine) transportCount(participantID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.transports[participantID])
}

type sentAnswer struct {
	roomID        string
	participantID string
	answer        webrtc.SessionDescription
}

type recordingSignaler struct {
	mu         sync.Mutex
	answers    []sentAnswer
	candidates map[string][]webrtc.ICECandidateInit
	closed     map[string]string
}

func newRecordingSignaler() *recordingSignaler {
	return &recordingSignaler{
		candidates: make(map[string][]webrtc.ICECandidateInit),
		closed:     make(map[string]string),
	}
}

func (s *recordingSignaler) SendAnswer(roomID, participantID string, answer webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, sentAnswer{roomID, participantID, answer})
	return nil
}

func (s *recordingSignaler) SendCandidate(_, participantID string, c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[participantID] = append(s.candidates[participantID], c)
	return nil
}

func (s *recordingSignaler) SendRoomClosed(roomID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[roomID] = reason
	return nil
}

func (s *recordingSignaler) answersFor(participantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.answers {
		if a.participantID == participantID {
			n++
		}
	}
	return n
}

func (s *recordingSignaler) closedReason(roomID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.closed[roomID]
	return r, ok
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	coord  *Coordinator
	engine *fakeEngine
	sig    *recordingSignaler
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	engine := newFakeEngine()
	sig := newRecordingSignaler()
	coord := NewCoordinator(engine, opts, zap.NewNop())
	coord.SetSignaler(sig)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})
	return &harness{t: t, ctx: context.Background(), coord: coord, engine: engine, sig: sig}
}

func offerFor(participantID string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer:" + participantID}
}

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func (h *harness) snapshot(roomID string) RoomSnapshot {
	h.t.Helper()
	s, err := h.coord.Room(h.ctx, roomID)
	require.NoError(h.t, err)
	return s
}

func (h *harness) waitAnswers(participantID string, n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.sig.answersFor(participantID) >= n
	}, 2*time.Second, 5*time.Millisecond, "no answer for %s", participantID)
	// let the answer continuation finish its work on the loop
	h.snapshot(h.mustRoomOf(participantID))
}

func (h *harness) mustRoomOf(participantID string) string {
	h.t.Helper()
	roomID, ok := h.coord.RoomOf(participantID)
	require.True(h.t, ok, "%s is not in a room", participantID)
	return roomID
}

func (h *harness) setState(participantID string, state webrtc.PeerConnectionState) {
	h.t.Helper()
	tr := h.engine.transport(participantID)
	require.NotNil(h.t, tr)
	tr.handler.OnConnectionStateChange(state)
}

// connect runs a participant through join, offer, answer, connectivity and
// first audio, and returns its inbound track.
func (h *harness) connect(roomID, participantID string) *fakeTrack {
	h.t.Helper()
	_, err := h.coord.OnParticipantJoin(h.ctx, roomID, participantID)
	require.NoError(h.t, err)
	require.NoError(h.t, h.coord.OnOffer(h.ctx, participantID, offerFor(participantID)))
	h.waitAnswers(participantID, 1)

	h.setState(participantID, webrtc.PeerConnectionStateConnected)
	track := newFakeTrack(participantID + "-mic")
	h.engine.transport(participantID).handler.OnInboundTrack(track)
	h.snapshot(roomID)
	return track
}

func answered(e protocol.OfferEntry) protocol.OfferEntry {
	a := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer:" + e.OffererID}
	e.Answer = &a
	return e
}
