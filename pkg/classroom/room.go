package classroom

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/LingByte/EchoClass/pkg/mixer"
	"github.com/LingByte/EchoClass/pkg/utils"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Participant is one remote student of a room.
type Participant struct {
	ID       string
	JoinedAt time.Time
	leg      *Leg
}

// RoomSession is one open classroom. Everything below the exported
// identity fields is owned by the room's event loop: handlers run one at a
// time, and asynchronous work re-enters through post.
type RoomSession struct {
	ID         string
	HostID     string
	InstanceID string
	CreatedAt  time.Time

	coord  *Coordinator
	engine MediaEngine
	logger *zap.Logger

	state        RoomState
	participants map[string]*Participant
	mixCtx       *mixer.Context
	monitor      *mixer.Bus
	graph        *Graph
	host         HostTrack
	playback     *playback
	nextGen      uint64

	ctx    context.Context
	cancel context.CancelFunc
	box    *mailbox
	done   chan struct{}
}

// openRoom acquires the host audio and the mixing context and starts the
// event loop. On error nothing is left running.
func openRoom(coord *Coordinator, hostID, roomID string) (*RoomSession, error) {
	logger := coord.logger.With(zap.String("room_id", roomID))

	host, err := coord.engine.OpenHostTrack(roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: host audio for room %s: %v", ErrMediaUnavailable, roomID, err)
	}

	mixCtx := mixer.NewContext(coord.engine.Format())
	monitor, err := mixCtx.NewBus("monitor")
	if err != nil {
		_ = host.Close()
		mixCtx.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &RoomSession{
		ID:           roomID,
		HostID:       hostID,
		InstanceID:   utils.NewInstanceID(),
		CreatedAt:    time.Now(),
		coord:        coord,
		engine:       coord.engine,
		logger:       logger,
		state:        RoomOpen,
		participants: make(map[string]*Participant),
		mixCtx:       mixCtx,
		monitor:      monitor,
		graph:        NewGraph(mixCtx, monitor),
		host:         host,
		ctx:          ctx,
		cancel:       cancel,
		box:          newMailbox(),
		done:         make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

func (r *RoomSession) loop() {
	defer close(r.done)
	for {
		fn, ok := r.box.next()
		if !ok {
			return
		}
		fn()
	}
}

// post enqueues an event without waiting. Events posted after the room
// closed are dropped.
func (r *RoomSession) post(fn func()) bool {
	return r.box.post(fn)
}

// do runs fn on the event loop and waits for its result.
func (r *RoomSession) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	if !r.box.post(func() { res <- fn() }) {
		return fmt.Errorf("%w: %s", ErrRoomClosed, r.ID)
	}
	select {
	case err := <-res:
		return err
	case <-r.done:
		select {
		case err := <-res:
			return err
		default:
		}
		return fmt.Errorf("%w: %s", ErrRoomClosed, r.ID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the event loop has stopped.
func (r *RoomSession) Done() <-chan struct{} {
	return r.done
}

func (r *RoomSession) legLogger(l *Leg) *zap.Logger {
	return r.logger.With(zap.String("participant_id", l.ParticipantID), zap.Uint64("generation", l.Generation))
}

// current returns the leg only if it is still the live leg of generation
// gen for the participant. Every asynchronous continuation starts here.
func (r *RoomSession) current(participantID string, gen uint64) *Leg {
	p, ok := r.participants[participantID]
	if !ok || p.leg.Generation != gen || !p.leg.live() {
		return nil
	}
	return p.leg
}

func (r *RoomSession) liveLeg(participantID string) *Leg {
	p, ok := r.participants[participantID]
	if !ok || !p.leg.live() {
		return nil
	}
	return p.leg
}

func (r *RoomSession) join(participantID string) (LegInfo, error) {
	if r.state != RoomOpen {
		return LegInfo{}, fmt.Errorf("%w: %s", ErrRoomClosed, r.ID)
	}
	if p, ok := r.participants[participantID]; ok && p.leg.live() {
		info := p.leg.info(r.ID)
		info.Reused = true
		return info, nil
	}
	if max := r.coord.opts.MaxParticipants; max > 0 && len(r.participants) >= max {
		return LegInfo{}, fmt.Errorf("%w: %s has %d participants", ErrRoomFull, r.ID, max)
	}

	gen := r.nextGen + 1
	if err := r.coord.bindMember(participantID, r.ID, gen); err != nil {
		return LegInfo{}, err
	}
	r.nextGen = gen

	l := newLeg(r.ctx, participantID, gen)
	bus, err := r.graph.AddTarget(participantID)
	if err != nil {
		r.coord.unbindMember(participantID, r.ID, gen)
		return LegInfo{}, err
	}
	l.bus = bus

	t, err := r.engine.NewTransport(participantID, &legEvents{room: r, participantID: participantID, generation: gen})
	if err != nil {
		r.graph.RemoveParticipant(participantID)
		r.coord.unbindMember(participantID, r.ID, gen)
		return LegInfo{}, fmt.Errorf("%w: %s: %v", ErrTransportFailure, participantID, err)
	}
	l.transport = t

	r.participants[participantID] = &Participant{ID: participantID, JoinedAt: time.Now(), leg: l}
	r.coord.metrics.LegTransition(LegIdle.String())
	r.updateMetrics()
	r.legLogger(l).Info("participant joined")
	return l.info(r.ID), nil
}

func (r *RoomSession) updateMetrics() {
	r.coord.metrics.SetRoomSize(r.ID, len(r.participants), r.graph.EdgeCount())
}

func (r *RoomSession) snapshot() RoomSnapshot {
	s := RoomSnapshot{
		ID:             r.ID,
		HostID:         r.HostID,
		InstanceID:     r.InstanceID,
		State:          r.state,
		CreatedAt:      r.CreatedAt,
		PlaybackActive: r.playback != nil,
		Edges:          r.graph.Edges(),
		MixNodes:       r.mixCtx.Stats(),
	}
	for _, p := range r.participants {
		l := p.leg
		s.Participants = append(s.Participants, ParticipantSnapshot{
			ID:             p.ID,
			JoinedAt:       p.JoinedAt,
			State:          l.state,
			Generation:     l.Generation,
			InboundTracks:  len(l.inbound),
			OutboundTracks: l.outboundCount(),
			HostAttached:   l.hostSender != nil,
		})
		if l.hostSender != nil {
			s.HostTracks++
		}
	}
	sort.Slice(s.Participants, func(i, j int) bool {
		return s.Participants[i].ID < s.Participants[j].ID
	})
	return s
}

func (r *RoomSession) setGain(source, target string, value float64) error {
	if err := r.graph.SetGain(source, target, value); err != nil {
		return err
	}
	r.logger.Info("edge gain changed",
		zap.String("source", source), zap.String("target", target), zap.Float64("gain", value))
	return nil
}

// legEvents adapts transport callbacks of one leg generation into room
// events.
type legEvents struct {
	room          *RoomSession
	participantID string
	generation    uint64
}

func (h *legEvents) OnLocalCandidate(c webrtc.ICECandidateInit) {
	h.room.post(func() { h.room.onLocalCandidate(h.participantID, h.generation, c) })
}

func (h *legEvents) OnConnectionStateChange(state webrtc.PeerConnectionState) {
	h.room.post(func() { h.room.onConnectionState(h.participantID, h.generation, state) })
}

func (h *legEvents) OnInboundTrack(track InboundTrack) {
	if !h.room.post(func() { h.room.onInboundTrack(h.participantID, h.generation, track) }) {
		_ = track.Stop()
	}
}
