package classroom

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// spawn runs task off the event loop, bound to the leg's lifetime. Tasks
// report back with post; their continuations re-check the leg generation.
func (r *RoomSession) spawn(l *Leg, task func(ctx context.Context)) {
	ctx := l.ctx
	go func() {
		if ctx.Err() != nil {
			return
		}
		task(ctx)
	}()
}

func (r *RoomSession) drop(kind, participantID string, err error) error {
	r.coord.metrics.Dropped(kind, string(ToAppError(err).Code))
	r.logger.Warn("message dropped",
		zap.String("kind", kind),
		zap.String("participant_id", participantID),
		zap.Error(err))
	return err
}

func (r *RoomSession) offer(participantID string, offer webrtc.SessionDescription) error {
	l := r.liveLeg(participantID)
	if l == nil {
		return r.drop("offer", participantID, fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID))
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return r.drop("offer", participantID, fmt.Errorf("%w: expected offer, got %s", ErrNegotiationConflict, offer.Type))
	}

	switch {
	case l.offerSDP != "" && l.offerSDP == offer.SDP:
		r.legLogger(l).Debug("duplicate offer ignored")
		return nil
	case l.state == LegIdle && !l.negotiating:
		r.negotiate(l, offer, false)
	case l.state == LegConnected && !l.negotiating:
		r.negotiate(l, offer, true)
	default:
		return r.drop("offer", participantID, fmt.Errorf("%w: offer while %s (negotiating=%t)",
			ErrNegotiationConflict, l.state, l.negotiating))
	}
	return nil
}

func (r *RoomSession) negotiate(l *Leg, offer webrtc.SessionDescription, renegotiate bool) {
	l.negotiating = true
	l.renegotiating = renegotiate
	l.offerSDP = offer.SDP
	l.offerAt = time.Now()

	pid, gen, t := l.ParticipantID, l.Generation, l.transport
	r.spawn(l, func(ctx context.Context) {
		err := t.SetRemoteDescription(offer)
		r.post(func() { r.onRemoteApplied(pid, gen, err) })
	})
	r.legLogger(l).Info("offer accepted", zap.Bool("renegotiation", renegotiate))
}

func (r *RoomSession) onRemoteApplied(participantID string, gen uint64, err error) {
	l := r.current(participantID, gen)
	if l == nil {
		r.logger.Debug("stale remote description result", zap.String("participant_id", participantID), zap.Uint64("generation", gen))
		return
	}
	if err != nil {
		r.failLeg(l, "remote description rejected", err)
		return
	}
	if !l.renegotiating {
		if err := l.transition(LegHaveRemoteOffer); err != nil {
			r.failLeg(l, "remote description applied out of order", err)
			return
		}
		r.coord.metrics.LegTransition(l.state.String())
	}
	l.remoteApplied = true
	r.flushCandidates(l)

	if err := r.attachOutbound(l); err != nil {
		r.failLeg(l, "attach outbound audio", err)
		return
	}

	t := l.transport
	r.spawn(l, func(ctx context.Context) {
		answer, err := t.CreateAnswer()
		r.post(func() { r.onAnswerCreated(participantID, gen, answer, err) })
	})
}

// attachOutbound gives the leg the host audio and its private mix, once.
func (r *RoomSession) attachOutbound(l *Leg) error {
	if l.hostSender == nil {
		s, err := l.transport.AttachHost(r.host)
		if err != nil {
			return err
		}
		l.hostSender = s
	}
	if l.mixSender == nil {
		s, err := l.transport.AttachMix(l.bus)
		if err != nil {
			return err
		}
		l.mixSender = s
	}
	return nil
}

func (r *RoomSession) flushCandidates(l *Leg) {
	for _, c := range l.drainCandidates() {
		if err := l.transport.AddICECandidate(c); err != nil {
			r.legLogger(l).Warn("queued candidate rejected", zap.String("candidate", c.Candidate), zap.Error(err))
		}
	}
}

func (r *RoomSession) onAnswerCreated(participantID string, gen uint64, answer webrtc.SessionDescription, err error) {
	l := r.current(participantID, gen)
	if l == nil {
		r.logger.Debug("stale answer result", zap.String("participant_id", participantID), zap.Uint64("generation", gen))
		return
	}
	if err != nil {
		r.failLeg(l, "answer failed", err)
		return
	}

	l.negotiating = false
	l.renegotiating = false
	l.answer = &answer
	if l.state == LegHaveRemoteOffer {
		_ = l.transition(LegAnswered)
		r.coord.metrics.LegTransition(l.state.String())
	}
	r.coord.metrics.ObserveNegotiation(time.Since(l.offerAt))

	if err := r.coord.signaler().SendAnswer(r.ID, participantID, answer); err != nil {
		r.legLogger(l).Warn("answer not delivered", zap.Error(err))
	}

	created, err := r.graph.ActivateTarget(participantID)
	if err != nil {
		r.legLogger(l).Error("activate mix target", zap.Error(err))
	}
	r.updateMetrics()
	r.legLogger(l).Info("answer sent", zap.Int("edges_created", created), zap.Stringer("state", l.state))
}

// answer handles an answer from a participant. The host never offers, so
// there is nothing for it to complete.
func (r *RoomSession) answer(participantID string, answer webrtc.SessionDescription) error {
	l := r.liveLeg(participantID)
	if l == nil {
		return r.drop("answer", participantID, fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID))
	}
	return r.drop("answer", participantID, fmt.Errorf("%w: unsolicited answer while %s", ErrNegotiationConflict, l.state))
}

func (r *RoomSession) candidate(participantID string, c webrtc.ICECandidateInit) error {
	l := r.liveLeg(participantID)
	if l == nil {
		return r.drop("candidate", participantID, fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID))
	}
	if !l.acceptCandidate(c) {
		r.legLogger(l).Debug("duplicate candidate ignored", zap.String("candidate", c.Candidate))
		return nil
	}
	if !l.remoteApplied {
		l.queueCandidate(c)
		return nil
	}
	if err := l.transport.AddICECandidate(c); err != nil {
		r.legLogger(l).Warn("candidate rejected", zap.String("candidate", c.Candidate), zap.Error(err))
	}
	return nil
}

func (r *RoomSession) onLocalCandidate(participantID string, gen uint64, c webrtc.ICECandidateInit) {
	if r.current(participantID, gen) == nil {
		return
	}
	if err := r.coord.signaler().SendCandidate(r.ID, participantID, c); err != nil {
		r.logger.Debug("local candidate not delivered", zap.String("participant_id", participantID), zap.Error(err))
	}
}

func (r *RoomSession) onConnectionState(participantID string, gen uint64, state webrtc.PeerConnectionState) {
	l := r.current(participantID, gen)
	if l == nil {
		return
	}
	log := r.legLogger(l)

	switch state {
	case webrtc.PeerConnectionStateConnected:
		switch l.state {
		case LegHaveRemoteOffer, LegAnswered, LegDisconnected:
			l.stopGraceTimer()
			_ = l.transition(LegConnected)
			r.coord.metrics.LegTransition(l.state.String())
			log.Info("leg connected")
		}
	case webrtc.PeerConnectionStateDisconnected:
		if l.state != LegConnected {
			return
		}
		grace := r.coord.opts.DisconnectGrace
		if grace <= 0 {
			r.teardown(l, LegFailed, "disconnected")
			return
		}
		_ = l.transition(LegDisconnected)
		r.coord.metrics.LegTransition(l.state.String())
		l.graceTimer = time.AfterFunc(grace, func() {
			r.post(func() { r.onGraceExpired(participantID, gen) })
		})
		log.Warn("leg disconnected", zap.Duration("grace", grace))
	case webrtc.PeerConnectionStateFailed:
		r.teardown(l, LegFailed, "transport failed")
	case webrtc.PeerConnectionStateClosed:
		r.teardown(l, LegClosed, "transport closed")
	}
}

func (r *RoomSession) onGraceExpired(participantID string, gen uint64) {
	l := r.current(participantID, gen)
	if l == nil || l.state != LegDisconnected {
		return
	}
	r.teardown(l, LegFailed, "disconnect grace expired")
}

func (r *RoomSession) onInboundTrack(participantID string, gen uint64, track InboundTrack) {
	l := r.current(participantID, gen)
	if l == nil {
		_ = track.Stop()
		return
	}
	if _, dup := l.inbound[track.ID()]; dup {
		return
	}

	src, created, err := r.graph.AddSource(participantID, track.ID())
	if err != nil {
		r.legLogger(l).Error("register inbound audio", zap.Error(err))
		_ = track.Stop()
		return
	}
	if !created {
		// one feed per source: the newer track replaces the old ones
		for id, old := range l.inbound {
			if err := old.Stop(); err != nil {
				r.legLogger(l).Debug("stop replaced inbound track", zap.String("track_id", id), zap.Error(err))
			}
			delete(l.inbound, id)
		}
		r.graph.RetrackSource(participantID, track.ID())
	}
	l.inbound[track.ID()] = track
	track.Start(src)

	r.updateMetrics()
	r.legLogger(l).Info("inbound audio",
		zap.String("track_id", track.ID()),
		zap.Bool("new_source", created),
		zap.Strings("heard_by", r.graph.EdgesFrom(participantID)))
}
