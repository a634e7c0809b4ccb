package classroom

import (
	"fmt"

	"go.uber.org/zap"
)

func (r *RoomSession) failLeg(l *Leg, reason string, err error) {
	r.legLogger(l).Warn("leg failed", zap.String("reason", reason), zap.Error(err))
	r.teardown(l, LegFailed, reason)
}

// teardown releases everything the leg owns. It runs at most once per leg:
// forward edges first, then outbound and inbound tracks, then the transport,
// then the participant record.
func (r *RoomSession) teardown(l *Leg, final LegState, reason string) {
	if l.terminated {
		return
	}
	l.terminated = true
	l.cancel()
	l.stopGraceTimer()
	prev := l.state
	l.state = final
	log := r.legLogger(l)

	edges := r.graph.RemoveParticipant(l.ParticipantID)

	for _, s := range []Sender{l.hostSender, l.mixSender} {
		if s == nil {
			continue
		}
		if err := s.Stop(); err != nil {
			log.Debug("stop outbound track", zap.Error(err))
		}
	}
	l.hostSender, l.mixSender = nil, nil
	for id, t := range l.inbound {
		if err := t.Stop(); err != nil {
			log.Debug("stop inbound track", zap.String("track_id", id), zap.Error(err))
		}
		delete(l.inbound, id)
	}
	l.pending = nil

	if l.transport != nil {
		if err := l.transport.Close(); err != nil {
			log.Debug("close transport", zap.Error(err))
		}
	}

	if p, ok := r.participants[l.ParticipantID]; ok && p.leg == l {
		delete(r.participants, l.ParticipantID)
	}
	r.coord.unbindMember(l.ParticipantID, r.ID, l.Generation)

	r.coord.metrics.Teardown(final.String())
	r.coord.metrics.LegTransition(final.String())
	r.updateMetrics()
	log.Info("leg torn down",
		zap.String("reason", reason),
		zap.Stringer("from", prev),
		zap.Stringer("to", final),
		zap.Int("edges_removed", edges))
}

func (r *RoomSession) leave(participantID, reason string) error {
	p, ok := r.participants[participantID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	r.teardown(p.leg, LegClosed, reason)
	return nil
}

// closeRoom tears down every leg before the room's own media, then
// announces the close. Calling it again is a no-op.
func (r *RoomSession) closeRoom(reason string) {
	if r.state != RoomOpen {
		return
	}
	r.state = RoomClosing
	r.logger.Info("closing room", zap.String("reason", reason), zap.Int("participants", len(r.participants)))

	for _, id := range sortedKeys(r.participants) {
		r.teardown(r.participants[id].leg, LegClosed, reason)
	}

	r.stopPlayback()
	if err := r.host.Close(); err != nil {
		r.logger.Debug("close host audio", zap.Error(err))
	}
	r.mixCtx.Close()
	r.cancel()
	r.state = RoomClosed

	if err := r.coord.signaler().SendRoomClosed(r.ID, reason); err != nil {
		r.logger.Debug("room closed notice not delivered", zap.Error(err))
	}
	r.coord.removeRoom(r)
	r.coord.metrics.RoomClosed(r.ID)
	r.box.close()
	r.logger.Info("room closed", zap.String("reason", reason))
}
