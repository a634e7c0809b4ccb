package classroom

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LingByte/EchoClass/pkg/constants"
	errors2 "github.com/LingByte/EchoClass/pkg/errors"
	"github.com/LingByte/EchoClass/pkg/metrics"
	"github.com/LingByte/EchoClass/pkg/protocol"
	"github.com/pion/webrtc/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options tunes a Coordinator.
type Options struct {
	MaxParticipants int           // 0 means unlimited
	DisconnectGrace time.Duration // how long a disconnected leg may recover
	Metrics         *metrics.Metrics
}

type memberRef struct {
	roomID     string
	generation uint64
}

// Coordinator routes signaling input to the room that owns it. It holds
// only the registries; every room mutates its own state on its own loop.
type Coordinator struct {
	engine  MediaEngine
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	sigMu sync.RWMutex
	sig   Signaler

	mu       sync.RWMutex
	rooms    map[string]*RoomSession
	pending  map[string]struct{}
	members  map[string]memberRef
	shutdown bool
}

// NewCoordinator creates a coordinator over engine.
func NewCoordinator(engine MediaEngine, opts Options, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		engine:  engine,
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
		sig:     nopSignaler{},
		rooms:   make(map[string]*RoomSession),
		pending: make(map[string]struct{}),
		members: make(map[string]memberRef),
	}
}

// SetSignaler installs the outbound side of the signaling channel.
func (c *Coordinator) SetSignaler(s Signaler) {
	if s == nil {
		s = nopSignaler{}
	}
	c.sigMu.Lock()
	c.sig = s
	c.sigMu.Unlock()
}

func (c *Coordinator) signaler() Signaler {
	c.sigMu.RLock()
	defer c.sigMu.RUnlock()
	return c.sig
}

// OnRoomCreate opens a room hosted by hostID. A room id may be open at most
// once at a time.
func (c *Coordinator) OnRoomCreate(ctx context.Context, hostID, roomID string) error {
	if roomID == "" {
		return errors2.NewAppError(errors2.ErrCodeInvalidInput, "room id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return fmt.Errorf("%w: coordinator shutting down", ErrRoomClosed)
	}
	_, open := c.rooms[roomID]
	_, opening := c.pending[roomID]
	if open || opening {
		c.mu.Unlock()
		c.metrics.Dropped("createRoom", "DUPLICATE_ROOM")
		return fmt.Errorf("%w: %s", ErrDuplicateRoom, roomID)
	}
	c.pending[roomID] = struct{}{}
	c.mu.Unlock()

	room, err := openRoom(c, hostID, roomID)

	c.mu.Lock()
	delete(c.pending, roomID)
	if err == nil {
		c.rooms[roomID] = room
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("room create failed", zap.String("room_id", roomID), zap.Error(err))
		return err
	}
	c.metrics.RoomOpened()
	c.logger.Info("room created",
		zap.String("room_id", roomID),
		zap.String("host_id", hostID),
		zap.String("instance_id", room.InstanceID))
	return nil
}

func (c *Coordinator) room(roomID string) (*RoomSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return r, nil
}

func (c *Coordinator) roomOf(participantID string) (*RoomSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.members[participantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	r, ok := c.rooms[ref.roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	return r, nil
}

// bindMember records that participantID is live in roomID. A participant
// can be live in only one room.
func (c *Coordinator) bindMember(participantID, roomID string, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref, ok := c.members[participantID]; ok && ref.roomID != roomID {
		return fmt.Errorf("%w: %s is in %s", ErrParticipantConflict, participantID, ref.roomID)
	}
	c.members[participantID] = memberRef{roomID: roomID, generation: gen}
	return nil
}

func (c *Coordinator) unbindMember(participantID, roomID string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref, ok := c.members[participantID]; ok && ref.roomID == roomID && ref.generation == gen {
		delete(c.members, participantID)
	}
}

func (c *Coordinator) removeRoom(r *RoomSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rooms[r.ID] == r {
		delete(c.rooms, r.ID)
	}
	for pid, ref := range c.members {
		if ref.roomID == r.ID {
			delete(c.members, pid)
		}
	}
}

// OnParticipantJoin creates the participant's leg, or returns the live one
// with Reused set.
func (c *Coordinator) OnParticipantJoin(ctx context.Context, roomID, participantID string) (LegInfo, error) {
	r, err := c.room(roomID)
	if err != nil {
		return LegInfo{}, err
	}
	var info LegInfo
	err = r.do(ctx, func() error {
		var err error
		info, err = r.join(participantID)
		return err
	})
	return info, err
}

// OnOffer accepts a participant's offer for negotiation. The answer is sent
// through the Signaler once ready.
func (c *Coordinator) OnOffer(ctx context.Context, participantID string, offer webrtc.SessionDescription) error {
	r, err := c.roomOf(participantID)
	if err != nil {
		c.dropUnrouted("offer", participantID, err)
		return err
	}
	return r.do(ctx, func() error { return r.offer(participantID, offer) })
}

// OnAnswer always rejects: legs are answered by the host, never offered.
func (c *Coordinator) OnAnswer(ctx context.Context, participantID string, answer webrtc.SessionDescription) error {
	r, err := c.roomOf(participantID)
	if err != nil {
		c.dropUnrouted("answer", participantID, err)
		return err
	}
	return r.do(ctx, func() error { return r.answer(participantID, answer) })
}

// OnCandidate routes a remote candidate to the sender's leg.
func (c *Coordinator) OnCandidate(ctx context.Context, participantID string, candidate webrtc.ICECandidateInit) error {
	r, err := c.roomOf(participantID)
	if err != nil {
		c.dropUnrouted("candidate", participantID, err)
		return err
	}
	return r.do(ctx, func() error { return r.candidate(participantID, candidate) })
}

func (c *Coordinator) dropUnrouted(kind, participantID string, err error) {
	c.metrics.Dropped(kind, string(ToAppError(err).Code))
	c.logger.Warn("message dropped",
		zap.String("kind", kind),
		zap.String("participant_id", participantID),
		zap.Error(err))
}

// OnAvailableOffers applies the offers already stored for a room when its
// host connects. Answered entries are skipped.
func (c *Coordinator) OnAvailableOffers(ctx context.Context, roomID string, entries []protocol.OfferEntry) error {
	return c.applyOffers(ctx, roomID, entries)
}

// OnNewOfferAwaiting applies offers that arrived after the host connected.
func (c *Coordinator) OnNewOfferAwaiting(ctx context.Context, roomID string, entries []protocol.OfferEntry) error {
	return c.applyOffers(ctx, roomID, entries)
}

func (c *Coordinator) applyOffers(ctx context.Context, roomID string, entries []protocol.OfferEntry) error {
	r, err := c.room(roomID)
	if err != nil {
		return err
	}
	return r.do(ctx, func() error {
		var errs error
		for _, e := range entries {
			if e.Answered() || e.OffererID == "" {
				continue
			}
			if _, err := r.join(e.OffererID); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if err := r.offer(e.OffererID, e.Offer); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			for _, cand := range e.OfferCandidates {
				_ = r.candidate(e.OffererID, cand)
			}
		}
		return errs
	})
}

// OnParticipantLeave tears down the participant's leg.
func (c *Coordinator) OnParticipantLeave(ctx context.Context, participantID, reason string) error {
	r, err := c.roomOf(participantID)
	if err != nil {
		return err
	}
	return r.do(ctx, func() error { return r.leave(participantID, reason) })
}

// OnRoomClose closes a room and every leg in it.
func (c *Coordinator) OnRoomClose(ctx context.Context, roomID, reason string) error {
	r, err := c.room(roomID)
	if err != nil {
		return err
	}
	err = r.do(ctx, func() error {
		r.closeRoom(reason)
		return nil
	})
	if errors.Is(err, ErrRoomClosed) {
		return nil
	}
	return err
}

// ResumePlayback starts the host's local monitor of the room.
func (c *Coordinator) ResumePlayback(ctx context.Context, roomID string) error {
	r, err := c.room(roomID)
	if err != nil {
		return err
	}
	return r.do(ctx, r.resumePlayback)
}

// SetEdgeGain changes how loud source is in target's mix.
func (c *Coordinator) SetEdgeGain(ctx context.Context, roomID, source, target string, gain float64) error {
	r, err := c.room(roomID)
	if err != nil {
		return err
	}
	return r.do(ctx, func() error { return r.setGain(source, target, gain) })
}

// Room returns a snapshot of one room.
func (c *Coordinator) Room(ctx context.Context, roomID string) (RoomSnapshot, error) {
	r, err := c.room(roomID)
	if err != nil {
		return RoomSnapshot{}, err
	}
	var s RoomSnapshot
	err = r.do(ctx, func() error {
		s = r.snapshot()
		return nil
	})
	return s, err
}

// Rooms returns snapshots of every open room, ordered by id. Rooms that
// close while being read are skipped.
func (c *Coordinator) Rooms(ctx context.Context) ([]RoomSnapshot, error) {
	c.mu.RLock()
	ids := sortedKeys(c.rooms)
	c.mu.RUnlock()

	out := make([]RoomSnapshot, 0, len(ids))
	for _, id := range ids {
		s, err := c.Room(ctx, id)
		if errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrRoomClosed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RoomIDs lists the open rooms.
func (c *Coordinator) RoomIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.rooms)
}

// RoomOf reports which room participantID is live in.
func (c *Coordinator) RoomOf(participantID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.members[participantID]
	return ref.roomID, ok
}

// Shutdown closes every room concurrently and refuses new ones.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.shutdown = true
	ids := sortedKeys(c.rooms)
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := c.OnRoomClose(gctx, id, constants.ReasonServerShutdown)
			if errors.Is(err, ErrRoomNotFound) {
				return nil
			}
			return err
		})
	}
	err := g.Wait()
	c.logger.Info("coordinator shut down", zap.Int("rooms", len(ids)), zap.Error(err))
	return err
}
