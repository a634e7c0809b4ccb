package signaling

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/LingByte/EchoClass/pkg/classroom"
	"github.com/LingByte/EchoClass/pkg/config"
	"github.com/LingByte/EchoClass/pkg/constants"
	apperrors "github.com/LingByte/EchoClass/pkg/errors"
	"github.com/LingByte/EchoClass/pkg/metrics"
	"github.com/LingByte/EchoClass/pkg/protocol"
	"github.com/LingByte/EchoClass/pkg/utils"
	"github.com/gorilla/websocket"
	"github.com/mssola/user_agent"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// ReasonParticipantLeft and ReasonSocketClosed are recorded on leg teardown.
const (
	ReasonParticipantLeft = "participant left"
	ReasonSocketClosed    = "signaling closed"
)

// Coordinator is the part of the classroom coordinator the hub drives.
type Coordinator interface {
	OnRoomCreate(ctx context.Context, hostID, roomID string) error
	OnAvailableOffers(ctx context.Context, roomID string, entries []protocol.OfferEntry) error
	OnNewOfferAwaiting(ctx context.Context, roomID string, entries []protocol.OfferEntry) error
	OnAnswer(ctx context.Context, participantID string, answer webrtc.SessionDescription) error
	OnCandidate(ctx context.Context, participantID string, candidate webrtc.ICECandidateInit) error
	OnParticipantLeave(ctx context.Context, participantID, reason string) error
	OnRoomClose(ctx context.Context, roomID, reason string) error
	ResumePlayback(ctx context.Context, roomID string) error
}

// Options tune the websocket side of the hub.
type Options struct {
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	OfferTTL       time.Duration
	CallTimeout    time.Duration // bound on each coordinator call
}

func OptionsFromConfig(cfg config.SignalingConfig) Options {
	return Options{
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		MaxMessageSize: cfg.MaxMessageSize,
		OfferTTL:       cfg.OfferTTL,
		CallTimeout:    10 * time.Second,
	}
}

// pingPeriod must stay below PongWait.
func (o Options) pingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

// roomMembers is the hub's view of a room: its host socket (empty for rooms
// opened over REST) and the participants that joined it.
type roomMembers struct {
	hostID  string
	open    bool
	members map[string]struct{}
}

// Hub routes signaling between sockets and the coordinator, and carries the
// coordinator's answers and candidates back. It implements classroom.Signaler.
type Hub struct {
	coord   Coordinator
	book    *OfferBook
	cfg     Options
	metrics *metrics.Metrics
	logger  *zap.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*Client
	rooms   map[string]*roomMembers
	wg      sync.WaitGroup
}

var _ classroom.Signaler = (*Hub)(nil)

func NewHub(coord Coordinator, opts Options, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		coord:   coord,
		book:    NewOfferBook(opts.OfferTTL),
		cfg:     opts,
		metrics: m,
		logger:  logger.Named("signaling"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*Client),
		rooms:   make(map[string]*roomMembers),
	}
}

// Book exposes the offer book.
func (h *Hub) Book() *OfferBook {
	return h.book
}

// ServeWS upgrades the request and runs the client's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	id, err := utils.NewSocketID()
	if err != nil {
		h.logger.Error("socket id", zap.Error(err))
		conn.Close()
		return
	}
	client := newClient(h, conn, id)

	ua := user_agent.New(r.UserAgent())
	browser, version := ua.Browser()
	client.logger.Info("signaling connected",
		zap.String("remote", r.RemoteAddr),
		zap.String("browser", browser),
		zap.String("browser_version", version),
		zap.String("os", ua.OS()),
		zap.Bool("mobile", ua.Mobile()))

	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()
	h.metrics.SignalingConnected()

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) client(id string) (*Client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	return c, ok
}

func (h *Hub) callContext() (context.Context, context.CancelFunc) {
	timeout := h.cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (h *Hub) reply(c *Client, err error) {
	appErr := classroom.ToAppError(err)
	c.Send(protocol.NewError(string(appErr.Code), appErr.Message))
}

// handle runs on the client's read goroutine. Coordinator calls are made
// without holding the hub lock.
func (h *Hub) handle(c *Client, msg *protocol.Message) {
	ctx, cancel := h.callContext()
	defer cancel()

	log := c.logger.With(zap.String("type", string(msg.Type)), zap.String("room_id", msg.RoomID))
	log.Debug("signaling message")

	switch msg.Type {
	case protocol.MessageTypeCreateRoom:
		if msg.RoomID == "" {
			h.reply(c, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "roomId is required"))
			return
		}
		if err := h.OpenRoom(ctx, c.ID, msg.RoomID); err != nil {
			log.Warn("create room failed", zap.Error(err))
			h.reply(c, err)
			return
		}
		c.setHosting(msg.RoomID)
		c.Send(&protocol.Message{Type: protocol.MessageTypeRoomCreated, RoomID: msg.RoomID, SocketID: c.ID})
		if offers := h.book.Entries(msg.RoomID); len(offers) > 0 {
			c.Send(&protocol.Message{Type: protocol.MessageTypeAvailableOffers, RoomID: msg.RoomID, Offers: offers})
		}

	case protocol.MessageTypeJoinRoom:
		if msg.RoomID == "" {
			h.reply(c, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "roomId is required"))
			return
		}
		if prev := c.RoomID(); prev != "" && prev != msg.RoomID {
			h.reply(c, classroom.ErrParticipantConflict)
			return
		}
		h.addMember(msg.RoomID, c.ID)
		c.setRoom(msg.RoomID)
		c.Send(&protocol.Message{Type: protocol.MessageTypeRoomJoined, RoomID: msg.RoomID, SocketID: c.ID})

	case protocol.MessageTypeNewOffer:
		roomID, ok := h.joined(c, msg)
		if !ok {
			return
		}
		if msg.Offer == nil {
			h.reply(c, apperrors.NewAppError(apperrors.ErrCodeInvalidMessage, "offer is required"))
			return
		}
		entry := h.book.Put(roomID, c.ID, *msg.Offer)
		if !h.isOpen(roomID) {
			log.Info("offer parked until the host opens the room")
			return
		}
		awaiting := []protocol.OfferEntry{entry}
		if err := h.coord.OnNewOfferAwaiting(ctx, roomID, awaiting); err != nil {
			log.Warn("offer rejected", zap.Error(err))
			h.reply(c, err)
			return
		}
		h.notifyHost(roomID, &protocol.Message{Type: protocol.MessageTypeNewOfferAwaiting, RoomID: roomID, Offers: awaiting})

	case protocol.MessageTypeNewAnswer:
		if msg.Answer == nil {
			h.reply(c, apperrors.NewAppError(apperrors.ErrCodeInvalidMessage, "answer is required"))
			return
		}
		if err := h.coord.OnAnswer(ctx, c.ID, *msg.Answer); err != nil {
			h.reply(c, err)
		}

	case protocol.MessageTypeSendICE:
		roomID, ok := h.joined(c, msg)
		if !ok || msg.Candidate == nil {
			return
		}
		if !h.book.AddCandidate(roomID, c.ID, *msg.Candidate) {
			return
		}
		if !h.isOpen(roomID) {
			return
		}
		if err := h.coord.OnCandidate(ctx, c.ID, *msg.Candidate); err != nil {
			// candidates usually race the offer; the stored copy is replayed with it
			log.Debug("candidate not routed", zap.Error(err))
		}

	case protocol.MessageTypeLeaveRoom:
		h.leave(ctx, c, ReasonParticipantLeft)

	case protocol.MessageTypeCloseRoom:
		roomID := c.Hosting()
		if roomID == "" || (msg.RoomID != "" && msg.RoomID != roomID) {
			h.reply(c, apperrors.NewAppError(apperrors.ErrCodeConflict, "only the host may close the room"))
			return
		}
		if err := h.coord.OnRoomClose(ctx, roomID, constants.ReasonHostClosed); err != nil {
			h.reply(c, err)
		}

	case protocol.MessageTypeResumeAudio:
		roomID := c.Hosting()
		if roomID == "" {
			h.reply(c, apperrors.NewAppError(apperrors.ErrCodeConflict, "only the host may resume playback"))
			return
		}
		if err := h.coord.ResumePlayback(ctx, roomID); err != nil {
			h.reply(c, err)
		}

	default:
		h.reply(c, apperrors.NewAppErrorf(apperrors.ErrCodeInvalidMessage, "unknown message type %q", msg.Type))
	}
}

// joined checks that c joined the room a message names.
func (h *Hub) joined(c *Client, msg *protocol.Message) (string, bool) {
	roomID := c.RoomID()
	if roomID == "" || (msg.RoomID != "" && msg.RoomID != roomID) {
		h.reply(c, apperrors.NewAppError(apperrors.ErrCodeUnknownParticipant, "join the room first"))
		return "", false
	}
	return roomID, true
}

// OpenRoom creates the room in the coordinator and applies the offers that
// were parked for it. hostID is empty for rooms opened without a host socket.
func (h *Hub) OpenRoom(ctx context.Context, hostID, roomID string) error {
	if err := h.coord.OnRoomCreate(ctx, hostID, roomID); err != nil {
		return err
	}
	h.mu.Lock()
	room := h.roomLocked(roomID)
	room.hostID = hostID
	room.open = true
	h.mu.Unlock()

	offers := h.book.Entries(roomID)
	if len(offers) == 0 {
		return nil
	}
	if err := h.coord.OnAvailableOffers(ctx, roomID, offers); err != nil {
		// individual offers failing does not undo the room
		h.logger.Warn("parked offers rejected", zap.String("room_id", roomID), zap.Error(err))
	}
	return nil
}

// notifyHost mirrors offer traffic to the host socket, when the room has one.
func (h *Hub) notifyHost(roomID string, msg *protocol.Message) {
	h.mu.Lock()
	var host *Client
	if r, ok := h.rooms[roomID]; ok && r.hostID != "" {
		host = h.clients[r.hostID]
	}
	h.mu.Unlock()
	if host != nil {
		host.Send(msg)
	}
}

func (h *Hub) roomLocked(roomID string) *roomMembers {
	room, ok := h.rooms[roomID]
	if !ok {
		room = &roomMembers{members: make(map[string]struct{})}
		h.rooms[roomID] = room
	}
	return room
}

func (h *Hub) addMember(roomID, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roomLocked(roomID).members[id] = struct{}{}
}

func (h *Hub) isOpen(roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[roomID]
	return ok && room.open
}

// Members returns the participant ids that joined a room.
func (h *Hub) Members(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(room.members))
	for id := range room.members {
		out = append(out, id)
	}
	return out
}

func (h *Hub) leave(ctx context.Context, c *Client, reason string) {
	roomID := c.RoomID()
	if roomID == "" {
		return
	}
	c.setRoom("")
	h.book.Remove(roomID, c.ID)

	h.mu.Lock()
	open := false
	if room, ok := h.rooms[roomID]; ok {
		delete(room.members, c.ID)
		open = room.open
		if !open && len(room.members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	if !open {
		return
	}
	err := h.coord.OnParticipantLeave(ctx, c.ID, reason)
	if err != nil && !errors.Is(err, classroom.ErrUnknownParticipant) {
		c.logger.Warn("leave failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	c.close()
	h.metrics.SignalingDisconnected()

	ctx, cancel := h.callContext()
	defer cancel()
	if roomID := c.Hosting(); roomID != "" {
		if err := h.coord.OnRoomClose(ctx, roomID, constants.ReasonHostLeft); err != nil && !errors.Is(err, classroom.ErrRoomNotFound) {
			c.logger.Warn("close room on host disconnect", zap.String("room_id", roomID), zap.Error(err))
		}
	}
	h.leave(ctx, c, ReasonSocketClosed)
	c.logger.Info("signaling disconnected")
}

// SendAnswer records the host's answer and delivers it to the offerer.
func (h *Hub) SendAnswer(roomID, participantID string, answer webrtc.SessionDescription) error {
	h.book.SetAnswer(roomID, participantID, answer)
	c, ok := h.client(participantID)
	if !ok {
		return classroom.ErrUnknownParticipant
	}
	c.Send(protocol.NewAnswerResponse(participantID, answer))
	return nil
}

// SendCandidate delivers a host candidate to a participant.
func (h *Hub) SendCandidate(roomID, participantID string, candidate webrtc.ICECandidateInit) error {
	h.book.AddAnswererCandidate(roomID, participantID, candidate)
	c, ok := h.client(participantID)
	if !ok {
		return classroom.ErrUnknownParticipant
	}
	h.mu.Lock()
	hostID := ""
	if room, ok := h.rooms[roomID]; ok {
		hostID = room.hostID
	}
	h.mu.Unlock()
	c.Send(protocol.NewReceivedCandidate(hostID, candidate))
	return nil
}

// SendRoomClosed tells the host and every member the room is gone and
// forgets it. It is called from the room's event loop and must not block.
func (h *Hub) SendRoomClosed(roomID, reason string) error {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	delete(h.rooms, roomID)
	var targets []*Client
	if ok {
		for id := range room.members {
			if c, ok := h.clients[id]; ok {
				targets = append(targets, c)
			}
		}
		if c, ok := h.clients[room.hostID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	h.book.DropRoom(roomID)
	msg := protocol.NewRoomClosed(roomID, reason)
	for _, c := range targets {
		if c.RoomID() == roomID {
			c.setRoom("")
		}
		if c.Hosting() == roomID {
			c.setHosting("")
		}
		c.Send(msg)
	}
	h.logger.Info("room closed", zap.String("room_id", roomID), zap.String("reason", reason), zap.Int("notified", len(targets)))
	return nil
}

// Close flushes and disconnects every socket, then waits for the pumps to
// exit.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
	h.wg.Wait()
}
