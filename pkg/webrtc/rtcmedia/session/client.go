package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LingByte/EchoClass/pkg/constants"
	"github.com/LingByte/EchoClass/pkg/devices"
	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/LingByte/EchoClass/pkg/media/encoder"
	"github.com/LingByte/EchoClass/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrRoomClosed is returned by Run when the host closes the room.
var ErrRoomClosed = errors.New("room closed by host")

// Options configure a participant client.
type Options struct {
	URL        string             // signaling websocket url
	RoomID     string             // room to join
	Codec      string             // audio codec, must match the host
	AudioFile  string             // WAV streamed as the microphone; silence when empty
	RecordFile string             // WAV the received mix is written to; nothing when empty
	ICEServers []webrtc.ICEServer // ICE servers
	Header     http.Header        // extra dial headers
}

// Stats counts what the client has heard.
type Stats struct {
	HostPackets uint64 `json:"hostPackets"`
	MixPackets  uint64 `json:"mixPackets"`
	Candidates  uint64 `json:"candidates"`
}

// Client is a participant: it joins a room over the signaling websocket,
// offers its microphone plus a receive slot for the mix, and answers nothing.
type Client struct {
	opt    Options
	logger *zap.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	pc       *webrtc.PeerConnection
	mic      *webrtc.TrackLocalStaticSample
	codec    encoder.Codec
	format   media.Format
	recorder *devices.WAVRecorder

	SocketID string
	answered chan struct{}
	once     sync.Once
	sending  sync.Once

	hostPackets atomic.Uint64
	mixPackets  atomic.Uint64
	candidates  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a participant client.
func NewClient(opt Options, logger *zap.Logger) (*Client, error) {
	if opt.Codec == "" {
		opt.Codec = constants.DefaultCodec
	}
	if opt.RoomID == "" {
		return nil, fmt.Errorf("room id is required")
	}
	codec, err := encoder.New(opt.Codec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opt:      opt,
		logger:   logger.With(zap.String("room_id", opt.RoomID)),
		codec:    codec,
		format:   media.NewFormat(codec.SampleRate()),
		answered: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	if opt.RecordFile != "" {
		c.recorder = devices.NewWAVRecorder(opt.RecordFile, c.format)
	}
	return c, nil
}

// Dial opens the signaling websocket.
func (c *Client) Dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opt.URL, c.opt.Header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opt.URL, err)
	}
	c.conn = conn
	c.logger.Info("[Client -> Server] connected", zap.String("url", c.opt.URL))
	return nil
}

func (c *Client) send(msg *protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Join announces the participant and sends its offer. Candidates trickle
// afterwards.
func (c *Client) Join() error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := c.send(&protocol.Message{Type: protocol.MessageTypeJoinRoom, RoomID: c.opt.RoomID}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	if err := c.newPeerConnection(); err != nil {
		return err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	if err := c.send(&protocol.Message{Type: protocol.MessageTypeNewOffer, RoomID: c.opt.RoomID, Offer: &offer}); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	c.logger.Info("[Client -> Server] sent offer")
	return nil
}

// Run reads signaling messages until the room closes, the socket drops, or
// ctx is done.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-c.ctx.Done():
		}
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read signaling: %w", err)
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("[Client] bad message", zap.Error(err))
			continue
		}
		if err := c.handle(msg); err != nil {
			return err
		}
	}
}

func (c *Client) handle(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.MessageTypeRoomJoined:
		c.SocketID = msg.SocketID
		c.logger.Info("[Client <- Server] joined", zap.String("socket_id", msg.SocketID))
	case protocol.MessageTypeAnswerResponse:
		if msg.Answer == nil {
			return nil
		}
		if err := c.pc.SetRemoteDescription(*msg.Answer); err != nil {
			c.logger.Error("[Client] apply answer", zap.Error(err))
			return nil
		}
		c.once.Do(func() { close(c.answered) })
		c.logger.Info("[Client <- Server] answer applied")
	case protocol.MessageTypeReceivedICE:
		if msg.Candidate == nil {
			return nil
		}
		c.candidates.Add(1)
		if err := c.pc.AddICECandidate(*msg.Candidate); err != nil {
			c.logger.Debug("[Client] add candidate", zap.Error(err))
		}
	case protocol.MessageTypeRoomClosed:
		c.logger.Info("[Client <- Server] room closed", zap.String("reason", msg.Reason))
		return ErrRoomClosed
	case protocol.MessageTypeError:
		c.logger.Warn("[Client <- Server] error", zap.String("code", msg.Code), zap.String("error", msg.Error))
	default:
		c.logger.Debug("[Client] ignoring message", zap.String("type", string(msg.Type)))
	}
	return nil
}

// WaitAnswered blocks until the host's answer has been applied.
func (c *Client) WaitAnswered(ctx context.Context) error {
	select {
	case <-c.answered:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitConnected polls the peer connection until it is connected.
func (c *Client) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.pc != nil && c.pc.ConnectionState() == webrtc.PeerConnectionStateConnected {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for connection: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Leave tells the hub the participant is going away.
func (c *Client) Leave() error {
	return c.send(&protocol.Message{Type: protocol.MessageTypeLeaveRoom, RoomID: c.opt.RoomID})
}

func (c *Client) Stats() Stats {
	return Stats{
		HostPackets: c.hostPackets.Load(),
		MixPackets:  c.mixPackets.Load(),
		Candidates:  c.candidates.Load(),
	}
}

// Close stops all media and writes the recording.
func (c *Client) Close() error {
	c.cancel()
	var err error
	if c.pc != nil {
		err = multierr.Append(err, c.pc.Close())
	}
	if c.conn != nil {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = multierr.Append(err, c.conn.Close())
	}
	if c.recorder != nil {
		err = multierr.Append(err, c.recorder.Close())
	}
	return err
}
