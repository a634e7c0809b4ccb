package rtcmedia

import (
	"fmt"
	"sync"

	"github.com/LingByte/EchoClass/pkg/classroom"
	"github.com/LingByte/EchoClass/pkg/mixer"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Connection is the host end of one participant's leg.
type Connection struct {
	participantID string
	engine        *Engine
	pc            *webrtc.PeerConnection
	handler       classroom.TransportHandler
	logger        *zap.Logger

	mu     sync.Mutex
	closed bool
}

func newConnection(e *Engine, participantID string, handler classroom.TransportHandler) (*Connection, error) {
	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.opt.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("peer connection for %s: %w", participantID, err)
	}
	c := &Connection{
		participantID: participantID,
		engine:        e,
		pc:            pc,
		handler:       handler,
		logger:        e.logger.With(zap.String("participant_id", participantID)),
	}
	c.registerEventHandlers()
	return c, nil
}

func (c *Connection) registerEventHandlers() {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if candidate == nil {
			return
		}
		c.handler.OnLocalCandidate(candidate.ToJSON())
	})
	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debug("connection state changed", zap.String("state", state.String()))
		c.handler.OnConnectionStateChange(state)
	})
	c.pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			c.logger.Warn("ignoring non-audio track", zap.String("kind", remote.Kind().String()))
			return
		}
		mime := remote.Codec().MimeType
		name, ok := codecNameOf(mime)
		if !ok {
			c.logger.Warn("ignoring track with unknown codec", zap.String("mime", mime))
			return
		}
		codec, err := newCodec(name)
		if err != nil {
			c.logger.Error("inbound codec", zap.String("mime", mime), zap.Error(err))
			return
		}
		c.logger.Info("received remote track",
			zap.String("mime", mime),
			zap.Uint32("ssrc", uint32(remote.SSRC())),
			zap.String("stream_id", remote.StreamID()))
		c.handler.OnInboundTrack(newInboundTrack(remote, receiver, codec, c.engine.format, c.logger))
	})
}

func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

// CreateAnswer creates and applies the local answer. Candidates trickle
// through OnLocalCandidate afterwards.
func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}
	return answer, nil
}

func (c *Connection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

// AttachHost binds the room's shared host track to this leg.
func (c *Connection) AttachHost(host classroom.HostTrack) (classroom.Sender, error) {
	h, ok := host.(*hostTrack)
	if !ok {
		return nil, fmt.Errorf("host track %T was not created by this engine", host)
	}
	sender, err := c.pc.AddTrack(h.track)
	if err != nil {
		return nil, fmt.Errorf("attach host audio: %w", err)
	}
	drainRTCP(sender, c.logger)
	return &trackSender{pc: c.pc, sender: sender}, nil
}

// AttachMix adds the leg's private mix track and starts pulling bus.
func (c *Connection) AttachMix(bus *mixer.Bus) (classroom.Sender, error) {
	track, codec, err := newMixTrack(c.participantID, c.engine.opt.Codec)
	if err != nil {
		return nil, err
	}
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("attach mix: %w", err)
	}
	drainRTCP(sender, c.logger)
	pump := startFramePump(track, codec, c.engine.format.FrameDuration, pullFrom(bus), c.logger)
	return &trackSender{pc: c.pc, sender: sender, pump: pump}, nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.pc.Close()
}

// ConnectionState is the current transport state.
func (c *Connection) ConnectionState() webrtc.PeerConnectionState {
	return c.pc.ConnectionState()
}
