package classroom

import (
	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/LingByte/EchoClass/pkg/mixer"
	"github.com/pion/webrtc/v3"
)

// Transport is the negotiated real-time connection behind one leg. The
// coordinator calls it only from the owning room's event loop or from a
// negotiation task of the leg.
type Transport interface {
	SetRemoteDescription(desc webrtc.SessionDescription) error
	// CreateAnswer creates the local answer and applies it.
	CreateAnswer() (webrtc.SessionDescription, error)
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AttachHost(host HostTrack) (Sender, error)
	AttachMix(bus *mixer.Bus) (Sender, error)
	Close() error
}

// TransportHandler receives a transport's callbacks. Implementations must
// not block.
type TransportHandler interface {
	OnLocalCandidate(candidate webrtc.ICECandidateInit)
	OnConnectionStateChange(state webrtc.PeerConnectionState)
	OnInboundTrack(track InboundTrack)
}

// Sender is an outbound track attached to one leg.
type Sender interface {
	Stop() error
}

// InboundTrack is a participant's audio arriving on a leg. Start begins
// delivering decoded frames to sink.
type InboundTrack interface {
	ID() string
	Start(sink media.FrameSink)
	Stop() error
}

// HostTrack is the host's audio, shared by every leg of a room.
type HostTrack interface {
	ID() string
	Close() error
}

// MediaEngine supplies the transport and capture primitives.
type MediaEngine interface {
	Format() media.Format
	NewTransport(participantID string, handler TransportHandler) (Transport, error)
	OpenHostTrack(roomID string) (HostTrack, error)
	OpenPlayback(roomID string) (media.Playback, error)
}

// Signaler carries coordinator output back to the signaling channel.
type Signaler interface {
	SendAnswer(roomID, participantID string, answer webrtc.SessionDescription) error
	SendCandidate(roomID, participantID string, candidate webrtc.ICECandidateInit) error
	SendRoomClosed(roomID, reason string) error
}

type nopSignaler struct{}

func (nopSignaler) SendAnswer(string, string, webrtc.SessionDescription) error   { return nil }
func (nopSignaler) SendCandidate(string, string, webrtc.ICECandidateInit) error { return nil }
func (nopSignaler) SendRoomClosed(string, string) error                         { return nil }
