package classroom

import (
	"fmt"
	"time"

	"github.com/LingByte/EchoClass/pkg/mixer"
)

// RoomState is the lifecycle of a RoomSession.
type RoomState int

const (
	RoomOpen RoomState = iota
	RoomClosing
	RoomClosed
)

func (s RoomState) String() string {
	switch s {
	case RoomOpen:
		return "open"
	case RoomClosing:
		return "closing"
	case RoomClosed:
		return "closed"
	}
	return "unknown"
}

func (s RoomState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RoomState) UnmarshalText(text []byte) error {
	for v := RoomOpen; v <= RoomClosed; v++ {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown room state %q", text)
}

// LegState is the signaling state of a transport leg.
type LegState int

const (
	LegIdle LegState = iota
	LegHaveRemoteOffer
	LegAnswered
	LegConnected
	LegDisconnected
	LegFailed
	LegClosed
)

func (s LegState) String() string {
	switch s {
	case LegIdle:
		return "idle"
	case LegHaveRemoteOffer:
		return "have-remote-offer"
	case LegAnswered:
		return "answered"
	case LegConnected:
		return "connected"
	case LegDisconnected:
		return "disconnected"
	case LegFailed:
		return "failed"
	case LegClosed:
		return "closed"
	}
	return "unknown"
}

func (s LegState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LegState) UnmarshalText(text []byte) error {
	for v := LegIdle; v <= LegClosed; v++ {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown leg state %q", text)
}

// Terminal reports whether no further transition is possible.
func (s LegState) Terminal() bool {
	return s == LegFailed || s == LegClosed
}

// LegInfo identifies a leg handed back from a join.
type LegInfo struct {
	RoomID        string   `json:"roomId"`
	ParticipantID string   `json:"participantId"`
	Generation    uint64   `json:"generation"`
	State         LegState `json:"state"`
	Reused        bool     `json:"reused"`
}

type ParticipantSnapshot struct {
	ID             string    `json:"id"`
	JoinedAt       time.Time `json:"joinedAt"`
	State          LegState  `json:"state"`
	Generation     uint64    `json:"generation"`
	InboundTracks  int       `json:"inboundTracks"`
	OutboundTracks int       `json:"outboundTracks"`
	HostAttached   bool      `json:"hostAttached"`
}

type EdgeSnapshot struct {
	Source  string  `json:"source"`
	Target  string  `json:"target"`
	TrackID string  `json:"trackId"`
	Gain    float64 `json:"gain"`
}

// RoomSnapshot is a consistent copy of one room taken on its event loop.
type RoomSnapshot struct {
	ID             string                `json:"id"`
	HostID         string                `json:"hostId"`
	InstanceID     string                `json:"instanceId"`
	State          RoomState             `json:"state"`
	CreatedAt      time.Time             `json:"createdAt"`
	PlaybackActive bool                  `json:"playbackActive"`
	Participants   []ParticipantSnapshot `json:"participants"`
	Edges          []EdgeSnapshot        `json:"edges"`
	HostTracks     int                   `json:"hostTracks"`
	MixNodes       mixer.Stats           `json:"mixNodes"`
}

// Participant returns the snapshot of one participant.
func (s RoomSnapshot) Participant(id string) (ParticipantSnapshot, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return ParticipantSnapshot{}, false
}

// HasEdge reports whether source is mixed into target.
func (s RoomSnapshot) HasEdge(source, target string) bool {
	for _, e := range s.Edges {
		if e.Source == source && e.Target == target {
			return true
		}
	}
	return false
}
