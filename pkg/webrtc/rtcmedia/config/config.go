package config

import (
	"fmt"
	"time"

	appconfig "github.com/LingByte/EchoClass/pkg/config"
	"github.com/LingByte/EchoClass/pkg/webrtc/constants"
	"github.com/pion/webrtc/v3"
)

// WebRTCOption configures the host's peer connections.
type WebRTCOption struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"` // ICE servers
	ICETimeout time.Duration      `json:"iceTimeout"` // ICE timeout
	Codec      string             `json:"codec"`      // audio codec name
	UDPPortMin uint16             `json:"udpPortMin"` // 0 leaves the range to the OS
	UDPPortMax uint16             `json:"udpPortMax"`
}

func DefaultWebRTCOption(codec string) *WebRTCOption {
	return &WebRTCOption{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{
					"stun:stun.l.google.com:19302",
					"stun:stun1.l.google.com:19302",
				},
			},
		},
		ICETimeout: constants.DefaultICETimeout,
		Codec:      codec,
	}
}

// FromConfig builds the option from the process configuration. TURN
// credentials apply to every configured server.
func FromConfig(cfg appconfig.WebRTCConfig) *WebRTCOption {
	opt := &WebRTCOption{
		ICETimeout: constants.DefaultICETimeout,
		Codec:      cfg.Codec,
		UDPPortMin: uint16(cfg.UDPPortMin),
		UDPPortMax: uint16(cfg.UDPPortMax),
	}
	if len(cfg.ICEServers) > 0 {
		server := webrtc.ICEServer{URLs: cfg.ICEServers}
		if cfg.ICEUsername != "" {
			server.Username = cfg.ICEUsername
			server.Credential = cfg.ICECredential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		opt.ICEServers = []webrtc.ICEServer{server}
	}
	return opt
}

// GetICETimeout get ICE timeout
func (wts *WebRTCOption) GetICETimeout() time.Duration {
	if wts.ICETimeout == 0 {
		return constants.DefaultICETimeout
	}
	return wts.ICETimeout
}

// HasPortRange reports whether ephemeral UDP ports are restricted.
func (wts *WebRTCOption) HasPortRange() bool {
	return wts.UDPPortMin != 0 && wts.UDPPortMax != 0
}

// String config to string
func (wts WebRTCOption) String() string {
	return fmt.Sprintf("WebRTCOption{ICEServers: %d, Codec: %s, ICETimeout: %v, UDP: %d-%d}",
		len(wts.ICEServers), wts.Codec, wts.ICETimeout, wts.UDPPortMin, wts.UDPPortMax)
}
