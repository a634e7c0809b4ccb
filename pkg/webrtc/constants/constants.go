package constants

import (
	"time"
)

const (
	DefaultICETimeout    = 10 * time.Second
	ICEKeepaliveInterval = 2 * time.Second
	// HostStreamID groups the host audio track on every leg.
	HostStreamID = "echoclass-host"
	HostTrackID  = "host-audio"
	// MixStreamID groups a leg's private mix track.
	MixStreamID = "echoclass-mix"
)
