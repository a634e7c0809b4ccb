package constants

import "time"

const (
	CodecPCMU = "pcmu"
	CodecPCMA = "pcma"
	CodecOPUS = "opus"
)

// DefaultCodec is G.711 mu-law: 8 kHz, no cgo.
const DefaultCodec = CodecPCMU

// IsSupportedCodec reports whether name is an audio codec the relay can mix.
func IsSupportedCodec(name string) bool {
	switch name {
	case CodecPCMU, CodecPCMA, CodecOPUS:
		return true
	}
	return false
}

// Audio framing shared by the mixer, the encoders and every pump.
const (
	FrameDuration = 20 * time.Millisecond
	AudioChannels = 1
	// MixQueueFrames bounds how far a forwarded source may run ahead of a mix.
	MixQueueFrames = 10
)

// Host capture collaborators.
const (
	CaptureSilence = "silence"
	CaptureWAV     = "wav"
	CaptureDevice  = "device"
)

// Host playback collaborators.
const (
	PlaybackDiscard = "discard"
	PlaybackDevice  = "device"
	PlaybackWAV     = "wav"
)

// Room close reasons reported in roomClosed.
const (
	ReasonHostLeft       = "host left"
	ReasonHostClosed     = "host closed the room"
	ReasonServerShutdown = "server shutdown"
)
