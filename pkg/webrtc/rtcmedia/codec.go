package rtcmedia

import (
	"fmt"
	"strings"

	"github.com/LingByte/EchoClass/pkg/constants"
	"github.com/pion/webrtc/v3"
)

// CodecParameters maps a codec name onto its RTP registration.
func CodecParameters(codecName string) (webrtc.RTPCodecParameters, error) {
	switch strings.ToLower(codecName) {
	case constants.CodecPCMU:
		return webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, Channels: 1},
			PayloadType:        0,
		}, nil
	case constants.CodecPCMA:
		return webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000, Channels: 1},
			PayloadType:        8,
		}, nil
	case constants.CodecOPUS:
		return webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeOpus,
				ClockRate:   48000,
				Channels:    2,
				SDPFmtpLine: "minptime=10;useinbandfec=1",
			},
			PayloadType: 111,
		}, nil
	}
	return webrtc.RTPCodecParameters{}, fmt.Errorf("unsupported codec %q", codecName)
}

// NewMediaEngine registers only the configured audio codec, so every
// negotiated track carries audio the mixer can decode.
func NewMediaEngine(codecName string) (*webrtc.MediaEngine, error) {
	params, err := CodecParameters(codecName)
	if err != nil {
		return nil, err
	}
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(params, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register %s: %w", codecName, err)
	}
	return m, nil
}

// codecNameOf returns the codec name for a negotiated mime type.
func codecNameOf(mimeType string) (string, bool) {
	switch strings.ToLower(mimeType) {
	case strings.ToLower(webrtc.MimeTypePCMU):
		return constants.CodecPCMU, true
	case strings.ToLower(webrtc.MimeTypePCMA):
		return constants.CodecPCMA, true
	case strings.ToLower(webrtc.MimeTypeOpus):
		return constants.CodecOPUS, true
	}
	return "", false
}
