package rtcmedia

import (
	"testing"

	"github.com/LingByte/EchoClass/pkg/constants"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecParameters(t *testing.T) {
	tests := []struct {
		name      string
		codecName string
		mime      string
		clock     uint32
		pt        webrtc.PayloadType
	}{
		{"PCMU codec", constants.CodecPCMU, webrtc.MimeTypePCMU, 8000, 0},
		{"PCMA codec", constants.CodecPCMA, webrtc.MimeTypePCMA, 8000, 8},
		{"OPUS codec", constants.CodecOPUS, webrtc.MimeTypeOpus, 48000, 111},
		{"upper case", "PCMU", webrtc.MimeTypePCMU, 8000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := CodecParameters(tt.codecName)
			require.NoError(t, err)
			assert.Equal(t, tt.mime, params.MimeType)
			assert.Equal(t, tt.clock, params.ClockRate)
			assert.Equal(t, tt.pt, params.PayloadType)
		})
	}
}

func TestCodecParameters_Unknown(t *testing.T) {
	_, err := CodecParameters("g729")
	assert.Error(t, err)

	_, err = NewMediaEngine("g729")
	assert.Error(t, err)
}

func TestCodecNameOf(t *testing.T) {
	name, ok := codecNameOf("audio/PCMU")
	assert.True(t, ok)
	assert.Equal(t, constants.CodecPCMU, name)

	name, ok = codecNameOf("audio/opus")
	assert.True(t, ok)
	assert.Equal(t, constants.CodecOPUS, name)

	_, ok = codecNameOf("video/VP8")
	assert.False(t, ok)
}
