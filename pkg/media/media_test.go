package media

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat_SamplesPerFrame(t *testing.T) {
	tests := []struct {
		rate int
		want int
	}{
		{8000, 160},
		{16000, 320},
		{48000, 960},
	}
	for _, tt := range tests {
		f := NewFormat(tt.rate)
		assert.Equal(t, tt.want, f.SamplesPerFrame())
		assert.Len(t, f.Silence(), tt.want)
	}

	f := Format{SampleRate: 8000, Channels: 1, FrameDuration: 10 * time.Millisecond}
	assert.Equal(t, 80, f.SamplesPerFrame())
}

func TestBytesFrameConversion(t *testing.T) {
	data := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80, 0x01}
	frame := BytesToFrame(data)
	assert.Equal(t, Frame{0, 32767, -32768}, frame)
	assert.True(t, bytes.Equal(data[:6], FrameToBytes(frame)))
}

func TestDownmixToMono(t *testing.T) {
	stereo := []int16{100, 300, -100, -300, 32767, 32767}
	assert.Equal(t, Frame{200, -200, 32767}, DownmixToMono(stereo, 2))
	assert.Equal(t, Frame{1, 2}, DownmixToMono([]int16{1, 2}, 1))
}

func TestClip16(t *testing.T) {
	assert.Equal(t, int16(32767), Clip16(40000))
	assert.Equal(t, int16(-32768), Clip16(-40000))
	assert.Equal(t, int16(12), Clip16(12))
}

func TestResamplePCM_SameRate(t *testing.T) {
	data := []byte{0x00, 0x01, 0x02, 0x03}
	result, err := ResamplePCM(data, 16000, 16000)
	require.NoError(t, err)
	assert.Equal(t, data, result)
}

func TestResamplePCM_UpAndDown(t *testing.T) {
	in := make(Frame, 160)
	for i := range in {
		in[i] = int16(i * 10)
	}

	up := ResampleFrame(in, 8000, 48000)
	assert.Len(t, up, 960)
	assert.Equal(t, in[0], up[0])
	assert.Equal(t, in[1], up[6])

	down := ResampleFrame(up, 48000, 8000)
	assert.Len(t, down, 160)
	assert.Equal(t, in[10], down[10])

	_, err := ResamplePCM([]byte{0, 0}, 0, 8000)
	assert.Error(t, err)
}

func TestRechunker(t *testing.T) {
	r := NewRechunker(4)
	assert.Empty(t, r.Write(Frame{1, 2, 3}))
	assert.Equal(t, 3, r.Buffered())

	frames := r.Write(Frame{4, 5, 6, 7, 8, 9})
	require.Len(t, frames, 2)
	assert.Equal(t, Frame{1, 2, 3, 4}, frames[0])
	assert.Equal(t, Frame{5, 6, 7, 8}, frames[1])
	assert.Equal(t, 1, r.Buffered())
}
