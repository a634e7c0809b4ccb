package media

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/LingByte/EchoClass/pkg/constants"
)

// Frame is one frame of mono signed 16-bit PCM.
type Frame []int16

// Format describes the PCM every node of a room's mixing context exchanges.
type Format struct {
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
}

// NewFormat returns a mono format at sampleRate with the default frame size.
func NewFormat(sampleRate int) Format {
	return Format{
		SampleRate:    sampleRate,
		Channels:      constants.AudioChannels,
		FrameDuration: constants.FrameDuration,
	}
}

// SamplesPerFrame is the number of samples per channel in one frame.
func (f Format) SamplesPerFrame() int {
	return int(int64(f.SampleRate) * int64(f.FrameDuration) / int64(time.Second))
}

// Silence returns a zeroed frame of the format's length.
func (f Format) Silence() Frame {
	return make(Frame, f.SamplesPerFrame()*f.Channels)
}

// FrameSink accepts decoded frames. Push must not block for long.
type FrameSink interface {
	Push(frame Frame)
}

// Capture produces the host's outbound audio one frame at a time.
// ReadFrame returns silence rather than blocking when no audio is ready.
type Capture interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

// Playback renders audio locally for the host.
type Playback interface {
	WriteFrame(frame Frame) error
	Close() error
}

// BytesToFrame decodes little-endian 16-bit PCM. A trailing odd byte is dropped.
func BytesToFrame(data []byte) Frame {
	out := make(Frame, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// FrameToBytes encodes a frame as little-endian 16-bit PCM.
func FrameToBytes(frame Frame) []byte {
	out := make([]byte, len(frame)*2)
	for i, s := range frame {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DownmixToMono averages interleaved channels.
func DownmixToMono(samples []int16, channels int) Frame {
	if channels <= 1 {
		return Frame(samples)
	}
	out := make(Frame, len(samples)/channels)
	for i := range out {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(samples[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// Clip16 saturates v to the int16 range.
func Clip16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
