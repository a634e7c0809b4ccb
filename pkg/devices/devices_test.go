package devices

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/LingByte/EchoClass/pkg/config"
	"github.com/LingByte/EchoClass/pkg/constants"
	apperrors "github.com/LingByte/EchoClass/pkg/errors"
	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ramp(n int) media.Frame {
	out := make(media.Frame, n)
	for i := range out {
		out[i] = int16(i * 10)
	}
	return out
}

func TestSilence(t *testing.T) {
	s := NewSilence(media.NewFormat(8000))
	frame, err := s.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Len(t, frame, 160)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWAVRecorderAndLoad(t *testing.T) {
	format := media.NewFormat(8000)
	path := filepath.Join(t.TempDir(), "out", "heard.wav")

	rec := NewWAVRecorder(path, format)
	require.NoError(t, rec.WriteFrame(ramp(160)))
	require.NoError(t, rec.WriteFrame(ramp(160)))
	assert.Equal(t, 320, rec.Samples())
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	assert.Error(t, rec.WriteFrame(ramp(1)))

	samples, err := LoadWAV(path, 8000)
	require.NoError(t, err)
	require.Len(t, samples, 320)
	assert.Equal(t, int16(10), samples[1])
	assert.Equal(t, int16(1590), samples[159])

	up, err := LoadWAV(path, 16000)
	require.NoError(t, err)
	assert.Len(t, up, 640)
}

func TestWAVCaptureLoops(t *testing.T) {
	format := media.NewFormat(8000)
	path := filepath.Join(t.TempDir(), "host.wav")
	rec := NewWAVRecorder(path, format)
	require.NoError(t, rec.WriteFrame(ramp(100)))
	require.NoError(t, rec.Close())

	c, err := NewWAVCapture(path, format)
	require.NoError(t, err)
	defer c.Close()

	first, err := c.ReadFrame(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 160)
	assert.Equal(t, int16(0), first[0])
	assert.Equal(t, int16(990), first[99])
	// wraps back to the start of the file
	assert.Equal(t, int16(0), first[100])
	assert.Equal(t, int16(590), first[159])
}

func TestWAVCaptureMissingFile(t *testing.T) {
	_, err := NewWAVCapture(filepath.Join(t.TempDir(), "nope.wav"), media.NewFormat(8000))
	assert.Error(t, err)
}

func TestPCMBuffer(t *testing.T) {
	b := newPCMBuffer(4)
	b.write([]int16{1, 2, 3})
	b.write([]int16{4, 5, 6})
	assert.Equal(t, uint64(2), b.dropped)

	_, ok := b.frame(5)
	assert.False(t, ok)
	frame, ok := b.frame(2)
	require.True(t, ok)
	assert.Equal(t, media.Frame{3, 4}, frame)

	out := make([]int16, 4)
	assert.Equal(t, 2, b.read(out))
	assert.Equal(t, []int16{5, 6, 0, 0}, out)
}

func TestOpeners(t *testing.T) {
	format := media.NewFormat(8000)
	logger := zap.NewNop()

	capture, err := CaptureOpener(config.DevicesConfig{CaptureKind: constants.CaptureSilence}, logger)("math", format)
	require.NoError(t, err)
	assert.IsType(t, &Silence{}, capture)

	_, err = CaptureOpener(config.DevicesConfig{CaptureKind: constants.CaptureWAV, CaptureFile: "/does/not/exist.wav"}, logger)("math", format)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMediaUnavailable, apperrors.CodeOf(err))

	_, err = CaptureOpener(config.DevicesConfig{CaptureKind: "tape"}, logger)("math", format)
	assert.Equal(t, apperrors.ErrCodeInvalidConfig, apperrors.CodeOf(err))

	playback, err := PlaybackOpener(config.DevicesConfig{PlaybackKind: constants.PlaybackDiscard}, logger)("math", format)
	require.NoError(t, err)
	assert.NoError(t, playback.WriteFrame(format.Silence()))

	path := filepath.Join(t.TempDir(), "monitor.wav")
	playback, err = PlaybackOpener(config.DevicesConfig{PlaybackKind: constants.PlaybackWAV, PlaybackFile: path}, logger)("math", format)
	require.NoError(t, err)
	require.NoError(t, playback.WriteFrame(format.Silence()))
	require.NoError(t, playback.Close())
	samples, err := LoadWAV(path, 8000)
	require.NoError(t, err)
	assert.Len(t, samples, 160)
}
