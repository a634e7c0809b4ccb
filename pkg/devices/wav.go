package devices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/youpy/go-wav"
)

const wavBitsPerSample = 16

// LoadWAV reads a 16-bit PCM WAV file as mono samples at sampleRate.
func LoadWAV(path string, sampleRate int) (media.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := wav.NewReader(file)
	format, err := r.Format()
	if err != nil {
		return nil, fmt.Errorf("read wav format: %w", err)
	}
	if format.BitsPerSample != wavBitsPerSample {
		return nil, fmt.Errorf("%s: %d-bit wav is not supported", path, format.BitsPerSample)
	}

	var data []byte
	buf := make([]byte, 8192)
	for {
		n, err := r.Read(buf)
		data = append(data, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read wav data: %w", err)
		}
	}

	samples := media.DownmixToMono(media.BytesToFrame(data), int(format.NumChannels))
	return media.ResampleFrame(samples, int(format.SampleRate), sampleRate), nil
}

// WAVCapture loops a WAV file as the host's audio.
type WAVCapture struct {
	samples media.Frame
	size    int

	mu  sync.Mutex
	pos int
}

func NewWAVCapture(path string, format media.Format) (*WAVCapture, error) {
	samples, err := LoadWAV(path, format.SampleRate)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s holds no audio", path)
	}
	return &WAVCapture{samples: samples, size: format.SamplesPerFrame()}, nil
}

func (c *WAVCapture) ReadFrame(ctx context.Context) (media.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := make(media.Frame, c.size)
	for i := range frame {
		frame[i] = c.samples[c.pos]
		c.pos = (c.pos + 1) % len(c.samples)
	}
	return frame, nil
}

func (c *WAVCapture) Close() error { return nil }

// WAVRecorder collects frames and writes them as one WAV file on Close.
type WAVRecorder struct {
	path   string
	format media.Format

	mu      sync.Mutex
	samples media.Frame
	closed  bool
}

func NewWAVRecorder(path string, format media.Format) *WAVRecorder {
	return &WAVRecorder{path: path, format: format}
}

func (w *WAVRecorder) WriteFrame(frame media.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	w.samples = append(w.samples, frame...)
	return nil
}

// Samples returns how many samples were recorded so far.
func (w *WAVRecorder) Samples() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

func (w *WAVRecorder) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(w.path)
	if err != nil {
		return err
	}
	writer := wav.NewWriter(file, uint32(len(w.samples)), uint16(w.format.Channels), uint32(w.format.SampleRate), wavBitsPerSample)
	if _, err := writer.Write(media.FrameToBytes(w.samples)); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	return file.Close()
}
