package devices

import (
	"sync"

	"github.com/LingByte/EchoClass/pkg/media"
)

// pcmBuffer is a bounded sample FIFO between a device callback and the
// frame clock. When full, the oldest samples are dropped.
type pcmBuffer struct {
	mu      sync.Mutex
	samples []int16
	limit   int
	dropped uint64
}

func newPCMBuffer(limit int) *pcmBuffer {
	return &pcmBuffer{limit: limit}
}

func (b *pcmBuffer) write(samples []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, samples...)
	if over := len(b.samples) - b.limit; over > 0 {
		b.samples = append(b.samples[:0], b.samples[over:]...)
		b.dropped += uint64(over)
	}
}

// read fills out from the buffer and zero-pads what is missing. It returns
// the number of real samples copied.
func (b *pcmBuffer) read(out []int16) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := copy(out, b.samples)
	b.samples = append(b.samples[:0], b.samples[n:]...)
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return n
}

// frame reads one full frame, or reports false if not enough is buffered.
func (b *pcmBuffer) frame(size int) (media.Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) < size {
		return nil, false
	}
	out := make(media.Frame, size)
	copy(out, b.samples)
	b.samples = append(b.samples[:0], b.samples[size:]...)
	return out, true
}
