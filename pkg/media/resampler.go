package media

import "fmt"

// ResampleFrame converts mono PCM between sample rates by linear interpolation.
func ResampleFrame(in Frame, inputRate, outputRate int) Frame {
	if inputRate == outputRate || len(in) == 0 {
		return in
	}
	outLen := int(int64(len(in)) * int64(outputRate) / int64(inputRate))
	if outLen == 0 {
		return Frame{}
	}
	out := make(Frame, outLen)
	step := float64(inputRate) / float64(outputRate)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := pos - float64(idx)
		v := float64(in[idx])*(1-frac) + float64(in[idx+1])*frac
		out[i] = Clip16(int32(v))
	}
	return out
}

// ResamplePCM resamples little-endian 16-bit mono PCM bytes.
func ResamplePCM(data []byte, inputRate, outputRate int) ([]byte, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", inputRate, outputRate)
	}
	if inputRate == outputRate {
		return data, nil
	}
	return FrameToBytes(ResampleFrame(BytesToFrame(data), inputRate, outputRate)), nil
}

// Rechunker accumulates samples of arbitrary length and emits fixed-size frames.
type Rechunker struct {
	size int
	buf  Frame
}

func NewRechunker(frameSize int) *Rechunker {
	return &Rechunker{size: frameSize}
}

// Write appends samples and returns every complete frame now available.
func (r *Rechunker) Write(samples Frame) []Frame {
	r.buf = append(r.buf, samples...)
	var out []Frame
	for len(r.buf) >= r.size {
		f := make(Frame, r.size)
		copy(f, r.buf[:r.size])
		out = append(out, f)
		r.buf = r.buf[r.size:]
	}
	if len(r.buf) == 0 {
		r.buf = nil
	}
	return out
}

// Buffered is the number of samples waiting for a full frame.
func (r *Rechunker) Buffered() int {
	return len(r.buf)
}
