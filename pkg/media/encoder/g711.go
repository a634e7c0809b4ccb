package encoder

import (
	"github.com/LingByte/EchoClass/pkg/constants"
	"github.com/LingByte/EchoClass/pkg/media"
)

const (
	signBit   = 0x80
	quantMask = 0x0f
	segShift  = 4
	segMask   = 0x70
	ulawBias  = 0x84
	ulawClip  = 8159
)

var (
	segAEnd = [8]int{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}
	segUEnd = [8]int{0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF}
)

func search(val int, table [8]int) int {
	for i, end := range table {
		if val <= end {
			return i
		}
	}
	return len(table)
}

func linear2alaw(pcm int) byte {
	var mask int
	pcm >>= 3
	if pcm >= 0 {
		mask = 0xD5
	} else {
		mask = 0x55
		pcm = -pcm - 1
	}

	seg := search(pcm, segAEnd)
	if seg >= 8 {
		return byte(0x7F ^ mask)
	}
	aval := seg << segShift
	if seg < 2 {
		aval |= (pcm >> 1) & quantMask
	} else {
		aval |= (pcm >> seg) & quantMask
	}
	return byte(aval ^ mask)
}

func alaw2linear(a byte) int16 {
	v := int(a) ^ 0x55
	t := (v & quantMask) << 4
	seg := (v & segMask) >> segShift
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if v&signBit != 0 {
		return int16(t)
	}
	return int16(-t)
}

func linear2ulaw(pcm int) byte {
	mask := 0xFF
	pcm >>= 2
	if pcm < 0 {
		pcm = -pcm
		mask = 0x7F
	}
	if pcm > ulawClip {
		pcm = ulawClip
	}
	pcm += ulawBias >> 2

	seg := search(pcm, segUEnd)
	if seg >= 8 {
		return byte(0x7F ^ mask)
	}
	uval := (seg << 4) | ((pcm >> (seg + 1)) & quantMask)
	return byte(uval ^ mask)
}

func ulaw2linear(u byte) int16 {
	v := int(^u)
	t := ((v & quantMask) << 3) + ulawBias
	t <<= (v & segMask) >> segShift
	if v&signBit != 0 {
		return int16(ulawBias - t)
	}
	return int16(t - ulawBias)
}

// PCMU is G.711 mu-law.
type PCMU struct{}

func (PCMU) Name() string    { return constants.CodecPCMU }
func (PCMU) SampleRate() int { return 8000 }

func (PCMU) Encode(frame media.Frame) ([]byte, error) {
	out := make([]byte, len(frame))
	for i, s := range frame {
		out[i] = linear2ulaw(int(s))
	}
	return out, nil
}

func (PCMU) Decode(payload []byte) (media.Frame, error) {
	out := make(media.Frame, len(payload))
	for i, b := range payload {
		out[i] = ulaw2linear(b)
	}
	return out, nil
}

// PCMA is G.711 A-law.
type PCMA struct{}

func (PCMA) Name() string    { return constants.CodecPCMA }
func (PCMA) SampleRate() int { return 8000 }

func (PCMA) Encode(frame media.Frame) ([]byte, error) {
	out := make([]byte, len(frame))
	for i, s := range frame {
		out[i] = linear2alaw(int(s))
	}
	return out, nil
}

func (PCMA) Decode(payload []byte) (media.Frame, error) {
	out := make(media.Frame, len(payload))
	for i, b := range payload {
		out[i] = alaw2linear(b)
	}
	return out, nil
}
