package encoder

import (
	"fmt"

	"github.com/LingByte/EchoClass/pkg/constants"
	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/hraban/opus"
)

const (
	opusSampleRate = 48000
	// 120 ms at 48 kHz, the largest packet opus can carry.
	opusMaxFrame = 5760
	opusMaxBytes = 1275
)

// Opus wraps a libopus encoder/decoder pair for mono voice at 48 kHz.
type Opus struct {
	enc *opus.Encoder
	dec *opus.Decoder
}

func NewOpus() (*Opus, error) {
	enc, err := opus.NewEncoder(opusSampleRate, constants.AudioChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	dec, err := opus.NewDecoder(opusSampleRate, constants.AudioChannels)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	return &Opus{enc: enc, dec: dec}, nil
}

func (o *Opus) Name() string    { return constants.CodecOPUS }
func (o *Opus) SampleRate() int { return opusSampleRate }

func (o *Opus) Encode(frame media.Frame) ([]byte, error) {
	buf := make([]byte, opusMaxBytes)
	n, err := o.enc.Encode(frame, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (o *Opus) Decode(payload []byte) (media.Frame, error) {
	pcm := make([]int16, opusMaxFrame)
	n, err := o.dec.Decode(payload, pcm)
	if err != nil {
		return nil, err
	}
	return media.Frame(pcm[:n]), nil
}
