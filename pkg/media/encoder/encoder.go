package encoder

import (
	"fmt"
	"strings"

	"github.com/LingByte/EchoClass/pkg/constants"
	apperrors "github.com/LingByte/EchoClass/pkg/errors"
	"github.com/LingByte/EchoClass/pkg/media"
)

// Codec converts between PCM frames and RTP payloads. Instances may carry
// state (opus), so each pump owns its own.
type Codec interface {
	Name() string
	SampleRate() int
	Encode(frame media.Frame) ([]byte, error)
	Decode(payload []byte) (media.Frame, error)
}

// New returns a fresh codec instance by name.
func New(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case constants.CodecPCMU:
		return PCMU{}, nil
	case constants.CodecPCMA:
		return PCMA{}, nil
	case constants.CodecOPUS:
		return NewOpus()
	}
	return nil, apperrors.NewAppErrorf(apperrors.ErrCodeUnsupportedCodec, "unsupported codec %q", name)
}

// SampleRateOf returns the PCM rate a codec works at without instantiating it.
func SampleRateOf(name string) (int, error) {
	switch strings.ToLower(name) {
	case constants.CodecPCMU, constants.CodecPCMA:
		return 8000, nil
	case constants.CodecOPUS:
		return opusSampleRate, nil
	}
	return 0, fmt.Errorf("unsupported codec %q", name)
}
