package devices

import (
	"context"

	"github.com/LingByte/EchoClass/pkg/media"
)

// Silence is a capture that never has anything to say.
type Silence struct {
	format media.Format
}

func NewSilence(format media.Format) *Silence {
	return &Silence{format: format}
}

func (s *Silence) ReadFrame(ctx context.Context) (media.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.format.Silence(), nil
}

func (s *Silence) Close() error { return nil }

// Discard drops every frame.
type Discard struct{}

func (Discard) WriteFrame(media.Frame) error { return nil }

func (Discard) Close() error { return nil }
