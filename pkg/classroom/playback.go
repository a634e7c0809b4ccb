package classroom

import (
	"context"
	"fmt"
	"time"

	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/LingByte/EchoClass/pkg/mixer"
	"go.uber.org/zap"
)

// playback pumps the room's monitor mix to the host's local output.
type playback struct {
	sink   media.Playback
	cancel context.CancelFunc
	done   chan struct{}
}

func startPlayback(sink media.Playback, bus *mixer.Bus, interval time.Duration, logger *zap.Logger) *playback {
	ctx, cancel := context.WithCancel(context.Background())
	p := &playback{sink: sink, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := sink.WriteFrame(bus.Pull()); err != nil {
					logger.Warn("playback write failed", zap.Error(err))
					return
				}
			}
		}
	}()
	return p
}

func (p *playback) stop() error {
	p.cancel()
	<-p.done
	return p.sink.Close()
}

// resumePlayback starts local monitoring of the room. Repeat calls while it
// is running do nothing.
func (r *RoomSession) resumePlayback() error {
	if r.state != RoomOpen {
		return fmt.Errorf("%w: %s", ErrRoomClosed, r.ID)
	}
	if r.playback != nil {
		return nil
	}
	sink, err := r.engine.OpenPlayback(r.ID)
	if err != nil {
		return fmt.Errorf("%w: playback for room %s: %v", ErrMediaUnavailable, r.ID, err)
	}
	r.playback = startPlayback(sink, r.monitor, r.mixCtx.Format().FrameDuration, r.logger)
	r.logger.Info("playback resumed")
	return nil
}

func (r *RoomSession) stopPlayback() {
	if r.playback == nil {
		return
	}
	if err := r.playback.stop(); err != nil {
		r.logger.Debug("close playback", zap.Error(err))
	}
	r.playback = nil
}
