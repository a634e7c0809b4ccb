package devices

import (
	"github.com/LingByte/EchoClass/pkg/config"
	"github.com/LingByte/EchoClass/pkg/constants"
	apperrors "github.com/LingByte/EchoClass/pkg/errors"
	"github.com/LingByte/EchoClass/pkg/media"
	"go.uber.org/zap"
)

// CaptureOpener returns the opener for the configured capture kind. Every
// room gets its own capture instance.
func CaptureOpener(cfg config.DevicesConfig, logger *zap.Logger) func(roomID string, format media.Format) (media.Capture, error) {
	return func(roomID string, format media.Format) (media.Capture, error) {
		log := logger.With(zap.String("room_id", roomID), zap.String("capture", cfg.CaptureKind))
		switch cfg.CaptureKind {
		case constants.CaptureSilence, "":
			return NewSilence(format), nil
		case constants.CaptureWAV:
			c, err := NewWAVCapture(cfg.CaptureFile, format)
			if err != nil {
				return nil, unavailable(err, "open capture file %s", cfg.CaptureFile)
			}
			log.Info("looping capture file", zap.String("file", cfg.CaptureFile))
			return c, nil
		case constants.CaptureDevice:
			c, err := NewDeviceCapture(format, log)
			if err != nil {
				return nil, unavailable(err, "open capture device")
			}
			return c, nil
		}
		return nil, apperrors.NewAppErrorf(apperrors.ErrCodeInvalidConfig, "unknown capture kind %q", cfg.CaptureKind)
	}
}

// PlaybackOpener returns the opener for the configured playback kind.
func PlaybackOpener(cfg config.DevicesConfig, logger *zap.Logger) func(roomID string, format media.Format) (media.Playback, error) {
	return func(roomID string, format media.Format) (media.Playback, error) {
		log := logger.With(zap.String("room_id", roomID), zap.String("playback", cfg.PlaybackKind))
		switch cfg.PlaybackKind {
		case constants.PlaybackDiscard, "":
			return Discard{}, nil
		case constants.PlaybackWAV:
			return NewWAVRecorder(cfg.PlaybackFile, format), nil
		case constants.PlaybackDevice:
			p, err := NewDevicePlayback(format, log)
			if err != nil {
				return nil, unavailable(err, "open playback device")
			}
			return p, nil
		}
		return nil, apperrors.NewAppErrorf(apperrors.ErrCodeInvalidConfig, "unknown playback kind %q", cfg.PlaybackKind)
	}
}

func unavailable(cause error, format string, args ...interface{}) error {
	err := apperrors.NewAppErrorf(apperrors.ErrCodeMediaUnavailable, format, args...)
	err.Cause = cause
	return err
}
