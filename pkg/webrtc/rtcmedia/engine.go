package rtcmedia

import (
	"context"
	"fmt"

	"github.com/LingByte/EchoClass/pkg/classroom"
	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/LingByte/EchoClass/pkg/media/encoder"
	"github.com/LingByte/EchoClass/pkg/mixer"
	"github.com/LingByte/EchoClass/pkg/webrtc/constants"
	"github.com/LingByte/EchoClass/pkg/webrtc/rtcmedia/config"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// CaptureOpener opens the host's audio source for a room.
type CaptureOpener func(roomID string, format media.Format) (media.Capture, error)

// PlaybackOpener opens the host's local output for a room.
type PlaybackOpener func(roomID string, format media.Format) (media.Playback, error)

// Engine creates pion peer connections for the classroom coordinator.
type Engine struct {
	opt      *config.WebRTCOption
	api      *webrtc.API
	format   media.Format
	capture  CaptureOpener
	playback PlaybackOpener
	logger   *zap.Logger
}

var _ classroom.MediaEngine = (*Engine)(nil)

func NewEngine(opt *config.WebRTCOption, capture CaptureOpener, playback PlaybackOpener, logger *zap.Logger) (*Engine, error) {
	if opt == nil {
		return nil, fmt.Errorf("webrtc option is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rate, err := encoder.SampleRateOf(opt.Codec)
	if err != nil {
		return nil, err
	}
	me, err := NewMediaEngine(opt.Codec)
	if err != nil {
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if opt.HasPortRange() {
		if err := se.SetEphemeralUDPPortRange(opt.UDPPortMin, opt.UDPPortMax); err != nil {
			return nil, fmt.Errorf("udp port range: %w", err)
		}
	}
	timeout := opt.GetICETimeout()
	se.SetICETimeouts(timeout/2, timeout*2, constants.ICEKeepaliveInterval)

	e := &Engine{
		opt:      opt,
		api:      webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se), webrtc.WithInterceptorRegistry(registry)),
		format:   media.NewFormat(rate),
		capture:  capture,
		playback: playback,
		logger:   logger.Named("rtc"),
	}
	e.logger.Info("webrtc engine ready", zap.Stringer("option", opt))
	return e, nil
}

func (e *Engine) Format() media.Format {
	return e.format
}

func (e *Engine) NewTransport(participantID string, handler classroom.TransportHandler) (classroom.Transport, error) {
	return newConnection(e, participantID, handler)
}

func (e *Engine) OpenHostTrack(roomID string) (classroom.HostTrack, error) {
	if e.capture == nil {
		return nil, fmt.Errorf("no capture source configured")
	}
	capture, err := e.capture(roomID, e.format)
	if err != nil {
		return nil, err
	}
	host, err := newHostTrack(roomID, e.opt.Codec, capture, e.format, e.logger)
	if err != nil {
		_ = capture.Close()
		return nil, err
	}
	return host, nil
}

func (e *Engine) OpenPlayback(roomID string) (media.Playback, error) {
	if e.playback == nil {
		return nil, fmt.Errorf("no playback device configured")
	}
	return e.playback(roomID, e.format)
}

func newCodec(name string) (encoder.Codec, error) {
	return encoder.New(name)
}

func pullFrom(bus *mixer.Bus) func(ctx context.Context) (media.Frame, error) {
	return func(context.Context) (media.Frame, error) {
		return bus.Pull(), nil
	}
}
