package devices

import (
	"context"
	"fmt"
	"sync"

	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// bufferedFrames bounds device buffers to half a second at 20ms frames.
const bufferedFrames = 25

// audioDevice owns one malgo context and device.
type audioDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	once   sync.Once
}

func openDevice(kind malgo.DeviceType, format media.Format, data func(out, in []byte, frames uint32), logger *zap.Logger) (*audioDevice, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", zap.String("message", message))
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(format.Channels)

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: data})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("init audio device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("start audio device: %w", err)
	}
	return &audioDevice{ctx: ctx, device: device}, nil
}

func (d *audioDevice) close() error {
	var err error
	d.once.Do(func() {
		d.device.Uninit()
		err = d.ctx.Uninit()
		d.ctx.Free()
	})
	return err
}

// DeviceCapture records the host microphone.
type DeviceCapture struct {
	dev    *audioDevice
	buf    *pcmBuffer
	format media.Format
}

func NewDeviceCapture(format media.Format, logger *zap.Logger) (*DeviceCapture, error) {
	c := &DeviceCapture{
		buf:    newPCMBuffer(format.SamplesPerFrame() * bufferedFrames),
		format: format,
	}
	dev, err := openDevice(malgo.Capture, format, func(_, in []byte, _ uint32) {
		c.buf.write(media.BytesToFrame(in))
	}, logger)
	if err != nil {
		return nil, err
	}
	c.dev = dev
	logger.Info("capture device started", zap.Int("sample_rate", format.SampleRate))
	return c, nil
}

// ReadFrame returns silence when the device is behind the frame clock.
func (c *DeviceCapture) ReadFrame(ctx context.Context) (media.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame, ok := c.buf.frame(c.format.SamplesPerFrame()); ok {
		return frame, nil
	}
	return c.format.Silence(), nil
}

func (c *DeviceCapture) Close() error {
	return c.dev.close()
}

// DevicePlayback renders the host monitor on the default output device.
type DevicePlayback struct {
	dev *audioDevice
	buf *pcmBuffer
}

func NewDevicePlayback(format media.Format, logger *zap.Logger) (*DevicePlayback, error) {
	p := &DevicePlayback{buf: newPCMBuffer(format.SamplesPerFrame() * bufferedFrames)}
	dev, err := openDevice(malgo.Playback, format, func(out, _ []byte, _ uint32) {
		samples := make([]int16, len(out)/2)
		p.buf.read(samples)
		copy(out, media.FrameToBytes(samples))
	}, logger)
	if err != nil {
		return nil, err
	}
	p.dev = dev
	logger.Info("playback device started", zap.Int("sample_rate", format.SampleRate))
	return p, nil
}

func (p *DevicePlayback) WriteFrame(frame media.Frame) error {
	p.buf.write(frame)
	return nil
}

func (p *DevicePlayback) Close() error {
	return p.dev.close()
}
