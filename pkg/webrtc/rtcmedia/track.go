package rtcmedia

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/LingByte/EchoClass/pkg/media/encoder"
	"github.com/LingByte/EchoClass/pkg/webrtc/constants"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

// framePump encodes one frame per tick into a local track until stopped.
type framePump struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startFramePump(track *webrtc.TrackLocalStaticSample, codec encoder.Codec, interval time.Duration,
	next func(ctx context.Context) (media.Frame, error), logger *zap.Logger) *framePump {
	ctx, cancel := context.WithCancel(context.Background())
	p := &framePump{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			frame, err := next(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("audio source ended", zap.String("track_id", track.ID()), zap.Error(err))
				}
				return
			}
			payload, err := codec.Encode(frame)
			if err != nil {
				logger.Debug("encode frame", zap.Error(err))
				continue
			}
			if err := track.WriteSample(pionmedia.Sample{Data: payload, Duration: interval}); err != nil {
				logger.Debug("write sample", zap.String("track_id", track.ID()), zap.Error(err))
			}
		}
	}()
	return p
}

func (p *framePump) stop() {
	p.cancel()
	<-p.done
}

// hostTrack is the host's audio. One local track is shared by every leg of
// the room; pion fans the samples out to each bound sender.
type hostTrack struct {
	track   *webrtc.TrackLocalStaticSample
	capture media.Capture
	pump    *framePump
	once    sync.Once
}

func newHostTrack(roomID, codecName string, capture media.Capture, format media.Format, logger *zap.Logger) (*hostTrack, error) {
	params, err := CodecParameters(codecName)
	if err != nil {
		return nil, err
	}
	codec, err := encoder.New(codecName)
	if err != nil {
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(params.RTPCodecCapability, constants.HostTrackID, constants.HostStreamID)
	if err != nil {
		return nil, fmt.Errorf("host track for %s: %w", roomID, err)
	}
	h := &hostTrack{track: track, capture: capture}
	h.pump = startFramePump(track, codec, format.FrameDuration, capture.ReadFrame, logger.With(zap.String("room_id", roomID)))
	return h, nil
}

func (h *hostTrack) ID() string {
	return h.track.ID()
}

func (h *hostTrack) Close() error {
	var err error
	h.once.Do(func() {
		h.pump.stop()
		err = h.capture.Close()
	})
	return err
}

// trackSender detaches one local track from a peer connection.
type trackSender struct {
	pc     *webrtc.PeerConnection
	sender *webrtc.RTPSender
	pump   *framePump
	once   sync.Once
}

func (s *trackSender) Stop() error {
	var err error
	s.once.Do(func() {
		if s.pump != nil {
			s.pump.stop()
		}
		err = s.pc.RemoveTrack(s.sender)
		if errors.Is(err, webrtc.ErrConnectionClosed) {
			err = nil
		}
	})
	return err
}

// drainRTCP reads sender reports so the interceptors keep running, and logs
// heavy loss reported by the participant.
func drainRTCP(sender *webrtc.RTPSender, logger *zap.Logger) {
	go func() {
		for {
			packets, _, err := sender.ReadRTCP()
			if err != nil {
				return
			}
			for _, pkt := range packets {
				rr, ok := pkt.(*rtcp.ReceiverReport)
				if !ok {
					continue
				}
				for _, report := range rr.Reports {
					// FractionLost is in 1/256ths
					if report.FractionLost > 25 {
						logger.Debug("participant reports loss",
							zap.Uint32("ssrc", report.SSRC),
							zap.Float64("fraction_lost", float64(report.FractionLost)/256))
					}
				}
			}
		}
	}()
}

// newMixTrack creates a leg's private mix track and the codec its pump
// encodes with.
func newMixTrack(participantID, codecName string) (*webrtc.TrackLocalStaticSample, encoder.Codec, error) {
	params, err := CodecParameters(codecName)
	if err != nil {
		return nil, nil, err
	}
	codec, err := encoder.New(codecName)
	if err != nil {
		return nil, nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(params.RTPCodecCapability, "mix-"+participantID, constants.MixStreamID)
	if err != nil {
		return nil, nil, err
	}
	return track, codec, nil
}

// inboundTrack decodes a participant's RTP into frames of the mixing format.
type inboundTrack struct {
	remote   *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
	codec    encoder.Codec
	format   media.Format
	logger   *zap.Logger

	stopped chan struct{}
	once    sync.Once
	packets atomic.Uint64
	lost    atomic.Uint64
}

func newInboundTrack(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver, codec encoder.Codec,
	format media.Format, logger *zap.Logger) *inboundTrack {
	return &inboundTrack{
		remote:   remote,
		receiver: receiver,
		codec:    codec,
		format:   format,
		logger:   logger,
		stopped:  make(chan struct{}),
	}
}

func (t *inboundTrack) ID() string {
	if id := t.remote.ID(); id != "" {
		return id
	}
	return fmt.Sprintf("ssrc-%d", t.remote.SSRC())
}

func (t *inboundTrack) Start(sink media.FrameSink) {
	go t.readLoop(sink)
}

func (t *inboundTrack) readLoop(sink media.FrameSink) {
	rechunker := media.NewRechunker(t.format.SamplesPerFrame())
	var (
		lastSeq uint16
		started bool
	)
	for {
		pkt, _, err := t.remote.ReadRTP()
		if err != nil {
			select {
			case <-t.stopped:
			default:
				t.logger.Debug("inbound track ended", zap.String("track_id", t.ID()), zap.Error(err))
			}
			return
		}
		t.count(pkt, lastSeq, started)
		lastSeq, started = pkt.SequenceNumber, true

		if len(pkt.Payload) == 0 {
			continue
		}
		pcm, err := t.codec.Decode(pkt.Payload)
		if err != nil {
			t.logger.Debug("decode packet", zap.Uint16("seq", pkt.SequenceNumber), zap.Error(err))
			continue
		}
		if rate := t.codec.SampleRate(); rate != t.format.SampleRate {
			pcm = media.ResampleFrame(pcm, rate, t.format.SampleRate)
		}
		for _, frame := range rechunker.Write(pcm) {
			sink.Push(frame)
		}
	}
}

// count tracks received packets and sequence gaps. Late, reordered packets
// are not counted as loss.
func (t *inboundTrack) count(pkt *rtp.Packet, lastSeq uint16, started bool) {
	t.packets.Add(1)
	if started && pkt.SequenceNumber != lastSeq+1 {
		if gap := pkt.SequenceNumber - lastSeq - 1; gap < 1<<15 {
			t.lost.Add(uint64(gap))
		}
	}
}

func (t *inboundTrack) Stop() error {
	var err error
	t.once.Do(func() {
		close(t.stopped)
		err = t.receiver.Stop()
		t.logger.Debug("inbound track stopped",
			zap.String("track_id", t.ID()),
			zap.Uint64("packets", t.packets.Load()),
			zap.Uint64("lost", t.lost.Load()))
	})
	return err
}
