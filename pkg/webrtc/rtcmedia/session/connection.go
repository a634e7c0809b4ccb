package session

import (
	"context"
	"fmt"
	"time"

	"github.com/LingByte/EchoClass/pkg/devices"
	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/LingByte/EchoClass/pkg/media/encoder"
	"github.com/LingByte/EchoClass/pkg/protocol"
	"github.com/LingByte/EchoClass/pkg/webrtc/constants"
	"github.com/LingByte/EchoClass/pkg/webrtc/rtcmedia"
	"github.com/pion/webrtc/v3"
	webrtcmedia "github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

const packetLogInterval = 250

// newPeerConnection builds the participant's side: a sendrecv microphone
// and a recvonly slot the host fills with the mix.
func (c *Client) newPeerConnection() error {
	me, err := rtcmedia.NewMediaEngine(c.opt.Codec)
	if err != nil {
		return err
	}
	pc, err := webrtc.NewAPI(webrtc.WithMediaEngine(me)).NewPeerConnection(webrtc.Configuration{ICEServers: c.opt.ICEServers})
	if err != nil {
		return fmt.Errorf("peer connection: %w", err)
	}
	params, err := rtcmedia.CodecParameters(c.opt.Codec)
	if err != nil {
		pc.Close()
		return err
	}
	mic, err := webrtc.NewTrackLocalStaticSample(params.RTPCodecCapability, "mic", "participant")
	if err != nil {
		pc.Close()
		return err
	}
	if _, err := pc.AddTransceiverFromTrack(mic, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv}); err != nil {
		pc.Close()
		return fmt.Errorf("add microphone: %w", err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
		pc.Close()
		return fmt.Errorf("add mix slot: %w", err)
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		if err := c.send(&protocol.Message{Type: protocol.MessageTypeSendICE, RoomID: c.opt.RoomID, Candidate: &init}); err != nil {
			c.logger.Debug("[Client -> Server] send candidate", zap.Error(err))
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Info("[Client] connection state", zap.String("state", state.String()))
		if state == webrtc.PeerConnectionStateConnected {
			c.sending.Do(func() { go c.sendAudio() })
		}
	})
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go c.receive(remote)
	})

	c.pc = pc
	c.mic = mic
	return nil
}

func (c *Client) audioSource() (media.Capture, error) {
	if c.opt.AudioFile == "" {
		return devices.NewSilence(c.format), nil
	}
	return devices.NewWAVCapture(c.opt.AudioFile, c.format)
}

// sendAudio streams the microphone source at the frame rate until the
// client closes.
func (c *Client) sendAudio() {
	source, err := c.audioSource()
	if err != nil {
		c.logger.Error("[Client] audio source", zap.Error(err))
		return
	}
	defer source.Close()

	interval := c.format.FrameDuration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	sent := 0
	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("[Client] finished sending audio", zap.Int("frames", sent))
			return
		case <-ticker.C:
		}
		frame, err := source.ReadFrame(c.ctx)
		if err != nil {
			return
		}
		payload, err := c.codec.Encode(frame)
		if err != nil {
			continue
		}
		if err := c.mic.WriteSample(webrtcmedia.Sample{Data: payload, Duration: interval}); err != nil {
			c.logger.Debug("[Client] write sample", zap.Error(err))
			continue
		}
		sent++
	}
}

// receive counts the host and mix tracks apart by stream id and records the
// mix.
func (c *Client) receive(remote *webrtc.TrackRemote) {
	isHost := remote.StreamID() == constants.HostStreamID
	log := c.logger.With(zap.String("stream_id", remote.StreamID()), zap.String("track_id", remote.ID()))
	log.Info("[Client] receiving audio", zap.String("mime", remote.Codec().MimeType))

	// opus decoders carry state, so each track decodes with its own codec
	decoder, err := encoder.New(c.opt.Codec)
	if err != nil {
		log.Error("[Client] decoder", zap.Error(err))
		return
	}
	count := 0
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			if c.ctx.Err() == nil {
				log.Debug("[Client] track ended", zap.Error(err))
			}
			return
		}
		count++
		if isHost {
			c.hostPackets.Add(1)
		} else {
			c.mixPackets.Add(1)
		}
		if count%packetLogInterval == 0 {
			log.Debug("[Client] received packets", zap.Int("count", count))
		}
		if isHost || c.recorder == nil || len(pkt.Payload) == 0 {
			continue
		}
		frame, err := decoder.Decode(pkt.Payload)
		if err != nil {
			continue
		}
		_ = c.recorder.WriteFrame(frame)
	}
}

// Connect dials the hub and joins the room.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.Dial(ctx); err != nil {
		return err
	}
	return c.Join()
}
