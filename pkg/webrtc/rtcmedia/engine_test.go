package rtcmedia

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/LingByte/EchoClass/pkg/classroom"
	"github.com/LingByte/EchoClass/pkg/constants"
	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/LingByte/EchoClass/pkg/mixer"
	"github.com/LingByte/EchoClass/pkg/webrtc/rtcmedia/config"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type silentCapture struct {
	format media.Format
	closed bool
}

func (c *silentCapture) ReadFrame(ctx context.Context) (media.Frame, error) {
	return c.format.Silence(), ctx.Err()
}

func (c *silentCapture) Close() error {
	c.closed = true
	return nil
}

type nullHandler struct {
	mu         sync.Mutex
	candidates []webrtc.ICECandidateInit
}

func (h *nullHandler) OnLocalCandidate(c webrtc.ICECandidateInit) {
	h.mu.Lock()
	h.candidates = append(h.candidates, c)
	h.mu.Unlock()
}

func (h *nullHandler) OnConnectionStateChange(webrtc.PeerConnectionState) {}

func (h *nullHandler) OnInboundTrack(track classroom.InboundTrack) {
	_ = track.Stop()
}

func newTestEngine(t *testing.T, codec string) (*Engine, *silentCapture) {
	t.Helper()
	capture := &silentCapture{}
	opt := config.DefaultWebRTCOption(codec)
	opt.ICEServers = nil
	e, err := NewEngine(opt, func(_ string, f media.Format) (media.Capture, error) {
		capture.format = f
		return capture, nil
	}, nil, zap.NewNop())
	require.NoError(t, err)
	return e, capture
}

// participantOffer builds the offer a browser participant sends: its
// microphone plus a second receive slot for the mix.
func participantOffer(t *testing.T, codec string) (*webrtc.PeerConnection, webrtc.SessionDescription) {
	t.Helper()
	me, err := NewMediaEngine(codec)
	require.NoError(t, err)
	pc, err := webrtc.NewAPI(webrtc.WithMediaEngine(me)).NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	params, err := CodecParameters(codec)
	require.NoError(t, err)
	mic, err := webrtc.NewTrackLocalStaticSample(params.RTPCodecCapability, "mic", "participant")
	require.NoError(t, err)
	_, err = pc.AddTransceiverFromTrack(mic, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv})
	require.NoError(t, err)
	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(offer))
	return pc, offer
}

func TestNewEngine_Format(t *testing.T) {
	e, _ := newTestEngine(t, constants.CodecPCMU)
	assert.Equal(t, 8000, e.Format().SampleRate)
	assert.Equal(t, 160, e.Format().SamplesPerFrame())

	_, err := NewEngine(config.DefaultWebRTCOption("g729"), nil, nil, nil)
	assert.Error(t, err)

	_, err = NewEngine(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestEngine_OpenWithoutDevices(t *testing.T) {
	e, err := NewEngine(config.DefaultWebRTCOption(constants.CodecPCMA), nil, nil, nil)
	require.NoError(t, err)

	_, err = e.OpenHostTrack("room")
	assert.Error(t, err)
	_, err = e.OpenPlayback("room")
	assert.Error(t, err)
}

func TestConnection_AnswersWithHostAndMix(t *testing.T) {
	e, capture := newTestEngine(t, constants.CodecPCMU)

	host, err := e.OpenHostTrack("math")
	require.NoError(t, err)
	assert.Equal(t, "host-audio", host.ID())

	handler := &nullHandler{}
	tr, err := e.NewTransport("alice", handler)
	require.NoError(t, err)

	client, offer := participantOffer(t, constants.CodecPCMU)
	require.NoError(t, tr.SetRemoteDescription(offer))

	mixCtx := mixer.NewContext(e.Format())
	defer mixCtx.Close()
	bus, err := mixCtx.NewBus("alice")
	require.NoError(t, err)

	hostSender, err := tr.AttachHost(host)
	require.NoError(t, err)
	mixSender, err := tr.AttachMix(bus)
	require.NoError(t, err)

	answer, err := tr.CreateAnswer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Equal(t, 2, strings.Count(answer.SDP, "m=audio"))
	assert.Contains(t, answer.SDP, "PCMU/8000")
	assert.NotContains(t, answer.SDP, "opus")

	require.NoError(t, client.SetRemoteDescription(answer))

	assert.NoError(t, mixSender.Stop())
	assert.NoError(t, mixSender.Stop())
	assert.NoError(t, hostSender.Stop())
	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())

	require.NoError(t, host.Close())
	assert.True(t, capture.closed)
}

func TestConnection_AttachForeignHost(t *testing.T) {
	e, _ := newTestEngine(t, constants.CodecPCMU)
	tr, err := e.NewTransport("bob", &nullHandler{})
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.AttachHost(foreignHost{})
	assert.Error(t, err)
}

type foreignHost struct{}

func (foreignHost) ID() string   { return "foreign" }
func (foreignHost) Close() error { return nil }
