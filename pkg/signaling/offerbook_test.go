package signaling

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sdpOffer(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
}

func TestOfferBook_CandidatesBeforeOffer(t *testing.T) {
	b := NewOfferBook(time.Minute)

	assert.True(t, b.AddCandidate("math", "alice", webrtc.ICECandidateInit{Candidate: "c1"}))
	assert.False(t, b.AddCandidate("math", "alice", webrtc.ICECandidateInit{Candidate: "c1"}))
	assert.Empty(t, b.Entries("math"), "entries without an offer are not offered to the host")

	entry := b.Put("math", "alice", sdpOffer("v=0 a"))
	assert.Len(t, entry.OfferCandidates, 1)
	assert.True(t, b.AddCandidate("math", "alice", webrtc.ICECandidateInit{Candidate: "c2"}))

	got, ok := b.Entry("math", "alice")
	require.True(t, ok)
	assert.Len(t, got.OfferCandidates, 2)
	assert.False(t, got.Answered())
}

func TestOfferBook_ReplaceAndAnswer(t *testing.T) {
	b := NewOfferBook(time.Minute)
	b.Put("math", "bob", sdpOffer("v=0 1"))
	b.AddCandidate("math", "bob", webrtc.ICECandidateInit{Candidate: "c"})
	b.Put("math", "bob", sdpOffer("v=0 2"))

	got, _ := b.Entry("math", "bob")
	assert.Equal(t, "v=0 2", got.Offer.SDP)
	assert.Empty(t, got.OfferCandidates)

	assert.True(t, b.SetAnswer("math", "bob", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "ans"}))
	assert.False(t, b.SetAnswer("math", "nobody", webrtc.SessionDescription{}))
	assert.True(t, b.AddAnswererCandidate("math", "bob", webrtc.ICECandidateInit{Candidate: "h"}))
	assert.False(t, b.AddAnswererCandidate("math", "bob", webrtc.ICECandidateInit{Candidate: "h"}))

	got, _ = b.Entry("math", "bob")
	assert.True(t, got.Answered())
	assert.Len(t, got.AnswererCandidates, 1)
}

func TestOfferBook_EntriesScopedAndOrdered(t *testing.T) {
	b := NewOfferBook(time.Minute)
	b.Put("math", "carol", sdpOffer("c"))
	b.Put("math", "alice", sdpOffer("a"))
	b.Put("physics", "bob", sdpOffer("b"))
	b.Put("math-2", "dave", sdpOffer("d"))

	entries := b.Entries("math")
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].OffererID)
	assert.Equal(t, "carol", entries[1].OffererID)

	b.Remove("math", "alice")
	assert.Len(t, b.Entries("math"), 1)

	b.DropRoom("math")
	assert.Empty(t, b.Entries("math"))
	assert.Len(t, b.Entries("physics"), 1)
	assert.Len(t, b.Entries("math-2"), 1)
}

func TestOfferBook_UnansweredOffersExpire(t *testing.T) {
	b := NewOfferBook(50 * time.Millisecond)
	b.Put("math", "alice", sdpOffer("a"))
	b.Put("math", "bob", sdpOffer("b"))
	b.SetAnswer("math", "bob", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "ans"})

	require.Eventually(t, func() bool {
		return len(b.Entries("math")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "bob", b.Entries("math")[0].OffererID)
}
