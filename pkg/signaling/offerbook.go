package signaling

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LingByte/EchoClass/pkg/protocol"
	"github.com/patrickmn/go-cache"
	"github.com/pion/webrtc/v3"
)

// OfferBook keeps every participant's latest offer per room, with the
// candidates exchanged for it. Unanswered offers expire after the TTL;
// answered ones live until the participant leaves or the room closes.
type OfferBook struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
}

func NewOfferBook(ttl time.Duration) *OfferBook {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &OfferBook{cache: cache.New(ttl, ttl), ttl: ttl}
}

func bookKey(roomID, offererID string) string {
	return roomID + "/" + offererID
}

func (b *OfferBook) get(roomID, offererID string) (*protocol.OfferEntry, bool) {
	v, ok := b.cache.Get(bookKey(roomID, offererID))
	if !ok {
		return nil, false
	}
	return v.(*protocol.OfferEntry), true
}

// Put stores a new offer, replacing any earlier entry of the offerer.
// Candidates that arrived before the offer are kept.
func (b *OfferBook) Put(roomID, offererID string, offer webrtc.SessionDescription) protocol.OfferEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := &protocol.OfferEntry{OffererID: offererID, Offer: offer}
	if prev, ok := b.get(roomID, offererID); ok && prev.Offer.SDP == "" {
		entry.OfferCandidates = prev.OfferCandidates
	}
	b.cache.Set(bookKey(roomID, offererID), entry, cache.DefaultExpiration)
	return copyEntry(entry)
}

// AddCandidate records an offerer candidate. It reports false for a
// duplicate.
func (b *OfferBook) AddCandidate(roomID, offererID string, c webrtc.ICECandidateInit) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.get(roomID, offererID)
	if !ok {
		entry = &protocol.OfferEntry{OffererID: offererID}
		b.cache.Set(bookKey(roomID, offererID), entry, cache.DefaultExpiration)
	}
	if containsCandidate(entry.OfferCandidates, c) {
		return false
	}
	entry.OfferCandidates = append(entry.OfferCandidates, c)
	return true
}

// SetAnswer records the host's answer and pins the entry.
func (b *OfferBook) SetAnswer(roomID, offererID string, answer webrtc.SessionDescription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.get(roomID, offererID)
	if !ok {
		return false
	}
	entry.Answer = &answer
	b.cache.Set(bookKey(roomID, offererID), entry, cache.NoExpiration)
	return true
}

// AddAnswererCandidate records a host candidate sent to the offerer.
func (b *OfferBook) AddAnswererCandidate(roomID, offererID string, c webrtc.ICECandidateInit) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.get(roomID, offererID)
	if !ok || containsCandidate(entry.AnswererCandidates, c) {
		return false
	}
	entry.AnswererCandidates = append(entry.AnswererCandidates, c)
	return true
}

// Entry returns a copy of the offerer's entry.
func (b *OfferBook) Entry(roomID, offererID string) (protocol.OfferEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.get(roomID, offererID)
	if !ok {
		return protocol.OfferEntry{}, false
	}
	return copyEntry(entry), true
}

// Entries returns copies of a room's entries that carry an offer, ordered
// by offerer id.
func (b *OfferBook) Entries(roomID string) []protocol.OfferEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := roomID + "/"
	var out []protocol.OfferEntry
	for key, item := range b.cache.Items() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry := item.Object.(*protocol.OfferEntry)
		if entry.Offer.SDP == "" {
			continue
		}
		out = append(out, copyEntry(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OffererID < out[j].OffererID })
	return out
}

func (b *OfferBook) Remove(roomID, offererID string) {
	b.cache.Delete(bookKey(roomID, offererID))
}

// DropRoom forgets every entry of a room.
func (b *OfferBook) DropRoom(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := roomID + "/"
	for key := range b.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			b.cache.Delete(key)
		}
	}
}

func containsCandidate(list []webrtc.ICECandidateInit, c webrtc.ICECandidateInit) bool {
	for _, have := range list {
		if have.Candidate == c.Candidate && equalPtr(have.SDPMid, c.SDPMid) && equalPtr(have.SDPMLineIndex, c.SDPMLineIndex) {
			return true
		}
	}
	return false
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyEntry(e *protocol.OfferEntry) protocol.OfferEntry {
	out := *e
	out.OfferCandidates = append([]webrtc.ICECandidateInit(nil), e.OfferCandidates...)
	out.AnswererCandidates = append([]webrtc.ICECandidateInit(nil), e.AnswererCandidates...)
	return out
}
