package protocol

import (
	"github.com/pion/webrtc/v3"
)

// MessageType names a signaling message kind.
type MessageType string

// Participant -> server
const (
	MessageTypeCreateRoom  MessageType = "createRoom"
	MessageTypeJoinRoom    MessageType = "joinRoom"
	MessageTypeLeaveRoom   MessageType = "leaveRoom"
	MessageTypeCloseRoom   MessageType = "closeRoom"
	MessageTypeNewOffer    MessageType = "newOffer"
	MessageTypeNewAnswer   MessageType = "newAnswer"
	MessageTypeSendICE     MessageType = "sendIceCandidateToSignalingServer"
	MessageTypeResumeAudio MessageType = "resumePlayback"
)

// Server -> participant
const (
	MessageTypeRoomCreated      MessageType = "roomCreated"
	MessageTypeRoomJoined       MessageType = "roomJoined"
	MessageTypeAnswerResponse   MessageType = "answerResponse"
	MessageTypeAvailableOffers  MessageType = "availableOffers"
	MessageTypeNewOfferAwaiting MessageType = "newOfferAwaiting"
	MessageTypeReceivedICE      MessageType = "receivedIceCandidateFromServer"
	MessageTypeRoomClosed       MessageType = "roomClosed"
	MessageTypeError            MessageType = "error"
)

// Message is the single envelope every signaling frame uses. Only the
// fields a kind needs are set.
type Message struct {
	Type      MessageType                `json:"type"`
	RoomID    string                     `json:"roomId,omitempty"`
	SocketID  string                     `json:"socketId,omitempty"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	OffererID string                     `json:"offererSocketId,omitempty"`
	FromID    string                     `json:"fromSocketId,omitempty"`
	Offers    []OfferEntry               `json:"offers,omitempty"`
	Reason    string                     `json:"reason,omitempty"`
	Code      string                     `json:"code,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// OfferEntry is one participant's offer as the offer book keeps it.
type OfferEntry struct {
	OffererID          string                     `json:"offererSocketId"`
	Offer              webrtc.SessionDescription  `json:"offer"`
	OfferCandidates    []webrtc.ICECandidateInit  `json:"offerIceCandidates,omitempty"`
	Answer             *webrtc.SessionDescription `json:"answer,omitempty"`
	AnswererCandidates []webrtc.ICECandidateInit  `json:"answererIceCandidates,omitempty"`
}

// Answered reports whether the host already answered this offer.
func (e OfferEntry) Answered() bool {
	return e.Answer != nil
}

func NewAnswerResponse(offererID string, answer webrtc.SessionDescription) *Message {
	return &Message{Type: MessageTypeAnswerResponse, OffererID: offererID, Answer: &answer}
}

func NewReceivedCandidate(fromID string, candidate webrtc.ICECandidateInit) *Message {
	return &Message{Type: MessageTypeReceivedICE, FromID: fromID, Candidate: &candidate}
}

func NewRoomClosed(roomID, reason string) *Message {
	return &Message{Type: MessageTypeRoomClosed, RoomID: roomID, Reason: reason}
}

func NewError(code, text string) *Message {
	return &Message{Type: MessageTypeError, Code: code, Error: text}
}
