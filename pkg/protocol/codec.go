package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Encode serializes a message for a websocket text frame.
func Encode(msg *Message) ([]byte, error) {
	return sonic.Marshal(msg)
}

// Decode parses one frame. A frame without a type is rejected.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode signaling message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("signaling message without type")
	}
	return &msg, nil
}
