package utils

import (
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid"
)

const socketIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-"

// NewSocketID returns a short url-safe id for a signaling connection.
func NewSocketID() (string, error) {
	return gonanoid.Generate(socketIDAlphabet, 20)
}

// NewInstanceID returns a random uuid string.
func NewInstanceID() string {
	return uuid.NewString()
}
