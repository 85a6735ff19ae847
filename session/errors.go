package session

import "errors"

var (
	// ErrNotConnected indicates that no client is connected to the server.
	ErrNotConnected = errors.New("session not connected")

	// ErrServerClosed indicates that the server was closed.
	ErrServerClosed = errors.New("session server closed")

	// ErrInvalidSlot indicates a slot outside [-1, 3].
	ErrInvalidSlot = errors.New("invalid slot, should be in range of [-1, 3]")

	// ErrEchoTooLarge indicates an echo request above the echo bound.
	ErrEchoTooLarge = errors.New("echo request too large")
)
