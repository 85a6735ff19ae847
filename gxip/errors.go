package gxip

import "errors"

var (
	// ErrInvalidFraming indicates that a header is truncated or declares a length smaller
	// than the header itself.
	ErrInvalidFraming = errors.New("invalid GXIP framing")

	// ErrOversized indicates that a declared length exceeds the buffer capacity of the channel.
	// The channel that produced it must be aborted.
	ErrOversized = errors.New("GXIP message exceeds buffer capacity")

	// ErrLengthMismatch indicates that the declared length differs from the number of bytes supplied.
	ErrLengthMismatch = errors.New("GXIP declared length does not match record size")
)

var (
	// ErrOutOfBounds indicates an attempt to address payload bytes beyond the declared length.
	ErrOutOfBounds = errors.New("access beyond GXIP payload")

	// ErrNotControl indicates that a control view was requested on a non-control packet.
	ErrNotControl = errors.New("packet is not a control packet")
)
