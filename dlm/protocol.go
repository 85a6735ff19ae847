package dlm

import (
	"encoding/binary"
	"fmt"
)

// Op is the operation byte of a download manager request.
type Op = byte

const (
	OpGetVersion  Op = 100
	OpGetMAC      Op = 101
	OpFlashInit   Op = 102
	OpFlashWrite  Op = 103
	OpFlashCommit Op = 104
	OpMagicOffset Op = 105
)

const (
	// Port is the TCP port of the download manager.
	Port = 24601
	// HeaderSize is the size of the length and op fields.
	HeaderSize = 3
	// MaxFrameSize is the largest request accepted.
	MaxFrameSize = 0xffff
)

const (
	StatusFailure byte = 0
	StatusSuccess byte = 1
)

// OpName returns a printable name of op.
func OpName(op Op) string {
	switch op {
	case OpGetVersion:
		return "get_version"
	case OpGetMAC:
		return "get_mac"
	case OpFlashInit:
		return "flash_init"
	case OpFlashWrite:
		return "flash_write"
	case OpFlashCommit:
		return "flash_commit"
	case OpMagicOffset:
		return "magic_offset"
	default:
		return fmt.Sprintf("unknown(%d)", op)
	}
}

// Request is a decoded download manager request.
type Request struct {
	Op   Op
	Data []byte
}

// ParseRequest decodes frame, which must hold exactly one request. Data aliases frame.
func ParseRequest(frame []byte) (Request, error) {
	if len(frame) < HeaderSize {
		return Request{}, fmt.Errorf("%w: %d bytes", ErrMalformedRequest, len(frame))
	}

	length := int(binary.BigEndian.Uint16(frame))
	if length != len(frame) {
		return Request{}, fmt.Errorf("%w: declared %d, got %d", ErrMalformedRequest, length, len(frame))
	}

	return Request{Op: frame[2], Data: frame[HeaderSize:]}, nil
}

// EncodeRequest builds the wire form of a request. It is used by host tools and tests.
func EncodeRequest(op Op, data []byte) ([]byte, error) {
	length := HeaderSize + len(data)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("request too large: %d bytes", length)
	}

	buf := make([]byte, length)
	binary.BigEndian.PutUint16(buf, uint16(length)) //nolint:gosec // bounded by MaxFrameSize
	buf[2] = op
	copy(buf[HeaderSize:], data)

	return buf, nil
}

// Reply builds the 4-byte reply to op.
func Reply(op Op, status byte) []byte {
	return []byte{0, 4, op, status}
}

func statusOf(err error) byte {
	if err != nil {
		return StatusFailure
	}

	return StatusSuccess
}
