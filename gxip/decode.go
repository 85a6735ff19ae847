package gxip

import (
	"encoding/binary"
	"fmt"
)

// ParseHeader parses the 3-byte GXIP header at the start of b.
//
// It returns ErrInvalidFraming if b is shorter than the header or the declared
// length is smaller than the header itself.
func ParseHeader(b []byte) (length int, typ PacketType, err error) {
	if len(b) < HeaderSize {
		return 0, 0, fmt.Errorf("%w: header needs %d bytes, got %d", ErrInvalidFraming, HeaderSize, len(b))
	}

	length = int(binary.BigEndian.Uint16(b))
	if length < HeaderSize {
		return 0, 0, fmt.Errorf("%w: declared length %d", ErrInvalidFraming, length)
	}

	return length, b[2], nil
}

// ValidateLength checks a declared record length against the capacity of the receiving buffer.
func ValidateLength(declared int, capacity int) error {
	if declared < HeaderSize {
		return fmt.Errorf("%w: declared length %d", ErrInvalidFraming, declared)
	}

	if declared > capacity {
		return fmt.Errorf("%w: declared length %d, capacity %d", ErrOversized, declared, capacity)
	}

	return nil
}

// Decode decodes exactly one GXIP record from b.
//
// b must hold the complete record and nothing else. The returned packet owns a copy of
// the payload.
func Decode(b []byte) (*Packet, error) {
	length, typ, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}

	if err := ValidateLength(length, MaxPacketSize); err != nil {
		return nil, err
	}

	if length != len(b) {
		return nil, fmt.Errorf("%w: declared %d, got %d", ErrLengthMismatch, length, len(b))
	}

	return NewPacket(typ, b[HeaderSize:])
}

// DecodePrefix decodes the GXIP record at the start of b and ignores any trailing bytes.
//
// It is used for records embedded in larger containers, such as the zero padded
// payload of a FIFO message or the data field of a device broadcast.
func DecodePrefix(b []byte) (*Packet, error) {
	length, _, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}

	if length > len(b) {
		return nil, fmt.Errorf("%w: declared %d, available %d", ErrLengthMismatch, length, len(b))
	}

	return Decode(b[:length])
}
