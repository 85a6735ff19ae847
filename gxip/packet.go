package gxip

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/go-gxip/internal/util"
)

// PacketType is the one-byte type tag of a GXIP packet.
type PacketType = byte

const (
	// ProtocolType is the protocol-info exchange. Its value must always be zero.
	ProtocolType PacketType = 0
	// CommandType is a host command that the firmware only acknowledges.
	CommandType PacketType = 1
	// RequestType is a host request that the firmware acknowledges and then answers.
	RequestType PacketType = 2
	// ResponseType is the firmware answer to a request.
	ResponseType PacketType = 3
	// HandshakeType acknowledges reception of a command or request.
	HandshakeType PacketType = 4
	// MissingResponseType marks a request the firmware never answered.
	MissingResponseType PacketType = 5
	// ControlType is a request handled by the gateway itself.
	ControlType PacketType = 6
	// CommandExtType is CommandType with a two-byte identifier.
	CommandExtType PacketType = 7
	// RequestExtType is RequestType with a two-byte identifier.
	RequestExtType PacketType = 8
	// ResponseExtType is ResponseType with a two-byte identifier.
	ResponseExtType PacketType = 9
)

const (
	// HeaderSize is the size of the length and type fields.
	HeaderSize = 3
	// MaxPayloadSize is the payload capacity for general traffic.
	MaxPayloadSize = 2048
	// MaxPacketSize is the largest record accepted on a session port.
	MaxPacketSize = HeaderSize + MaxPayloadSize
	// MaxEchoSize bounds echo and device-broadcast payloads.
	MaxEchoSize = 256
)

// Handshake codes carried in payload[0] of a handshake packet.
const (
	HandshakeAck  byte = 'A'
	HandshakeNak  byte = 'N'
	HandshakeBusy byte = 'B'
)

// TypeName returns a printable name of a packet type, used in log records.
func TypeName(t PacketType) string {
	switch t {
	case ProtocolType:
		return "protocol"
	case CommandType:
		return "command"
	case RequestType:
		return "request"
	case ResponseType:
		return "response"
	case HandshakeType:
		return "handshake"
	case MissingResponseType:
		return "mrm"
	case ControlType:
		return "control"
	case CommandExtType:
		return "command_ext"
	case RequestExtType:
		return "request_ext"
	case ResponseExtType:
		return "response_ext"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// IsExtended reports whether packets of type t carry a two-byte identifier.
func IsExtended(t PacketType) bool {
	return t == CommandExtType || t == RequestExtType || t == ResponseExtType
}

// IsCommand reports whether t is a plain or extended command.
func IsCommand(t PacketType) bool {
	return t == CommandType || t == CommandExtType
}

// IsRequest reports whether t is a plain or extended request.
func IsRequest(t PacketType) bool {
	return t == RequestType || t == RequestExtType
}

// IsResponse reports whether t is a plain or extended response.
func IsResponse(t PacketType) bool {
	return t == ResponseType || t == ResponseExtType
}

// Packet is a decoded GXIP record.
type Packet struct {
	typ     PacketType
	payload []byte
}

// NewPacket creates a packet of type typ carrying a copy of payload.
//
// It returns ErrOversized if the payload exceeds MaxPayloadSize.
func NewPacket(typ PacketType, payload []byte) (*Packet, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload %d bytes, max %d", ErrOversized, len(payload), MaxPayloadSize)
	}

	return &Packet{typ: typ, payload: util.CloneSlice(payload, 0)}, nil
}

// NewHandshake creates a handshake packet carrying code.
func NewHandshake(code byte) *Packet {
	return &Packet{typ: HandshakeType, payload: []byte{code}}
}

// NewMissingResponse creates the marker sent in place of a response the firmware never delivered.
//
// The marker carries the identifier followed by the type of the unanswered request. Extended
// requests keep their two-byte identifier.
func NewMissingResponse(reqType PacketType, reqID uint16) *Packet {
	if IsExtended(reqType) {
		return &Packet{typ: MissingResponseType, payload: []byte{byte(reqID >> 8), byte(reqID), reqType}}
	}

	return &Packet{typ: MissingResponseType, payload: []byte{byte(reqID), reqType}}
}

// NewProtocolInfo creates the 5-byte protocol-info reply.
func NewProtocolInfo(major, minor byte) *Packet {
	return &Packet{typ: ProtocolType, payload: []byte{major, minor}}
}

// Type returns the type tag.
func (p *Packet) Type() PacketType {
	return p.typ
}

// Len returns the declared length of the record, header included.
func (p *Packet) Len() int {
	return HeaderSize + len(p.payload)
}

// Payload returns the payload bytes. The slice must not be modified.
func (p *Packet) Payload() []byte {
	return p.payload
}

// ID returns the packet identifier: payload[0] for plain packets, the big-endian
// payload[0:2] for extended ones. Packets too short to carry an identifier return 0.
func (p *Packet) ID() uint16 {
	if IsExtended(p.typ) {
		v, err := p.Uint16(0)
		if err != nil {
			return 0
		}
		return v
	}

	b, err := p.Byte(0)
	if err != nil {
		return 0
	}

	return uint16(b)
}

// Byte returns the payload byte at offset.
func (p *Packet) Byte(offset int) (byte, error) {
	b, err := p.Slice(offset, 1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

// Uint16 returns the big-endian 16-bit value at offset.
func (p *Packet) Uint16(offset int) (uint16, error) {
	b, err := p.Slice(offset, 2)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(b), nil
}

// Uint32 returns the big-endian 32-bit value at offset.
func (p *Packet) Uint32(offset int) (uint32, error) {
	b, err := p.Slice(offset, 4)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(b), nil
}

// Slice returns n payload bytes starting at offset.
func (p *Packet) Slice(offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > len(p.payload) {
		return nil, fmt.Errorf("%w: offset %d size %d, payload %d", ErrOutOfBounds, offset, n, len(p.payload))
	}

	return p.payload[offset : offset+n], nil
}

// ToBytes encodes the packet into its wire form.
func (p *Packet) ToBytes() []byte {
	buf := make([]byte, p.Len())
	binary.BigEndian.PutUint16(buf, uint16(p.Len())) //nolint:gosec // bounded by MaxPacketSize
	buf[2] = p.typ
	copy(buf[HeaderSize:], p.payload)

	return buf
}

// String returns a short description used in log records.
func (p *Packet) String() string {
	return fmt.Sprintf("gxip{type=%s len=%d id=%d}", TypeName(p.typ), p.Len(), p.ID())
}
