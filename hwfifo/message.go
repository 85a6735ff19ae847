package hwfifo

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/arloliu/go-gxip/gxip"
	"github.com/arloliu/go-gxip/internal/util"
)

// MsgType is the first word of a FIFO message.
type MsgType uint32

const (
	// StringMsg carries NUL terminated diagnostic text from the firmware.
	StringMsg MsgType = 0
	// GXIPMsg carries one GXIP record.
	GXIPMsg MsgType = 1
)

func (t MsgType) String() string {
	switch t {
	case StringMsg:
		return "string"
	case GXIPMsg:
		return "gxip"
	default:
		return fmt.Sprintf("MsgType(%d)", uint32(t))
	}
}

// Message is one message read from the firmware-to-host FIFO.
type Message struct {
	Type MsgType
	// Data holds the payload words unpacked to bytes, including any zero padding.
	Data []byte
}

// Packet decodes the GXIP record carried by a GXIPMsg message, ignoring word padding.
func (m *Message) Packet() (*gxip.Packet, error) {
	if m.Type != GXIPMsg {
		return nil, fmt.Errorf("message type %s does not carry a GXIP packet", m.Type)
	}

	return gxip.DecodePrefix(m.Data)
}

// Text returns the diagnostic text of a StringMsg message, cut at the first NUL.
func (m *Message) Text() string {
	if i := bytes.IndexByte(m.Data, 0); i >= 0 {
		return string(m.Data[:i])
	}

	return string(m.Data)
}

// WordCount returns the number of words needed to carry n payload bytes.
func WordCount(n int) int {
	return util.PadTo(n, 4) / 4
}

// PackWords appends data to dst as little-endian words, zero padding the last word.
func PackWords(dst []uint32, data []byte) []uint32 {
	var tail [4]byte
	for len(data) >= 4 {
		dst = append(dst, binary.LittleEndian.Uint32(data))
		data = data[4:]
	}

	if len(data) > 0 {
		copy(tail[:], data)
		dst = append(dst, binary.LittleEndian.Uint32(tail[:]))
	}

	return dst
}

// UnpackWords converts little-endian words back to bytes.
func UnpackWords(words []uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}

	return out
}

// EncodeMessage returns the complete word sequence of a message.
func EncodeMessage(typ MsgType, data []byte) []uint32 {
	words := make([]uint32, 0, 2+WordCount(len(data)))
	words = append(words, uint32(typ), uint32(WordCount(len(data)))) //nolint:gosec // bounded by payload size

	return PackWords(words, data)
}
