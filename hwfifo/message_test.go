package hwfifo

import (
	"testing"

	"github.com/arloliu/go-gxip/gxip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackWords(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []uint32
	}{
		{"empty", nil, nil},
		{"one byte", []byte{0x01}, []uint32{0x00000001}},
		{"full word", []byte{0x01, 0x02, 0x03, 0x04}, []uint32{0x04030201}},
		{"padded", []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, []uint32{0x04030201, 0x00000605}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PackWords(nil, tt.data)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, WordCount(len(tt.data)))
		})
	}
}

func TestUnpackWords(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0, 0}, UnpackWords([]uint32{0x04030201, 0x00000605}))
}

func TestEncodeMessage(t *testing.T) {
	words := EncodeMessage(GXIPMsg, []byte{0, 4, gxip.HandshakeType, 'A'})
	assert.Equal(t, []uint32{1, 1, 0x41040400}, words)
}

func TestMessage_PacketAndText(t *testing.T) {
	require := require.New(t)

	pkt := gxip.NewHandshake(gxip.HandshakeAck)
	msg := &Message{Type: GXIPMsg, Data: UnpackWords(PackWords(nil, pkt.ToBytes()))}
	got, err := msg.Packet()
	require.NoError(err)
	require.Equal(pkt.ToBytes(), got.ToBytes())

	text := &Message{Type: StringMsg, Data: UnpackWords(PackWords(nil, []byte("boot ok\x00")))}
	require.Equal("boot ok", text.Text())

	_, err = text.Packet()
	require.Error(err)
}
