package gxip

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReader_Sequence(t *testing.T) {
	require := require.New(t)

	var stream bytes.Buffer
	stream.Write([]byte{0, 3, ProtocolType})
	stream.Write([]byte{0, 5, ControlType, CtlEcho, 'x'})

	rd := NewReader(&stream, MaxPacketSize, 0)

	pkt, err := rd.ReadPacket()
	require.NoError(err)
	require.Equal(ProtocolType, pkt.Type())

	pkt, err = rd.ReadPacket()
	require.NoError(err)
	require.Equal(ControlType, pkt.Type())
	require.Equal([]byte{CtlEcho, 'x'}, pkt.Payload())

	_, err = rd.ReadPacket()
	require.ErrorIs(err, io.EOF)
}

func TestReader_OversizedAbortsChannel(t *testing.T) {
	require := require.New(t)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_, _ = server.Write([]byte{0xff, 0xff, RequestType})
	}()

	rd := NewReader(client, MaxPacketSize, time.Second)
	_, err := rd.ReadFrame()
	require.ErrorIs(err, ErrOversized)
}

func TestReader_BodyTimeout(t *testing.T) {
	require := require.New(t)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_, _ = server.Write([]byte{0, 10, RequestType})
	}()

	rd := NewReader(client, MaxPacketSize, 50*time.Millisecond)
	_, err := rd.ReadFrame()
	require.Error(err)
	require.Contains(err.Error(), "read message body")
}

func TestReader_ClosedMidHeader(t *testing.T) {
	rd := NewReader(bytes.NewReader([]byte{0}), MaxPacketSize, 0)
	_, err := rd.ReadFrame()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
