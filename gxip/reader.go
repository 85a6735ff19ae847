package gxip

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// Reader reads GXIP records one at a time from a stream.
//
// Reading is done in two phases: the 2-byte length without a deadline so the peer can idle
// between records, then the remainder of the record under the body timeout when the source is
// a net.Conn.
//
// Reader is NOT goroutine-safe.
type Reader struct {
	r           io.Reader
	capacity    int
	bodyTimeout time.Duration
	lenBuf      [2]byte
}

// NewReader creates a Reader over r accepting records of at most capacity bytes.
// A zero bodyTimeout disables the body deadline.
func NewReader(r io.Reader, capacity int, bodyTimeout time.Duration) *Reader {
	return &Reader{r: r, capacity: capacity, bodyTimeout: bodyTimeout}
}

// ReadFrame reads one raw record, header included.
//
// A framing error means the stream can no longer be trusted and must be closed.
// io.EOF is returned unwrapped when the peer closed the stream between records.
func (rd *Reader) ReadFrame() ([]byte, error) {
	conn, isConn := rd.r.(net.Conn)
	if isConn {
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, fmt.Errorf("clear read deadline: %w", err)
		}
	}

	if _, err := io.ReadFull(rd.r, rd.lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read message length: %w", err)
	}

	length := int(binary.BigEndian.Uint16(rd.lenBuf[:]))
	if err := ValidateLength(length, rd.capacity); err != nil {
		return nil, err
	}

	if isConn && rd.bodyTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(rd.bodyTimeout)); err != nil {
			return nil, fmt.Errorf("set body deadline: %w", err)
		}
	}

	frame := make([]byte, length)
	copy(frame, rd.lenBuf[:])
	if _, err := io.ReadFull(rd.r, frame[2:]); err != nil {
		return nil, fmt.Errorf("read message body: %w", err)
	}

	return frame, nil
}

// ReadPacket reads and decodes one GXIP packet.
func (rd *Reader) ReadPacket() (*Packet, error) {
	frame, err := rd.ReadFrame()
	if err != nil {
		return nil, err
	}

	return Decode(frame)
}
