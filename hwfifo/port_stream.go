package hwfifo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"

	"github.com/arloliu/go-gxip/internal/queue"
	"github.com/arloliu/go-gxip/logger"
)

// SerialConfig configures a serial FIFO bridge.
type SerialConfig struct {
	// Device is the serial device path, for example "/dev/ttyUSB0".
	Device string
	// Baud is the line speed. Defaults to 115200.
	Baud int
	// ReadTimeout bounds each read of the background receiver. Defaults to 100 milliseconds.
	ReadTimeout time.Duration
}

// OpenSerialPort opens a serial bridge that streams FIFO words as little-endian bytes.
func OpenSerialPort(cfg SerialConfig, l logger.Logger) (*StreamPort, error) {
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}

	sp, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}

	// discard bytes buffered by the driver before the bridge was opened
	_ = sp.Flush()

	p := newStreamPort(sp, l, true)
	go p.receive()

	return p, nil
}

// StreamPort adapts a byte stream to Port. A background goroutine assembles incoming
// bytes into words; the fill level is the number of complete words received.
type StreamPort struct {
	rw      io.ReadWriteCloser
	rx      queue.Queue[uint32]
	logger  logger.Logger
	writeMu sync.Mutex
	closed  atomic.Bool
	readErr atomic.Pointer[error]
	done    chan struct{}

	// idleEOF treats io.EOF as an idle read timeout, the way serial drivers report one.
	idleEOF bool
}

var _ Port = (*StreamPort)(nil)

// NewStreamPort starts receiving words from rw. io.EOF from rw ends the stream.
func NewStreamPort(rw io.ReadWriteCloser, l logger.Logger) *StreamPort {
	p := newStreamPort(rw, l, false)
	go p.receive()

	return p
}

func newStreamPort(rw io.ReadWriteCloser, l logger.Logger, idleEOF bool) *StreamPort {
	if l == nil {
		l = logger.GetLogger()
	}

	return &StreamPort{
		rw:      rw,
		rx:      queue.NewLockFreeQueue[uint32](),
		logger:  l.With("component", "hwfifo_stream"),
		done:    make(chan struct{}),
		idleEOF: idleEOF,
	}
}

func (p *StreamPort) receive() {
	defer close(p.done)

	var (
		buf     [256]byte
		partial [4]byte
		n       int
	)
	for {
		cnt, err := p.rw.Read(buf[:])
		for _, b := range buf[:cnt] {
			partial[n] = b
			n++
			if n == 4 {
				p.rx.Enqueue(binary.LittleEndian.Uint32(partial[:]))
				n = 0
			}
		}

		if err != nil {
			if p.idleEOF && errors.Is(err, io.EOF) && !p.closed.Load() {
				continue
			}
			if !p.closed.Load() {
				p.logger.Warn("stream receiver stopped", "error", err)
			}
			p.readErr.Store(&err)

			return
		}
	}
}

func (p *StreamPort) FillLevel() (int, error) {
	if p.closed.Load() {
		return 0, ErrPortClosed
	}

	level := p.rx.Length()
	if level == 0 {
		if errp := p.readErr.Load(); errp != nil {
			return 0, *errp
		}
	}

	return level, nil
}

func (p *StreamPort) ReadWord() (uint32, error) {
	w, ok := p.rx.Dequeue()
	if !ok {
		return 0, ErrEmpty
	}

	return w, nil
}

func (p *StreamPort) WriteWord(w uint32) error {
	if p.closed.Load() {
		return ErrPortClosed
	}

	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], w)

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_, err := p.rw.Write(b[:])

	return err
}

func (p *StreamPort) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.rw.Close()
	<-p.done

	return err
}
