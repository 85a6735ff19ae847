package hwfifo

import (
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-gxip/gxip"
	"github.com/arloliu/go-gxip/internal/queue"
)

// SimPort is an in-memory FIFO pair. The host side implements Port; the firmware side
// is driven through InjectMessage and TakeMessage.
type SimPort struct {
	toHost     queue.Queue[uint32]
	toFirmware queue.Queue[uint32]
	closed     atomic.Bool

	// fwMu guards fwBuf, the words taken from toFirmware but not yet forming a full message.
	fwMu  sync.Mutex
	fwBuf []uint32
}

var _ Port = (*SimPort)(nil)

// NewSimPort creates an empty simulated FIFO pair.
func NewSimPort() *SimPort {
	return &SimPort{
		toHost:     queue.NewLockFreeQueue[uint32](),
		toFirmware: queue.NewLockFreeQueue[uint32](),
	}
}

func (p *SimPort) FillLevel() (int, error) {
	if p.closed.Load() {
		return 0, ErrPortClosed
	}

	return p.toHost.Length(), nil
}

func (p *SimPort) ReadWord() (uint32, error) {
	if p.closed.Load() {
		return 0, ErrPortClosed
	}

	w, ok := p.toHost.Dequeue()
	if !ok {
		return 0, ErrEmpty
	}

	return w, nil
}

func (p *SimPort) WriteWord(w uint32) error {
	if p.closed.Load() {
		return ErrPortClosed
	}
	p.toFirmware.Enqueue(w)

	return nil
}

func (p *SimPort) Close() error {
	p.closed.Store(true)
	return nil
}

// InjectWords queues raw words toward the host, as the firmware would.
func (p *SimPort) InjectWords(words ...uint32) {
	for _, w := range words {
		p.toHost.Enqueue(w)
	}
}

// InjectMessage queues a complete message toward the host.
func (p *SimPort) InjectMessage(typ MsgType, data []byte) {
	p.InjectWords(EncodeMessage(typ, data)...)
}

// InjectPacket queues a GXIP packet toward the host.
func (p *SimPort) InjectPacket(pkt *gxip.Packet) {
	p.InjectMessage(GXIPMsg, pkt.ToBytes())
}

// TakeMessage returns the next complete message written by the host, if any.
func (p *SimPort) TakeMessage() (*Message, bool) {
	p.fwMu.Lock()
	defer p.fwMu.Unlock()

	for {
		w, ok := p.toFirmware.Dequeue()
		if !ok {
			break
		}
		p.fwBuf = append(p.fwBuf, w)
	}

	if len(p.fwBuf) < headerWords {
		return nil, false
	}

	count := int(p.fwBuf[1])
	if len(p.fwBuf) < headerWords+count {
		return nil, false
	}

	msg := &Message{
		Type: MsgType(p.fwBuf[0]),
		Data: UnpackWords(p.fwBuf[headerWords : headerWords+count]),
	}
	p.fwBuf = append(p.fwBuf[:0], p.fwBuf[headerWords+count:]...)

	return msg, true
}

// HostPending returns the number of words queued toward the host.
func (p *SimPort) HostPending() int {
	return p.toHost.Length()
}
