package hwfifo

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-gxip/gxip"
	"github.com/arloliu/go-gxip/logger"
)

// Emulator plays the firmware side of a SimPort: it acknowledges every command and
// request and answers requests with a response echoing the request payload.
type Emulator struct {
	port       *SimPort
	logger     logger.Logger
	silent     atomic.Bool
	noResponse atomic.Bool
}

// NewEmulator creates an emulator bound to port.
func NewEmulator(port *SimPort, l logger.Logger) *Emulator {
	if l == nil {
		l = logger.GetLogger()
	}

	return &Emulator{port: port, logger: l.With("component", "fw_emulator")}
}

// SetSilent makes the emulator swallow messages without answering.
func (e *Emulator) SetSilent(v bool) {
	e.silent.Store(v)
}

// SetNoResponse makes the emulator acknowledge requests without answering them.
func (e *Emulator) SetNoResponse(v bool) {
	e.noResponse.Store(v)
}

// Step processes every message currently written by the host and reports how many
// were handled.
func (e *Emulator) Step() int {
	handled := 0
	for {
		msg, ok := e.port.TakeMessage()
		if !ok {
			return handled
		}
		handled++
		e.handle(msg)
	}
}

// Run calls Step every interval until ctx is done.
func (e *Emulator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Step()
		}
	}
}

func (e *Emulator) handle(msg *Message) {
	if msg.Type == StringMsg {
		e.logger.Debug("host text", "text", msg.Text())
		return
	}

	pkt, err := msg.Packet()
	if err != nil {
		e.logger.Warn("emulator received malformed packet", "error", err)
		return
	}

	if e.silent.Load() || !(gxip.IsCommand(pkt.Type()) || gxip.IsRequest(pkt.Type())) {
		return
	}

	e.port.InjectPacket(gxip.NewHandshake(gxip.HandshakeAck))

	if !gxip.IsRequest(pkt.Type()) || e.noResponse.Load() {
		return
	}

	rspType := gxip.ResponseType
	if gxip.IsExtended(pkt.Type()) {
		rspType = gxip.ResponseExtType
	}

	rsp, err := gxip.NewPacket(rspType, pkt.Payload())
	if err != nil {
		e.logger.Warn("emulator failed to build response", "error", err)
		return
	}
	e.port.InjectPacket(rsp)
}
