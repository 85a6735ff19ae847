package fwlink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-gxip/gxip"
	"github.com/arloliu/go-gxip/hwfifo"
	"github.com/arloliu/go-gxip/internal/pool"
	"github.com/arloliu/go-gxip/logger"
)

// FirmwareChannel is the message transport to the firmware core.
// *hwfifo.Channel implements it.
type FirmwareChannel interface {
	SendPacket(p *gxip.Packet) error
	Pending() bool
	Receive(ctx context.Context, timeout time.Duration) (*hwfifo.Message, error)
}

// HostSink receives the packets a transaction produces for the host.
type HostSink interface {
	SendToHost(p *gxip.Packet) error
}

// HostSinkFunc adapts a function to HostSink.
type HostSinkFunc func(p *gxip.Packet) error

func (f HostSinkFunc) SendToHost(p *gxip.Packet) error { return f(p) }

type transaction struct {
	typ              gxip.PacketType
	id               uint16
	sink             HostSink
	discardHandshake bool
	// waitFrom is the send time, moved forward whenever a busy indication restarts a wait.
	waitFrom time.Time
}

func (tx *transaction) expectsResponse() bool {
	return gxip.IsRequest(tx.typ)
}

// Coordinator runs firmware transactions one at a time.
type Coordinator struct {
	channel FirmwareChannel
	cfg     *Config
	logger  logger.Logger
	state   atomicState
	metrics Metrics

	// beginMu keeps an idle drain from consuming a reply to a packet that Begin has just sent.
	beginMu sync.Mutex
	pending chan *transaction

	discarded *xsync.MapOf[gxip.PacketType, *atomic.Uint64]
}

// NewCoordinator creates a Coordinator sending over channel.
func NewCoordinator(channel FirmwareChannel, opts ...Option) (*Coordinator, error) {
	if channel == nil {
		return nil, errors.New("firmware channel is nil")
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		channel:   channel,
		cfg:       cfg,
		logger:    cfg.logger.With("component", "fwlink"),
		pending:   make(chan *transaction, 1),
		discarded: xsync.NewMapOf[gxip.PacketType, *atomic.Uint64](),
	}, nil
}

// State returns the current phase.
func (c *Coordinator) State() State {
	return c.state.Get()
}

// IsBusy reports the firmware busy indication.
func (c *Coordinator) IsBusy() bool {
	return c.cfg.busy()
}

// Metrics returns the counters of the coordinator.
func (c *Coordinator) Metrics() *Metrics {
	return &c.metrics
}

// DiscardedByType returns the number of out-of-phase firmware packets dropped, per type.
func (c *Coordinator) DiscardedByType() map[gxip.PacketType]uint64 {
	out := make(map[gxip.PacketType]uint64)
	c.discarded.Range(func(typ gxip.PacketType, n *atomic.Uint64) bool {
		out[typ] = n.Load()
		return true
	})

	return out
}

// Begin sends pkt to the firmware and starts a transaction for it.
//
// sink receives the handshake, the response and any synthesized packet; when nil the
// default sink is used. With discardHandshake the firmware handshake is not forwarded.
//
// Begin never blocks on another transaction: it fails with ErrTransactionActive while one
// is in flight.
func (c *Coordinator) Begin(pkt *gxip.Packet, sink HostSink, discardHandshake bool) error {
	if !gxip.IsCommand(pkt.Type()) && !gxip.IsRequest(pkt.Type()) {
		return ErrNotTransactable
	}

	if c.state.Get() != Idle {
		c.metrics.RejectedCount.Add(1)
		return ErrTransactionActive
	}

	if sink == nil {
		sink = c.cfg.defaultSink
	}

	c.beginMu.Lock()
	defer c.beginMu.Unlock()

	if !c.state.toAwaitingHandshake() {
		c.metrics.RejectedCount.Add(1)
		return ErrTransactionActive
	}

	if err := c.channel.SendPacket(pkt); err != nil {
		c.state.toIdle()
		return err
	}

	tx := &transaction{
		typ:              pkt.Type(),
		id:               pkt.ID(),
		sink:             sink,
		discardHandshake: discardHandshake,
		waitFrom:         time.Now(),
	}
	c.metrics.TransactionCount.Add(1)
	c.logger.Debug("transaction started", "type", gxip.TypeName(tx.typ), "id", tx.id, "discard_handshake", discardHandshake)

	// capacity 1 and guarded by the state CAS, so this never blocks
	c.pending <- tx

	return nil
}

// Run is the listener loop. It executes transactions handed over by Begin and, while idle,
// drains unsolicited firmware messages. It returns when ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.idlePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx := <-c.pending:
			c.execute(ctx, tx)
		case <-ticker.C:
			c.drainIdle(ctx)
		}
	}
}

func (c *Coordinator) execute(ctx context.Context, tx *transaction) {
	defer c.state.toIdle()

	if !c.await(ctx, tx, AwaitingHandshake) || !tx.expectsResponse() {
		return
	}

	if !c.state.toAwaitingResponse() {
		return
	}
	c.await(ctx, tx, AwaitingResponse)
}

// await waits for the packet expected in phase. It returns true when the packet arrived and
// false when the phase ended with a synthesized packet or cancellation.
func (c *Coordinator) await(ctx context.Context, tx *transaction, phase State) bool {
	timeout := c.cfg.handshakeTimeout
	if phase == AwaitingResponse {
		timeout = c.cfg.responseTimeout
	}
	deadline := tx.waitFrom.Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			if c.cfg.busy() {
				c.logger.Debug("firmware busy, wait restarted", "phase", phase, "id", tx.id)
				c.metrics.BusySentCount.Add(1)
				c.toHost(tx, gxip.NewHandshake(gxip.HandshakeBusy))
				tx.waitFrom = time.Now()
				deadline = tx.waitFrom.Add(timeout)

				continue
			}

			c.expire(tx, phase)

			return false
		}

		msg, err := c.channel.Receive(ctx, remaining)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			if !errors.Is(err, hwfifo.ErrTimeout) {
				c.logger.Warn("firmware receive failed", "phase", phase, "error", err)
				c.pause(ctx)
			}

			continue
		}

		pkt, ok := c.match(msg, phase)
		if !ok {
			continue
		}

		if phase == AwaitingHandshake {
			if !tx.discardHandshake {
				c.metrics.HandshakeFwdCount.Add(1)
				c.toHost(tx, pkt)
			}
		} else {
			c.metrics.ResponseFwdCount.Add(1)
			c.toHost(tx, pkt)
		}

		return true
	}
}

// match returns the packet carried by msg if it is the one phase is waiting for.
// Anything else is logged and discarded.
func (c *Coordinator) match(msg *hwfifo.Message, phase State) (*gxip.Packet, bool) {
	if msg.Type == hwfifo.StringMsg {
		c.logger.Info("firmware text", "text", msg.Text())
		return nil, false
	}

	pkt, err := msg.Packet()
	if err != nil {
		c.logger.Warn("malformed firmware packet discarded", "phase", phase, "error", err)
		return nil, false
	}

	switch {
	case phase == AwaitingHandshake && pkt.Type() == gxip.HandshakeType:
		return pkt, true
	case phase == AwaitingResponse && gxip.IsResponse(pkt.Type()):
		return pkt, true
	}

	c.countDiscard(pkt.Type())
	c.logger.Debug("out of phase firmware packet discarded", "phase", phase, "packet", pkt)

	return nil, false
}

func (c *Coordinator) expire(tx *transaction, phase State) {
	if phase == AwaitingHandshake {
		c.logger.Warn("firmware handshake timeout", "type", gxip.TypeName(tx.typ), "id", tx.id)
		c.metrics.NakSentCount.Add(1)
		c.toHost(tx, gxip.NewHandshake(gxip.HandshakeNak))

		return
	}

	c.logger.Warn("firmware response timeout", "type", gxip.TypeName(tx.typ), "id", tx.id)
	c.metrics.MrmSentCount.Add(1)
	c.toHost(tx, gxip.NewMissingResponse(tx.typ, tx.id))
}

func (c *Coordinator) toHost(tx *transaction, pkt *gxip.Packet) {
	if tx.sink == nil {
		c.logger.Debug("no host sink, packet dropped", "packet", pkt)
		return
	}

	if err := tx.sink.SendToHost(pkt); err != nil {
		c.logger.Warn("send to host failed", "packet", pkt, "error", err)
	}
}

func (c *Coordinator) drainIdle(ctx context.Context) {
	c.beginMu.Lock()
	defer c.beginMu.Unlock()

	if c.state.Get() != Idle || !c.channel.Pending() {
		return
	}

	msg, err := c.channel.Receive(ctx, c.cfg.idlePoll)
	if err != nil {
		if !errors.Is(err, hwfifo.ErrTimeout) && ctx.Err() == nil {
			c.logger.Warn("firmware receive failed while idle", "error", err)
		}
		return
	}

	c.match(msg, Idle)
}

func (c *Coordinator) countDiscard(typ gxip.PacketType) {
	c.metrics.DiscardCount.Add(1)
	n, _ := c.discarded.LoadOrCompute(typ, func() *atomic.Uint64 { return &atomic.Uint64{} })
	n.Add(1)
}

// pause backs off after a channel error so a failing port does not spin the listener.
func (c *Coordinator) pause(ctx context.Context) {
	timer := pool.GetTimer(c.cfg.idlePoll)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
