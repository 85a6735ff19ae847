package chcp

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-gxip/gxip"
	"github.com/arloliu/go-gxip/internal/pool"
	"github.com/arloliu/go-gxip/logger"
)

// Backend carries out the commands that change gateway state.
type Backend interface {
	// HardwareAddr returns the hardware address commands are filtered on.
	HardwareAddr() net.HardwareAddr
	// IPAddr returns the current instrument address.
	IPAddr() netip.Addr
	// AssignIP moves the instrument to addr, drops every session and announces the new
	// identity. With persist the address also becomes the boot default.
	AssignIP(ctx context.Context, addr netip.Addr, persist bool) error
	// AssignLetter changes the slot letter and announces the new identity.
	AssignLetter(ctx context.Context, letter byte) error
	// ResetSessions drops the client of every session server.
	ResetSessions()
	// DeviceBroadcast relays pkt to the firmware without waiting for its handshake.
	DeviceBroadcast(pkt *gxip.Packet) error
	// StartUpdateMode marks the process as the update receiver.
	StartUpdateMode()
	// Launch hands control back to the launcher.
	Launch()
}

// Listener receives control-channel datagrams and dispatches them.
type Listener struct {
	cfg      *Config
	backend  Backend
	heralder *Heralder
	logger   logger.Logger
	metrics  ListenerMetrics
	closed   atomic.Bool

	connMu sync.Mutex
	conn   net.PacketConn

	buf [MaxDatagramSize]byte
}

// NewListener creates a listener that dispatches to backend. Herald on/off and ping
// commands act on heralder directly.
func NewListener(backend Backend, heralder *Heralder, opts ...Option) (*Listener, error) {
	if backend == nil {
		return nil, errors.New("backend is nil")
	}
	if heralder == nil {
		return nil, errors.New("heralder is nil")
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Listener{
		cfg:      cfg,
		backend:  backend,
		heralder: heralder,
		logger:   cfg.logger.With("component", "chcp"),
	}, nil
}

// Metrics returns the listener metrics.
func (l *Listener) Metrics() *ListenerMetrics { return &l.metrics }

// Listen binds the listening socket. Calling Listen on a bound listener is a no-op.
func (l *Listener) Listen(ctx context.Context) error {
	if l.closed.Load() {
		return ErrListenerClosed
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		return nil
	}

	lc := net.ListenConfig{Control: socketControl(l.cfg.device)}
	addr := net.JoinHostPort(l.cfg.listenAddr.String(), strconv.Itoa(l.cfg.listenPort))
	conn, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return err
	}
	l.conn = conn
	l.logger.Info("control channel listening", "addr", conn.LocalAddr().String())

	return nil
}

// LocalAddr returns the bound address, or nil before Listen.
func (l *Listener) LocalAddr() net.Addr {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return nil
	}

	return l.conn.LocalAddr()
}

// Run binds the socket and serves datagrams until ctx is done or the listener is closed.
func (l *Listener) Run(ctx context.Context) error {
	for l.ServeOnce(ctx) {
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return ErrListenerClosed
}

// ServeOnce waits up to the read timeout for one datagram and handles it. A failed bind is
// logged and retried on the next call. It returns false when the loop should end.
func (l *Listener) ServeOnce(ctx context.Context) bool {
	if ctx.Err() != nil || l.closed.Load() {
		return false
	}

	if err := l.Listen(ctx); err != nil {
		if errors.Is(err, ErrListenerClosed) {
			return false
		}
		l.logger.Error("failed to bind control channel", "error", err)
		l.sleep(ctx, l.cfg.readTimeout)

		return true
	}

	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()
	if conn == nil {
		return !l.closed.Load()
	}

	_ = conn.SetReadDeadline(time.Now().Add(l.cfg.readTimeout))
	n, src, err := conn.ReadFrom(l.buf[:])
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return true
		}
		if l.closed.Load() || errors.Is(err, net.ErrClosed) {
			return false
		}
		l.logger.Warn("control channel read failed", "error", err)

		return true
	}

	l.logger.Debug("datagram received", "src", src.String(), "size", n)
	l.Handle(ctx, l.buf[:n])

	return true
}

// Handle decodes one datagram and dispatches it if it is addressed to this instrument.
func (l *Listener) Handle(ctx context.Context, datagram []byte) {
	l.metrics.RecvCount.Add(1)

	cmd, err := DecodeCommand(datagram)
	if err != nil {
		l.metrics.MalformedCount.Add(1)
		l.logger.Debug("malformed datagram", "error", err)

		return
	}

	if !cmd.AddressedTo(l.backend.HardwareAddr()) {
		l.metrics.FilteredCount.Add(1)
		return
	}

	l.dispatch(ctx, cmd)
}

func (l *Listener) dispatch(ctx context.Context, cmd *Command) {
	var err error

	switch cmd.Type {
	case HeraldOn:
		l.heralder.Start()
	case HeraldOff:
		l.heralder.Stop()
	case Ping:
		if PingTargets(cmd.IP, l.backend.IPAddr()) {
			err = l.heralder.Send(ctx, 0)
		}
	case PingTo:
		if PingTargets(cmd.IP, l.backend.IPAddr()) {
			err = l.heralder.Send(ctx, int(cmd.Port))
		}
	case Reset:
		l.logger.Info("resetting all sessions")
		l.backend.ResetSessions()
	case AssignIP, SetIP:
		l.logger.Info("address change requested", "ip", cmd.IP.String(), "persist", cmd.Type == SetIP)
		err = l.backend.AssignIP(ctx, cmd.IP, cmd.Type == SetIP)
	case AssignLetter:
		err = l.backend.AssignLetter(ctx, cmd.Letter)
	case DeviceBroadcast:
		var pkt *gxip.Packet
		pkt, err = gxip.DecodePrefix(cmd.Data)
		if err != nil {
			l.metrics.MalformedCount.Add(1)
			l.logger.Warn("invalid device broadcast payload", "error", err)

			return
		}
		err = l.backend.DeviceBroadcast(pkt)
	case StartUpdateMode:
		l.logger.Info("entering update mode")
		l.backend.StartUpdateMode()
	case Launch:
		l.logger.Info("launch requested")
		l.backend.Launch()
	case HeraldAnnounce, SetMAC, TrashFirmware:
		l.metrics.IgnoredCount.Add(1)
		l.logger.Debug("unsupported command ignored", "type", cmd.Type.String())

		return
	default:
		l.metrics.IgnoredCount.Add(1)
		l.logger.Warn("unknown command", "type", cmd.Type.String())

		return
	}

	l.metrics.HandledCount.Add(1)
	if err != nil {
		l.logger.Error("command failed", "type", cmd.Type.String(), "error", err)
	}
}

// Close closes the socket. A running Run returns ErrListenerClosed.
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil

	return err
}

func (l *Listener) sleep(ctx context.Context, d time.Duration) {
	timer := pool.GetTimer(d)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
