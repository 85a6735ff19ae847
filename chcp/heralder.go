package chcp

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-gxip/logger"
)

// Heralder broadcasts the instrument identity.
//
// The encoded herald is guarded by one mutex and the broadcast socket by another. Update may
// run on any goroutine while a send is in flight; Rebind replaces the socket rather than
// mutating it, and never closes it under a running send.
type Heralder struct {
	cfg     *Config
	logger  logger.Logger
	metrics HeraldMetrics

	enabled atomic.Bool
	silent  atomic.Bool
	closed  atomic.Bool

	heraldMu sync.Mutex
	herald   Herald
	buf      [HeraldSize]byte

	sockMu sync.Mutex
	sock   net.PacketConn
	bindIP netip.Addr
}

// NewHeralder creates a heralder announcing h. Heralding starts enabled; the socket is
// opened by the first Rebind or Send.
func NewHeralder(h Herald, opts ...Option) (*Heralder, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	hr := &Heralder{
		cfg:    cfg,
		logger: cfg.logger.With("component", "heralder"),
		herald: cloneHerald(h),
		bindIP: h.IP,
	}
	if err := hr.herald.encodeTo(hr.buf[:]); err != nil {
		return nil, err
	}
	hr.enabled.Store(true)

	return hr, nil
}

// Metrics returns the heralder metrics.
func (hr *Heralder) Metrics() *HeraldMetrics { return &hr.metrics }

// Start enables the periodic herald.
func (hr *Heralder) Start() {
	if !hr.enabled.Swap(true) {
		hr.logger.Info("heralding enabled")
	}
}

// Stop disables the periodic herald. Explicit sends still go out.
func (hr *Heralder) Stop() {
	if hr.enabled.Swap(false) {
		hr.logger.Info("heralding disabled")
	}
}

// IsEnabled returns true if the periodic herald is enabled.
func (hr *Heralder) IsEnabled() bool { return hr.enabled.Load() }

// SetSilent suppresses every send, periodic or explicit, while silent is true.
func (hr *Heralder) SetSilent(silent bool) { hr.silent.Store(silent) }

// Herald returns a copy of the current herald.
func (hr *Heralder) Herald() Herald {
	hr.heraldMu.Lock()
	defer hr.heraldMu.Unlock()

	return cloneHerald(hr.herald)
}

// Update applies fn to the herald and re-encodes it. If the result cannot be encoded the
// previous herald is kept.
func (hr *Heralder) Update(fn func(h *Herald)) error {
	hr.heraldMu.Lock()
	defer hr.heraldMu.Unlock()

	next := cloneHerald(hr.herald)
	fn(&next)

	var buf [HeraldSize]byte
	if err := next.encodeTo(buf[:]); err != nil {
		return err
	}
	hr.herald = next
	hr.buf = buf

	return nil
}

// Rebind replaces the broadcast socket with one bound to ip. When ip cannot be bound,
// typically because the interface has not picked it up yet, the socket binds the
// unspecified address instead.
func (hr *Heralder) Rebind(ctx context.Context, ip netip.Addr) error {
	if hr.closed.Load() {
		return ErrHeralderClosed
	}

	hr.sockMu.Lock()
	defer hr.sockMu.Unlock()

	sock, err := hr.openSocket(ctx, ip)
	if err != nil {
		return err
	}

	if hr.sock != nil {
		_ = hr.sock.Close()
	}
	hr.sock = sock
	hr.bindIP = ip
	hr.metrics.RebindCount.Add(1)
	hr.logger.Debug("herald socket bound", "local", sock.LocalAddr().String())

	return nil
}

// Send broadcasts the herald once. Port 0 sends to the default herald port over the shared
// socket; any other port uses a temporary socket.
func (hr *Heralder) Send(ctx context.Context, port int) error {
	if hr.closed.Load() {
		return ErrHeralderClosed
	}
	if hr.silent.Load() {
		return nil
	}

	hr.sockMu.Lock()
	defer hr.sockMu.Unlock()

	var sock net.PacketConn
	dstPort := hr.cfg.heraldPort
	if port != 0 {
		tmp, err := hr.openSocket(ctx, hr.bindIP)
		if err != nil {
			hr.metrics.SendErrCount.Add(1)
			return err
		}
		defer tmp.Close()

		sock = tmp
		dstPort = port
	} else {
		if hr.sock == nil {
			s, err := hr.openSocket(ctx, hr.bindIP)
			if err != nil {
				hr.metrics.SendErrCount.Add(1)
				return err
			}
			hr.sock = s
		}
		sock = hr.sock
	}

	dst := net.UDPAddrFromAddrPort(netip.AddrPortFrom(hr.cfg.broadcastAddr, uint16(dstPort))) //nolint:gosec

	hr.heraldMu.Lock()
	_, err := sock.WriteTo(hr.buf[:], dst)
	hr.heraldMu.Unlock()

	if err != nil {
		hr.metrics.SendErrCount.Add(1)
		hr.logger.Warn("failed to send herald", "dst", dst.String(), "error", err)

		return err
	}
	hr.metrics.SentCount.Add(1)

	return nil
}

// Tick sends one herald if heralding is enabled. It is the body of the periodic herald task
// and returns false once the heralder is closed.
func (hr *Heralder) Tick(ctx context.Context) bool {
	if hr.closed.Load() {
		return false
	}
	if hr.enabled.Load() {
		_ = hr.Send(ctx, 0)
	}

	return true
}

// Close closes the broadcast socket. Later sends fail with ErrHeralderClosed.
func (hr *Heralder) Close() error {
	if hr.closed.Swap(true) {
		return nil
	}

	hr.sockMu.Lock()
	defer hr.sockMu.Unlock()

	if hr.sock == nil {
		return nil
	}
	err := hr.sock.Close()
	hr.sock = nil

	return err
}

func (hr *Heralder) openSocket(ctx context.Context, ip netip.Addr) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: socketControl(hr.cfg.device)}

	if ip.IsValid() && !ip.IsUnspecified() {
		sock, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort(ip.String(), "0"))
		if err == nil {
			return sock, nil
		}
		hr.logger.Warn("failed to bind herald socket, falling back to any address", "ip", ip.String(), "error", err)
	}

	return lc.ListenPacket(ctx, "udp4", "0.0.0.0:0")
}

func cloneHerald(h Herald) Herald {
	h.MAC = append(net.HardwareAddr(nil), h.MAC...)
	return h
}
