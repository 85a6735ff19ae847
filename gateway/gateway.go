package gateway

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net"
	"net/netip"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-gxip/chcp"
	"github.com/arloliu/go-gxip/dlm"
	"github.com/arloliu/go-gxip/fwlink"
	"github.com/arloliu/go-gxip/gxip"
	"github.com/arloliu/go-gxip/hwfifo"
	"github.com/arloliu/go-gxip/internal/netif"
	"github.com/arloliu/go-gxip/internal/specfile"
	"github.com/arloliu/go-gxip/internal/task"
	"github.com/arloliu/go-gxip/logger"
	"github.com/arloliu/go-gxip/session"
)

// Spec file keys.
const (
	SpecDefaultIP    = "DEFAULT_IP"
	SpecInterface    = "INTERFACE"
	SpecSandbox      = "SANDBOX"
	SpecLockFS       = "LOCK_FS"
	SpecEEPROM       = "EEPROM"
	SpecInstrumentSN = "INSTRUMENT_SN"
)

const defaultInterface = "eth0"

// DefaultIP is the address used when the spec file has no DEFAULT_IP.
var DefaultIP = netip.AddrFrom4([4]byte{10, 11, 14, 254})

// Gateway is the process context. It owns every component and implements the backends of
// the session handlers and the control channel.
type Gateway struct {
	cfg    *Config
	opts   options
	logger logger.Logger

	spec     *specfile.Store
	eeprom   *specfile.Store
	eepromMu sync.Mutex

	netif    *netif.Interface
	identity Identity

	port     hwfifo.Port
	emulator *hwfifo.Emulator
	channel  *hwfifo.Channel
	coord    *fwlink.Coordinator

	registry *session.Registry
	fwServer *session.Server
	dlm      *dlm.Manager

	heralder *chcp.Heralder
	listener *chcp.Listener
	mdns     *Advertiser

	updateMode atomic.Bool

	// addrMu serializes address changes.
	addrMu sync.Mutex
}

var (
	_ session.Backend = (*Gateway)(nil)
	_ chcp.Backend    = (*Gateway)(nil)
)

// New builds a gateway from a normalized configuration. It reads the persisted settings,
// assigns the startup address to the interface and creates every component, but starts
// nothing; see Run.
func New(cfg *Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	o := options{
		logger:   logger.GetLogger(),
		exit:     os.Exit,
		register: zeroconfRegister,
	}
	for _, opt := range opts {
		if err := opt.apply(&o); err != nil {
			return nil, err
		}
	}

	g := &Gateway{
		cfg:    cfg,
		opts:   o,
		logger: o.logger.With("component", "gateway"),
	}
	g.updateMode.Store(cfg.Update.Mode)

	if err := g.loadStores(); err != nil {
		return nil, err
	}
	if err := g.initNetwork(); err != nil {
		return nil, err
	}
	if err := g.initFirmware(); err != nil {
		return nil, err
	}
	if err := g.initServers(); err != nil {
		_ = g.channel.Close()
		return nil, err
	}
	if err := g.initControl(); err != nil {
		_ = g.channel.Close()
		return nil, err
	}

	return g, nil
}

func (g *Gateway) loadStores() error {
	g.spec = specfile.NewFile(g.cfg.SpecFile)
	if err := g.spec.Load(); err != nil {
		return fmt.Errorf("load spec file: %w", err)
	}

	if mode, _ := g.spec.Get(SpecEEPROM); strings.EqualFold(mode, "file") {
		g.eeprom = specfile.NewFile(g.cfg.EEPROMFile)
	} else {
		g.eeprom = specfile.NewEEPROM(g.cfg.EEPROMFile, specfile.EEPROMCapacity, specfile.EEPROMHeader)
	}
	if err := g.eeprom.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load eeprom: %w", err)
	}

	return nil
}

func (g *Gateway) initNetwork() error {
	name := g.cfg.Network.Interface
	if name == "" {
		name, _ = g.spec.Get(SpecInterface)
	}
	if name == "" {
		name = defaultInterface
	}

	ifi, err := netif.New(name, g.opts.netRunner, g.opts.logger)
	if err != nil {
		return err
	}
	g.netif = ifi

	mac, err := ifi.HardwareAddr()
	if err != nil || len(mac) != 6 {
		g.logger.Warn("no usable hardware address, announcing the zero address", "interface", name, "error", err)
		mac = chcp.BroadcastMAC
	}
	g.identity.SetMAC(mac)

	ip := DefaultIP
	if s, ok := g.spec.Get(SpecDefaultIP); ok {
		addr, err := netip.ParseAddr(s)
		if err != nil || !addr.Is4() {
			g.logger.Warn("invalid default address in spec file", "value", s)
		} else {
			ip = addr
		}
	}

	if !g.cfg.Network.Unmanaged {
		if err := ifi.SetIPv4(context.Background(), ip, true); err != nil {
			return fmt.Errorf("set initial address: %w", err)
		}
	}
	g.identity.SetIP(ip)

	sn, _ := g.eeprom.Uint32(SpecInstrumentSN)
	g.identity.SetSerial(sn)

	return nil
}

func (g *Gateway) initFirmware() error {
	port, emulator, err := g.openFIFOPort()
	if err != nil {
		return err
	}
	g.port = port
	g.emulator = emulator

	g.channel, err = hwfifo.NewChannel(port,
		hwfifo.WithPollInterval(g.cfg.FIFO.PollInterval),
		hwfifo.WithLogger(g.opts.logger),
	)
	if err != nil {
		_ = port.Close()
		return err
	}

	g.coord, err = fwlink.NewCoordinator(g.channel,
		fwlink.WithHandshakeTimeout(g.cfg.Firmware.HandshakeTimeout),
		fwlink.WithResponseTimeout(g.cfg.Firmware.ResponseTimeout),
		fwlink.WithDefaultSink(fwlink.HostSinkFunc(g.sendToFirmwareSlot)),
		fwlink.WithLogger(g.opts.logger),
	)
	if err != nil {
		_ = g.channel.Close()
		return err
	}

	return nil
}

// sendToFirmwareSlot delivers transaction output that has no requesting session, such as
// the handshake, response or synthesized reply of a device broadcast, to the client of
// the firmware slot.
func (g *Gateway) sendToFirmwareSlot(p *gxip.Packet) error {
	if g.fwServer == nil {
		return session.ErrNotConnected
	}

	return g.fwServer.SendToHost(p)
}

func (g *Gateway) openFIFOPort() (hwfifo.Port, *hwfifo.Emulator, error) {
	if g.opts.fifoPort != nil {
		return g.opts.fifoPort, nil, nil
	}

	switch g.cfg.FIFO.Backend {
	case "sim":
		sp := hwfifo.NewSimPort()
		return sp, hwfifo.NewEmulator(sp, g.opts.logger), nil
	case "serial":
		sp, err := hwfifo.OpenSerialPort(hwfifo.SerialConfig{Device: g.cfg.FIFO.Device, Baud: g.cfg.FIFO.Baud}, g.opts.logger)
		if err != nil {
			return nil, nil, err
		}

		return sp, nil, nil
	default:
		mc := hwfifo.DefaultMmapConfig()
		if g.cfg.FIFO.Device != "" {
			mc.Device = g.cfg.FIFO.Device
		}
		mp, err := hwfifo.OpenMmapPort(mc)
		if err != nil {
			return nil, nil, err
		}

		return mp, nil, nil
	}
}

func (g *Gateway) initServers() error {
	g.registry = session.NewRegistry()

	add := func(slot, port int, name string) error {
		var tx session.Transactor
		if slot == session.FirmwareSlot {
			tx = g.coord
		}

		h, err := session.NewGXIPHandler(slot, g, tx, g.opts.logger)
		if err != nil {
			return err
		}

		srv, err := session.NewServer(port, h,
			session.WithName(name),
			session.WithAddress(g.cfg.Ports.Address),
			session.WithLogger(g.opts.logger),
		)
		if err != nil {
			return err
		}
		g.registry.Add(srv)
		if slot == session.FirmwareSlot {
			g.fwServer = srv
		}

		return nil
	}

	if err := add(session.MasterSlot, g.cfg.Ports.Master, "gxip-master"); err != nil {
		return err
	}
	for slot, port := range g.cfg.Ports.Slots {
		if err := add(slot, port, fmt.Sprintf("gxip-slot%d", slot)); err != nil {
			return err
		}
	}

	dlmOpts := []dlm.Option{
		dlm.WithPointerFile(g.cfg.Update.PointerFile),
		dlm.WithExecutable(g.cfg.Update.Executable),
		dlm.WithHandoff(g.handoff),
		dlm.WithLogger(g.opts.logger),
	}
	if sandbox, ok := g.spec.Get(SpecSandbox); ok && sandbox != "" {
		dlmOpts = append(dlmOpts, dlm.WithSandbox(sandbox))
	}
	if lock, ok := g.spec.Bool(SpecLockFS); ok {
		dlmOpts = append(dlmOpts, dlm.WithLockFS(lock))
	}
	if g.cfg.Update.BankDir != "" {
		dlmOpts = append(dlmOpts, dlm.WithBankDir(g.cfg.Update.BankDir))
	}
	switch {
	case g.opts.remounter != nil:
		dlmOpts = append(dlmOpts, dlm.WithRemounter(g.opts.remounter))
	case g.cfg.Update.SkipRemount:
		dlmOpts = append(dlmOpts, dlm.WithRemounter(dlm.NopRemounter))
	}
	if g.opts.scriptRunner != nil {
		dlmOpts = append(dlmOpts, dlm.WithScriptRunner(g.opts.scriptRunner))
	}

	mgr, err := dlm.NewManager(dlmOpts...)
	if err != nil {
		return err
	}
	g.dlm = mgr

	srv, err := mgr.NewServer(g.cfg.Ports.DLM, session.WithAddress(g.cfg.Ports.Address))
	if err != nil {
		return err
	}
	g.registry.Add(srv)

	return nil
}

func (g *Gateway) initControl() error {
	broadcast, err := netip.ParseAddr(g.cfg.Herald.Broadcast)
	if err != nil {
		return fmt.Errorf("herald broadcast address: %w", err)
	}

	id := g.identity.Snapshot()
	major, minor, build := SplitVersion(Version)
	herald := chcp.Herald{
		MAC:           id.MAC,
		Version:       chcp.HeraldVersion,
		IP:            id.IP,
		Letter:        id.Letter,
		FirmwareMajor: major,
		FirmwareMinor: minor,
		FirmwareBuild: build,
		SerialNumber:  id.Serial,
		Family:        chcp.FamilyG2,
	}

	chcpOpts := []chcp.Option{
		chcp.WithBroadcast(broadcast, g.cfg.Herald.Port),
		chcp.WithListenAddress(netip.IPv4Unspecified(), g.cfg.Ports.CHCP),
		chcp.WithLogger(g.opts.logger),
	}
	if bind := g.cfg.Network.BindDevice; bind != nil && *bind {
		chcpOpts = append(chcpOpts, chcp.WithDevice(g.netif.Name()))
	}

	g.heralder, err = chcp.NewHeralder(herald, chcpOpts...)
	if err != nil {
		return err
	}
	g.listener, err = chcp.NewListener(g, g.heralder, chcpOpts...)
	if err != nil {
		return err
	}

	if g.cfg.MDNS.Enabled {
		instance := g.cfg.MDNS.Instance
		if instance == "" {
			instance = fmt.Sprintf("gxip-%d", id.Serial)
		}
		g.mdns = newAdvertiser(g.opts.register, instance, g.cfg.Ports.Master, g.netif.Name(), g.opts.logger)
	}

	return nil
}

// Run starts every component and blocks until ctx is done. On return all sockets are
// closed and every goroutine has ended.
func (g *Gateway) Run(ctx context.Context) error {
	mgr := task.NewManager(ctx, g.opts.logger)

	if err := g.heralder.Rebind(ctx, g.identity.IP()); err != nil {
		g.logger.Warn("failed to bind herald socket", "error", err)
	}

	err := g.startTasks(mgr)
	if err == nil {
		if g.mdns != nil {
			if err := g.mdns.Register(identityText(g.identity.Snapshot())); err != nil {
				g.logger.Warn("mdns advertisement unavailable", "error", err)
			}
		}

		g.logger.Info("gateway started",
			"ip", g.identity.IP().String(),
			"servers", g.registry.Len(),
			"update_mode", g.updateMode.Load(),
		)
		<-mgr.Context().Done()
		err = ctx.Err()
	}

	mgr.Stop()
	g.registry.CloseAll()
	_ = g.listener.Close()
	mgr.Wait()

	_ = g.heralder.Close()
	if g.mdns != nil {
		g.mdns.Shutdown()
	}
	_ = g.channel.Close()
	g.logger.Info("gateway stopped")

	return err
}

func (g *Gateway) startTasks(mgr *task.Manager) error {
	if err := mgr.Start("fwlink", func(ctx context.Context) bool {
		_ = g.coord.Run(ctx)
		return false
	}); err != nil {
		return err
	}

	if g.emulator != nil {
		if err := mgr.Start("fw_emulator", func(ctx context.Context) bool {
			g.emulator.Run(ctx, g.cfg.FIFO.PollInterval)
			return false
		}); err != nil {
			return err
		}
	}

	for _, srv := range g.registry.Servers() {
		if err := mgr.Start(srv.Name(), srv.Serve); err != nil {
			return err
		}
	}

	if err := mgr.Start("chcp", g.listener.ServeOnce); err != nil {
		return err
	}

	return mgr.StartInterval("herald", g.heralder.Tick, g.cfg.Herald.Interval, true)
}

// Identity returns a snapshot of the instrument identity.
func (g *Gateway) Identity() Snapshot { return g.identity.Snapshot() }

// Registry returns the session servers.
func (g *Gateway) Registry() *session.Registry { return g.registry }

// Coordinator returns the firmware transaction coordinator.
func (g *Gateway) Coordinator() *fwlink.Coordinator { return g.coord }

// Heralder returns the herald broadcaster.
func (g *Gateway) Heralder() *chcp.Heralder { return g.heralder }

// Listener returns the control-channel listener.
func (g *Gateway) Listener() *chcp.Listener { return g.listener }

// DLM returns the download manager.
func (g *Gateway) DLM() *dlm.Manager { return g.dlm }

// UpdateMode reports whether the process runs as the update receiver.
func (g *Gateway) UpdateMode() bool { return g.updateMode.Load() }

// FirmwareVersion implements session.Backend.
func (g *Gateway) FirmwareVersion() (major, minor, build byte) { return SplitVersion(Version) }

// UpdaterVersion implements session.Backend. The download manager is built in, so it shares
// the gateway version.
func (g *Gateway) UpdaterVersion() (major, minor, build byte) { return SplitVersion(Version) }

// HardwareAddr implements session.Backend and chcp.Backend.
func (g *Gateway) HardwareAddr() net.HardwareAddr { return g.identity.MAC() }

// IPAddr implements chcp.Backend.
func (g *Gateway) IPAddr() netip.Addr { return g.identity.IP() }

// SerialNumber implements session.Backend.
func (g *Gateway) SerialNumber() (uint32, error) { return g.identity.Serial(), nil }

// SetSerialNumber persists sn to the EEPROM store and announces it.
func (g *Gateway) SetSerialNumber(sn uint32) error {
	g.eepromMu.Lock()
	defer g.eepromMu.Unlock()

	g.eeprom.SetUint(SpecInstrumentSN, uint64(sn))
	if err := g.eeprom.Save(); err != nil {
		return fmt.Errorf("save serial number: %w", err)
	}

	g.identity.SetSerial(sn)
	if err := g.heralder.Update(func(h *chcp.Herald) { h.SerialNumber = sn }); err != nil {
		return err
	}
	if g.mdns != nil {
		g.mdns.SetText(identityText(g.identity.Snapshot()))
	}
	g.logger.Info("serial number changed", "serial", sn)

	return nil
}

// CommStats implements session.Backend.
func (g *Gateway) CommStats() session.CommStats {
	recv, sent := g.registry.Stats()
	m := g.coord.Metrics()

	return session.CommStats{
		PacketsReceived: saturate32(recv),
		PacketsSent:     saturate32(sent),
		NakSent:         saturate32(m.NakSentCount.Load()),
		BusySent:        saturate32(m.BusySentCount.Load()),
		MrmSent:         saturate32(m.MrmSentCount.Load()),
	}
}

func saturate32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}

	return uint32(v)
}

// LiveSites implements session.Backend. The gateway hosts one site.
func (g *Gateway) LiveSites() byte { return 1 }

// BusySites implements session.Backend.
func (g *Gateway) BusySites() byte {
	if g.coord.IsBusy() {
		return 1
	}

	return 0
}

// ResetSessions implements session.Backend and chcp.Backend.
func (g *Gateway) ResetSessions() {
	g.registry.ResetAll()
}

// AssignIP implements chcp.Backend: it moves the interface to addr, rebinds the herald
// socket, drops every session client and sends one herald carrying the new address.
func (g *Gateway) AssignIP(ctx context.Context, addr netip.Addr, persist bool) error {
	if !addr.Is4() || addr.IsUnspecified() {
		return fmt.Errorf("invalid address %s", addr)
	}

	g.addrMu.Lock()
	defer g.addrMu.Unlock()

	if !g.cfg.Network.Unmanaged {
		if err := g.netif.SetIPv4(ctx, addr, false); err != nil {
			return err
		}
	}

	g.identity.SetIP(addr)
	if err := g.heralder.Update(func(h *chcp.Herald) { h.IP = addr }); err != nil {
		return err
	}
	if err := g.heralder.Rebind(ctx, addr); err != nil {
		g.logger.Warn("failed to rebind herald socket", "error", err)
	}

	g.registry.ResetAll()

	if persist {
		g.spec.Set(SpecDefaultIP, addr.String())
		if err := g.spec.Save(); err != nil {
			g.logger.Error("failed to persist default address", "error", err)
		}
	}

	if g.mdns != nil {
		g.mdns.SetText(identityText(g.identity.Snapshot()))
	}
	g.logger.Info("address assigned", "ip", addr.String(), "persist", persist)

	return g.heralder.Send(ctx, 0)
}

// AssignLetter implements chcp.Backend.
func (g *Gateway) AssignLetter(ctx context.Context, letter byte) error {
	g.identity.SetLetter(letter)
	if err := g.heralder.Update(func(h *chcp.Herald) { h.Letter = letter }); err != nil {
		return err
	}

	if g.mdns != nil {
		if err := g.mdns.Register(identityText(g.identity.Snapshot())); err != nil {
			g.logger.Warn("mdns re-registration failed", "error", err)
		}
	}
	g.logger.Info("slot letter assigned", "letter", string(rune(letter)))

	return g.heralder.Send(ctx, 0)
}

// DeviceBroadcast implements chcp.Backend: pkt goes to the firmware and its handshake is
// dropped. The response, or a synthesized NAK, BUSY or missing response, reaches the
// firmware slot client.
func (g *Gateway) DeviceBroadcast(pkt *gxip.Packet) error {
	return g.coord.Begin(pkt, nil, true)
}

// StartUpdateMode implements chcp.Backend.
func (g *Gateway) StartUpdateMode() {
	g.updateMode.Store(true)
}

// Launch implements chcp.Backend: the process exits so the launcher starts the installed
// software.
func (g *Gateway) Launch() {
	g.logger.Info("exiting for launch")
	g.opts.exit(0)
}

func (g *Gateway) handoff() {
	if g.updateMode.Load() {
		g.logger.Info("update installed in update mode, restart deferred")
		return
	}

	g.logger.Info("exiting for update handoff")
	g.opts.exit(0)
}
