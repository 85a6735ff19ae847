package gateway

import (
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/arloliu/go-gxip/logger"
)

const (
	// ServiceType is the DNS-SD service type of the master GXIP port.
	ServiceType = "_gxip._tcp"
	mdnsDomain  = "local."
)

type mdnsServer interface {
	SetText(text []string)
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (mdnsServer, error)

func zeroconfRegister(instance, service, domain string, port int, text []string, ifaces []net.Interface) (mdnsServer, error) {
	srv, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
	if err != nil {
		return nil, err
	}

	return srv, nil
}

// Advertiser publishes the master port over mDNS.
type Advertiser struct {
	mu       sync.Mutex
	register registerFunc
	server   mdnsServer
	instance string
	port     int
	ifaces   []net.Interface
	logger   logger.Logger
}

func newAdvertiser(register registerFunc, instance string, port int, ifaceName string, l logger.Logger) *Advertiser {
	a := &Advertiser{
		register: register,
		instance: instance,
		port:     port,
		logger:   l.With("component", "mdns"),
	}

	if ifi, err := net.InterfaceByName(ifaceName); err == nil {
		a.ifaces = []net.Interface{*ifi}
	}

	return a
}

// Register publishes the service with text, replacing any previous registration.
func (a *Advertiser) Register(text []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	srv, err := a.register(a.instance, ServiceType, mdnsDomain, a.port, text, a.ifaces)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	a.server = srv
	a.logger.Info("mdns registered", "instance", a.instance, "service", ServiceType, "port", a.port)

	return nil
}

// SetText replaces the TXT records of the current registration.
func (a *Advertiser) SetText(text []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.SetText(text)
	}
}

// Shutdown withdraws the service.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

func identityText(s Snapshot) []string {
	major, minor, build := SplitVersion(Version)
	letter := ""
	if s.Letter != 0 {
		letter = string(rune(s.Letter))
	}

	return []string{
		"txtvers=1",
		fmt.Sprintf("sn=%d", s.Serial),
		"letter=" + letter,
		fmt.Sprintf("version=%d.%d.%d", major, minor, build),
		"mac=" + s.MAC.String(),
		"ip=" + s.IP.String(),
	}
}
