// Package netif reads and changes the address of the instrument's network interface.
package netif

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os/exec"
	"strings"
	"sync"

	"github.com/arloliu/go-gxip/logger"
)

// DefaultPrefixLen is the prefix length applied to assigned addresses (255.255.255.0).
const DefaultPrefixLen = 24

// ErrNoIPv4 indicates that the interface carries no IPv4 address.
var ErrNoIPv4 = errors.New("netif: no IPv4 address")

// Runner executes an external command.
type Runner func(ctx context.Context, name string, args ...string) error

// Interface is a named network interface.
type Interface struct {
	name      string
	prefixLen int
	runner    Runner
	logger    logger.Logger

	// lookup is replaced in tests
	lookup func(name string) (*net.Interface, error)

	mu sync.Mutex
}

// New returns the interface called name. Address changes use the "ip" tool through runner;
// a nil runner executes the real command.
func New(name string, runner Runner, l logger.Logger) (*Interface, error) {
	if name == "" {
		return nil, errors.New("netif: interface name is empty")
	}
	if runner == nil {
		runner = runCommand
	}
	if l == nil {
		l = logger.GetLogger()
	}

	return &Interface{
		name:      name,
		prefixLen: DefaultPrefixLen,
		runner:    runner,
		logger:    l.With("component", "netif", "interface", name),
		lookup:    net.InterfaceByName,
	}, nil
}

// Name returns the interface name.
func (i *Interface) Name() string { return i.name }

// HardwareAddr returns the hardware address of the interface.
func (i *Interface) HardwareAddr() (net.HardwareAddr, error) {
	ifi, err := i.lookup(i.name)
	if err != nil {
		return nil, err
	}

	return ifi.HardwareAddr, nil
}

// IPv4 returns the first IPv4 address of the interface.
func (i *Interface) IPv4() (netip.Addr, error) {
	ifi, err := i.lookup(i.name)
	if err != nil {
		return netip.Addr{}, err
	}

	addrs, err := ifi.Addrs()
	if err != nil {
		return netip.Addr{}, err
	}

	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip, ok := netip.AddrFromSlice(ipNet.IP); ok && ip.Unmap().Is4() {
			return ip.Unmap(), nil
		}
	}

	return netip.Addr{}, fmt.Errorf("%w on %s", ErrNoIPv4, i.name)
}

// SetIPv4 assigns addr to the interface, replacing any previous address, and routes
// limited broadcasts through it. Unless force is set nothing happens when the interface
// already carries addr.
func (i *Interface) SetIPv4(ctx context.Context, addr netip.Addr, force bool) error {
	if !addr.Is4() {
		return fmt.Errorf("netif: %s is not an IPv4 address", addr)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if !force {
		if cur, err := i.IPv4(); err == nil && cur == addr {
			i.logger.Debug("address unchanged", "ip", addr.String())
			return nil
		}
	}

	prefix := netip.PrefixFrom(addr, i.prefixLen)
	steps := [][]string{
		{"link", "set", "dev", i.name, "down"},
		{"addr", "flush", "dev", i.name},
		{"addr", "add", prefix.String(), "broadcast", "+", "dev", i.name},
		{"route", "replace", "255.255.255.255/32", "dev", i.name},
		{"link", "set", "dev", i.name, "up"},
	}

	for _, args := range steps {
		if err := i.runner(ctx, "ip", args...); err != nil {
			return fmt.Errorf("netif: ip %s: %w", strings.Join(args, " "), err)
		}
	}
	i.logger.Info("address assigned", "ip", prefix.String())

	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}

	return nil
}
