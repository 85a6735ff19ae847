package gateway

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/arloliu/go-gxip/logger"
	"github.com/arloliu/go-gxip/session"
)

// Validate checks configuration correctness. Zero values stand for defaults and are
// accepted. It does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if cfg.LogLevel != "" {
		if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
			return err
		}
	}

	if err := validatePorts(&cfg.Ports); err != nil {
		return err
	}

	switch cfg.FIFO.Backend {
	case "", "mmap", "sim":
	case "serial":
		if cfg.FIFO.Device == "" {
			return errors.New("fifo: serial backend requires a device")
		}
	default:
		return fmt.Errorf("fifo: unknown backend %q", cfg.FIFO.Backend)
	}
	if cfg.FIFO.Baud < 0 {
		return fmt.Errorf("fifo: invalid baud %d", cfg.FIFO.Baud)
	}
	if err := validateDuration("fifo.poll_interval", cfg.FIFO.PollInterval, time.Second); err != nil {
		return err
	}

	if err := validateDuration("firmware.handshake_timeout", cfg.Firmware.HandshakeTimeout, time.Minute); err != nil {
		return err
	}
	if err := validateDuration("firmware.response_timeout", cfg.Firmware.ResponseTimeout, 5*time.Minute); err != nil {
		return err
	}

	if cfg.Herald.Broadcast != "" {
		addr, err := netip.ParseAddr(cfg.Herald.Broadcast)
		if err != nil || !addr.Is4() {
			return fmt.Errorf("herald: broadcast must be an IPv4 address, got %q", cfg.Herald.Broadcast)
		}
	}
	if cfg.Herald.Port < 0 || cfg.Herald.Port > 65535 {
		return fmt.Errorf("herald: invalid port %d", cfg.Herald.Port)
	}
	if cfg.Herald.Interval < 0 {
		return fmt.Errorf("herald: invalid interval %v", cfg.Herald.Interval)
	}

	return nil
}

func validatePorts(p *PortsConfig) error {
	if len(p.Slots) != 0 && len(p.Slots) != session.MaxSlot+1 {
		return fmt.Errorf("ports: slots must list %d ports, got %d", session.MaxSlot+1, len(p.Slots))
	}

	seen := make(map[int]string)
	check := func(name string, port int) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("ports: invalid %s port %d", name, port)
		}
		if port == 0 {
			return nil
		}
		if other, ok := seen[port]; ok {
			return fmt.Errorf("ports: %s and %s both use port %d", other, name, port)
		}
		seen[port] = name

		return nil
	}

	if err := check("master", p.Master); err != nil {
		return err
	}
	for i, port := range p.Slots {
		if err := check(fmt.Sprintf("slot %d", i), port); err != nil {
			return err
		}
	}
	if err := check("dlm", p.DLM); err != nil {
		return err
	}

	return check("chcp", p.CHCP)
}

func validateDuration(name string, d, upper time.Duration) error {
	if d != 0 && (d < time.Millisecond || d > upper) {
		return fmt.Errorf("%s out of range [1ms, %v]: %v", name, upper, d)
	}

	return nil
}
