package chcp

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/arloliu/go-gxip/logger"
)

// Config holds the settings shared by the Listener and the Heralder.
type Config struct {
	// listenAddr is the local address of the listener. Defaults to 0.0.0.0.
	listenAddr netip.Addr
	// listenPort defaults to ListenPort.
	listenPort int

	// device pins the sockets to a network interface. Empty disables pinning.
	device string

	// broadcastAddr is the destination of heralds. Defaults to 255.255.255.255.
	broadcastAddr netip.Addr
	// heraldPort is the default herald destination port. Defaults to HeraldPort.
	heraldPort int

	// readTimeout bounds each listener read so cancellation is observed.
	// Defaults to 1 second.
	readTimeout time.Duration

	logger logger.Logger
}

// Option represents a functional option for the Listener and the Heralder.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error { return o.applyFunc(cfg) }

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// NewConfig creates a configuration with the given options applied.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		listenAddr:    netip.IPv4Unspecified(),
		listenPort:    ListenPort,
		broadcastAddr: netip.AddrFrom4([4]byte{255, 255, 255, 255}),
		heraldPort:    HeraldPort,
		readTimeout:   time.Second,
		logger:        logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func validPort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}

	return nil
}

// WithListenAddress sets the local address and port of the listener. Port 0 binds an
// ephemeral port.
//
// The default value is 0.0.0.0:1216.
func WithListenAddress(addr netip.Addr, port int) Option {
	return newOptFunc("WithListenAddress", func(cfg *Config) error {
		if !addr.Is4() {
			return fmt.Errorf("%w: %s", ErrInvalidIPv4, addr)
		}
		if err := validPort(port); err != nil {
			return err
		}
		cfg.listenAddr = addr
		cfg.listenPort = port

		return nil
	})
}

// WithDevice pins the control-channel sockets to the named network interface.
//
// The default value leaves the sockets unpinned.
func WithDevice(name string) Option {
	return newOptFunc("WithDevice", func(cfg *Config) error {
		cfg.device = name
		return nil
	})
}

// WithBroadcast sets the destination address and default port of heralds.
//
// The default value is 255.255.255.255:1217.
func WithBroadcast(addr netip.Addr, port int) Option {
	return newOptFunc("WithBroadcast", func(cfg *Config) error {
		if !addr.Is4() {
			return fmt.Errorf("%w: %s", ErrInvalidIPv4, addr)
		}
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid herald port: %d", port)
		}
		cfg.broadcastAddr = addr
		cfg.heraldPort = port

		return nil
	})
}

// WithReadTimeout sets the timeout of each listener read.
// It should be between 1 millisecond and 10 seconds.
//
// The default value is 1 second.
func WithReadTimeout(val time.Duration) Option {
	return newOptFunc("WithReadTimeout", func(cfg *Config) error {
		if val < time.Millisecond || val > 10*time.Second {
			return errors.New("read timeout out of range [1ms, 10s]")
		}
		cfg.readTimeout = val

		return nil
	})
}

// WithLogger sets the logger.
//
// The default value is logger.GetLogger().
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
