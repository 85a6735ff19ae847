package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-gxip/gxip"
	"github.com/arloliu/go-gxip/logger"
)

const (
	// MasterPort is the TCP port of the master GXIP server (slot -1).
	MasterPort = 1066
	// SlotBasePort is the TCP port of slot 0; slot n listens on SlotBasePort+n.
	SlotBasePort = 921
	// MaxSlot is the highest module slot.
	MaxSlot = 3
	// MasterSlot is the slot number of the master server.
	MasterSlot = -1
	// FirmwareSlot is the slot whose server forwards commands and requests to the firmware.
	FirmwareSlot = 0
)

// PortForSlot returns the TCP port served for slot.
func PortForSlot(slot int) (int, error) {
	switch {
	case slot == MasterSlot:
		return MasterPort, nil
	case slot >= 0 && slot <= MaxSlot:
		return SlotBasePort + slot, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
}

// ServerConfig holds the tunables of a session server.
type ServerConfig struct {
	// name identifies the server in logs and in the registry.
	name string

	// address is the local address to bind. Defaults to all interfaces.
	address string

	// port is the TCP port. Port 0 binds an ephemeral port.
	port int

	// capacity is the largest frame accepted, header included.
	// Defaults to gxip.MaxPacketSize.
	capacity int

	// bodyTimeout bounds the time to receive the rest of a frame once its length arrived.
	// Defaults to 5 seconds.
	bodyTimeout time.Duration

	// acceptTimeout defines the timeout of each iteration of accepting a client.
	// Defaults to 1 second.
	acceptTimeout time.Duration

	// bindRetryDelay defines the delay before retrying a failed bind.
	// Defaults to 1 second.
	bindRetryDelay time.Duration

	logger logger.Logger
}

// ServerOption represents a functional option for configuring a session server.
type ServerOption interface {
	apply(*ServerConfig) error
}

type optFunc struct {
	name      string
	applyFunc func(*ServerConfig) error
}

func (o *optFunc) apply(cfg *ServerConfig) error { return o.applyFunc(cfg) }

func newOptFunc(name string, f func(*ServerConfig) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// NewServerConfig creates a server configuration for port with the given options applied.
func NewServerConfig(port int, opts ...ServerOption) (*ServerConfig, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", port)
	}

	cfg := &ServerConfig{
		name:           fmt.Sprintf("port-%d", port),
		port:           port,
		capacity:       gxip.MaxPacketSize,
		bodyTimeout:    5 * time.Second,
		acceptTimeout:  time.Second,
		bindRetryDelay: time.Second,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Name returns the server name.
func (cfg *ServerConfig) Name() string { return cfg.name }

// Port returns the configured TCP port.
func (cfg *ServerConfig) Port() int { return cfg.port }

// WithName sets the name of the server.
//
// The default name is "port-<port>".
func WithName(name string) ServerOption {
	return newOptFunc("WithName", func(cfg *ServerConfig) error {
		if name == "" {
			return errors.New("name is empty")
		}
		cfg.name = name

		return nil
	})
}

// WithAddress sets the local address to bind.
//
// The default value binds all interfaces.
func WithAddress(addr string) ServerOption {
	return newOptFunc("WithAddress", func(cfg *ServerConfig) error {
		cfg.address = addr
		return nil
	})
}

// WithCapacity sets the largest accepted frame size, header included.
// It should be between gxip.HeaderSize and 65535.
//
// The default value is gxip.MaxPacketSize.
func WithCapacity(val int) ServerOption {
	return newOptFunc("WithCapacity", func(cfg *ServerConfig) error {
		if val < gxip.HeaderSize || val > 0xffff {
			return fmt.Errorf("capacity out of range [%d, 65535]", gxip.HeaderSize)
		}
		cfg.capacity = val

		return nil
	})
}

// WithBodyTimeout sets the inter-byte timeout applied after a frame length has been read.
// It should be between 1 millisecond and 120 seconds.
//
// The default value is 5 seconds.
func WithBodyTimeout(val time.Duration) ServerOption {
	return newOptFunc("WithBodyTimeout", func(cfg *ServerConfig) error {
		if val < time.Millisecond || val > 120*time.Second {
			return errors.New("body timeout out of range [1ms, 120s]")
		}
		cfg.bodyTimeout = val

		return nil
	})
}

// WithAcceptTimeout sets the timeout of each accept iteration.
// It should be between 1 millisecond and 2 seconds.
//
// The default value is 1 second.
func WithAcceptTimeout(val time.Duration) ServerOption {
	return newOptFunc("WithAcceptTimeout", func(cfg *ServerConfig) error {
		if val < time.Millisecond || val > 2*time.Second {
			return errors.New("accept timeout out of range [1ms, 2s]")
		}
		cfg.acceptTimeout = val

		return nil
	})
}

// WithBindRetryDelay sets the delay before a failed bind is retried.
// It should be between 1 millisecond and 60 seconds.
//
// The default value is 1 second.
func WithBindRetryDelay(val time.Duration) ServerOption {
	return newOptFunc("WithBindRetryDelay", func(cfg *ServerConfig) error {
		if val < time.Millisecond || val > 60*time.Second {
			return errors.New("bind retry delay out of range [1ms, 60s]")
		}
		cfg.bindRetryDelay = val

		return nil
	})
}

// WithLogger sets the logger of the server.
//
// The default value is logger.GetLogger().
func WithLogger(l logger.Logger) ServerOption {
	return newOptFunc("WithLogger", func(cfg *ServerConfig) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
