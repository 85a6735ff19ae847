package fwlink

import (
	"errors"
	"time"

	"github.com/arloliu/go-gxip/logger"
)

// BusyDetector reports whether the firmware is currently busy.
type BusyDetector func() bool

// NeverBusy is the default BusyDetector.
func NeverBusy() bool { return false }

// Config holds the tunables of a Coordinator.
type Config struct {
	// handshakeTimeout bounds the wait for the firmware handshake, measured from the send.
	// Defaults to 5 seconds.
	handshakeTimeout time.Duration
	// responseTimeout bounds the wait for the firmware response, measured from the send.
	// Defaults to 15 seconds.
	responseTimeout time.Duration
	// idlePoll is the interval at which the idle listener looks for unsolicited firmware messages.
	// Defaults to 20 milliseconds.
	idlePoll time.Duration

	busy        BusyDetector
	defaultSink HostSink
	logger      logger.Logger
}

// Option represents a functional option for configuring a Coordinator.
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

func newConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		handshakeTimeout: 5 * time.Second,
		responseTimeout:  15 * time.Second,
		idlePoll:         20 * time.Millisecond,
		busy:             NeverBusy,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// WithHandshakeTimeout sets the handshake phase timeout.
// It should be between 1 millisecond and 60 seconds.
//
// The default value is 5 seconds.
func WithHandshakeTimeout(val time.Duration) Option {
	return newOptFunc("WithHandshakeTimeout", func(cfg *Config) error {
		if val < time.Millisecond || val > 60*time.Second {
			return errors.New("handshake timeout out of range [1ms, 60s]")
		}
		cfg.handshakeTimeout = val

		return nil
	})
}

// WithResponseTimeout sets the response phase timeout.
// It should be between 1 millisecond and 300 seconds.
//
// The default value is 15 seconds.
func WithResponseTimeout(val time.Duration) Option {
	return newOptFunc("WithResponseTimeout", func(cfg *Config) error {
		if val < time.Millisecond || val > 300*time.Second {
			return errors.New("response timeout out of range [1ms, 300s]")
		}
		cfg.responseTimeout = val

		return nil
	})
}

// WithIdlePoll sets how often the idle listener checks for unsolicited firmware messages.
//
// The default value is 20 milliseconds.
func WithIdlePoll(val time.Duration) Option {
	return newOptFunc("WithIdlePoll", func(cfg *Config) error {
		if val < time.Millisecond || val > time.Second {
			return errors.New("idle poll out of range [1ms, 1s]")
		}
		cfg.idlePoll = val

		return nil
	})
}

// WithBusyDetector sets the function consulted when a phase times out.
//
// The default detector never reports busy.
func WithBusyDetector(fn BusyDetector) Option {
	return newOptFunc("WithBusyDetector", func(cfg *Config) error {
		if fn == nil {
			return errors.New("busy detector is nil")
		}
		cfg.busy = fn

		return nil
	})
}

// WithDefaultSink sets the host sink used when Begin is called without one.
//
// By default such transactions have their host-bound packets dropped.
func WithDefaultSink(sink HostSink) Option {
	return newOptFunc("WithDefaultSink", func(cfg *Config) error {
		cfg.defaultSink = sink
		return nil
	})
}

// WithLogger sets the logger of the coordinator.
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
