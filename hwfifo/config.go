package hwfifo

import (
	"errors"
	"time"

	"github.com/arloliu/go-gxip/logger"
)

// ChannelConfig holds the tunables of a Channel.
type ChannelConfig struct {
	// pollInterval is the sleep between fill-level checks.
	// Defaults to 20 milliseconds.
	pollInterval time.Duration
	// wordStallTimeout bounds the wait for each missing payload word of a message whose
	// header has already been read.
	// Defaults to 1 second.
	wordStallTimeout time.Duration
	// maxWords is the largest payload word count accepted.
	// Defaults to 1024.
	maxWords int

	logger logger.Logger
}

// ChannelOption represents a functional option for configuring a Channel.
type ChannelOption interface {
	apply(*ChannelConfig) error
}

type channelOptFunc struct {
	name      string
	applyFunc func(*ChannelConfig) error
}

func (o *channelOptFunc) apply(cfg *ChannelConfig) error { return o.applyFunc(cfg) }

func newChannelOptFunc(name string, f func(*ChannelConfig) error) *channelOptFunc {
	return &channelOptFunc{name: name, applyFunc: f}
}

func newChannelConfig(opts ...ChannelOption) (*ChannelConfig, error) {
	cfg := &ChannelConfig{
		pollInterval:     20 * time.Millisecond,
		wordStallTimeout: time.Second,
		maxWords:         1024,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// WithPollInterval sets the interval between fill-level checks while waiting for a message.
// It should be between 1 millisecond and 1 second.
//
// The default value is 20 milliseconds.
func WithPollInterval(val time.Duration) ChannelOption {
	return newChannelOptFunc("WithPollInterval", func(cfg *ChannelConfig) error {
		if val < time.Millisecond || val > time.Second {
			return errors.New("poll interval out of range [1ms, 1s]")
		}
		cfg.pollInterval = val

		return nil
	})
}

// WithWordStallTimeout sets how long the reader waits for each missing payload word
// before Receive returns ErrIncompleteMessage. The message is resumed by the next Receive.
//
// The default value is 1 second.
func WithWordStallTimeout(val time.Duration) ChannelOption {
	return newChannelOptFunc("WithWordStallTimeout", func(cfg *ChannelConfig) error {
		if val <= 0 {
			return errors.New("word stall timeout must be positive")
		}
		cfg.wordStallTimeout = val

		return nil
	})
}

// WithMaxWords sets the largest payload word count accepted by Receive.
//
// The default value is 1024 words.
func WithMaxWords(val int) ChannelOption {
	return newChannelOptFunc("WithMaxWords", func(cfg *ChannelConfig) error {
		if val < 1 || val > 1<<16 {
			return errors.New("max words out of range [1, 65536]")
		}
		cfg.maxWords = val

		return nil
	})
}

// WithLogger sets the logger of the channel.
//
// The default value is logger.GetLogger().
func WithLogger(l logger.Logger) ChannelOption {
	return newChannelOptFunc("WithLogger", func(cfg *ChannelConfig) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
