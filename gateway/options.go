package gateway

import (
	"errors"

	"github.com/arloliu/go-gxip/dlm"
	"github.com/arloliu/go-gxip/hwfifo"
	"github.com/arloliu/go-gxip/internal/netif"
	"github.com/arloliu/go-gxip/logger"
)

type options struct {
	logger       logger.Logger
	fifoPort     hwfifo.Port
	netRunner    netif.Runner
	remounter    dlm.Remounter
	scriptRunner dlm.ScriptRunner
	exit         func(code int)
	register     registerFunc
}

// Option represents a functional option for New.
type Option interface {
	apply(*options) error
}

type optFunc struct {
	name      string
	applyFunc func(*options) error
}

func (o *optFunc) apply(opts *options) error { return o.applyFunc(opts) }

func newOptFunc(name string, f func(*options) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithLogger sets the logger of the gateway and every component it creates.
//
// The default value is logger.GetLogger().
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(o *options) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		o.logger = l

		return nil
	})
}

// WithFIFOPort uses port instead of opening the backend named in the configuration.
func WithFIFOPort(port hwfifo.Port) Option {
	return newOptFunc("WithFIFOPort", func(o *options) error {
		if port == nil {
			return errors.New("fifo port is nil")
		}
		o.fifoPort = port

		return nil
	})
}

// WithNetRunner sets the command runner used to change the interface address.
//
// The default value runs the "ip" tool.
func WithNetRunner(fn netif.Runner) Option {
	return newOptFunc("WithNetRunner", func(o *options) error {
		if fn == nil {
			return errors.New("net runner is nil")
		}
		o.netRunner = fn

		return nil
	})
}

// WithRemounter sets the root filesystem remounter of the download manager.
func WithRemounter(r dlm.Remounter) Option {
	return newOptFunc("WithRemounter", func(o *options) error {
		if r == nil {
			return errors.New("remounter is nil")
		}
		o.remounter = r

		return nil
	})
}

// WithScriptRunner sets the install script runner of the download manager.
func WithScriptRunner(fn dlm.ScriptRunner) Option {
	return newOptFunc("WithScriptRunner", func(o *options) error {
		if fn == nil {
			return errors.New("script runner is nil")
		}
		o.scriptRunner = fn

		return nil
	})
}

// WithExit sets the function that terminates the process on launch and update handoff.
//
// The default value is os.Exit.
func WithExit(fn func(code int)) Option {
	return newOptFunc("WithExit", func(o *options) error {
		if fn == nil {
			return errors.New("exit function is nil")
		}
		o.exit = fn

		return nil
	})
}
