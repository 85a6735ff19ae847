package dlm

import (
	"context"
	"errors"
	"os"

	"github.com/arloliu/go-gxip/logger"
)

const (
	// DefaultPointerFile is the file naming the bank to boot next.
	DefaultPointerFile = "/system/gateway/active_bank"
	// DefaultExecutable is the program a bundle must install into the bank.
	DefaultExecutable = "gxgateway"
	// InstallScript is the optional script run from the bank after extraction.
	InstallScript = "install.sh"
	// StagingFileName is the name of the staging file inside the sandbox.
	StagingFileName = "image"
)

// ScriptRunner runs an install script with dir as working directory.
type ScriptRunner func(ctx context.Context, dir, script string) error

// Config holds the tunables of the download manager.
type Config struct {
	// sandbox is the writable directory holding the staging file.
	// Defaults to os.TempDir().
	sandbox string
	// bankDir is the directory of the running bank. Its last character selects the bank.
	// Defaults to the working directory.
	bankDir string
	// pointerFile names the bank to boot next. Defaults to DefaultPointerFile.
	pointerFile string
	// executable is the program expected in the bank after install. Defaults to DefaultExecutable.
	executable string
	// lockFS remounts the root filesystem read-only after an install. Defaults to false.
	lockFS bool

	remounter Remounter
	runner    ScriptRunner
	handoff   func()
	logger    logger.Logger
}

// Option represents a functional option for configuring the download manager.
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
		sandbox:     os.TempDir(),
		pointerFile: DefaultPointerFile,
		executable:  DefaultExecutable,
		remounter:   RootRemounter{},
		runner:      runScript,
		logger:      logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.bankDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.bankDir = wd
	}

	return cfg, nil
}

// WithSandbox sets the directory of the staging file.
//
// The default value is os.TempDir().
func WithSandbox(dir string) Option {
	return newOptFunc("WithSandbox", func(cfg *Config) error {
		if dir == "" {
			return errors.New("sandbox is empty")
		}
		cfg.sandbox = dir

		return nil
	})
}

// WithBankDir sets the directory of the running bank.
//
// The default value is the working directory of the process.
func WithBankDir(dir string) Option {
	return newOptFunc("WithBankDir", func(cfg *Config) error {
		if _, err := ParseBank(dir); err != nil {
			return err
		}
		cfg.bankDir = dir

		return nil
	})
}

// WithPointerFile sets the active-bank pointer file.
//
// The default value is DefaultPointerFile.
func WithPointerFile(path string) Option {
	return newOptFunc("WithPointerFile", func(cfg *Config) error {
		if path == "" {
			return errors.New("pointer file is empty")
		}
		cfg.pointerFile = path

		return nil
	})
}

// WithExecutable sets the name of the program a bundle must install.
//
// The default value is DefaultExecutable.
func WithExecutable(name string) Option {
	return newOptFunc("WithExecutable", func(cfg *Config) error {
		if name == "" {
			return errors.New("executable is empty")
		}
		cfg.executable = name

		return nil
	})
}

// WithLockFS sets whether the root filesystem is remounted read-only after an install.
//
// The default value is false.
func WithLockFS(val bool) Option {
	return newOptFunc("WithLockFS", func(cfg *Config) error {
		cfg.lockFS = val
		return nil
	})
}

// WithRemounter sets how the root filesystem is remounted.
//
// The default value is RootRemounter{}.
func WithRemounter(r Remounter) Option {
	return newOptFunc("WithRemounter", func(cfg *Config) error {
		if r == nil {
			return errors.New("remounter is nil")
		}
		cfg.remounter = r

		return nil
	})
}

// WithScriptRunner sets how install.sh is executed.
//
// The default runner executes the script directly with the bank as working directory.
func WithScriptRunner(fn ScriptRunner) Option {
	return newOptFunc("WithScriptRunner", func(cfg *Config) error {
		if fn == nil {
			return errors.New("script runner is nil")
		}
		cfg.runner = fn

		return nil
	})
}

// WithHandoff sets the function called after a successful commit has been acknowledged.
// The gateway uses it to exit so a supervising launcher can start the new bank.
//
// By default nothing happens after a commit.
func WithHandoff(fn func()) Option {
	return newOptFunc("WithHandoff", func(cfg *Config) error {
		cfg.handoff = fn
		return nil
	})
}

// WithLogger sets the logger of the download manager.
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
