package dlm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/arloliu/go-gxip/logger"
)

const bundleFileName = "bundle.tar"

// Installer performs the bank-swap install of a staged bundle.
type Installer struct {
	cfg    *Config
	logger logger.Logger
}

// NewInstaller creates an Installer.
func NewInstaller(opts ...Option) (*Installer, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	return newInstaller(cfg), nil
}

func newInstaller(cfg *Config) *Installer {
	return &Installer{cfg: cfg, logger: cfg.logger.With("component", "installer")}
}

// Result describes a completed install.
type Result struct {
	Bank      BankID
	Dir       string
	Stripped  bool
	Entries   int
	RanScript bool
	// PointerUpdated reports whether the pointer file now names Dir. It stays false when
	// the bundle produced no executable.
	PointerUpdated bool
}

// Install installs bundle into the inactive bank and points the next boot at it.
//
// Stages run in order and the first failure abandons the install: remount read-write,
// prepare the inactive bank, copy the bundle, extract it, remove the copy, run install.sh if
// present, mark the executable runnable and rewrite the pointer file. A bundle without the
// executable still installs, but the pointer file is left alone. With lock-fs the filesystem is remounted
// read-only whatever the outcome.
func (i *Installer) Install(ctx context.Context, bundle string) (*Result, error) {
	if err := i.cfg.remounter.Remount(ctx, false); err != nil {
		return nil, fmt.Errorf("remount read-write: %w", err)
	}
	defer func() {
		if !i.cfg.lockFS {
			return
		}
		if err := i.cfg.remounter.Remount(context.WithoutCancel(ctx), true); err != nil {
			i.logger.Error("failed to remount read-only", "error", err)
		}
	}()

	bank, dir, err := InactiveBank(i.cfg.bankDir)
	if err != nil {
		return nil, err
	}

	res := &Result{Bank: bank, Dir: dir}
	i.logger.Info("installing bundle", "bundle", bundle, "bank", bank, "dir", dir)

	if err := prepareBankDir(dir); err != nil {
		return res, fmt.Errorf("prepare %s: %w", dir, err)
	}

	tarball := filepath.Join(dir, bundleFileName)
	res.Stripped, err = copyBundleFile(bundle, tarball)
	if err != nil {
		return res, fmt.Errorf("copy bundle: %w", err)
	}

	res.Entries, err = extractArchive(tarball, dir)
	if rmErr := os.Remove(tarball); rmErr != nil {
		i.logger.Warn("failed to remove bundle copy", "path", tarball, "error", rmErr)
	}
	if err != nil {
		return res, fmt.Errorf("extract bundle: %w", err)
	}

	script := filepath.Join(dir, InstallScript)
	if fileExists(script) {
		if err := os.Chmod(script, 0o777); err != nil { //nolint:gosec // the script must be runnable by the launcher
			return res, err
		}
		if err := i.cfg.runner(ctx, dir, script); err != nil {
			return res, fmt.Errorf("%w: %w", ErrInstallScript, err)
		}
		res.RanScript = true
	}

	exe := filepath.Join(dir, i.cfg.executable)
	if !fileExists(exe) {
		i.logger.Warn("bundle produced no executable, pointer file left unchanged",
			"bank", bank, "executable", exe, "install_script", res.RanScript)

		return res, nil
	}
	if err := os.Chmod(exe, 0o755); err != nil { //nolint:gosec // executable
		return res, err
	}

	if err := writeFileAtomic(i.cfg.pointerFile, []byte(dir+"\n")); err != nil {
		return res, fmt.Errorf("write pointer file: %w", err)
	}
	res.PointerUpdated = true

	i.logger.Info("bundle installed", "bank", bank, "dir", dir, "entries", res.Entries, "install_script", res.RanScript)

	return res, nil
}

// prepareBankDir creates dir if needed, makes it writable and removes its contents.
func prepareBankDir(dir string) error {
	if err := os.MkdirAll(dir, 0o777); err != nil { //nolint:gosec // shared with the launcher
		return err
	}
	if err := os.Chmod(dir, 0o777); err != nil { //nolint:gosec // shared with the launcher
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}

	return nil
}

func copyBundleFile(src, dst string) (bool, error) {
	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return false, err
	}

	_, stripped, err := CopyBundle(out, in)
	if err != nil {
		_ = out.Close()
		return stripped, err
	}

	return stripped, out.Close()
}

// writeFileAtomic replaces path with data through a temporary file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return cleanup(err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func runScript(ctx context.Context, dir, script string) error {
	cmd := exec.CommandContext(ctx, script)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(out)))
		}

		return err
	}

	return nil
}
