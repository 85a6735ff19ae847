package dlm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Remounter switches the root filesystem between read-write and read-only.
type Remounter interface {
	Remount(ctx context.Context, readOnly bool) error
}

// RemountFunc adapts a function to the Remounter interface.
type RemountFunc func(ctx context.Context, readOnly bool) error

func (f RemountFunc) Remount(ctx context.Context, readOnly bool) error { return f(ctx, readOnly) }

// NopRemounter leaves the filesystem alone. It is used on writable development hosts.
var NopRemounter Remounter = RemountFunc(func(context.Context, bool) error { return nil })

// RootRemounter remounts "/" through mount(8), looking up the root device in a mounts table.
type RootRemounter struct {
	// MountsFile is the mounts table. Defaults to /proc/mounts.
	MountsFile string
}

func (r RootRemounter) Remount(ctx context.Context, readOnly bool) error {
	mounts := r.MountsFile
	if mounts == "" {
		mounts = "/proc/mounts"
	}

	f, err := os.Open(mounts)
	if err != nil {
		return err
	}
	defer f.Close()

	device, err := rootDevice(f)
	if err != nil {
		return err
	}

	mode := "rw"
	if readOnly {
		mode = "ro"
	}

	_ = exec.CommandContext(ctx, "sync").Run()

	out, err := exec.CommandContext(ctx, "mount", "-o", "remount,"+mode, device, "/").CombinedOutput()
	if err != nil {
		return fmt.Errorf("remount %s %s: %w: %s", mode, device, err, strings.TrimSpace(string(out)))
	}

	return nil
}

// rootDevice returns the device mounted on "/" in a mounts table.
func rootDevice(r io.Reader) (string, error) {
	var device string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == "/" {
			// the last entry wins when "/" is stacked
			device = fields[0]
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	if device == "" {
		return "", fmt.Errorf("root filesystem not found in mounts table")
	}

	return device, nil
}
