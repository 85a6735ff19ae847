//go:build linux

package chcp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// socketControl returns a dialer control that enables address reuse and broadcast on the
// socket and, when device is set, pins it to that network interface.
func socketControl(device string) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); opErr != nil {
				return
			}
			if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); opErr != nil {
				return
			}
			if device != "" {
				opErr = unix.BindToDevice(int(fd), device)
			}
		})
		if err != nil {
			return err
		}

		return opErr
	}
}
