//go:build !linux

package chcp

import "syscall"

// socketControl is a no-op outside Linux; the runtime already enables broadcast on UDP
// sockets and interface pinning is not available.
func socketControl(string) func(network, address string, c syscall.RawConn) error {
	return nil
}
