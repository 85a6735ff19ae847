// Package fwlink coordinates request/response transactions between host sessions and the
// firmware core.
//
// At most one transaction is in flight system-wide. Begin sends the host packet to the
// firmware and returns immediately; a second Begin while a transaction is outstanding
// fails with ErrTransactionActive instead of queuing.
//
// The listener goroutine (Run) then drives the transaction through its phases:
//
//	Idle --Begin--> AwaitingHandshake --handshake--> Idle               (command)
//	                                  --handshake--> AwaitingResponse   (request)
//	                                  --timeout----> Idle, synthesized NAK handshake
//	AwaitingResponse --response--> Idle
//	                 --timeout---> Idle, synthesized missing-response marker
//
// When a phase times out while the firmware reports busy, a BUSY handshake is sent to the
// host and the phase wait restarts. Packets that do not belong to the current phase are
// discarded. Firmware silence therefore always reaches the host as a packet, never as a
// hung session.
package fwlink
