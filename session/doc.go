/*
Package session implements the TCP session servers of the gateway.

A Server listens on one fixed port and serves a single client at a time. Each accepted
connection is read by a dedicated reader goroutine that feeds frames into the session loop;
the loop selects over those frames, reader errors, context cancellation and a capacity-1
forced-disconnect channel. ResetConnection posts to that channel without blocking, which lets
another goroutine (for example the host-configuration listener) drop a client immediately even
while the session is idle waiting for input.

Frames are handed to a Handler. GXIPHandler implements the GXIP dispatch: protocol-info
requests, control requests and command/request forwarding to the firmware coordinator.
The download manager plugs its own Handler into the same Server.

Servers are collected in a Registry so a single ResetAll drops every client.

Ports:

	master (slot -1)   1066
	slot 0..3          921..924
	download manager   24601
*/
package session
