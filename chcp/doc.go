/*
Package chcp implements the host-configuration control channel of the gateway.

Hosts discover and administer instruments with small fixed-layout UDP datagrams sent to
port 1216. Every datagram starts with a one-byte command type followed by a six-byte
hardware address. A datagram is accepted when that address is all zeros (every instrument
on the segment) or equals this instrument's own address.

	offset  size  field
	0       1     type
	1       6     hardware address filter
	7       ..    command fields

The Listener decodes commands and dispatches them to a Backend. The Heralder periodically
broadcasts a 32-byte Herald describing the instrument identity to UDP port 1217; ping and
ping-to commands trigger an immediate herald.
*/
package chcp
