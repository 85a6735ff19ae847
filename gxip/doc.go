// Package gxip implements the GXIP framed message model spoken on the gateway's TCP session
// ports and carried, wrapped, across the hardware FIFO to the firmware core.
//
// Wire Format:
//
//	+----------------+--------+---------------------+
//	| length (u16be) | type   | payload             |
//	+----------------+--------+---------------------+
//
// The length counts the whole record including the length field itself, so the smallest
// valid packet is the 3-byte header with an empty payload.
//
// Packet Types:
//   - ProtocolType: protocol-info exchange, frozen at value zero.
//   - CommandType, RequestType, ResponseType: one-byte identifier in payload[0].
//   - CommandExtType, RequestExtType, ResponseExtType: two-byte big-endian identifier.
//   - HandshakeType: firmware acknowledgement of a command or request.
//   - MissingResponseType: synthesized by the gateway when the firmware stays silent.
//   - ControlType: requests served by the gateway itself, dispatched by sub-identifier.
//
// Packets are decoded with explicit bounds-checked accessors. A Packet never exposes bytes
// beyond its declared length, and every accessor returns ErrOutOfBounds instead of
// truncating.
package gxip
