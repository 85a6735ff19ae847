package chcp

import "errors"

var (
	// ErrShortDatagram indicates a datagram shorter than the layout of its command type.
	ErrShortDatagram = errors.New("chcp: datagram too short")

	// ErrBroadcastTooLarge indicates a device-broadcast payload above MaxBroadcastData bytes.
	ErrBroadcastTooLarge = errors.New("chcp: device broadcast payload too large")

	// ErrInvalidHardwareAddr indicates a hardware address that is not six bytes long.
	ErrInvalidHardwareAddr = errors.New("chcp: hardware address must be 6 bytes")

	// ErrInvalidIPv4 indicates an address that is not IPv4.
	ErrInvalidIPv4 = errors.New("chcp: address is not IPv4")

	// ErrListenerClosed is returned by Listener.Run after Close.
	ErrListenerClosed = errors.New("chcp: listener closed")

	// ErrHeralderClosed is returned by Heralder.Send after Close.
	ErrHeralderClosed = errors.New("chcp: heralder closed")
)
