package gxip

import (
	"encoding/binary"
	"fmt"
)

// ControlID is the sub-identifier of a control packet, held in payload[0].
type ControlID = byte

const (
	CtlGetVersion        ControlID = 1
	CtlGetUpdaterVersion ControlID = 2
	CtlGetCommStats      ControlID = 3
	CtlGetLiveSites      ControlID = 4
	CtlGetBusySites      ControlID = 5
	CtlGetHardwareAddr   ControlID = 6
	CtlReset             ControlID = 7
	CtlSetSerialNumber   ControlID = 8
	CtlGetSerialNumber   ControlID = 9
	CtlEcho              ControlID = 10
)

// ControlName returns a printable name of a control sub-identifier.
func ControlName(id ControlID) string {
	switch id {
	case CtlGetVersion:
		return "get_version"
	case CtlGetUpdaterVersion:
		return "get_updater_version"
	case CtlGetCommStats:
		return "get_comm_stats"
	case CtlGetLiveSites:
		return "get_live_sites"
	case CtlGetBusySites:
		return "get_busy_sites"
	case CtlGetHardwareAddr:
		return "get_hardware_addr"
	case CtlReset:
		return "reset"
	case CtlSetSerialNumber:
		return "set_serial_number"
	case CtlGetSerialNumber:
		return "get_serial_number"
	case CtlEcho:
		return "echo"
	default:
		return fmt.Sprintf("unknown(%d)", id)
	}
}

// ControlRequest is a read-only view of a control packet.
type ControlRequest struct {
	pkt *Packet
}

// AsControl returns a control view of p.
//
// It fails with ErrNotControl for other packet types and ErrOutOfBounds when the
// sub-identifier is missing.
func AsControl(p *Packet) (ControlRequest, error) {
	if p.Type() != ControlType {
		return ControlRequest{}, fmt.Errorf("%w: got %s", ErrNotControl, TypeName(p.Type()))
	}

	if _, err := p.Byte(0); err != nil {
		return ControlRequest{}, err
	}

	return ControlRequest{pkt: p}, nil
}

// ID returns the control sub-identifier.
func (c ControlRequest) ID() ControlID {
	return c.pkt.payload[0]
}

// Body returns the bytes following the sub-identifier.
func (c ControlRequest) Body() []byte {
	return c.pkt.payload[1:]
}

// SerialNumber returns the serial number argument of a set-serial-number request.
func (c ControlRequest) SerialNumber() (uint32, error) {
	return c.pkt.Uint32(1)
}

// NewControlResponse builds the reply to a control request: a response packet whose
// first payload byte repeats the request sub-identifier, followed by body.
func NewControlResponse(id ControlID, body ...byte) (*Packet, error) {
	payload := make([]byte, 0, 1+len(body))
	payload = append(payload, id)
	payload = append(payload, body...)

	return NewPacket(ResponseType, payload)
}

// NewControlRequest builds a control request with the given sub-identifier and arguments.
func NewControlRequest(id ControlID, args ...byte) (*Packet, error) {
	payload := make([]byte, 0, 1+len(args))
	payload = append(payload, id)
	payload = append(payload, args...)

	return NewPacket(ControlType, payload)
}

// Uint32Bytes encodes v big-endian, for control bodies.
func Uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)

	return b
}
