package chcp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"time"
)

const (
	// ListenPort is the UDP port the control channel listens on.
	ListenPort = 1216
	// HeraldPort is the UDP port heralds are broadcast to.
	HeraldPort = 1217
	// HeraldInterval is the period of the herald broadcast.
	HeraldInterval = 2 * time.Second

	// HeaderSize is the size of the type and hardware address fields shared by every command.
	HeaderSize = 7
	// HeraldSize is the wire size of a herald.
	HeraldSize = 32
	// HeraldVersion is the herald layout version. Version 2 added the serial number.
	HeraldVersion = 2
	// MaxBroadcastData is the capacity of the device-broadcast data field.
	MaxBroadcastData = 256
	// MaxDatagramSize bounds the datagrams read by the listener.
	MaxDatagramSize = 300
)

// CommandType is the leading byte of every control-channel datagram.
type CommandType byte

const (
	HeraldOn        CommandType = 0
	HeraldAnnounce  CommandType = 1
	AssignIP        CommandType = 2
	HeraldOff       CommandType = 3
	DeviceBroadcast CommandType = 4
	Reset           CommandType = 5
	Ping            CommandType = 6
	SetMAC          CommandType = 7
	SetIP           CommandType = 8
	StartUpdateMode CommandType = 9
	TrashFirmware   CommandType = 10
	AssignLetter    CommandType = 11
	PingTo          CommandType = 12
	Launch          CommandType = 100
)

var commandNames = map[CommandType]string{
	HeraldOn:        "herald-on",
	HeraldAnnounce:  "herald",
	AssignIP:        "assign-ip",
	HeraldOff:       "herald-off",
	DeviceBroadcast: "device-broadcast",
	Reset:           "reset",
	Ping:            "ping",
	SetMAC:          "set-mac",
	SetIP:           "set-ip",
	StartUpdateMode: "start-update-mode",
	TrashFirmware:   "trash-firmware",
	AssignLetter:    "assign-letter",
	PingTo:          "ping-to",
	Launch:          "launch",
}

func (t CommandType) String() string {
	if name, ok := commandNames[t]; ok {
		return name
	}

	return fmt.Sprintf("unknown(%d)", byte(t))
}

// Family identifies the product family announced in a herald.
type Family byte

const (
	FamilyLegacy Family = 0
	FamilyHC     Family = 1
	FamilyOmni   Family = 2
	FamilyG2     Family = 3
)

// Flags are the feature bits announced in a herald.
type Flags byte

const (
	FlagDLM    Flags = 0x01
	FlagCanDLM Flags = 0x02
	FlagDHCP   Flags = 0x04
	FlagOMAP   Flags = 0x08
)

// BroadcastMAC is the all-zero hardware address that addresses every instrument.
var BroadcastMAC = net.HardwareAddr{0, 0, 0, 0, 0, 0}

// Command is a decoded control-channel datagram. Fields that do not belong to Type are zero.
type Command struct {
	Type CommandType
	MAC  net.HardwareAddr

	// IP is the address field of ping, ping-to, assign-ip and set-ip.
	IP netip.Addr
	// Port is the destination port of ping-to.
	Port uint16
	// Letter is the slot letter of assign-letter.
	Letter byte
	// Data is the embedded message of device-broadcast.
	Data []byte
}

// layoutSize returns the minimum datagram size of t.
func layoutSize(t CommandType) int {
	switch t {
	case Ping, AssignIP, SetIP:
		return HeaderSize + 4
	case PingTo:
		return HeaderSize + 6
	case AssignLetter, DeviceBroadcast:
		return HeaderSize + 1
	default:
		return HeaderSize
	}
}

// DecodeCommand decodes a control-channel datagram.
//
// Unknown command types decode successfully with only Type and MAC set; the listener decides
// what to do with them. Trailing bytes beyond the layout are ignored.
func DecodeCommand(b []byte) (*Command, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortDatagram, len(b))
	}

	cmd := &Command{
		Type: CommandType(b[0]),
		MAC:  net.HardwareAddr(bytes.Clone(b[1:HeaderSize])),
	}

	if need := layoutSize(cmd.Type); len(b) < need {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortDatagram, cmd.Type, need, len(b))
	}

	switch cmd.Type {
	case Ping, AssignIP, SetIP:
		cmd.IP = netip.AddrFrom4([4]byte(b[7:11]))
	case PingTo:
		cmd.IP = netip.AddrFrom4([4]byte(b[7:11]))
		cmd.Port = binary.BigEndian.Uint16(b[11:13])
	case AssignLetter:
		cmd.Letter = b[7]
	case DeviceBroadcast:
		n := int(b[7])
		if len(b) < HeaderSize+1+n {
			return nil, fmt.Errorf("%w: device broadcast declares %d bytes, got %d",
				ErrShortDatagram, n, len(b)-HeaderSize-1)
		}
		cmd.Data = bytes.Clone(b[8 : 8+n])
	}

	return cmd, nil
}

// Encode returns the wire form of c. Host tools use it to build commands.
func (c *Command) Encode() ([]byte, error) {
	mac := c.MAC
	if mac == nil {
		mac = BroadcastMAC
	}
	if len(mac) != 6 {
		return nil, ErrInvalidHardwareAddr
	}

	b := make([]byte, HeaderSize, layoutSize(c.Type)+len(c.Data))
	b[0] = byte(c.Type)
	copy(b[1:], mac)

	switch c.Type {
	case Ping, AssignIP, SetIP, PingTo:
		ip, err := ipv4Bytes(c.IP)
		if err != nil {
			return nil, err
		}
		b = append(b, ip[:]...)
		if c.Type == PingTo {
			b = binary.BigEndian.AppendUint16(b, c.Port)
		}
	case AssignLetter:
		b = append(b, c.Letter)
	case DeviceBroadcast:
		// the length field is one byte wide
		if len(c.Data) > MaxBroadcastData-1 {
			return nil, fmt.Errorf("%w: %d bytes", ErrBroadcastTooLarge, len(c.Data))
		}
		b = append(b, byte(len(c.Data)))
		b = append(b, c.Data...)
	}

	return b, nil
}

// AddressedTo reports whether c targets the instrument with hardware address mac.
func (c *Command) AddressedTo(mac net.HardwareAddr) bool {
	return bytes.Equal(c.MAC, BroadcastMAC) || bytes.Equal(c.MAC, mac)
}

// PingTargets reports whether a ping aimed at target should be answered by an instrument
// whose address is self. The unspecified and limited-broadcast addresses target everyone.
func PingTargets(target, self netip.Addr) bool {
	if !target.IsValid() {
		return false
	}

	return target == self || target.IsUnspecified() || target == netip.AddrFrom4([4]byte{255, 255, 255, 255})
}

func ipv4Bytes(a netip.Addr) ([4]byte, error) {
	if !a.IsValid() {
		return [4]byte{}, nil
	}
	if !a.Is4() {
		return [4]byte{}, fmt.Errorf("%w: %s", ErrInvalidIPv4, a)
	}

	return a.As4(), nil
}

// Herald is the identity record broadcast by the instrument.
type Herald struct {
	MAC           net.HardwareAddr
	Version       byte
	IP            netip.Addr
	Flags         Flags
	Letter        byte
	FirmwareMajor byte
	FirmwareMinor byte
	FirmwareBuild byte
	SerialNumber  uint32
	Family        Family
}

// MarshalBinary encodes h into its 32-byte wire form. The filler bytes are zero.
func (h *Herald) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeraldSize)
	if err := h.encodeTo(b); err != nil {
		return nil, err
	}

	return b, nil
}

func (h *Herald) encodeTo(b []byte) error {
	mac := h.MAC
	if mac == nil {
		mac = BroadcastMAC
	}
	if len(mac) != 6 {
		return ErrInvalidHardwareAddr
	}

	ip, err := ipv4Bytes(h.IP)
	if err != nil {
		return err
	}

	clear(b[:HeraldSize])
	b[0] = byte(HeraldAnnounce)
	copy(b[1:7], mac)
	b[7] = h.Version
	copy(b[8:12], ip[:])
	b[12] = byte(h.Flags)
	b[13] = h.Letter
	b[14] = h.FirmwareMajor
	b[15] = h.FirmwareMinor
	b[16] = h.FirmwareBuild
	binary.BigEndian.PutUint32(b[17:21], h.SerialNumber)
	b[21] = byte(h.Family)

	return nil
}

// ParseHerald decodes a herald datagram.
func ParseHerald(b []byte) (*Herald, error) {
	if len(b) < HeraldSize {
		return nil, fmt.Errorf("%w: herald needs %d bytes, got %d", ErrShortDatagram, HeraldSize, len(b))
	}
	if CommandType(b[0]) != HeraldAnnounce {
		return nil, fmt.Errorf("chcp: not a herald: type %d", b[0])
	}

	return &Herald{
		MAC:           net.HardwareAddr(bytes.Clone(b[1:7])),
		Version:       b[7],
		IP:            netip.AddrFrom4([4]byte(b[8:12])),
		Flags:         Flags(b[12]),
		Letter:        b[13],
		FirmwareMajor: b[14],
		FirmwareMinor: b[15],
		FirmwareBuild: b[16],
		SerialNumber:  binary.BigEndian.Uint32(b[17:21]),
		Family:        Family(b[21]),
	}, nil
}
