package gateway

import (
	"net"
	"net/netip"
	"sync"
)

// Version is the gateway software version; 20018 reads as 20.0.18.
const Version = 20018

// SplitVersion breaks a packed version number into its major, minor and build parts.
func SplitVersion(v int) (major, minor, build byte) {
	major = byte(v / 1000)
	v %= 1000
	minor = byte(v / 100)
	build = byte(v % 100)

	return major, minor, build
}

// Identity is the instrument identity shared by the control handlers, the herald and the
// mDNS advertisement.
type Identity struct {
	mu     sync.RWMutex
	ip     netip.Addr
	mac    net.HardwareAddr
	serial uint32
	letter byte
}

// Snapshot is a consistent copy of an Identity.
type Snapshot struct {
	IP     netip.Addr
	MAC    net.HardwareAddr
	Serial uint32
	Letter byte
}

func (id *Identity) Snapshot() Snapshot {
	id.mu.RLock()
	defer id.mu.RUnlock()

	return Snapshot{
		IP:     id.ip,
		MAC:    append(net.HardwareAddr(nil), id.mac...),
		Serial: id.serial,
		Letter: id.letter,
	}
}

func (id *Identity) IP() netip.Addr {
	id.mu.RLock()
	defer id.mu.RUnlock()

	return id.ip
}

func (id *Identity) SetIP(ip netip.Addr) {
	id.mu.Lock()
	id.ip = ip
	id.mu.Unlock()
}

func (id *Identity) MAC() net.HardwareAddr {
	id.mu.RLock()
	defer id.mu.RUnlock()

	return append(net.HardwareAddr(nil), id.mac...)
}

func (id *Identity) SetMAC(mac net.HardwareAddr) {
	id.mu.Lock()
	id.mac = append(net.HardwareAddr(nil), mac...)
	id.mu.Unlock()
}

func (id *Identity) Serial() uint32 {
	id.mu.RLock()
	defer id.mu.RUnlock()

	return id.serial
}

func (id *Identity) SetSerial(sn uint32) {
	id.mu.Lock()
	id.serial = sn
	id.mu.Unlock()
}

func (id *Identity) Letter() byte {
	id.mu.RLock()
	defer id.mu.RUnlock()

	return id.letter
}

func (id *Identity) SetLetter(letter byte) {
	id.mu.Lock()
	id.letter = letter
	id.mu.Unlock()
}
