//go:build linux

package hwfifo

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Default register layout of the lightweight HPS-to-FPGA bridge.
const (
	DefaultBridgeBase  = 0xFF200000
	DefaultBridgeSpan  = 0x200000
	DefaultF2HCSR      = 0x61000
	DefaultF2HData     = 0x61020
	DefaultH2FCSR      = 0x62000
	DefaultH2FData     = 0x62020
	defaultDevMemPath  = "/dev/mem"
	fillLevelRegOffset = 0
)

// MmapConfig locates the FIFO registers in physical memory.
type MmapConfig struct {
	// Device is the physical memory device, "/dev/mem" when empty.
	Device string
	// Base and Span select the mapped bridge window.
	Base int64
	Span int
	// Offsets of the FIFO registers inside the window.
	F2HCSR  uintptr
	F2HData uintptr
	H2FData uintptr
}

// DefaultMmapConfig returns the register layout of the production FPGA image.
func DefaultMmapConfig() MmapConfig {
	return MmapConfig{
		Device:  defaultDevMemPath,
		Base:    DefaultBridgeBase,
		Span:    DefaultBridgeSpan,
		F2HCSR:  DefaultF2HCSR,
		F2HData: DefaultF2HData,
		H2FData: DefaultH2FData,
	}
}

// MmapPort accesses the FIFO registers through a shared mapping of physical memory.
type MmapPort struct {
	f      *os.File
	mem    []byte
	fill   *uint32
	rdData *uint32
	wrData *uint32
}

var _ Port = (*MmapPort)(nil)

// OpenMmapPort maps the bridge window described by cfg.
func OpenMmapPort(cfg MmapConfig) (*MmapPort, error) {
	if cfg.Device == "" {
		cfg.Device = defaultDevMemPath
	}

	for _, off := range []uintptr{cfg.F2HCSR + fillLevelRegOffset, cfg.F2HData, cfg.H2FData} {
		if off+4 > uintptr(cfg.Span) {
			return nil, fmt.Errorf("register offset 0x%x outside span 0x%x", off, cfg.Span)
		}
	}

	f, err := os.OpenFile(cfg.Device, os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	mem, err := unix.Mmap(int(f.Fd()), cfg.Base, cfg.Span, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap bridge at 0x%x: %w", cfg.Base, err)
	}

	return &MmapPort{
		f:      f,
		mem:    mem,
		fill:   register(mem, cfg.F2HCSR+fillLevelRegOffset),
		rdData: register(mem, cfg.F2HData),
		wrData: register(mem, cfg.H2FData),
	}, nil
}

func register(mem []byte, off uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(&mem[off]))
}

func (p *MmapPort) FillLevel() (int, error) {
	if p.mem == nil {
		return 0, ErrPortClosed
	}

	return int(atomic.LoadUint32(p.fill)), nil
}

func (p *MmapPort) ReadWord() (uint32, error) {
	if p.mem == nil {
		return 0, ErrPortClosed
	}

	return atomic.LoadUint32(p.rdData), nil
}

func (p *MmapPort) WriteWord(w uint32) error {
	if p.mem == nil {
		return ErrPortClosed
	}
	atomic.StoreUint32(p.wrData, w)

	return nil
}

func (p *MmapPort) Close() error {
	if p.mem == nil {
		return nil
	}

	err := unix.Munmap(p.mem)
	p.mem = nil
	if cerr := p.f.Close(); err == nil {
		err = cerr
	}

	return err
}
