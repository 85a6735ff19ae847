//go:build !linux

package hwfifo

// MmapConfig locates the FIFO registers in physical memory.
type MmapConfig struct {
	Device  string
	Base    int64
	Span    int
	F2HCSR  uintptr
	F2HData uintptr
	H2FData uintptr
}

// DefaultMmapConfig returns an empty layout; physical mapping is Linux only.
func DefaultMmapConfig() MmapConfig {
	return MmapConfig{}
}

// MmapPort is unavailable on this platform.
type MmapPort struct{ Port }

// OpenMmapPort always fails with ErrUnsupported on this platform.
func OpenMmapPort(_ MmapConfig) (*MmapPort, error) {
	return nil, ErrUnsupported
}
