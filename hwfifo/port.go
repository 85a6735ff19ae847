package hwfifo

// Port is register-level access to a FIFO pair: the firmware-to-host FIFO read by the
// gateway and the host-to-firmware FIFO written by it.
type Port interface {
	// FillLevel returns the number of words waiting in the firmware-to-host FIFO.
	FillLevel() (int, error)
	// ReadWord pops one word from the firmware-to-host FIFO.
	// It returns ErrEmpty when nothing is queued.
	ReadWord() (uint32, error)
	// WriteWord pushes one word into the host-to-firmware FIFO.
	WriteWord(w uint32) error
	// Close releases the port.
	Close() error
}
