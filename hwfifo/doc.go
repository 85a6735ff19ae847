// Package hwfifo transports whole messages across the word-oriented hardware FIFO pair
// linking the gateway to the firmware core.
//
// Message Layout:
//
//	word 0       message type (StringMsg or GXIPMsg)
//	word 1       payload word count N
//	word 2..N+1  payload bytes packed little-endian, zero padded to a word boundary
//
// A Channel serializes senders so the header words of one message are never interleaved
// with the words of another, and receives by polling the fill-level register in short
// increments until a message arrives or the caller's timeout expires. A timeout is an
// ordinary outcome reported as ErrTimeout.
//
// Register access is abstracted by Port. Three backends are provided:
//   - MmapPort: the FPGA bridge registers mapped from /dev/mem.
//   - StreamPort: a byte stream carrying little-endian words, typically a serial bridge
//     opened with OpenSerialPort.
//   - SimPort: an in-memory FIFO pair for tests and bench runs without hardware, with an
//     Emulator that answers commands and requests like a cooperative firmware core.
package hwfifo
