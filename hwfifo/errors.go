package hwfifo

import "errors"

var (
	// ErrTimeout indicates that no message arrived before the receive timeout expired.
	ErrTimeout = errors.New("hwfifo: receive timeout")

	// ErrIncompleteMessage indicates that the firmware stopped delivering payload words
	// before the declared word count was reached. The message stays in progress and the
	// next Receive resumes it.
	ErrIncompleteMessage = errors.New("hwfifo: incomplete message")

	// ErrOversized indicates a declared word count larger than the channel accepts.
	// The offending words are consumed as they arrive and dropped.
	ErrOversized = errors.New("hwfifo: message exceeds word limit")

	// ErrEmpty is returned by Port.ReadWord when no word is queued.
	ErrEmpty = errors.New("hwfifo: fifo empty")

	// ErrPortClosed indicates that the underlying port has been closed.
	ErrPortClosed = errors.New("hwfifo: port closed")

	// ErrUnsupported indicates a backend not available on this platform.
	ErrUnsupported = errors.New("hwfifo: backend not supported on this platform")
)
