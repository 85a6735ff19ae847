package chcp

import "sync/atomic"

// ListenerMetrics contains atomic counters of the control-channel listener.
type ListenerMetrics struct {
	// RecvCount indicates the number of datagrams received.
	RecvCount atomic.Uint64
	// FilteredCount indicates the number of datagrams addressed to another instrument.
	FilteredCount atomic.Uint64
	// MalformedCount indicates the number of datagrams that failed to decode.
	MalformedCount atomic.Uint64
	// IgnoredCount indicates the number of unknown or unsupported commands.
	IgnoredCount atomic.Uint64
	// HandledCount indicates the number of commands dispatched.
	HandledCount atomic.Uint64
}

// HeraldMetrics contains atomic counters of the heralder.
type HeraldMetrics struct {
	SentCount    atomic.Uint64
	SendErrCount atomic.Uint64
	RebindCount  atomic.Uint64
}
