package fwlink

import "sync/atomic"

// Metrics contains atomic counters of the coordinator.
type Metrics struct {
	// TransactionCount indicates the number of transactions started.
	TransactionCount atomic.Uint64
	// RejectedCount indicates the number of Begin calls refused because a transaction was active.
	RejectedCount atomic.Uint64
	// HandshakeFwdCount indicates the number of firmware handshakes forwarded to the host.
	HandshakeFwdCount atomic.Uint64
	// ResponseFwdCount indicates the number of firmware responses forwarded to the host.
	ResponseFwdCount atomic.Uint64
	// NakSentCount indicates the number of synthesized NAK handshakes.
	NakSentCount atomic.Uint64
	// BusySentCount indicates the number of synthesized BUSY handshakes.
	BusySentCount atomic.Uint64
	// MrmSentCount indicates the number of synthesized missing-response markers.
	MrmSentCount atomic.Uint64
	// DiscardCount indicates the number of firmware messages dropped as out of phase.
	DiscardCount atomic.Uint64
}
