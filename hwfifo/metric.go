package hwfifo

import "sync/atomic"

// ChannelMetrics contains atomic counters of a Channel.
type ChannelMetrics struct {
	// MsgSendCount indicates the number of messages written to the firmware.
	MsgSendCount atomic.Uint64
	// MsgRecvCount indicates the number of messages read from the firmware.
	MsgRecvCount atomic.Uint64
	// MsgErrCount indicates the number of malformed or truncated messages.
	MsgErrCount atomic.Uint64
	// StallCount indicates the number of times a payload word did not arrive within the
	// word stall timeout.
	StallCount atomic.Uint64
	// StaleWordCount indicates the number of words drained at start-up or after a torn header.
	StaleWordCount atomic.Uint64
}

func (m *ChannelMetrics) incMsgSendCount() {
	m.MsgSendCount.Add(1)
}

func (m *ChannelMetrics) incMsgRecvCount() {
	m.MsgRecvCount.Add(1)
}

func (m *ChannelMetrics) incMsgErrCount() {
	m.MsgErrCount.Add(1)
}
