package session

import "sync/atomic"

// ServerMetrics contains atomic metrics of a session server.
type ServerMetrics struct {
	// AcceptCount indicates the number of clients accepted.
	AcceptCount atomic.Uint64
	// ForcedCloseCount indicates the number of connections dropped by ResetConnection.
	ForcedCloseCount atomic.Uint64
	// FrameRecvCount indicates the number of frames received.
	FrameRecvCount atomic.Uint64
	// FrameSendCount indicates the number of frames sent.
	FrameSendCount atomic.Uint64
	// FrameErrCount indicates the number of framing or handler errors that closed a connection.
	FrameErrCount atomic.Uint64
	// BindRetryGauge indicates the number of consecutive failed bind attempts.
	BindRetryGauge atomic.Uint32
}

func (m *ServerMetrics) incAcceptCount()      { m.AcceptCount.Add(1) }
func (m *ServerMetrics) incForcedCloseCount() { m.ForcedCloseCount.Add(1) }
func (m *ServerMetrics) incFrameRecvCount()   { m.FrameRecvCount.Add(1) }
func (m *ServerMetrics) incFrameSendCount()   { m.FrameSendCount.Add(1) }
func (m *ServerMetrics) incFrameErrCount()    { m.FrameErrCount.Add(1) }
func (m *ServerMetrics) incBindRetryGauge()   { m.BindRetryGauge.Add(1) }
func (m *ServerMetrics) resetBindRetryGauge() { m.BindRetryGauge.Store(0) }

// CommStats are the communication counters reported by the get-communication-stats control request.
type CommStats struct {
	PacketsReceived uint32
	PacketsSent     uint32
	NakSent         uint32
	BusySent        uint32
	MrmSent         uint32
}

// Bytes encodes the counters as five big-endian 32-bit values.
func (cs CommStats) Bytes() []byte {
	buf := make([]byte, 0, 20)
	for _, v := range []uint32{cs.PacketsReceived, cs.PacketsSent, cs.NakSent, cs.BusySent, cs.MrmSent} {
		buf = append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}

	return buf
}
