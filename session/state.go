package session

import "sync/atomic"

// ConnState represents the state of the client connection of a server.
type ConnState uint32

const (
	// NotConnectedState indicates that the server is waiting for a client.
	NotConnectedState ConnState = iota
	// ConnectedState indicates that a client is connected.
	ConnectedState
)

// IsConnected returns if the state is connected.
func (cs ConnState) IsConnected() bool { return cs == ConnectedState }

// String returns string representation of the state.
func (cs ConnState) String() string {
	switch cs {
	case NotConnectedState:
		return "not-connected"
	case ConnectedState:
		return "connected"
	default:
		return "unknown"
	}
}

type atomicConnState struct {
	v atomic.Uint32
}

func (s *atomicConnState) Load() ConnState {
	return ConnState(s.v.Load())
}

func (s *atomicConnState) Store(cs ConnState) {
	s.v.Store(uint32(cs))
}
