package fwlink

import "sync/atomic"

// State is the phase of the coordinator.
type State uint32

const (
	// Idle means no transaction is in flight.
	Idle State = iota
	// AwaitingHandshake means a packet was sent and its handshake is awaited.
	AwaitingHandshake
	// AwaitingResponse means a request was acknowledged and its response is awaited.
	AwaitingResponse
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingHandshake:
		return "AwaitingHandshake"
	case AwaitingResponse:
		return "AwaitingResponse"
	default:
		return "Unknown"
	}
}

type atomicState struct {
	v atomic.Uint32
}

func (st *atomicState) Get() State {
	return State(st.v.Load())
}

// toAwaitingHandshake is the only way out of Idle.
func (st *atomicState) toAwaitingHandshake() bool {
	return st.v.CompareAndSwap(uint32(Idle), uint32(AwaitingHandshake))
}

func (st *atomicState) toAwaitingResponse() bool {
	return st.v.CompareAndSwap(uint32(AwaitingHandshake), uint32(AwaitingResponse))
}

func (st *atomicState) toIdle() {
	st.v.Store(uint32(Idle))
}
