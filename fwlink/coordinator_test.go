package fwlink

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-gxip/gxip"
	"github.com/arloliu/go-gxip/hwfifo"
	"github.com/arloliu/go-gxip/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if lv, err := logger.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lv)
	}
	os.Exit(m.Run())
}

const (
	testHskTimeout = 60 * time.Millisecond
	testRspTimeout = 120 * time.Millisecond
)

type recordingSink struct {
	mu      sync.Mutex
	packets []*gxip.Packet
	times   []time.Time
}

func (s *recordingSink) SendToHost(p *gxip.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, p)
	s.times = append(s.times, time.Now())

	return nil
}

func (s *recordingSink) snapshot() []*gxip.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*gxip.Packet(nil), s.packets...)
}

func (s *recordingSink) count() int {
	return len(s.snapshot())
}

type fixture struct {
	port  *hwfifo.SimPort
	emu   *hwfifo.Emulator
	coord *Coordinator
	sink  *recordingSink
}

func newFixture(t *testing.T, withEmulator bool, opts ...Option) *fixture {
	t.Helper()

	port := hwfifo.NewSimPort()
	ch, err := hwfifo.NewChannel(port, hwfifo.WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	opts = append([]Option{
		WithHandshakeTimeout(testHskTimeout),
		WithResponseTimeout(testRspTimeout),
		WithIdlePoll(2 * time.Millisecond),
	}, opts...)
	coord, err := NewCoordinator(ch, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = coord.Run(ctx)
	}()

	emu := hwfifo.NewEmulator(port, nil)
	if withEmulator {
		wg.Add(1)
		go func() {
			defer wg.Done()
			emu.Run(ctx, time.Millisecond)
		}()
	}

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	return &fixture{port: port, emu: emu, coord: coord, sink: &recordingSink{}}
}

func mustPacket(t *testing.T, typ gxip.PacketType, payload ...byte) *gxip.Packet {
	t.Helper()
	pkt, err := gxip.NewPacket(typ, payload)
	require.NoError(t, err)

	return pkt
}

func waitIdle(t *testing.T, c *Coordinator) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == Idle }, 2*time.Second, time.Millisecond)
}

func TestBegin_RejectsWhileActive(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, false)

	require.NoError(f.coord.Begin(mustPacket(t, gxip.RequestType, 1), f.sink, false))
	require.NotEqual(Idle, f.coord.State())

	start := time.Now()
	err := f.coord.Begin(mustPacket(t, gxip.RequestType, 2), f.sink, false)
	require.ErrorIs(err, ErrTransactionActive)
	require.Less(time.Since(start), 10*time.Millisecond, "Begin must fail without waiting")
	require.Equal(uint64(1), f.coord.Metrics().RejectedCount.Load())

	waitIdle(t, f.coord)
	require.NoError(f.coord.Begin(mustPacket(t, gxip.CommandType, 3), f.sink, false))
}

func TestBegin_ConcurrentCallersOnlyOneWins(t *testing.T) {
	f := newFixture(t, false)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			if f.coord.Begin(mustPacket(t, gxip.CommandType, id), f.sink, false) == nil {
				wins.Add(1)
			}
		}(byte(i))
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestBegin_RejectsNonTransactable(t *testing.T) {
	f := newFixture(t, false)

	for _, typ := range []gxip.PacketType{gxip.ResponseType, gxip.HandshakeType, gxip.ControlType, gxip.ProtocolType} {
		err := f.coord.Begin(mustPacket(t, typ, 1), f.sink, false)
		assert.ErrorIs(t, err, ErrNotTransactable)
	}
	assert.Equal(t, Idle, f.coord.State())
}

func TestCommand_HandshakeForwarded(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, true)

	require.NoError(f.coord.Begin(mustPacket(t, gxip.CommandType, 0x10), f.sink, false))
	require.Eventually(func() bool { return f.sink.count() == 1 }, time.Second, time.Millisecond)
	waitIdle(t, f.coord)

	pkts := f.sink.snapshot()
	require.Equal(gxip.HandshakeType, pkts[0].Type())
	require.Equal([]byte{gxip.HandshakeAck}, pkts[0].Payload())
	require.Equal(uint64(1), f.coord.Metrics().HandshakeFwdCount.Load())
}

func TestRequest_HandshakeThenResponse(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, true)

	require.NoError(f.coord.Begin(mustPacket(t, gxip.RequestType, 0x22, 'x'), f.sink, false))
	require.Eventually(func() bool { return f.sink.count() == 2 }, time.Second, time.Millisecond)
	waitIdle(t, f.coord)

	pkts := f.sink.snapshot()
	require.Equal(gxip.HandshakeType, pkts[0].Type())
	require.Equal(gxip.ResponseType, pkts[1].Type())
	require.Equal(uint16(0x22), pkts[1].ID())
}

func TestRequest_DiscardHandshake(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, true)

	require.NoError(f.coord.Begin(mustPacket(t, gxip.RequestExtType, 0x01, 0x02), f.sink, true))
	require.Eventually(func() bool { return f.sink.count() == 1 }, time.Second, time.Millisecond)
	waitIdle(t, f.coord)

	pkts := f.sink.snapshot()
	require.Equal(gxip.ResponseExtType, pkts[0].Type())
	require.Equal(uint16(0x0102), pkts[0].ID())
}

func TestHandshakeTimeout_SynthesizesSingleNak(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, false)

	start := time.Now()
	require.NoError(f.coord.Begin(mustPacket(t, gxip.RequestType, 5), f.sink, false))
	require.Eventually(func() bool { return f.sink.count() == 1 }, time.Second, time.Millisecond)
	waitIdle(t, f.coord)

	pkts := f.sink.snapshot()
	require.Equal([]byte{0, 4, gxip.HandshakeType, gxip.HandshakeNak}, pkts[0].ToBytes())
	require.GreaterOrEqual(f.sink.times[0].Sub(start), testHskTimeout)

	// nothing else follows
	time.Sleep(2 * testRspTimeout)
	require.Equal(1, f.sink.count())
	require.Equal(uint64(1), f.coord.Metrics().NakSentCount.Load())
}

func TestResponseTimeout_SynthesizesMissingResponse(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, true)
	f.emu.SetNoResponse(true)

	require.NoError(f.coord.Begin(mustPacket(t, gxip.RequestType, 0x31), f.sink, false))
	require.Eventually(func() bool { return f.sink.count() == 2 }, time.Second, time.Millisecond)
	waitIdle(t, f.coord)

	pkts := f.sink.snapshot()
	require.Equal(gxip.HandshakeType, pkts[0].Type())
	require.Equal([]byte{0, 5, gxip.MissingResponseType, 0x31, gxip.RequestType}, pkts[1].ToBytes())

	time.Sleep(testRspTimeout)
	require.Equal(2, f.sink.count())
	require.Equal(uint64(1), f.coord.Metrics().MrmSentCount.Load())
}

func TestBusy_EachIndicationRestartsWait(t *testing.T) {
	require := require.New(t)

	var checks atomic.Int32
	busy := func() bool { return checks.Add(1) <= 2 }
	f := newFixture(t, false, WithBusyDetector(busy))

	start := time.Now()
	require.NoError(f.coord.Begin(mustPacket(t, gxip.CommandType, 9), f.sink, false))
	require.Eventually(func() bool { return f.sink.count() == 3 }, 2*time.Second, time.Millisecond)
	waitIdle(t, f.coord)

	pkts := f.sink.snapshot()
	require.Equal([]byte{gxip.HandshakeBusy}, pkts[0].Payload())
	require.Equal([]byte{gxip.HandshakeBusy}, pkts[1].Payload())
	require.Equal([]byte{gxip.HandshakeNak}, pkts[2].Payload())

	// each busy restarts the full timeout
	require.GreaterOrEqual(f.sink.times[1].Sub(f.sink.times[0]), testHskTimeout)
	require.GreaterOrEqual(f.sink.times[2].Sub(start), 3*testHskTimeout)
	require.Equal(uint64(2), f.coord.Metrics().BusySentCount.Load())
}

func TestBusy_ThenHandshakeArrives(t *testing.T) {
	require := require.New(t)

	var checks atomic.Int32
	f := newFixture(t, false, WithBusyDetector(func() bool { return checks.Add(1) == 1 }))

	require.NoError(f.coord.Begin(mustPacket(t, gxip.CommandType, 9), f.sink, false))
	require.Eventually(func() bool { return f.sink.count() == 1 }, time.Second, time.Millisecond)

	f.port.InjectPacket(gxip.NewHandshake(gxip.HandshakeAck))
	require.Eventually(func() bool { return f.sink.count() == 2 }, time.Second, time.Millisecond)
	waitIdle(t, f.coord)

	pkts := f.sink.snapshot()
	require.Equal([]byte{gxip.HandshakeBusy}, pkts[0].Payload())
	require.Equal([]byte{gxip.HandshakeAck}, pkts[1].Payload())
}

func TestOutOfPhasePacketsDiscarded(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, false)

	require.NoError(f.coord.Begin(mustPacket(t, gxip.RequestType, 0x40), f.sink, false))

	f.port.InjectPacket(mustPacket(t, gxip.ResponseType, 0x40))
	f.port.InjectMessage(hwfifo.StringMsg, []byte("debug line\x00"))
	f.port.InjectPacket(gxip.NewHandshake(gxip.HandshakeAck))
	f.port.InjectPacket(gxip.NewHandshake(gxip.HandshakeAck))
	f.port.InjectPacket(mustPacket(t, gxip.ResponseType, 0x40, 0xaa))

	require.Eventually(func() bool { return f.sink.count() == 2 }, time.Second, time.Millisecond)
	waitIdle(t, f.coord)

	pkts := f.sink.snapshot()
	require.Equal(gxip.HandshakeType, pkts[0].Type())
	require.Equal([]byte{0x40, 0xaa}, pkts[1].Payload())

	discarded := f.coord.DiscardedByType()
	require.Equal(uint64(1), discarded[gxip.ResponseType])
	require.Equal(uint64(1), discarded[gxip.HandshakeType])
}

func TestIdleDrain(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, false)

	f.port.InjectMessage(hwfifo.StringMsg, []byte("firmware up\x00"))
	f.port.InjectPacket(gxip.NewHandshake(gxip.HandshakeAck))

	require.Eventually(func() bool { return f.port.HostPending() == 0 }, time.Second, time.Millisecond)
	require.Equal(0, f.sink.count())
	require.Equal(Idle, f.coord.State())
}

func TestDefaultSink(t *testing.T) {
	require := require.New(t)

	sink := &recordingSink{}
	f := newFixture(t, true, WithDefaultSink(sink))

	require.NoError(f.coord.Begin(mustPacket(t, gxip.CommandType, 1), nil, false))
	require.Eventually(func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)
	require.Equal(0, f.sink.count())
}

func TestNewCoordinator_Options(t *testing.T) {
	ch, err := hwfifo.NewChannel(hwfifo.NewSimPort())
	require.NoError(t, err)

	_, err = NewCoordinator(nil)
	assert.Error(t, err)
	_, err = NewCoordinator(ch, WithHandshakeTimeout(0))
	assert.Error(t, err)
	_, err = NewCoordinator(ch, WithResponseTimeout(time.Hour))
	assert.Error(t, err)
	_, err = NewCoordinator(ch, WithBusyDetector(nil))
	assert.Error(t, err)
	_, err = NewCoordinator(ch, WithIdlePoll(0))
	assert.Error(t, err)

	c, err := NewCoordinator(ch)
	require.NoError(t, err)
	assert.False(t, c.IsBusy())
	assert.Equal(t, "Idle", c.State().String())
}
