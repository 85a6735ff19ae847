package session

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-gxip/gxip"
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

func startServer(t *testing.T, handler Handler, opts ...ServerOption) *Server {
	t.Helper()

	opts = append([]ServerOption{
		WithAddress("127.0.0.1"),
		WithAcceptTimeout(20 * time.Millisecond),
		WithBodyTimeout(200 * time.Millisecond),
	}, opts...)
	s, err := NewServer(0, handler, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool { return s.Addr() != nil }, time.Second, time.Millisecond)

	return s
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, s.IsConnected, time.Second, time.Millisecond)

	return conn
}

func readPacket(t *testing.T, conn net.Conn) *gxip.Packet {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	pkt, err := gxip.NewReader(conn, gxip.MaxPacketSize, time.Second).ReadPacket()
	require.NoError(t, err)

	return pkt
}

// expectClosed asserts that the peer closed conn.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 16)
	_, err := conn.Read(buf)
	require.Error(t, err)

	var netErr net.Error
	if errors.As(err, &netErr) {
		require.False(t, netErr.Timeout(), "connection was not closed by the server")
	}
}

func echoHandler() Handler {
	return HandlerFunc(func(_ context.Context, s *Server, frame []byte) error {
		return s.Send(frame)
	})
}

func TestPortForSlot(t *testing.T) {
	tests := []struct {
		slot    int
		port    int
		wantErr bool
	}{
		{MasterSlot, 1066, false},
		{0, 921, false},
		{1, 922, false},
		{3, 924, false},
		{4, 0, true},
		{-2, 0, true},
	}

	for _, tt := range tests {
		port, err := PortForSlot(tt.slot)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidSlot, "slot %d", tt.slot)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.port, port, "slot %d", tt.slot)
	}
}

func TestNewServerConfig(t *testing.T) {
	require := require.New(t)

	cfg, err := NewServerConfig(921)
	require.NoError(err)
	require.Equal("port-921", cfg.Name())
	require.Equal(921, cfg.Port())
	require.Equal(gxip.MaxPacketSize, cfg.capacity)
	require.Equal(time.Second, cfg.acceptTimeout)

	_, err = NewServerConfig(70000)
	require.Error(err)
	_, err = NewServerConfig(921, WithCapacity(2))
	require.Error(err)
	_, err = NewServerConfig(921, WithAcceptTimeout(time.Minute))
	require.Error(err)
	_, err = NewServerConfig(921, WithName(""))
	require.Error(err)
	_, err = NewServerConfig(921, WithLogger(nil))
	require.Error(err)

	_, err = NewServer(921, nil)
	require.Error(err)
}

func TestServer_SendNotConnected(t *testing.T) {
	s, err := NewServer(0, echoHandler())
	require.NoError(t, err)

	require.ErrorIs(t, s.Send([]byte{0, 3, 0}), ErrNotConnected)
	require.Equal(t, NotConnectedState, s.State())
}

func TestServer_EchoFrames(t *testing.T) {
	require := require.New(t)
	s := startServer(t, echoHandler())
	conn := dial(t, s)

	frame := []byte{0, 6, gxip.CommandType, 1, 2, 3}
	_, err := conn.Write(frame)
	require.NoError(err)

	pkt := readPacket(t, conn)
	require.Equal(frame, pkt.ToBytes())
	require.Equal(uint64(1), s.Metrics().FrameRecvCount.Load())
	require.Equal(uint64(1), s.Metrics().FrameSendCount.Load())
}

func TestServer_ForcedDisconnectWakesIdleSession(t *testing.T) {
	require := require.New(t)
	s := startServer(t, echoHandler())
	conn := dial(t, s)

	// the session is blocked waiting for input; the reset must still be honored
	start := time.Now()
	s.ResetConnection()
	expectClosed(t, conn)
	require.Less(time.Since(start), 500*time.Millisecond)
	require.Eventually(func() bool { return !s.IsConnected() }, time.Second, time.Millisecond)
	require.Equal(uint64(1), s.Metrics().ForcedCloseCount.Load())

	// back in accept mode
	conn2 := dial(t, s)
	_, err := conn2.Write([]byte{0, 3, gxip.ProtocolType})
	require.NoError(err)
	require.Equal(gxip.ProtocolType, readPacket(t, conn2).Type())
}

func TestServer_StaleResetDrainedAfterAccept(t *testing.T) {
	require := require.New(t)
	s := startServer(t, echoHandler())

	// a signal left over from a previous client
	s.reset <- struct{}{}

	conn := dial(t, s)
	time.Sleep(50 * time.Millisecond)
	require.True(s.IsConnected())

	_, err := conn.Write([]byte{0, 4, gxip.RequestType, 9})
	require.NoError(err)
	require.Equal(uint16(9), readPacket(t, conn).ID())
	require.Equal(uint64(0), s.Metrics().ForcedCloseCount.Load())
}

func TestServer_ResetWithoutClientIsNoop(t *testing.T) {
	s := startServer(t, echoHandler())

	s.ResetConnection()
	s.ResetConnection()
	assert.Empty(t, s.reset)
}

func TestServer_ClientCloseReturnsToAccept(t *testing.T) {
	require := require.New(t)
	s := startServer(t, echoHandler())

	conn := dial(t, s)
	require.NoError(conn.Close())
	require.Eventually(func() bool { return !s.IsConnected() }, time.Second, time.Millisecond)

	dial(t, s)
	require.Equal(uint64(2), s.Metrics().AcceptCount.Load())
}

func TestServer_InvalidFramingClosesConnection(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{"length below header", []byte{0, 2}},
		{"length above capacity", []byte{0xff, 0xff, gxip.CommandType}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := startServer(t, echoHandler())
			conn := dial(t, s)

			_, err := conn.Write(tt.frame)
			require.NoError(t, err)
			expectClosed(t, conn)
			require.Eventually(t, func() bool { return s.Metrics().FrameErrCount.Load() == 1 }, time.Second, time.Millisecond)
		})
	}
}

func TestServer_TruncatedBodyTimesOut(t *testing.T) {
	s := startServer(t, echoHandler(), WithBodyTimeout(30*time.Millisecond))
	conn := dial(t, s)

	_, err := conn.Write([]byte{0, 10, gxip.CommandType, 1})
	require.NoError(t, err)
	expectClosed(t, conn)
}

func TestServer_HandlerErrorClosesConnection(t *testing.T) {
	s := startServer(t, HandlerFunc(func(context.Context, *Server, []byte) error {
		return io.ErrUnexpectedEOF
	}))
	conn := dial(t, s)

	_, err := conn.Write([]byte{0, 3, gxip.ProtocolType})
	require.NoError(t, err)
	expectClosed(t, conn)
}

func TestServer_OneClientAtATime(t *testing.T) {
	require := require.New(t)
	s := startServer(t, echoHandler())
	conn1 := dial(t, s)

	conn2, err := net.Dial("tcp", s.Addr().String())
	require.NoError(err)
	defer conn2.Close()

	// the second client is queued by the kernel until the first one leaves
	_, err = conn2.Write([]byte{0, 3, gxip.ProtocolType})
	require.NoError(err)
	require.NoError(conn2.SetReadDeadline(time.Now().Add(100 * time.Millisecond)))
	_, err = conn2.Read(make([]byte, 3))
	require.Error(err)

	require.NoError(conn1.Close())
	require.NoError(conn2.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 3)
	_, err = io.ReadFull(conn2, buf)
	require.NoError(err)
	require.Equal([]byte{0, 3, gxip.ProtocolType}, buf)
}

func TestServer_CloseStopsRun(t *testing.T) {
	require := require.New(t)

	s, err := NewServer(0, echoHandler(), WithAddress("127.0.0.1"), WithAcceptTimeout(10*time.Millisecond))
	require.NoError(err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	require.Eventually(func() bool { return s.Addr() != nil }, time.Second, time.Millisecond)

	require.NoError(s.Close())
	select {
	case err := <-errCh:
		require.ErrorIs(err, ErrServerClosed)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestServer_BindRetry(t *testing.T) {
	require := require.New(t)

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	port := busy.Addr().(*net.TCPAddr).Port

	s, err := NewServer(port, echoHandler(), WithAddress("127.0.0.1"), WithBindRetryDelay(5*time.Millisecond),
		WithAcceptTimeout(10*time.Millisecond))
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.Eventually(func() bool { return s.Metrics().BindRetryGauge.Load() >= 2 }, time.Second, time.Millisecond)
	require.Nil(s.Addr())

	require.NoError(busy.Close())
	require.Eventually(func() bool { return s.Addr() != nil }, time.Second, time.Millisecond)
	require.Equal(uint32(0), s.Metrics().BindRetryGauge.Load())
}
