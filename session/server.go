package session

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-gxip/gxip"
	"github.com/arloliu/go-gxip/internal/pool"
	"github.com/arloliu/go-gxip/logger"
)

// Handler processes the frames received by a Server.
//
// HandleFrame runs on the session goroutine. Returning an error closes the client connection.
type Handler interface {
	HandleFrame(ctx context.Context, s *Server, frame []byte) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, s *Server, frame []byte) error

func (f HandlerFunc) HandleFrame(ctx context.Context, s *Server, frame []byte) error {
	return f(ctx, s, frame)
}

// Server is a single-client TCP session server.
//
// Server is goroutine-safe: Send, ResetConnection and the accessors may be called from any
// goroutine while Run serves clients.
type Server struct {
	cfg     *ServerConfig
	handler Handler
	logger  logger.Logger
	metrics ServerMetrics
	state   atomicConnState
	closed  atomic.Bool

	// reset is the forced-disconnect signal; capacity 1 so posting never blocks.
	reset chan struct{}

	listenerMu sync.Mutex
	listener   *net.TCPListener

	// connMu serializes writes to the client and guards conn.
	connMu sync.Mutex
	conn   net.Conn
}

// NewServer creates a session server on port that dispatches frames to handler.
func NewServer(port int, handler Handler, opts ...ServerOption) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler is nil")
	}

	cfg, err := NewServerConfig(port, opts...)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  cfg.logger.With("component", "session", "server", cfg.name),
		reset:   make(chan struct{}, 1),
	}, nil
}

// Name returns the server name.
func (s *Server) Name() string { return s.cfg.name }

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig { return s.cfg }

// Metrics returns the server metrics.
func (s *Server) Metrics() *ServerMetrics { return &s.metrics }

// State returns the client connection state.
func (s *Server) State() ConnState { return s.state.Load() }

// IsConnected returns if a client is connected.
func (s *Server) IsConnected() bool { return s.state.Load().IsConnected() }

// Addr returns the bound listener address, or nil before the first successful bind.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Send writes b to the connected client.
//
// It returns ErrNotConnected when no client is connected.
func (s *Server) Send(b []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil || !s.state.Load().IsConnected() {
		return ErrNotConnected
	}

	if _, err := s.conn.Write(b); err != nil {
		return err
	}
	s.metrics.incFrameSendCount()

	return nil
}

// SendPacket writes a GXIP packet to the connected client.
func (s *Server) SendPacket(p *gxip.Packet) error {
	return s.Send(p.ToBytes())
}

// SendToHost implements the firmware coordinator's host sink.
func (s *Server) SendToHost(p *gxip.Packet) error {
	return s.SendPacket(p)
}

// ResetConnection asks the session to drop its client. It never blocks; a pending request
// is not duplicated.
func (s *Server) ResetConnection() {
	if !s.IsConnected() {
		return
	}

	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// Run serves clients one at a time until ctx is done or Close is called.
func (s *Server) Run(ctx context.Context) error {
	for s.Serve(ctx) {
	}

	_ = s.closeListener()
	if s.closed.Load() {
		return ErrServerClosed
	}

	return ctx.Err()
}

// Serve performs one step of the server loop: bind if needed, wait for one accept
// iteration and serve the accepted client until it goes away. It returns false when the
// server should stop. It is suitable as a task.Func.
func (s *Server) Serve(ctx context.Context) bool {
	if s.stopped(ctx) {
		return false
	}

	listener := s.getListener(ctx)
	if listener == nil {
		return !s.stopped(ctx)
	}

	conn := s.accept(ctx, listener)
	if conn == nil {
		return !s.stopped(ctx)
	}

	s.serveConn(ctx, conn)

	return !s.stopped(ctx)
}

// Close stops the server and drops the client, if any.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.dropConn()

	return s.closeListener()
}

func (s *Server) stopped(ctx context.Context) bool {
	return s.closed.Load() || ctx.Err() != nil
}

// getListener returns the listener, binding it first when needed. A failed bind is logged
// and retried after the bind retry delay.
func (s *Server) getListener(ctx context.Context) *net.TCPListener {
	s.listenerMu.Lock()
	if s.listener != nil {
		l := s.listener
		s.listenerMu.Unlock()

		return l
	}
	s.listenerMu.Unlock()

	address := net.JoinHostPort(s.cfg.address, strconv.Itoa(s.cfg.port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		s.metrics.incBindRetryGauge()
		s.logger.Error("failed to listen", "address", address, "retry", s.metrics.BindRetryGauge.Load(), "error", err)
		s.sleep(ctx, s.cfg.bindRetryDelay)

		return nil
	}

	tcpListener, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		s.logger.Error("listener is not a TCP listener", "address", address)

		return nil
	}

	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.closed.Load() {
		_ = tcpListener.Close()
		return nil
	}
	s.listener = tcpListener
	s.metrics.resetBindRetryGauge()
	s.logger.Info("waiting for connection", "address", tcpListener.Addr())

	return tcpListener
}

// accept waits one accept iteration. It returns nil on timeout or error.
func (s *Server) accept(ctx context.Context, listener *net.TCPListener) net.Conn {
	if err := listener.SetDeadline(time.Now().Add(s.cfg.acceptTimeout)); err != nil {
		s.logger.Error("failed to set deadline for tcp listener", "error", err)
		s.sleep(ctx, s.cfg.acceptTimeout)

		return nil
	}

	conn, err := listener.Accept()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}

		if !s.stopped(ctx) {
			s.logger.Error("failed to accept connection", "error", err)
			s.sleep(ctx, s.cfg.acceptTimeout)
		}

		return nil
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	// a reset posted for the previous client must not drop this one
	select {
	case <-s.reset:
	default:
	}

	s.connMu.Lock()
	s.conn = conn
	s.state.Store(ConnectedState)
	s.connMu.Unlock()

	s.metrics.incAcceptCount()
	s.logger.Info("client connected", "remote_address", conn.RemoteAddr())

	return conn
}

type readResult struct {
	frame []byte
	err   error
}

// serveConn runs the session loop for one client.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	done := make(chan struct{})
	results := make(chan readResult)

	go s.readLoop(conn, results, done)

	defer func() {
		close(done)
		s.dropConn()
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("session canceled by context")
			return

		case <-s.reset:
			s.metrics.incForcedCloseCount()
			s.logger.Info("connection closed by reset", "remote_address", conn.RemoteAddr())
			return

		case res := <-results:
			if res.err != nil {
				if errors.Is(res.err, io.EOF) || errors.Is(res.err, net.ErrClosed) {
					s.logger.Info("connection closed by client", "remote_address", conn.RemoteAddr())
				} else {
					s.metrics.incFrameErrCount()
					s.logger.Warn("connection closed on read error", "remote_address", conn.RemoteAddr(), "error", res.err)
				}

				return
			}

			s.metrics.incFrameRecvCount()
			if err := s.handler.HandleFrame(ctx, s, res.frame); err != nil {
				s.metrics.incFrameErrCount()
				s.logger.Warn("connection closed on handler error", "remote_address", conn.RemoteAddr(), "error", err)

				return
			}
		}
	}
}

// readLoop reads frames from conn until an error occurs or done is closed.
func (s *Server) readLoop(conn net.Conn, results chan<- readResult, done <-chan struct{}) {
	reader := gxip.NewReader(conn, s.cfg.capacity, s.cfg.bodyTimeout)

	for {
		frame, err := reader.ReadFrame()

		select {
		case results <- readResult{frame: frame, err: err}:
		case <-done:
			return
		}

		if err != nil {
			return
		}
	}
}

func (s *Server) dropConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.state.Store(NotConnectedState)
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Server) closeListener() error {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}

	err := s.listener.Close()
	s.listener = nil

	return err
}

func (s *Server) sleep(ctx context.Context, d time.Duration) {
	timer := pool.GetTimer(d)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
