package dlm

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-gxip/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dlmClient struct {
	t    *testing.T
	conn net.Conn
}

func startManager(t *testing.T, env *installEnv, extra ...Option) (*Manager, *dlmClient) {
	t.Helper()

	mgr, err := NewManager(env.options(append([]Option{WithSandbox(env.root)}, extra...)...)...)
	require.NoError(t, err)

	srv, err := mgr.NewServer(0, session.WithAddress("127.0.0.1"), session.WithAcceptTimeout(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, time.Millisecond)
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return mgr, &dlmClient{t: t, conn: conn}
}

func (c *dlmClient) call(op Op, data []byte) []byte {
	c.t.Helper()

	req, err := EncodeRequest(op, data)
	require.NoError(c.t, err)
	_, err = c.conn.Write(req)
	require.NoError(c.t, err)

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	reply := make([]byte, 4)
	_, err = io.ReadFull(c.conn, reply)
	require.NoError(c.t, err)

	return reply
}

func TestManager_FlashScenario(t *testing.T) {
	require := require.New(t)
	env := newInstallEnv(t)

	var handoffs atomic.Int32
	mgr, client := startManager(t, env, WithHandoff(func() { handoffs.Add(1) }))

	bundle := withPackageHeader(validBundle(t))

	require.Equal(Reply(OpFlashInit, StatusSuccess), client.call(OpFlashInit, nil))
	for off := 0; off < len(bundle); off += 64 {
		end := min(off+64, len(bundle))
		require.Equal(Reply(OpFlashWrite, StatusSuccess), client.call(OpFlashWrite, bundle[off:end]))
	}
	require.Equal(int64(len(bundle)), mgr.Upload().Written())

	require.Equal(Reply(OpFlashCommit, StatusSuccess), client.call(OpFlashCommit, nil))

	require.FileExists(env.inactive + "/" + DefaultExecutable)
	require.Equal(env.inactive+"\n", env.pointerContent(t))
	require.Eventually(func() bool { return handoffs.Load() == 1 }, time.Second, time.Millisecond)
	require.Equal(StateIdle, mgr.Upload().State())
}

func TestManager_FailedCommitNoHandoff(t *testing.T) {
	require := require.New(t)
	env := newInstallEnv(t)

	var handoffs atomic.Int32
	_, client := startManager(t, env, WithHandoff(func() { handoffs.Add(1) }))

	require.Equal(Reply(OpFlashInit, StatusSuccess), client.call(OpFlashInit, nil))
	require.Equal(Reply(OpFlashWrite, StatusSuccess), client.call(OpFlashWrite, []byte("not an archive at all")))
	require.Equal(Reply(OpFlashCommit, StatusFailure), client.call(OpFlashCommit, nil))

	require.Equal(env.current+"\n", env.pointerContent(t))
	time.Sleep(20 * time.Millisecond)
	require.Equal(int32(0), handoffs.Load())
}

func TestManager_WriteWithoutInit(t *testing.T) {
	_, client := startManager(t, newInstallEnv(t))

	assert.Equal(t, Reply(OpFlashWrite, StatusFailure), client.call(OpFlashWrite, []byte{1, 2, 3}))
	assert.Equal(t, Reply(OpFlashCommit, StatusFailure), client.call(OpFlashCommit, nil))
}

func TestManager_UnsupportedOps(t *testing.T) {
	_, client := startManager(t, newInstallEnv(t))

	for _, op := range []Op{OpGetVersion, OpGetMAC, OpMagicOffset, 7} {
		assert.Equal(t, Reply(op, StatusFailure), client.call(op, nil), OpName(op))
	}

	// the session survives
	assert.Equal(t, Reply(OpFlashInit, StatusSuccess), client.call(OpFlashInit, nil))
}

func TestManager_LargeWrite(t *testing.T) {
	require := require.New(t)
	mgr, client := startManager(t, newInstallEnv(t))

	chunk := make([]byte, 60000)
	require.Equal(Reply(OpFlashInit, StatusSuccess), client.call(OpFlashInit, nil))
	require.Equal(Reply(OpFlashWrite, StatusSuccess), client.call(OpFlashWrite, chunk))
	require.Equal(int64(len(chunk)), mgr.Upload().Written())
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte{0, 5, OpFlashWrite, 0xaa, 0xbb})
	require.NoError(t, err)
	assert.Equal(t, OpFlashWrite, req.Op)
	assert.Equal(t, []byte{0xaa, 0xbb}, req.Data)

	_, err = ParseRequest([]byte{0, 3})
	assert.ErrorIs(t, err, ErrMalformedRequest)
	_, err = ParseRequest([]byte{0, 9, OpFlashWrite})
	assert.ErrorIs(t, err, ErrMalformedRequest)

	_, err = EncodeRequest(OpFlashWrite, make([]byte, MaxFrameSize))
	assert.Error(t, err)
}
