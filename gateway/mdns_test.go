package gateway

import (
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"

	"github.com/arloliu/go-gxip/logger"
	"github.com/stretchr/testify/require"
)

type fakeMDNSServer struct {
	mu       sync.Mutex
	text     []string
	shutdown bool
}

func (s *fakeMDNSServer) SetText(text []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
}

func (s *fakeMDNSServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
}

func (s *fakeMDNSServer) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.shutdown
}

type fakeRegistrar struct {
	mu      sync.Mutex
	servers []*fakeMDNSServer
	texts   [][]string
	err     error
}

func (r *fakeRegistrar) register(instance, service, domain string, port int, text []string, _ []net.Interface) (mdnsServer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	srv := &fakeMDNSServer{text: text}
	r.servers = append(r.servers, srv)
	r.texts = append(r.texts, text)

	return srv, nil
}

func (r *fakeRegistrar) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.servers)
}

func (r *fakeRegistrar) last() *fakeMDNSServer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.servers) == 0 {
		return nil
	}

	return r.servers[len(r.servers)-1]
}

func TestSplitVersion(t *testing.T) {
	require := require.New(t)

	major, minor, build := SplitVersion(Version)
	require.Equal([]byte{20, 0, 18}, []byte{major, minor, build})

	major, minor, build = SplitVersion(12345)
	require.Equal([]byte{12, 3, 45}, []byte{major, minor, build})
}

func TestIdentityText(t *testing.T) {
	require := require.New(t)

	s := Snapshot{
		IP:     netip.MustParseAddr("10.11.14.254"),
		MAC:    net.HardwareAddr{0x00, 0x1b, 0x2c, 0x3d, 0x4e, 0x5f},
		Serial: 4242,
		Letter: 'B',
	}
	require.Equal([]string{
		"txtvers=1",
		"sn=4242",
		"letter=B",
		"version=20.0.18",
		"mac=00:1b:2c:3d:4e:5f",
		"ip=10.11.14.254",
	}, identityText(s))

	s.Letter = 0
	require.Contains(identityText(s), "letter=")
}

func TestAdvertiser(t *testing.T) {
	require := require.New(t)

	reg := &fakeRegistrar{}
	a := newAdvertiser(reg.register, "gxip-1", 1066, "no-such-interface", logger.GetLogger())
	require.Empty(a.ifaces)

	// SetText before Register is a no-op
	a.SetText([]string{"x=1"})
	require.Zero(reg.count())

	require.NoError(a.Register([]string{"letter=A"}))
	first := reg.last()
	require.NotNil(first)

	a.SetText([]string{"letter=A", "sn=7"})
	require.Equal([]string{"letter=A", "sn=7"}, first.text)

	require.NoError(a.Register([]string{"letter=B"}))
	require.True(first.isShutdown())
	require.Equal(2, reg.count())

	a.Shutdown()
	require.True(reg.last().isShutdown())

	reg.err = errors.New("multicast unavailable")
	require.Error(a.Register(nil))
}
