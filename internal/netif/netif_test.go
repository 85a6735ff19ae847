package netif

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls  []string
	failOn string
}

func (r *recorder) run(_ context.Context, name string, args ...string) error {
	call := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, call)
	if r.failOn != "" && strings.Contains(call, r.failOn) {
		return errors.New("operation not permitted")
	}

	return nil
}

func loopbackName(t *testing.T) string {
	t.Helper()

	ifaces, err := net.Interfaces()
	require.NoError(t, err)
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagLoopback != 0 {
			return ifi.Name
		}
	}
	t.Skip("no loopback interface")

	return ""
}

func TestInterface_IPv4(t *testing.T) {
	require := require.New(t)

	ifi, err := New(loopbackName(t), nil, nil)
	require.NoError(err)

	ip, err := ifi.IPv4()
	require.NoError(err)
	require.True(ip.IsLoopback())

	_, err = ifi.HardwareAddr()
	require.NoError(err)
}

func TestInterface_Missing(t *testing.T) {
	require := require.New(t)

	ifi, err := New("gxip-missing0", nil, nil)
	require.NoError(err)

	_, err = ifi.IPv4()
	require.Error(err)
	_, err = ifi.HardwareAddr()
	require.Error(err)

	_, err = New("", nil, nil)
	require.Error(err)
}

func TestInterface_SetIPv4(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	ifi, err := New("eth7", rec.run, nil)
	require.NoError(err)
	ifi.lookup = func(string) (*net.Interface, error) { return nil, errors.New("no such device") }

	require.NoError(ifi.SetIPv4(context.Background(), netip.MustParseAddr("10.11.14.5"), false))
	require.Equal([]string{
		"ip link set dev eth7 down",
		"ip addr flush dev eth7",
		"ip addr add 10.11.14.5/24 broadcast + dev eth7",
		"ip route replace 255.255.255.255/32 dev eth7",
		"ip link set dev eth7 up",
	}, rec.calls)

	require.Error(ifi.SetIPv4(context.Background(), netip.MustParseAddr("fe80::1"), true))
}

func TestInterface_SetIPv4Unchanged(t *testing.T) {
	require := require.New(t)

	name := loopbackName(t)
	rec := &recorder{}
	ifi, err := New(name, rec.run, nil)
	require.NoError(err)

	cur, err := ifi.IPv4()
	require.NoError(err)

	require.NoError(ifi.SetIPv4(context.Background(), cur, false))
	require.Empty(rec.calls)

	require.NoError(ifi.SetIPv4(context.Background(), cur, true))
	require.Len(rec.calls, 5)
}

func TestInterface_SetIPv4Failure(t *testing.T) {
	rec := &recorder{failOn: "addr add"}
	ifi, err := New("eth7", rec.run, nil)
	require.NoError(t, err)

	err = ifi.SetIPv4(context.Background(), netip.MustParseAddr("10.11.14.5"), true)
	require.ErrorContains(t, err, "addr add")
	require.Len(t, rec.calls, 3)
}
