package transport_test

import (
	"context"
	goerrors "errors"
	"net/netip"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/joshuafuller/ssdp/internal/errors"
	"github.com/joshuafuller/ssdp/internal/transport"
	"github.com/joshuafuller/ssdp/internal/transport/transporttest"
)

func addrs(ss ...string) []netip.Addr {
	out := make([]netip.Addr, len(ss))
	for i, s := range ss {
		out[i] = netip.MustParseAddr(s)
	}
	return out
}

func TestBuild_SkipsFailingAddresses(t *testing.T) {
	a := transporttest.New("192.168.1.10", "eth0", 2)
	b := transporttest.New("10.0.0.5", "wlan0", 3)
	builder := &transport.Builder{
		Open: transporttest.Opener([]*transporttest.Fake{a, b}, map[string]error{
			"172.16.0.1": syscall.EADDRNOTAVAIL,
		}),
	}

	set, err := builder.Build(context.Background(), addrs("172.16.0.1", "192.168.1.10", "10.0.0.5"), transport.RoleSearch)
	require.NoError(t, err)
	defer set.Close()

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, transport.RoleSearch, set.Role())
	got := set.Transports()
	assert.Equal(t, "eth0", got[0].Interface().Name)
	assert.Equal(t, "wlan0", got[1].Interface().Name)
}

func TestBuild_NoUsableInterfaces(t *testing.T) {
	builder := &transport.Builder{
		Open: transporttest.Opener(nil, map[string]error{
			"192.168.1.10": syscall.EADDRNOTAVAIL,
			"10.0.0.5":     syscall.EACCES,
			"fe80::1":      syscall.EINVAL,
		}),
	}

	_, err := builder.Build(context.Background(), addrs("192.168.1.10", "10.0.0.5", "fe80::1"), transport.RoleNotify)
	require.Error(t, err)

	var noIfaces *errors.NoUsableInterfacesError
	require.True(t, goerrors.As(err, &noIfaces))
	assert.Equal(t, 3, noIfaces.Attempted)

	causes := multierr.Errors(noIfaces.Err)
	require.Len(t, causes, 3)
	for _, c := range causes {
		var sockErr *errors.SocketError
		assert.True(t, goerrors.As(c, &sockErr))
		assert.Equal(t, "bind", sockErr.Operation)
	}
	assert.ErrorIs(t, err, syscall.EACCES)
}

func TestBuild_NoAddresses(t *testing.T) {
	builder := &transport.Builder{Open: transporttest.Opener(nil, nil)}

	_, err := builder.Build(context.Background(), nil, transport.RoleSearch)

	var noIfaces *errors.NoUsableInterfacesError
	require.True(t, goerrors.As(err, &noIfaces))
	assert.Zero(t, noIfaces.Attempted)
}

func TestBuild_WrapsPlainErrors(t *testing.T) {
	builder := &transport.Builder{
		Open: func(context.Context, netip.Addr, transport.Role) (transport.Transport, error) {
			return nil, syscall.ENODEV
		},
	}

	_, err := builder.Build(context.Background(), addrs("192.168.1.10"), transport.RoleSearch)

	var sockErr *errors.SocketError
	require.True(t, goerrors.As(err, &sockErr))
	assert.Equal(t, "open", sockErr.Operation)
	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), sockErr.Addr)
}

func TestSet_MulticastDropsFailingSockets(t *testing.T) {
	a := transporttest.New("192.168.1.10", "eth0", 2)
	b := transporttest.New("fe80::1", "eth0", 2)
	c := transporttest.New("10.0.0.5", "wlan0", 3)
	c.FailSend(syscall.ENETUNREACH)

	builder := &transport.Builder{Open: transporttest.Opener([]*transporttest.Fake{a, b, c}, nil)}
	set, err := builder.Build(context.Background(), addrs("192.168.1.10", "fe80::1", "10.0.0.5"), transport.RoleSearch)
	require.NoError(t, err)
	defer set.Close()

	require.NoError(t, set.Multicast(context.Background(), transport.Payload([]byte("payload")), nil))

	assert.Equal(t, 2, set.Len())
	assert.True(t, c.Closed())

	require.Len(t, a.Sent(), 1)
	assert.Equal(t, netip.MustParseAddrPort("239.255.255.250:1900"), a.Sent()[0].Dest)
	require.Len(t, b.Sent(), 1)
	assert.Equal(t, netip.MustParseAddrPort("[ff02::c%eth0]:1900"), b.Sent()[0].Dest)
}

func TestSet_MulticastAllFail(t *testing.T) {
	a := transporttest.New("192.168.1.10", "eth0", 2)
	a.FailSend(syscall.ENETDOWN)

	builder := &transport.Builder{Open: transporttest.Opener([]*transporttest.Fake{a}, nil)}
	set, err := builder.Build(context.Background(), addrs("192.168.1.10"), transport.RoleAnnounce)
	require.NoError(t, err)

	err = set.Multicast(context.Background(), transport.Payload([]byte("payload")), nil)

	var noIfaces *errors.NoUsableInterfacesError
	require.True(t, goerrors.As(err, &noIfaces))
	assert.Equal(t, 1, noIfaces.Attempted)
	assert.ErrorIs(t, err, syscall.ENETDOWN)
}

func TestSet_CloseClosesAll(t *testing.T) {
	a := transporttest.New("192.168.1.10", "eth0", 2)
	b := transporttest.New("10.0.0.5", "wlan0", 3)
	builder := &transport.Builder{Open: transporttest.Opener([]*transporttest.Fake{a, b}, nil)}

	set, err := builder.Build(context.Background(), addrs("192.168.1.10", "10.0.0.5"), transport.RoleNotify)
	require.NoError(t, err)

	require.NoError(t, set.Close())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Zero(t, set.Len())
	require.NoError(t, set.Close())
}

func TestRole_String(t *testing.T) {
	assert.Equal(t, "search", transport.RoleSearch.String())
	assert.Equal(t, "notify", transport.RoleNotify.String())
	assert.Equal(t, "announce", transport.RoleAnnounce.String())
	assert.Equal(t, "unknown", transport.Role(0).String())
}
