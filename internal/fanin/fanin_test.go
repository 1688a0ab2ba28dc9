package fanin_test

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/ssdp/internal/fanin"
	"github.com/joshuafuller/ssdp/internal/transport"
	"github.com/joshuafuller/ssdp/internal/transport/transporttest"
)

func recv(t *testing.T, m *fanin.Merger) (fanin.Datagram, bool) {
	t.Helper()
	select {
	case d, ok := <-m.C():
		return d, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for merged datagram")
		return fanin.Datagram{}, false
	}
}

func TestMerge_DeliversFromAllTransports(t *testing.T) {
	a := transporttest.New("192.168.1.10", "eth0", 2)
	b := transporttest.New("10.0.0.5", "wlan0", 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := fanin.Start(ctx, []transport.Transport{a, b})
	defer m.Close()

	a.Deliver([]byte("one"), "192.168.1.20:1900")
	d, ok := recv(t, m)
	require.True(t, ok)
	assert.Equal(t, "one", string(d.Data))
	assert.Same(t, a, d.From.(*transporttest.Fake))

	b.Deliver([]byte("two"), "10.0.0.9:1900")
	d, ok = recv(t, m)
	require.True(t, ok)
	assert.Equal(t, "two", string(d.Data))
	assert.Equal(t, "wlan0", d.From.Interface().Name)
}

func TestMerge_ArrivalOrderPerSocket(t *testing.T) {
	a := transporttest.New("192.168.1.10", "eth0", 2)
	for _, s := range []string{"1", "2", "3"} {
		a.Deliver([]byte(s), "192.168.1.20:1900")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := fanin.Start(ctx, []transport.Transport{a})

	var got []string
	for range 3 {
		d, ok := recv(t, m)
		require.True(t, ok)
		got = append(got, string(d.Data))
	}
	assert.Equal(t, []string{"1", "2", "3"}, got)
}

func TestMerge_FailureIsIsolated(t *testing.T) {
	a := transporttest.New("192.168.1.10", "eth0", 2)
	b := transporttest.New("10.0.0.5", "wlan0", 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := fanin.Start(ctx, []transport.Transport{a, b}, fanin.WithRole(transport.RoleNotify))

	a.FailReceive(syscall.ECONNREFUSED)
	b.Deliver([]byte("still here"), "10.0.0.9:1900")

	d, ok := recv(t, m)
	require.True(t, ok)
	assert.Equal(t, "still here", string(d.Data))

	require.Eventually(t, func() bool { return m.Err() != nil }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, m.Err(), syscall.ECONNREFUSED)
	assert.False(t, m.AllFailed())
}

func TestMerge_OnFailureReceivesFailedTransport(t *testing.T) {
	a := transporttest.New("192.168.1.10", "eth0", 2)
	b := transporttest.New("10.0.0.5", "wlan0", 3)

	failed := make(chan transport.Transport, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := fanin.Start(ctx, []transport.Transport{a, b},
		fanin.WithOnFailure(func(t transport.Transport) { failed <- t }))
	defer m.Close()

	a.FailReceive(syscall.ENETDOWN)

	select {
	case got := <-failed:
		assert.Same(t, a, got)
	case <-time.After(2 * time.Second):
		t.Fatal("failure hook not called")
	}

	// A stopped merge is not a failure.
	cancel()
	_, ok := recv(t, m)
	assert.False(t, ok)
	assert.Empty(t, failed)
}

func TestMerge_AllFailedClosesChannel(t *testing.T) {
	a := transporttest.New("192.168.1.10", "eth0", 2)
	b := transporttest.New("10.0.0.5", "wlan0", 3)
	a.FailReceive(errors.New("a broke"))
	b.FailReceive(errors.New("b broke"))

	m := fanin.Start(context.Background(), []transport.Transport{a, b})

	_, ok := recv(t, m)
	assert.False(t, ok)
	assert.True(t, m.AllFailed())
	assert.ErrorContains(t, m.Err(), "a broke")
	assert.ErrorContains(t, m.Err(), "b broke")
}

func TestMerge_CancelKeepsDeliveredDatagrams(t *testing.T) {
	a := transporttest.New("192.168.1.10", "eth0", 2)

	ctx, cancel := context.WithCancel(context.Background())
	m := fanin.Start(ctx, []transport.Transport{a})

	a.Deliver([]byte("late"), "192.168.1.20:1900")
	require.Eventually(t, func() bool { return len(m.C()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()

	d, ok := recv(t, m)
	require.True(t, ok)
	assert.Equal(t, "late", string(d.Data))

	_, ok = recv(t, m)
	assert.False(t, ok)
	assert.NoError(t, m.Err())
}

func TestMerge_CloseStopsBlockedReaders(t *testing.T) {
	a := transporttest.New("192.168.1.10", "eth0", 2)
	for range 4 {
		a.Deliver([]byte("x"), "192.168.1.20:1900")
	}

	m := fanin.Start(context.Background(), []transport.Transport{a}, fanin.WithBuffer(1))
	require.Eventually(t, func() bool { return len(m.C()) == 1 }, time.Second, 5*time.Millisecond)

	m.Close()
	require.NoError(t, a.Close())

	// Drain until the channel closes.
	for {
		if _, ok := recv(t, m); !ok {
			break
		}
	}
	assert.NoError(t, m.Err())
}
