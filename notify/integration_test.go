package notify

import (
	"context"
	goerrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/ssdp/config"
	"github.com/joshuafuller/ssdp/message"
)

// TestAnnounceListen_Loopback announces on the real interfaces and expects
// a listener on the same host to hear it through multicast loopback.
func TestAnnounceListen_Loopback(t *testing.T) {
	if testing.Short() {
		t.Skip("network test skipped in -short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, err := New(WithIPMode(config.IPModeV4))
	require.NoError(t, err)
	stream, err := l.Listen(ctx)
	var noIfaces *NoUsableInterfacesError
	if goerrors.As(err, &noIfaces) {
		t.Skipf("no usable interface: %v", err)
	}
	require.NoError(t, err)
	defer stream.Close()

	a, err := NewAnnouncer(WithIPMode(config.IPModeV4))
	require.NoError(t, err)

	usn := message.NewUSN("urn:example-com:device:IntegrationTest:1")
	alive, err := message.NewNotify(message.Alive, "urn:example-com:device:IntegrationTest:1", usn,
		message.WithLocation("http://127.0.0.1:1/desc.xml"))
	require.NoError(t, err)
	require.NoError(t, a.Announce(ctx, alive))

	wait, stop := context.WithTimeout(ctx, 2*time.Second)
	defer stop()
	for {
		n, ok := stream.Next(wait)
		if !ok {
			t.Skip("announcement not looped back; multicast loopback unavailable on this host")
		}
		if n.USN == usn {
			require.Equal(t, message.Alive, n.NTS)
			return
		}
	}
}
