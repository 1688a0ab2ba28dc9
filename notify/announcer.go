package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/joshuafuller/ssdp/internal/errors"
	"github.com/joshuafuller/ssdp/internal/protocol"
	"github.com/joshuafuller/ssdp/internal/transport"
	"github.com/joshuafuller/ssdp/message"
)

// Announcer multicasts NOTIFY messages on every usable interface.
//
// Example:
//
//	a, _ := notify.NewAnnouncer()
//	alive, _ := message.NewNotify(message.Alive, message.TargetRootDevice,
//	    message.NewUSN(message.TargetRootDevice),
//	    message.WithLocation("http://192.168.1.20:8080/desc.xml"),
//	    message.WithMaxAge(30*time.Minute),
//	)
//	err := a.Announce(ctx, alive)
type Announcer struct {
	*settings
	builder transport.Builder
}

// NewAnnouncer creates an Announcer.
func NewAnnouncer(opts ...Option) (*Announcer, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return &Announcer{settings: s, builder: newBuilder(s)}, nil
}

// Announce sends n once to the group on every usable interface. Sockets are
// opened for the call and closed before it returns. Multicast loopback is
// enabled so listeners on this host receive the announcement.
//
// Errors:
//   - MissingHeaderError / MalformedMessageError: n does not validate
//   - NoUsableInterfacesError: no socket could be opened, or every send failed
func (a *Announcer) Announce(ctx context.Context, n *message.NotifyMessage) error {
	if n == nil {
		return &errors.InvalidConfigurationError{Field: "notification", Message: "must not be nil"}
	}

	payloads, err := familyPayloads(n)
	if err != nil {
		return err
	}

	addrs, err := a.cfg.Addresses()
	if err != nil {
		return err
	}

	set, err := a.builder.Build(ctx, addrs, transport.RoleAnnounce)
	if err != nil {
		return err
	}
	defer func() { _ = set.Close() }()

	if err := set.Multicast(ctx, payloads, a.logger); err != nil {
		return err
	}
	a.logger.Debug("announcement sent",
		zap.String("nts", string(n.NTS)),
		zap.String("usn", n.USN),
		zap.Int("sockets", set.Len()))
	return nil
}

// familyPayloads serializes n for IPv4 and, when HOST is the IPv4 default,
// with the IPv6 group as HOST for IPv6 sockets.
func familyPayloads(n *message.NotifyMessage) (transport.PayloadFunc, error) {
	v4, err := message.Serialize(n)
	if err != nil {
		return nil, err
	}
	if n.Host != protocol.HostHeader(false) {
		return transport.Payload(v4), nil
	}

	c := *n
	c.Extensions = n.Extensions.Clone()
	c.Host = protocol.HostHeader(true)
	v6, err := message.Serialize(&c)
	if err != nil {
		return nil, err
	}
	return func(iface transport.Interface) []byte {
		if iface.Addr.Is6() {
			return v6
		}
		return v4
	}, nil
}
