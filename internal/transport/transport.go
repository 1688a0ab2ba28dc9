// Package transport provides the UDP sockets SSDP engines send and receive on.
//
// A Transport is one socket bound to one local address and joined to the SSDP
// multicast group on the interface that owns that address. A Set is the
// collection of transports an engine call works with; it is built by a
// Builder, which skips addresses that cannot be bound instead of failing the
// whole operation.
package transport

import (
	"context"
	"net/netip"
)

// Role selects how a socket is bound and configured.
type Role int

const (
	// RoleSearch binds an ephemeral port, sends M-SEARCH requests and
	// receives the unicast responses. Multicast loopback is off.
	RoleSearch Role = iota + 1

	// RoleNotify binds the SSDP port and receives multicast NOTIFY
	// announcements. Datagrams delivered from other interfaces are dropped.
	RoleNotify

	// RoleAnnounce binds an ephemeral port and sends NOTIFY announcements.
	// Multicast loopback is on so listeners on this host hear them.
	RoleAnnounce
)

func (r Role) String() string {
	switch r {
	case RoleSearch:
		return "search"
	case RoleNotify:
		return "notify"
	case RoleAnnounce:
		return "announce"
	default:
		return "unknown"
	}
}

// Interface identifies the local address a transport is bound to.
type Interface struct {
	Addr  netip.Addr
	Name  string
	Index int
}

// Packet is one received datagram.
type Packet struct {
	Data   []byte
	Source netip.AddrPort

	// IfIndex is the index of the interface the datagram arrived on, or zero
	// when the platform does not report it.
	IfIndex int
}

// Transport abstracts one SSDP socket.
//
// Implementations:
//   - UDPTransport: IPv4 or IPv6 UDP multicast socket
//   - transporttest.Fake: in-memory double for engine tests
type Transport interface {
	// Send transmits packet to dest.
	Send(ctx context.Context, packet []byte, dest netip.AddrPort) error

	// Receive blocks until a datagram arrives, ctx is done or the
	// transport is closed. The returned data is owned by the caller.
	Receive(ctx context.Context) (Packet, error)

	// Interface returns the local address and interface of the socket.
	Interface() Interface

	// LocalAddr returns the bound address and port.
	LocalAddr() netip.AddrPort

	// Close leaves the multicast group and releases the socket. Close is
	// idempotent and unblocks a pending Receive.
	Close() error
}
