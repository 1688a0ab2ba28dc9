package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/joshuafuller/ssdp/internal/errors"
	"github.com/joshuafuller/ssdp/internal/metrics"
	"github.com/joshuafuller/ssdp/internal/protocol"
)

// Options configures the sockets opened by NewUDPTransport.
type Options struct {
	// TTL is the IPv4 multicast TTL or IPv6 hop limit. Zero means
	// protocol.DefaultMulticastTTL.
	TTL int

	// RecvBufferSize is applied as SO_RCVBUF. Zero means
	// protocol.DefaultRecvBufferSize.
	RecvBufferSize int

	// Port is the group port. Zero means protocol.Port.
	Port int
}

func (o Options) withDefaults() Options {
	if o.TTL == 0 {
		o.TTL = protocol.DefaultMulticastTTL
	}
	if o.RecvBufferSize == 0 {
		o.RecvBufferSize = protocol.DefaultRecvBufferSize
	}
	if o.Port == 0 {
		o.Port = protocol.Port
	}
	return o
}

// UDPTransport is a UDP socket joined to the SSDP group on one interface.
//
// The ipv4 and ipv6 PacketConn wrappers give access to group membership,
// the multicast egress interface, TTL, loopback, and the IP_PKTINFO control
// messages that report the arrival interface.
type UDPTransport struct {
	conn  net.PacketConn
	p4    *ipv4.PacketConn // nil for IPv6
	p6    *ipv6.PacketConn // nil for IPv4
	ifi   *net.Interface
	iface Interface
	group netip.AddrPort
	role  Role

	closeOnce sync.Once
	closeErr  error
}

var _ Transport = (*UDPTransport)(nil)

// NewUDPTransport opens a socket on addr for the given role and joins the
// group of addr's family on ifi.
//
// Search and announce sockets bind addr on an ephemeral port. Notify sockets
// bind the group port with SO_REUSEADDR/SO_REUSEPORT so they coexist with
// other SSDP listeners on the host.
func NewUDPTransport(ctx context.Context, addr netip.Addr, ifi *net.Interface, role Role, opts Options) (*UDPTransport, error) {
	opts = opts.withDefaults()
	addr = addr.Unmap()

	network := "udp4"
	if addr.Is6() {
		network = "udp6"
	}

	group := netip.AddrPortFrom(protocol.GroupFor(addr), uint16(opts.Port))
	if group.Addr().Is6() {
		group = netip.AddrPortFrom(group.Addr().WithZone(ifi.Name), group.Port())
	}

	bind := netip.AddrPortFrom(addr, 0)
	if role == RoleNotify {
		bind = notifyBindAddr(addr, group)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var opErr error
			if err := c.Control(func(fd uintptr) {
				opErr = setSocketOptions(fd)
			}); err != nil {
				return err
			}
			return opErr
		},
	}

	conn, err := lc.ListenPacket(ctx, network, bind.String())
	if err != nil {
		return nil, &errors.SocketError{Operation: "bind", Addr: addr, Err: err}
	}

	t := &UDPTransport{
		conn:  conn,
		ifi:   ifi,
		iface: Interface{Addr: addr, Name: ifi.Name, Index: ifi.Index},
		group: group,
		role:  role,
	}

	if udp, ok := conn.(*net.UDPConn); ok {
		if err := udp.SetReadBuffer(opts.RecvBufferSize); err != nil {
			_ = conn.Close()
			return nil, &errors.SocketError{Operation: "set receive buffer", Addr: addr, Err: err}
		}
	}

	if addr.Is4() {
		err = t.configureIPv4(opts)
	} else {
		err = t.configureIPv6(opts)
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	metrics.ActiveSockets.WithLabelValues(role.String()).Inc()
	return t, nil
}

func (t *UDPTransport) configureIPv4(opts Options) error {
	p := ipv4.NewPacketConn(t.conn)
	groupAddr := &net.UDPAddr{IP: t.group.Addr().AsSlice()}

	if err := p.JoinGroup(t.ifi, groupAddr); err != nil {
		return &errors.SocketError{Operation: "join group", Addr: t.iface.Addr, Err: err}
	}
	if err := p.SetMulticastInterface(t.ifi); err != nil {
		return &errors.SocketError{Operation: "set multicast interface", Addr: t.iface.Addr, Err: err}
	}
	if err := p.SetMulticastTTL(opts.TTL); err != nil {
		return &errors.SocketError{Operation: "set multicast ttl", Addr: t.iface.Addr, Err: err}
	}
	if err := p.SetMulticastLoopback(t.role == RoleAnnounce); err != nil {
		return &errors.SocketError{Operation: "set multicast loopback", Addr: t.iface.Addr, Err: err}
	}

	// Not supported on Windows; Receive then reports IfIndex zero and
	// skips the interface check.
	_ = p.SetControlMessage(ipv4.FlagInterface, true)

	t.p4 = p
	return nil
}

func (t *UDPTransport) configureIPv6(opts Options) error {
	p := ipv6.NewPacketConn(t.conn)
	groupAddr := &net.UDPAddr{IP: t.group.Addr().AsSlice(), Zone: t.ifi.Name}

	if err := p.JoinGroup(t.ifi, groupAddr); err != nil {
		return &errors.SocketError{Operation: "join group", Addr: t.iface.Addr, Err: err}
	}
	if err := p.SetMulticastInterface(t.ifi); err != nil {
		return &errors.SocketError{Operation: "set multicast interface", Addr: t.iface.Addr, Err: err}
	}
	if err := p.SetMulticastHopLimit(opts.TTL); err != nil {
		return &errors.SocketError{Operation: "set multicast hop limit", Addr: t.iface.Addr, Err: err}
	}
	if err := p.SetMulticastLoopback(t.role == RoleAnnounce); err != nil {
		return &errors.SocketError{Operation: "set multicast loopback", Addr: t.iface.Addr, Err: err}
	}
	_ = p.SetControlMessage(ipv6.FlagInterface, true)

	t.p6 = p
	return nil
}

// Interface implements Transport.
func (t *UDPTransport) Interface() Interface { return t.iface }

// LocalAddr implements Transport.
func (t *UDPTransport) LocalAddr() netip.AddrPort {
	if udp, ok := t.conn.LocalAddr().(*net.UDPAddr); ok {
		return udp.AddrPort()
	}
	return netip.AddrPort{}
}

// Send implements Transport.
func (t *UDPTransport) Send(ctx context.Context, packet []byte, dest netip.AddrPort) error {
	if err := ctx.Err(); err != nil {
		return &errors.SocketError{Operation: "send", Addr: t.iface.Addr, Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}

	n, err := t.conn.WriteTo(packet, net.UDPAddrFromAddrPort(dest))
	if err != nil {
		return &errors.SocketError{Operation: "send", Addr: t.iface.Addr, Err: err}
	}
	if n != len(packet) {
		return &errors.SocketError{
			Operation: "send",
			Addr:      t.iface.Addr,
			Err:       fmt.Errorf("partial write: %d/%d bytes", n, len(packet)),
		}
	}

	metrics.DatagramsSentTotal.WithLabelValues(t.role.String()).Inc()
	return nil
}

// Receive implements Transport.
//
// Cancelling ctx interrupts a blocked read. For notify sockets, datagrams
// whose control message names another interface are discarded and the read
// continues.
func (t *UDPTransport) Receive(ctx context.Context) (Packet, error) {
	if err := ctx.Err(); err != nil {
		return Packet{}, &errors.SocketError{Operation: "receive", Addr: t.iface.Addr, Err: err}
	}

	// Zero clears a deadline left by an earlier cancelled call.
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return Packet{}, &errors.SocketError{Operation: "receive", Addr: t.iface.Addr, Err: err}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	bufPtr := GetBuffer()
	defer PutBuffer(bufPtr)
	buffer := *bufPtr

	for {
		n, ifIndex, src, err := t.readFrom(buffer)
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return Packet{}, &errors.SocketError{Operation: "receive", Addr: t.iface.Addr, Err: err}
		}

		if t.role == RoleNotify && ifIndex != 0 && ifIndex != t.iface.Index {
			metrics.DatagramsDroppedTotal.WithLabelValues(t.role.String(), metrics.ReasonForeignIface).Inc()
			continue
		}
		metrics.DatagramsReceivedTotal.WithLabelValues(t.role.String()).Inc()

		data := make([]byte, n)
		copy(data, buffer[:n])
		return Packet{Data: data, Source: src, IfIndex: ifIndex}, nil
	}
}

func (t *UDPTransport) readFrom(buf []byte) (int, int, netip.AddrPort, error) {
	var (
		n       int
		ifIndex int
		src     net.Addr
		err     error
	)
	if t.p4 != nil {
		var cm *ipv4.ControlMessage
		n, cm, src, err = t.p4.ReadFrom(buf)
		if cm != nil {
			ifIndex = cm.IfIndex
		}
	} else {
		var cm *ipv6.ControlMessage
		n, cm, src, err = t.p6.ReadFrom(buf)
		if cm != nil {
			ifIndex = cm.IfIndex
		}
	}
	if err != nil {
		return 0, 0, netip.AddrPort{}, err
	}

	var from netip.AddrPort
	if udp, ok := src.(*net.UDPAddr); ok {
		ap := udp.AddrPort()
		from = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return n, ifIndex, from, nil
}

// Close implements Transport. Group membership is dropped before the socket
// is released.
func (t *UDPTransport) Close() error {
	t.closeOnce.Do(func() {
		if t.p4 != nil {
			_ = t.p4.LeaveGroup(t.ifi, &net.UDPAddr{IP: t.group.Addr().AsSlice()})
		}
		if t.p6 != nil {
			_ = t.p6.LeaveGroup(t.ifi, &net.UDPAddr{IP: t.group.Addr().AsSlice(), Zone: t.ifi.Name})
		}
		if err := t.conn.Close(); err != nil {
			t.closeErr = &errors.SocketError{Operation: "close", Addr: t.iface.Addr, Err: err}
		}
		metrics.ActiveSockets.WithLabelValues(t.role.String()).Dec()
	})
	return t.closeErr
}
