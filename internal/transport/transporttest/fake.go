// Package transporttest provides an in-memory transport.Transport for engine
// tests.
package transporttest

import (
	"context"
	"net"
	"net/netip"
	"sync"

	"github.com/joshuafuller/ssdp/internal/errors"
	"github.com/joshuafuller/ssdp/internal/transport"
)

// Sent records one datagram passed to Send.
type Sent struct {
	Data []byte
	Dest netip.AddrPort
}

// Fake is a Transport whose inbound datagrams are injected with Deliver.
type Fake struct {
	iface transport.Interface
	local netip.AddrPort

	in      chan transport.Packet
	recvErr chan error
	closed  chan struct{}

	mu        sync.Mutex
	sent      []Sent
	sendErr   error
	closeOnce sync.Once
}

var _ transport.Transport = (*Fake)(nil)

// New returns a fake bound to addr on the named interface.
func New(addr string, name string, index int) *Fake {
	a := netip.MustParseAddr(addr)
	return &Fake{
		iface:   transport.Interface{Addr: a, Name: name, Index: index},
		local:   netip.AddrPortFrom(a, 50000),
		in:      make(chan transport.Packet, 64),
		recvErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

// Deliver queues a datagram for Receive.
func (f *Fake) Deliver(data []byte, from string) {
	f.in <- transport.Packet{
		Data:    data,
		Source:  netip.MustParseAddrPort(from),
		IfIndex: f.iface.Index,
	}
}

// FailReceive makes the next Receive return err.
func (f *Fake) FailReceive(err error) {
	f.recvErr <- err
}

// FailSend makes every later Send return err.
func (f *Fake) FailSend(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// Sent returns the datagrams sent so far.
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// Send implements transport.Transport.
func (f *Fake) Send(_ context.Context, packet []byte, dest netip.AddrPort) error {
	if f.Closed() {
		return &errors.SocketError{Operation: "send", Addr: f.iface.Addr, Err: net.ErrClosed}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return &errors.SocketError{Operation: "send", Addr: f.iface.Addr, Err: f.sendErr}
	}
	f.sent = append(f.sent, Sent{Data: append([]byte(nil), packet...), Dest: dest})
	return nil
}

// Receive implements transport.Transport. Queued datagrams are returned
// before a pending receive failure.
func (f *Fake) Receive(ctx context.Context) (transport.Packet, error) {
	select {
	case p := <-f.in:
		return p, nil
	default:
	}

	select {
	case p := <-f.in:
		return p, nil
	case err := <-f.recvErr:
		return transport.Packet{}, &errors.SocketError{Operation: "receive", Addr: f.iface.Addr, Err: err}
	case <-f.closed:
		return transport.Packet{}, &errors.SocketError{Operation: "receive", Addr: f.iface.Addr, Err: net.ErrClosed}
	case <-ctx.Done():
		return transport.Packet{}, &errors.SocketError{Operation: "receive", Addr: f.iface.Addr, Err: ctx.Err()}
	}
}

// Interface implements transport.Transport.
func (f *Fake) Interface() transport.Interface { return f.iface }

// LocalAddr implements transport.Transport.
func (f *Fake) LocalAddr() netip.AddrPort { return f.local }

// Close implements transport.Transport.
func (f *Fake) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// Opener returns a transport.OpenFunc serving the given fakes by address.
// Addresses listed in failures fail with the mapped error.
func Opener(fakes []*Fake, failures map[string]error) transport.OpenFunc {
	byAddr := make(map[netip.Addr]*Fake, len(fakes))
	for _, f := range fakes {
		byAddr[f.iface.Addr] = f
	}
	return func(_ context.Context, addr netip.Addr, _ transport.Role) (transport.Transport, error) {
		if err, ok := failures[addr.String()]; ok {
			return nil, &errors.SocketError{Operation: "bind", Addr: addr, Err: err}
		}
		f, ok := byAddr[addr]
		if !ok {
			return nil, &errors.SocketError{Operation: "bind", Addr: addr, Err: net.UnknownNetworkError("no fake for address")}
		}
		return f, nil
	}
}
