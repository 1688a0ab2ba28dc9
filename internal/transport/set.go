package transport

import (
	"context"
	goerrors "errors"
	"net/netip"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/joshuafuller/ssdp/internal/errors"
	"github.com/joshuafuller/ssdp/internal/metrics"
	"github.com/joshuafuller/ssdp/internal/netif"
	"github.com/joshuafuller/ssdp/internal/protocol"
)

// OpenFunc opens one transport on addr.
type OpenFunc func(ctx context.Context, addr netip.Addr, role Role) (Transport, error)

// Builder opens socket sets.
type Builder struct {
	Options Options
	Logger  *zap.Logger

	// Open replaces the default UDP opener. Tests use it to inject fakes.
	Open OpenFunc
}

// Build opens one transport per address. An address that cannot be bound,
// joined or configured is logged and skipped. Build fails only when no
// address yields a socket, with a NoUsableInterfacesError carrying every
// per-address failure.
func (b *Builder) Build(ctx context.Context, addrs []netip.Addr, role Role) (*Set, error) {
	logger := b.logger()
	open := b.Open
	if open == nil {
		open = b.openUDP
	}

	set := &Set{role: role, port: b.Options.withDefaults().Port}
	var errs error
	for _, addr := range addrs {
		t, err := open(ctx, addr, role)
		if err != nil {
			var sockErr *errors.SocketError
			if !goerrors.As(err, &sockErr) {
				sockErr = &errors.SocketError{Operation: "open", Addr: addr, Err: err}
				err = sockErr
			}
			metrics.SocketFailuresTotal.WithLabelValues(role.String(), sockErr.Operation).Inc()
			logger.Warn("skipping interface address",
				zap.String("addr", addr.String()),
				zap.Stringer("role", role),
				zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
		logger.Debug("socket opened",
			zap.String("addr", addr.String()),
			zap.String("interface", t.Interface().Name),
			zap.Stringer("role", role))
		set.transports = append(set.transports, t)
	}

	if len(set.transports) == 0 {
		return nil, &errors.NoUsableInterfacesError{Attempted: len(addrs), Err: errs}
	}
	return set, nil
}

func (b *Builder) openUDP(ctx context.Context, addr netip.Addr, role Role) (Transport, error) {
	ifi, err := netif.InterfaceFor(addr)
	if err != nil {
		return nil, &errors.SocketError{Operation: "lookup interface", Addr: addr, Err: err}
	}
	return NewUDPTransport(ctx, addr, ifi, role, b.Options)
}

func (b *Builder) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// Set is the group of transports owned by one engine call.
type Set struct {
	role Role
	port int

	mu         sync.Mutex
	transports []Transport
}

// Transports returns the live transports.
func (s *Set) Transports() []Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transport(nil), s.transports...)
}

// Len returns the number of live transports.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transports)
}

// Role returns the role the set was built for.
func (s *Set) Role() Role { return s.role }

// Remove closes t and drops it from the set.
func (s *Set) Remove(t Transport) error {
	s.mu.Lock()
	for i, cur := range s.transports {
		if cur == t {
			s.transports = append(s.transports[:i], s.transports[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	return t.Close()
}

// PayloadFunc returns the datagram to send on a transport bound to iface.
type PayloadFunc func(iface Interface) []byte

// Payload returns a PayloadFunc sending b on every transport.
func Payload(b []byte) PayloadFunc {
	return func(Interface) []byte { return b }
}

// Multicast sends a payload to the group on every transport. A transport whose
// send fails is logged, closed and removed. Multicast fails only when every
// send failed, with a NoUsableInterfacesError combining the per-socket
// errors.
func (s *Set) Multicast(ctx context.Context, payload PayloadFunc, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	transports := s.Transports()
	var errs error
	for _, t := range transports {
		dest := GroupFor(t, s.port)
		if err := t.Send(ctx, payload(t.Interface()), dest); err != nil {
			metrics.SocketFailuresTotal.WithLabelValues(s.role.String(), "send").Inc()
			logger.Warn("multicast send failed, dropping socket",
				zap.String("addr", t.Interface().Addr.String()),
				zap.String("interface", t.Interface().Name),
				zap.Error(err))
			errs = multierr.Append(errs, err)
			_ = s.Remove(t)
		}
	}

	if s.Len() == 0 {
		return &errors.NoUsableInterfacesError{Attempted: len(transports), Err: errs}
	}
	return nil
}

// Close closes every transport and reports the combined close errors.
func (s *Set) Close() error {
	s.mu.Lock()
	transports := s.transports
	s.transports = nil
	s.mu.Unlock()

	var err error
	for _, t := range transports {
		err = multierr.Append(err, t.Close())
	}
	return err
}

// GroupFor returns the multicast destination for t on the given port. IPv6
// groups carry the interface zone.
func GroupFor(t Transport, port int) netip.AddrPort {
	if port == 0 {
		port = protocol.Port
	}
	iface := t.Interface()
	group := protocol.GroupFor(iface.Addr)
	if group.Is6() && iface.Name != "" {
		group = group.WithZone(iface.Name)
	}
	return netip.AddrPortFrom(group, uint16(port))
}
