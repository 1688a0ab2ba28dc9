// Package search implements SSDP active discovery: an M-SEARCH request is
// multicast once on every usable interface and the unicast responses are
// collected until the request's MX window, plus a small margin, has passed.
//
// A search owns its sockets. They are opened when Search is called and
// closed when the collection window ends or the caller closes the results,
// so concurrent searches never share state.
//
// Results are a finite, lazily consumed sequence in arrival order across
// interfaces. Datagrams that do not parse as search responses are dropped.
// Responses are not deduplicated: a device reachable on two interfaces
// answers twice. Use Dedupe when only distinct USNs matter.
//
// Example:
//
//	s, err := search.New(search.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	req, _ := message.NewSearchRequest(message.TargetRootDevice, 3)
//	results, err := s.Search(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer results.Close()
//	for resp := range results.All() {
//	    fmt.Println(resp.USN, resp.Location, resp.From)
//	}
package search

import (
	"context"
	"net/netip"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/joshuafuller/ssdp/config"
	"github.com/joshuafuller/ssdp/internal/errors"
	"github.com/joshuafuller/ssdp/internal/fanin"
	"github.com/joshuafuller/ssdp/internal/metrics"
	"github.com/joshuafuller/ssdp/internal/protocol"
	"github.com/joshuafuller/ssdp/internal/state"
	"github.com/joshuafuller/ssdp/internal/transport"
	"github.com/joshuafuller/ssdp/message"
)

// Errors returned by Search.
type (
	SocketError               = errors.SocketError
	NoUsableInterfacesError   = errors.NoUsableInterfacesError
	InvalidConfigurationError = errors.InvalidConfigurationError
)

// Interface identifies the local address a response arrived on.
type Interface = transport.Interface

// Searcher sends M-SEARCH requests. It holds configuration only and is safe
// for concurrent use; every Search opens its own sockets.
type Searcher struct {
	cfg     config.Config
	logger  *zap.Logger
	clock   clock.Clock
	builder transport.Builder
}

// New creates a Searcher with the default configuration adjusted by opts.
func New(opts ...Option) (*Searcher, error) {
	s := &Searcher{
		cfg:    config.Default(),
		logger: zap.NewNop(),
		clock:  clock.New(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	s.builder = transport.Builder{
		Options: transport.Options{
			TTL:            s.cfg.MulticastTTL,
			RecvBufferSize: s.cfg.RecvBufferSize,
			Port:           s.cfg.Port,
		},
		Logger: s.logger,
	}
	return s, nil
}

// Search multicasts req on every usable interface and returns the sequence
// of responses. The sequence ends MX seconds plus the deadline margin after
// the request was sent, when ctx is cancelled, or when Close is called.
//
// Errors:
//   - MissingHeaderError / InvalidConfigurationError: req does not validate
//   - NoUsableInterfacesError: no socket could be opened, or every send failed
func (s *Searcher) Search(ctx context.Context, req *message.SearchRequest) (*Results, error) {
	if req == nil {
		return nil, &errors.InvalidConfigurationError{Field: "request", Message: "must not be nil"}
	}

	payloads, err := familyPayloads(req)
	if err != nil {
		return nil, err
	}

	addrs, err := s.cfg.Addresses()
	if err != nil {
		return nil, err
	}

	results, err := s.start(ctx, addrs, func(set *transport.Set) error {
		return set.Multicast(ctx, payloads, s.logger)
	}, req.Wait()+s.cfg.DeadlineMargin)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search sent",
		zap.String("st", req.ST),
		zap.Int("mx", req.MX),
		zap.Int("sockets", results.sockets))
	return results, nil
}

// SearchAll runs Search and collects every response. When ctx is cancelled
// the responses gathered so far are returned with ctx's error.
func (s *Searcher) SearchAll(ctx context.Context, req *message.SearchRequest) ([]*Response, error) {
	results, err := s.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	defer results.Close()

	var out []*Response
	for {
		resp, ok := results.Next(ctx)
		if !ok {
			break
		}
		out = append(out, resp)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, results.Err()
}

// Unicast sends req to one host instead of the group and collects its
// responses. The window is MX seconds, or two seconds when req carries no
// usable MX. HOST is set to dst unless req overrides it.
func (s *Searcher) Unicast(ctx context.Context, req *message.SearchRequest, dst netip.AddrPort) (*Results, error) {
	if req == nil {
		return nil, &errors.InvalidConfigurationError{Field: "request", Message: "must not be nil"}
	}
	if !dst.IsValid() || dst.Addr().IsMulticast() {
		return nil, &errors.InvalidConfigurationError{Field: "destination", Value: dst, Message: "must be a unicast address and port"}
	}

	unicast := cloneRequest(req)
	wait := req.Wait()
	if message.ValidateMX(req.MX) != nil {
		unicast.MX = protocol.MinMX
		wait = protocol.DefaultUnicastTimeout
	}
	if unicast.Host == "" || unicast.Host == protocol.HostHeader(false) || unicast.Host == protocol.HostHeader(true) {
		unicast.Host = dst.String()
	}
	payload, err := message.Serialize(unicast)
	if err != nil {
		return nil, err
	}

	all, err := s.cfg.Addresses()
	if err != nil {
		return nil, err
	}
	var addrs []netip.Addr
	for _, a := range all {
		if a.Is4() == dst.Addr().Unmap().Is4() {
			addrs = append(addrs, a)
		}
	}

	return s.start(ctx, addrs, func(set *transport.Set) error {
		return sendFirst(ctx, set, payload, dst, s.logger)
	}, wait)
}

// start opens a search socket set, sends with send and starts collecting.
func (s *Searcher) start(ctx context.Context, addrs []netip.Addr, send func(*transport.Set) error, window time.Duration) (*Results, error) {
	r := &Results{logger: s.logger, clock: s.clock}

	set, err := s.builder.Build(ctx, addrs, transport.RoleSearch)
	if err != nil {
		r.machine.Close()
		return nil, err
	}
	r.set = set

	_ = r.machine.To(state.Sending)
	if err := send(set); err != nil {
		_ = set.Close()
		r.machine.Close()
		return nil, err
	}
	metrics.SearchesTotal.Inc()
	r.sockets = set.Len()

	_ = r.machine.To(state.Listening)
	listenCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.start = s.clock.Now()
	r.merger = fanin.Start(listenCtx, set.Transports(),
		fanin.WithLogger(s.logger),
		fanin.WithRole(transport.RoleSearch),
		fanin.WithOnFailure(func(t transport.Transport) { _ = set.Remove(t) }))
	r.timer = s.clock.AfterFunc(window, r.drain)
	context.AfterFunc(listenCtx, r.drain)
	return r, nil
}

// familyPayloads serializes req once per address family. A request with the
// default IPv4 HOST is sent with the IPv6 group as HOST on IPv6 sockets.
func familyPayloads(req *message.SearchRequest) (transport.PayloadFunc, error) {
	v4, err := message.Serialize(req)
	if err != nil {
		return nil, err
	}
	if req.Host != protocol.HostHeader(false) {
		return transport.Payload(v4), nil
	}

	v6req := cloneRequest(req)
	v6req.Host = protocol.HostHeader(true)
	v6, err := message.Serialize(v6req)
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

func cloneRequest(req *message.SearchRequest) *message.SearchRequest {
	c := *req
	c.Extensions = req.Extensions.Clone()
	return &c
}

// sendFirst sends payload to dst from the first socket that succeeds and
// closes the others.
func sendFirst(ctx context.Context, set *transport.Set, payload []byte, dst netip.AddrPort, logger *zap.Logger) error {
	transports := set.Transports()
	var sent transport.Transport
	var errs []error

	for _, t := range transports {
		if sent != nil {
			_ = set.Remove(t)
			continue
		}
		if err := t.Send(ctx, payload, dst); err != nil {
			logger.Warn("unicast send failed, trying next socket",
				zap.String("addr", t.Interface().Addr.String()),
				zap.Error(err))
			errs = append(errs, err)
			_ = set.Remove(t)
			continue
		}
		sent = t
	}

	if sent == nil {
		return &errors.NoUsableInterfacesError{Attempted: len(transports), Err: multierr.Combine(errs...)}
	}
	return nil
}
