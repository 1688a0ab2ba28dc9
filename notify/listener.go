// Package notify implements passive SSDP discovery. A Listener joins the
// SSDP group on port 1900 on every usable interface and yields the
// ssdp:alive, ssdp:update and ssdp:byebye announcements it hears. An
// Announcer sends such announcements.
//
// A listening stream has no deadline. It ends when its context is
// cancelled, when it is closed, or when every socket has failed; a stopped
// stream cannot be resumed, call Listen again instead.
//
// Example:
//
//	l, err := notify.New(notify.WithNotificationTypes(message.TargetRootDevice))
//	if err != nil {
//	    return err
//	}
//	stream, err := l.Listen(ctx)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for n := range stream.All() {
//	    fmt.Println(n.NTS, n.USN, n.Location)
//	}
//	if err := stream.Err(); err != nil {
//	    return err
//	}
package notify

import (
	"context"
	"iter"
	"net/netip"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/joshuafuller/ssdp/internal/errors"
	"github.com/joshuafuller/ssdp/internal/fanin"
	"github.com/joshuafuller/ssdp/internal/metrics"
	"github.com/joshuafuller/ssdp/internal/state"
	"github.com/joshuafuller/ssdp/internal/transport"
	"github.com/joshuafuller/ssdp/message"
)

// Errors returned by Listen and Announce.
type (
	SocketError               = errors.SocketError
	NoUsableInterfacesError   = errors.NoUsableInterfacesError
	InvalidConfigurationError = errors.InvalidConfigurationError
)

// Interface identifies the local address a notification arrived on.
type Interface = transport.Interface

// State is the lifecycle state of a stream.
type State = state.State

// Lifecycle states. A stream moves Idle → Listening → Draining → Closed.
// Draining starts when the stream's context is cancelled or Close is
// called; its sockets are closed by then and only notifications already
// received remain to be read.
const (
	StateIdle      = state.Idle
	StateListening = state.Listening
	StateDraining  = state.Draining
	StateClosed    = state.Closed
)

// Notification is one NOTIFY with its arrival metadata.
type Notification struct {
	*message.NotifyMessage

	From       netip.AddrPort
	Interface  Interface
	ReceivedAt time.Time
}

// Listener opens notification streams. It holds configuration only and is
// safe for concurrent use.
type Listener struct {
	*settings
	builder transport.Builder
}

// New creates a Listener.
func New(opts ...Option) (*Listener, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return &Listener{settings: s, builder: newBuilder(s)}, nil
}

func newBuilder(s *settings) transport.Builder {
	return transport.Builder{
		Options: transport.Options{
			TTL:            s.cfg.MulticastTTL,
			RecvBufferSize: s.cfg.RecvBufferSize,
			Port:           s.cfg.Port,
		},
		Logger: s.logger,
	}
}

// Listen opens a notify socket on every usable address and starts
// collecting announcements.
//
// Errors:
//   - NoUsableInterfacesError: no socket could be bound and joined
func (l *Listener) Listen(ctx context.Context) (*Stream, error) {
	addrs, err := l.cfg.Addresses()
	if err != nil {
		return nil, err
	}

	st := &Stream{settings: l.settings}
	if l.dedupeSize > 0 {
		if st.seen, err = lru.New[seenKey, time.Time](l.dedupeSize); err != nil {
			return nil, err
		}
	}
	set, err := l.builder.Build(ctx, addrs, transport.RoleNotify)
	if err != nil {
		st.machine.Close()
		return nil, err
	}
	st.set = set
	st.sockets = set.Len()
	_ = st.machine.To(state.Listening)

	listenCtx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	st.merger = fanin.Start(listenCtx, set.Transports(),
		fanin.WithLogger(l.logger),
		fanin.WithRole(transport.RoleNotify),
		fanin.WithOnFailure(func(t transport.Transport) { _ = set.Remove(t) }))
	context.AfterFunc(listenCtx, st.drain)

	l.logger.Debug("listening for notifications", zap.Int("sockets", st.sockets))
	return st, nil
}

// Stream is the unbounded sequence of notifications from one Listen call.
// It is meant to be consumed by one goroutine; Close may be called from any
// goroutine.
type Stream struct {
	*settings
	machine state.Machine
	set     *transport.Set
	merger  *fanin.Merger
	cancel  context.CancelFunc
	sockets int
	seen    *lru.Cache[seenKey, time.Time]

	releaseOnce sync.Once
	finishOnce  sync.Once
	closeErr    error
}

// Next returns the next notification in arrival order. It returns false
// once the stream has ended, or when ctx is done; in the latter case the
// stream keeps running.
func (s *Stream) Next(ctx context.Context) (*Notification, bool) {
	if s.machine.Current() == state.Closed {
		return nil, false
	}

	for {
		select {
		case d, ok := <-s.merger.C():
			if !ok {
				_ = s.finish()
				return nil, false
			}
			if n := s.accept(d); n != nil {
				return n, true
			}
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (s *Stream) accept(d fanin.Datagram) *Notification {
	msg, err := message.Parse(d.Data)
	if err != nil {
		metrics.DatagramsDroppedTotal.WithLabelValues(metrics.RoleNotify, metrics.ReasonParse).Inc()
		s.logger.Debug("dropping unparseable datagram",
			zap.Stringer("from", d.Source),
			zap.String("interface", d.From.Interface().Name),
			zap.Error(err))
		return nil
	}

	n, ok := msg.(*message.NotifyMessage)
	if !ok {
		// M-SEARCH requests from other control points share the port.
		metrics.DatagramsDroppedTotal.WithLabelValues(metrics.RoleNotify, metrics.ReasonWrongKind).Inc()
		return nil
	}

	if len(s.types) > 0 {
		if _, ok := s.types[n.NT]; !ok {
			metrics.DatagramsDroppedTotal.WithLabelValues(metrics.RoleNotify, metrics.ReasonFiltered).Inc()
			return nil
		}
	}

	now := s.clock.Now()
	if s.duplicate(n, now) {
		metrics.DatagramsDroppedTotal.WithLabelValues(metrics.RoleNotify, metrics.ReasonDuplicate).Inc()
		return nil
	}

	metrics.NotificationsTotal.WithLabelValues(string(n.NTS)).Inc()
	return &Notification{
		NotifyMessage: n,
		From:          d.Source,
		Interface:     d.From.Interface(),
		ReceivedAt:    now,
	}
}

type seenKey struct {
	usn string
	nts message.NotifySubtype
}

// duplicate records n and reports whether the same (USN, NTS) was yielded
// within the suppression window. The window is measured from the first
// yielded copy, so a steady repeater is let through once per window.
func (s *Stream) duplicate(n *message.NotifyMessage, now time.Time) bool {
	if s.seen == nil {
		return false
	}
	k := seenKey{usn: n.USN, nts: n.NTS}
	if last, ok := s.seen.Get(k); ok && now.Sub(last) < s.dedupeWindow {
		return true
	}
	s.seen.Add(k, now)
	return false
}

// All returns an iterator over the notifications until the stream ends.
func (s *Stream) All() iter.Seq[*Notification] {
	return func(yield func(*Notification) bool) {
		for {
			n, ok := s.Next(context.Background())
			if !ok || !yield(n) {
				return
			}
		}
	}
}

// Err returns the combined socket errors when the stream ended because
// every socket failed, and nil otherwise.
func (s *Stream) Err() error {
	if s.merger.AllFailed() {
		return &errors.NoUsableInterfacesError{Attempted: s.sockets, Err: s.merger.Err()}
	}
	return nil
}

// State returns the lifecycle state.
func (s *Stream) State() State {
	return s.machine.Current()
}

// Close stops the stream and releases its sockets. Close is idempotent.
func (s *Stream) Close() error {
	s.merger.Close()
	return s.finish()
}

func (s *Stream) drain() {
	_ = s.machine.To(state.Draining)
	s.release()
}

// release cancels the readers before closing the sockets so their read
// errors are not counted as failures.
func (s *Stream) release() {
	s.releaseOnce.Do(func() {
		s.cancel()
		s.closeErr = s.set.Close()
	})
}

func (s *Stream) finish() error {
	s.finishOnce.Do(func() {
		if s.machine.Current() == state.Listening {
			_ = s.machine.To(state.Draining)
		}
		s.release()
		s.machine.Close()
	})
	return s.closeErr
}
