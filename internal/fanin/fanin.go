// Package fanin merges the datagrams of several transports into one channel
// in arrival order.
//
// One reader goroutine runs per transport. A reader whose transport fails is
// logged, handed to the failure hook and retired without disturbing the
// others. The output channel is
// closed once every reader has returned, so datagrams a reader already
// delivered are still consumed after the merge is stopped by its context.
package fanin

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joshuafuller/ssdp/internal/metrics"
	"github.com/joshuafuller/ssdp/internal/transport"
)

const defaultBuffer = 64

// Datagram is a received packet tagged with the transport it arrived on.
type Datagram struct {
	transport.Packet
	From transport.Transport
}

// Option configures a Merger.
type Option func(*Merger)

// WithLogger sets the logger for reader failures.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Merger) {
		m.logger = logger
	}
}

// WithBuffer sets the output channel capacity.
func WithBuffer(n int) Option {
	return func(m *Merger) {
		m.buffer = n
	}
}

// WithOnFailure sets a hook called once for each transport whose reader
// failed. Engines use it to close the socket and drop it from their set.
func WithOnFailure(fn func(transport.Transport)) Option {
	return func(m *Merger) {
		m.onFailure = fn
	}
}

// WithRole labels the merger's metrics.
func WithRole(role transport.Role) Option {
	return func(m *Merger) {
		m.role = role
	}
}

// Merger reads a fixed set of transports until ctx is done, every reader
// has failed, or Close is called.
type Merger struct {
	logger *zap.Logger
	buffer int
	role   transport.Role

	onFailure func(transport.Transport)

	out  chan Datagram
	done chan struct{}

	closeOnce sync.Once

	mu     sync.Mutex
	errs   error
	failed int
	total  int
}

// Start launches one reader per transport.
func Start(ctx context.Context, transports []transport.Transport, opts ...Option) *Merger {
	m := &Merger{
		logger: zap.NewNop(),
		buffer: defaultBuffer,
		done:   make(chan struct{}),
		total:  len(transports),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.out = make(chan Datagram, m.buffer)

	// The group supervises the readers; it is sized so every reader runs at
	// once and a failure never cancels its siblings.
	var g errgroup.Group
	if len(transports) > 0 {
		g.SetLimit(len(transports))
	}
	for _, t := range transports {
		g.Go(func() error {
			return m.read(ctx, t)
		})
	}

	go func() {
		if err := g.Wait(); err != nil {
			m.logger.Debug("merge ended after reader failure", zap.Error(err))
		}
		close(m.out)
	}()

	return m
}

// read returns nil when the merge was stopped and the read error when the
// transport failed.
func (m *Merger) read(ctx context.Context, t transport.Transport) error {
	for {
		pkt, err := t.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || m.stopped() {
				return nil
			}
			m.fail(t, err)
			return err
		}

		select {
		case m.out <- Datagram{Packet: pkt, From: t}:
		case <-m.done:
			return nil
		}
	}
}

func (m *Merger) fail(t transport.Transport, err error) {
	iface := t.Interface()
	m.logger.Warn("socket read failed, removing from merge",
		zap.String("addr", iface.Addr.String()),
		zap.String("interface", iface.Name),
		zap.Error(err))
	metrics.SocketFailuresTotal.WithLabelValues(m.role.String(), "receive").Inc()

	m.mu.Lock()
	m.errs = multierr.Append(m.errs, err)
	m.failed++
	m.mu.Unlock()

	if m.onFailure != nil {
		m.onFailure(t)
	}
}

func (m *Merger) stopped() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// C returns the merged channel. It is closed when every reader returned.
func (m *Merger) C() <-chan Datagram { return m.out }

// Close stops readers blocked on delivery. Transports must be closed by
// their owner to unblock readers waiting in Receive.
func (m *Merger) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// Err returns the combined reader failures, or nil.
func (m *Merger) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs
}

// AllFailed reports whether every reader ended with a failure.
func (m *Merger) AllFailed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total > 0 && m.failed == m.total
}
