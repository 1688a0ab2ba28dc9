package search

import (
	"context"
	"iter"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/joshuafuller/ssdp/internal/errors"
	"github.com/joshuafuller/ssdp/internal/fanin"
	"github.com/joshuafuller/ssdp/internal/metrics"
	"github.com/joshuafuller/ssdp/internal/state"
	"github.com/joshuafuller/ssdp/internal/transport"
	"github.com/joshuafuller/ssdp/message"
)

// State is the lifecycle state of a search.
type State = state.State

// Lifecycle states. A search moves Idle → Sending → Listening → Draining →
// Closed and never restarts.
const (
	StateIdle      = state.Idle
	StateSending   = state.Sending
	StateListening = state.Listening
	StateDraining  = state.Draining
	StateClosed    = state.Closed
)

// Response is one search response with its arrival metadata.
type Response struct {
	*message.SearchResponse

	// From is the responder's address.
	From netip.AddrPort

	// Interface is the local address the response arrived on.
	Interface Interface

	ReceivedAt time.Time
}

// Results is the finite sequence of responses to one search. It is meant
// to be consumed by one goroutine; Close may be called from any goroutine.
type Results struct {
	machine state.Machine
	set     *transport.Set
	merger  *fanin.Merger
	cancel  context.CancelFunc
	timer   *clock.Timer
	logger  *zap.Logger
	clock   clock.Clock
	start   time.Time
	sockets int

	releaseOnce sync.Once
	finishOnce  sync.Once
	closeErr    error
}

// Next returns the next response in arrival order. It returns false once the
// search has ended, or when ctx is done; in the latter case the search keeps
// running and Next may be called again.
func (r *Results) Next(ctx context.Context) (*Response, bool) {
	if r.machine.Current() == state.Closed {
		return nil, false
	}

	for {
		select {
		case d, ok := <-r.merger.C():
			if !ok {
				_ = r.finish()
				return nil, false
			}
			if resp := r.accept(d); resp != nil {
				return resp, true
			}
		case <-ctx.Done():
			return nil, false
		}
	}
}

// accept parses a datagram, dropping anything that is not a search response.
func (r *Results) accept(d fanin.Datagram) *Response {
	msg, err := message.Parse(d.Data)
	if err != nil {
		metrics.DatagramsDroppedTotal.WithLabelValues(metrics.RoleSearch, metrics.ReasonParse).Inc()
		r.logger.Debug("dropping unparseable datagram",
			zap.Stringer("from", d.Source),
			zap.String("interface", d.From.Interface().Name),
			zap.Error(err))
		return nil
	}

	resp, ok := msg.(*message.SearchResponse)
	if !ok {
		metrics.DatagramsDroppedTotal.WithLabelValues(metrics.RoleSearch, metrics.ReasonWrongKind).Inc()
		r.logger.Debug("dropping non-response datagram",
			zap.Stringer("from", d.Source),
			zap.Stringer("type", msg.Type()))
		return nil
	}

	metrics.SearchResponsesTotal.Inc()
	return &Response{
		SearchResponse: resp,
		From:           d.Source,
		Interface:      d.From.Interface(),
		ReceivedAt:     r.clock.Now(),
	}
}

// All returns an iterator over the remaining responses.
func (r *Results) All() iter.Seq[*Response] {
	return func(yield func(*Response) bool) {
		for {
			resp, ok := r.Next(context.Background())
			if !ok || !yield(resp) {
				return
			}
		}
	}
}

// Err reports why the search ended early: a NoUsableInterfacesError when
// every socket failed while reading. A search that reached its deadline,
// was cancelled or closed reports nil.
func (r *Results) Err() error {
	if r.merger.AllFailed() {
		return &errors.NoUsableInterfacesError{Attempted: r.sockets, Err: r.merger.Err()}
	}
	return nil
}

// State returns the lifecycle state.
func (r *Results) State() State {
	return r.machine.Current()
}

// Close stops the search and releases its sockets. Responses not yet
// consumed are discarded. Close is idempotent.
func (r *Results) Close() error {
	r.merger.Close()
	return r.finish()
}

// drain runs at the deadline or when the search context is cancelled. The
// sockets close at once; datagrams the merge already holds are still
// yielded by Next.
func (r *Results) drain() {
	_ = r.machine.To(state.Draining)
	r.release()
}

// release stops the readers before closing the sockets so their read
// errors are not counted as failures.
func (r *Results) release() {
	r.releaseOnce.Do(func() {
		r.cancel()
		r.closeErr = r.set.Close()
	})
}

func (r *Results) finish() error {
	r.finishOnce.Do(func() {
		r.timer.Stop()
		if r.machine.Current() == state.Listening {
			_ = r.machine.To(state.Draining)
		}
		r.release()
		r.machine.Close()
		metrics.SearchDurationSeconds.Observe(r.clock.Now().Sub(r.start).Seconds())
	})
	return r.closeErr
}

// Dedupe returns responses with the first occurrence of each USN kept, in
// order.
func Dedupe(responses []*Response) []*Response {
	seen := make(map[string]struct{}, len(responses))
	out := make([]*Response, 0, len(responses))
	for _, resp := range responses {
		if _, ok := seen[resp.USN]; ok {
			continue
		}
		seen[resp.USN] = struct{}{}
		out = append(out, resp)
	}
	return out
}
