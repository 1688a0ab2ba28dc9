// Package state implements the lifecycle shared by the search and notify
// engines.
//
//	Idle ──► Sending ──► Listening ──► Draining ──► Closed
//	  │                     ▲
//	  └─────────────────────┘ (notify skips Sending)
//
// Idle may also move straight to Closed when construction fails. Closed is
// terminal.
package state

import (
	"fmt"
	"sync"
)

// State is a lifecycle state.
type State int32

const (
	Idle State = iota
	Sending
	Listening
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Listening:
		return "listening"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var legal = map[State][]State{
	Idle:      {Sending, Listening, Closed},
	Sending:   {Listening, Closed},
	Listening: {Draining, Closed},
	Draining:  {Closed},
}

// TransitionError reports an illegal transition.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal state transition %s -> %s", e.From, e.To)
}

// Machine is a concurrency-safe lifecycle. The zero value is Idle.
type Machine struct {
	mu      sync.Mutex
	current State
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// To moves the machine to next.
func (m *Machine) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range legal[m.current] {
		if s == next {
			m.current = next
			return nil
		}
	}
	return &TransitionError{From: m.current, To: next}
}

// Close moves the machine to Closed from any state. It reports whether this
// call performed the transition.
func (m *Machine) Close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == Closed {
		return false
	}
	m.current = Closed
	return true
}
