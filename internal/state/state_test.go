package state

import (
	"errors"
	"testing"
)

func TestMachine_SearchLifecycle(t *testing.T) {
	var m Machine
	for _, next := range []State{Sending, Listening, Draining, Closed} {
		if err := m.To(next); err != nil {
			t.Fatalf("To(%s) = %v", next, err)
		}
	}
	if m.Current() != Closed {
		t.Errorf("Current() = %s, want closed", m.Current())
	}
}

func TestMachine_NotifyLifecycle(t *testing.T) {
	var m Machine
	if err := m.To(Listening); err != nil {
		t.Fatalf("Idle -> Listening: %v", err)
	}
	if err := m.To(Closed); err != nil {
		t.Fatalf("Listening -> Closed: %v", err)
	}
}

func TestMachine_IllegalTransitions(t *testing.T) {
	tests := []struct {
		path []State
		bad  State
	}{
		{nil, Draining},
		{[]State{Sending}, Idle},
		{[]State{Listening}, Sending},
		{[]State{Listening, Draining}, Listening},
		{[]State{Closed}, Listening},
		{[]State{Closed}, Closed},
	}

	for _, tt := range tests {
		var m Machine
		for _, s := range tt.path {
			if err := m.To(s); err != nil {
				t.Fatalf("setup To(%s): %v", s, err)
			}
		}
		before := m.Current()

		err := m.To(tt.bad)
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Errorf("%s -> %s: got %v, want TransitionError", before, tt.bad, err)
			continue
		}
		if te.From != before || te.To != tt.bad {
			t.Errorf("TransitionError = %+v", te)
		}
		if m.Current() != before {
			t.Errorf("state changed on illegal transition: %s", m.Current())
		}
	}
}

func TestMachine_Close(t *testing.T) {
	var m Machine
	_ = m.To(Listening)

	if !m.Close() {
		t.Error("first Close() = false")
	}
	if m.Close() {
		t.Error("second Close() = true")
	}
	if got := m.Current().String(); got != "closed" {
		t.Errorf("String() = %q", got)
	}
}
