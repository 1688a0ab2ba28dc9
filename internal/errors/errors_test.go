package errors

import (
	goerrors "errors"
	"fmt"
	"net/netip"
	"syscall"
	"testing"

	"go.uber.org/multierr"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name string
		err  Error
		want Kind
	}{
		{"malformed", &MalformedMessageError{Reason: "bad start line"}, KindMalformedMessage},
		{"missing header", &MissingHeaderError{Name: "ST"}, KindMissingHeader},
		{"socket", &SocketError{Operation: "bind", Err: syscall.EADDRINUSE}, KindSocket},
		{"no interfaces", &NoUsableInterfacesError{Attempted: 3}, KindNoUsableInterfaces},
		{"config", &InvalidConfigurationError{Field: "MX", Value: 0}, KindInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
			if tt.err.Error() == "" {
				t.Error("Error() returned empty string")
			}
		})
	}
}

func TestMissingHeaderError_As(t *testing.T) {
	err := fmt.Errorf("parse response: %w", &MissingHeaderError{Name: "LOCATION"})

	var mh *MissingHeaderError
	if !goerrors.As(err, &mh) {
		t.Fatalf("errors.As failed for %v", err)
	}
	if mh.Name != "LOCATION" {
		t.Errorf("Name = %q, want LOCATION", mh.Name)
	}
}

func TestSocketError_Unwrap(t *testing.T) {
	err := &SocketError{
		Operation: "bind",
		Addr:      netip.MustParseAddr("192.168.1.10"),
		Err:       syscall.EADDRINUSE,
	}

	if !goerrors.Is(err, syscall.EADDRINUSE) {
		t.Error("SocketError should unwrap to the OS error")
	}
	want := "socket bind on 192.168.1.10: " + syscall.EADDRINUSE.Error()
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestNoUsableInterfacesError_UnwrapsEverySocketError(t *testing.T) {
	a := &SocketError{Operation: "bind", Addr: netip.MustParseAddr("10.0.0.1"), Err: syscall.EADDRNOTAVAIL}
	b := &SocketError{Operation: "join group", Addr: netip.MustParseAddr("10.0.0.2"), Err: syscall.ENODEV}

	err := &NoUsableInterfacesError{Attempted: 2, Err: multierr.Combine(a, b)}

	if !goerrors.Is(err, syscall.ENODEV) {
		t.Error("expected ENODEV reachable through NoUsableInterfacesError")
	}

	var se *SocketError
	if !goerrors.As(err, &se) {
		t.Fatal("expected a SocketError reachable through NoUsableInterfacesError")
	}
	if len(multierr.Errors(err.Err)) != 2 {
		t.Errorf("expected 2 combined errors, got %d", len(multierr.Errors(err.Err)))
	}
}

func TestKind_String(t *testing.T) {
	if KindSocket.String() != "socket error" {
		t.Errorf("KindSocket.String() = %q", KindSocket.String())
	}
	if Kind(99).String() != "Kind(99)" {
		t.Errorf("unknown kind String() = %q", Kind(99).String())
	}
}
