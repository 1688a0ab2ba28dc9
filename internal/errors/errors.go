// Package errors defines the closed set of error kinds produced by the SSDP
// codec, the socket layer and the discovery engines.
//
// Every error carries structured context (header name, interface address,
// operation) rather than a pre-formatted string, so callers can branch with
// errors.As and read the fields they need.
package errors

import (
	"fmt"
	"net/netip"
)

// Kind identifies one of the error variants below.
type Kind int

const (
	// KindMalformedMessage: unparseable start line or header block.
	KindMalformedMessage Kind = iota + 1
	// KindMissingHeader: a header required for the message kind is absent.
	KindMissingHeader
	// KindSocket: bind, join, send or receive failure on one interface.
	KindSocket
	// KindNoUsableInterfaces: every interface failed.
	KindNoUsableInterfaces
	// KindInvalidConfiguration: rejected at construction time.
	KindInvalidConfiguration
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindMalformedMessage:
		return "malformed message"
	case KindMissingHeader:
		return "missing header"
	case KindSocket:
		return "socket error"
	case KindNoUsableInterfaces:
		return "no usable interfaces"
	case KindInvalidConfiguration:
		return "invalid configuration"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is implemented by every error of this package.
type Error interface {
	error
	Kind() Kind
}

// MalformedMessageError reports a datagram that is not a well-formed SSDP
// message: bad start line, unterminated header block, a header line without a
// colon, or non-ASCII bytes in the header section.
type MalformedMessageError struct {
	Reason string // What is wrong
	Line   string // Offending line, if any
}

func (e *MalformedMessageError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("malformed message: %s", e.Reason)
	}
	return fmt.Sprintf("malformed message: %s: %q", e.Reason, e.Line)
}

// Kind implements Error.
func (e *MalformedMessageError) Kind() Kind { return KindMalformedMessage }

// MissingHeaderError reports a required header absent for the message kind.
type MissingHeaderError struct {
	Name string // Canonical header name, e.g. "ST" or "LOCATION"
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("missing required header %s", e.Name)
}

// Kind implements Error.
func (e *MissingHeaderError) Kind() Kind { return KindMissingHeader }

// SocketError wraps an OS-level failure on the socket of one interface.
type SocketError struct {
	Operation string     // "bind", "join group", "send", "receive", "close", ...
	Addr      netip.Addr // Local interface address the socket belongs to
	Err       error      // Underlying OS error
}

func (e *SocketError) Error() string {
	if e.Addr.IsValid() {
		return fmt.Sprintf("socket %s on %s: %v", e.Operation, e.Addr, e.Err)
	}
	return fmt.Sprintf("socket %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying OS error.
func (e *SocketError) Unwrap() error { return e.Err }

// Kind implements Error.
func (e *SocketError) Kind() Kind { return KindSocket }

// NoUsableInterfacesError is returned when every candidate interface failed.
// Err holds the per-interface SocketErrors combined with multierr, or is nil
// when there were no candidates at all.
type NoUsableInterfacesError struct {
	Attempted int
	Err       error
}

func (e *NoUsableInterfacesError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no usable interfaces (%d attempted)", e.Attempted)
	}
	return fmt.Sprintf("no usable interfaces (%d attempted): %v", e.Attempted, e.Err)
}

// Unwrap returns the combined per-interface errors.
func (e *NoUsableInterfacesError) Unwrap() error { return e.Err }

// Kind implements Error.
func (e *NoUsableInterfacesError) Kind() Kind { return KindNoUsableInterfaces }

// InvalidConfigurationError reports a value rejected at construction time.
type InvalidConfigurationError struct {
	Field   string
	Value   any
	Message string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Message)
}

// Kind implements Error.
func (e *InvalidConfigurationError) Kind() Kind { return KindInvalidConfiguration }
