// Package message implements the SSDP message codec: typed M-SEARCH requests,
// search responses and NOTIFY announcements, parsed from and serialized to raw
// UDP datagrams.
//
// UDA 1.1 §1.2 (advertisement) and §1.3 (search) define the three message
// kinds handled here. Each kind has a fixed set of required headers; a
// message lacking one is rejected with a MissingHeaderError naming it.
// Headers the codec does not model are kept verbatim, in arrival order, in
// the message's Extensions map and written back on serialization, so a parsed
// message can be re-emitted unchanged.
//
// Example:
//
//	req, err := message.NewSearchRequest(message.TargetRootDevice, 3)
//	if err != nil {
//	    return err
//	}
//	packet, err := message.Serialize(req)
//
//	msg, err := message.Parse(datagram)
//	switch m := msg.(type) {
//	case *message.SearchResponse:
//	    fmt.Println(m.USN, m.Location)
//	case *message.NotifyMessage:
//	    fmt.Println(m.NTS, m.USN)
//	}
package message

import (
	"fmt"

	"github.com/joshuafuller/ssdp/internal/errors"
	wire "github.com/joshuafuller/ssdp/internal/message"
	"github.com/joshuafuller/ssdp/internal/protocol"
)

// Error types returned by the codec.
type (
	MalformedMessageError     = errors.MalformedMessageError
	MissingHeaderError        = errors.MissingHeaderError
	InvalidConfigurationError = errors.InvalidConfigurationError
)

// Well-known search targets.
const (
	TargetAll        = protocol.TargetAll
	TargetRootDevice = protocol.TargetRootDevice
)

// Type identifies the kind of an SSDP message.
type Type int

const (
	// TypeSearch is an M-SEARCH request.
	TypeSearch Type = iota + 1
	// TypeResponse is a unicast reply to an M-SEARCH.
	TypeResponse
	// TypeNotify is a NOTIFY presence announcement.
	TypeNotify
)

func (t Type) String() string {
	switch t {
	case TypeSearch:
		return "M-SEARCH"
	case TypeResponse:
		return "response"
	case TypeNotify:
		return "NOTIFY"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Message is implemented by *SearchRequest, *SearchResponse and
// *NotifyMessage.
type Message interface {
	// Type returns the message kind.
	Type() Type

	// Validate checks the required headers of the kind.
	Validate() error

	// Header returns the value of a header by case-insensitive name,
	// whether it is modeled as a field or kept as an extension.
	Header(name string) (string, bool)

	frame() (wire.StartLine, []wire.Field)
}

// Serialize validates m and encodes it as a datagram.
//
// Canonical headers come first, in a fixed order per kind and with upper-case
// names, followed by the extension headers in insertion order and the
// terminating empty line. Output is deterministic for equal messages.
func Serialize(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	start, fields := m.frame()
	return wire.Encode(start, fields), nil
}

// Parse decodes a datagram into a *SearchRequest, *SearchResponse or
// *NotifyMessage.
//
// Errors:
//   - MalformedMessageError: framing errors, unsupported method, a status
//     other than 200, or an unparseable MX / NTS value
//   - MissingHeaderError: a required header of the kind is absent
func Parse(b []byte) (Message, error) {
	frame, err := wire.Decode(b)
	if err != nil {
		return nil, err
	}

	if frame.Start.Response {
		if frame.Start.StatusCode != protocol.StatusOK {
			return nil, &errors.MalformedMessageError{
				Reason: fmt.Sprintf("unexpected status %d", frame.Start.StatusCode),
			}
		}
		return searchResponseFromFrame(frame)
	}

	switch frame.Start.Method {
	case protocol.MethodSearch:
		return searchRequestFromFrame(frame)
	case protocol.MethodNotify:
		return notifyFromFrame(frame)
	default:
		return nil, &errors.MalformedMessageError{Reason: "unsupported method", Line: frame.Start.Method}
	}
}

// ParseSearchRequest parses b and requires it to be an M-SEARCH.
func ParseSearchRequest(b []byte) (*SearchRequest, error) {
	m, err := Parse(b)
	if err != nil {
		return nil, err
	}
	req, ok := m.(*SearchRequest)
	if !ok {
		return nil, &errors.MalformedMessageError{Reason: fmt.Sprintf("expected M-SEARCH, got %s", m.Type())}
	}
	return req, nil
}

// ParseSearchResponse parses b and requires it to be a search response.
func ParseSearchResponse(b []byte) (*SearchResponse, error) {
	m, err := Parse(b)
	if err != nil {
		return nil, err
	}
	resp, ok := m.(*SearchResponse)
	if !ok {
		return nil, &errors.MalformedMessageError{Reason: fmt.Sprintf("expected search response, got %s", m.Type())}
	}
	return resp, nil
}

// ParseNotify parses b and requires it to be a NOTIFY.
func ParseNotify(b []byte) (*NotifyMessage, error) {
	m, err := Parse(b)
	if err != nil {
		return nil, err
	}
	n, ok := m.(*NotifyMessage)
	if !ok {
		return nil, &errors.MalformedMessageError{Reason: fmt.Sprintf("expected NOTIFY, got %s", m.Type())}
	}
	return n, nil
}

// canonical describes one modeled header of a message kind.
type canonical struct {
	name string
	dst  *string
}

// splitFields assigns the first non-empty occurrence of each canonical header
// to its destination and returns everything else, in order, as extensions.
// A repeated canonical header keeps its later values as extensions. Empty
// canonical values before the first non-empty one are dropped, as
// serialization omits them.
func splitFields(fields []wire.Field, known []canonical) HeaderMap {
	var ext HeaderMap
	seen := make(map[string]bool, len(known))

	for _, f := range fields {
		k := key(f.Name)
		matched := false
		for _, c := range known {
			if k == key(c.name) && !seen[c.name] {
				*c.dst = f.Value
				seen[c.name] = f.Value != ""
				matched = true
				break
			}
		}
		if !matched {
			ext.Add(f.Name, f.Value)
		}
	}
	return ext
}

// canonicalFields emits the non-empty canonical headers in order followed by
// the extensions.
func canonicalFields(known []canonical, ext *HeaderMap) []wire.Field {
	fields := make([]wire.Field, 0, len(known)+ext.Len())
	for _, c := range known {
		if *c.dst != "" {
			fields = append(fields, wire.Field{Name: c.name, Value: *c.dst})
		}
	}
	return append(fields, ext.Fields()...)
}

// checkShadowed rejects an extension named like a canonical header whose
// field is empty. Serialized, it would parse back into the field.
func checkShadowed(known []canonical, ext *HeaderMap) error {
	for _, c := range known {
		if *c.dst != "" {
			continue
		}
		if v, ok := ext.Get(c.name); ok {
			return &errors.InvalidConfigurationError{
				Field:   c.name,
				Value:   v,
				Message: "must be set through the message field, not as an extension header",
			}
		}
	}
	return nil
}

func headerLookup(known []canonical, ext *HeaderMap, name string) (string, bool) {
	k := key(name)
	for _, c := range known {
		if key(c.name) == k && *c.dst != "" {
			return *c.dst, true
		}
	}
	return ext.Get(name)
}
