package message

import (
	"strconv"
	"strings"
	"time"

	"github.com/joshuafuller/ssdp/internal/errors"
	wire "github.com/joshuafuller/ssdp/internal/message"
	"github.com/joshuafuller/ssdp/internal/protocol"
)

// SearchRequest is an M-SEARCH discovery request (UDA 1.1 §1.3.2).
//
// ST, MX, HOST and MAN are mandatory. NewSearchRequest fills HOST and MAN
// with the multicast defaults, so callers normally provide only the target and
// the maximum wait.
type SearchRequest struct {
	Host string // HOST, e.g. "239.255.255.250:1900"
	Man  string // MAN, always "ssdp:discover" (quoted)
	ST   string // Search target
	MX   int    // Maximum response delay in seconds

	// Extensions holds additional headers, such as USER-AGENT or
	// CPFN.UPNP.ORG, in insertion order.
	Extensions HeaderMap
}

// RequestOption customizes a SearchRequest built by NewSearchRequest.
type RequestOption func(*SearchRequest)

// WithHost overrides the HOST header, e.g. for IPv6 or unicast searches.
func WithHost(host string) RequestOption {
	return func(r *SearchRequest) {
		r.Host = host
	}
}

// WithHeader appends an extension header.
func WithHeader(name, value string) RequestOption {
	return func(r *SearchRequest) {
		r.Extensions.Add(name, value)
	}
}

// NewSearchRequest builds a validated M-SEARCH for target st with a maximum
// wait of mx seconds.
//
// Errors:
//   - MissingHeaderError{Name: "ST"}: st is empty
//   - InvalidConfigurationError: mx outside [1, 120]
//
// Example:
//
//	req, err := message.NewSearchRequest("urn:schemas-upnp-org:device:MediaServer:1", 3,
//	    message.WithHeader("USER-AGENT", "MyOS/1.0 UPnP/1.1 MyApp/2.0"),
//	)
func NewSearchRequest(st string, mx int, opts ...RequestOption) (*SearchRequest, error) {
	r := &SearchRequest{
		Host: protocol.HostHeader(false),
		Man:  protocol.ManDiscover,
		ST:   st,
		MX:   mx,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Type implements Message.
func (r *SearchRequest) Type() Type { return TypeSearch }

// Validate checks the mandatory fields.
func (r *SearchRequest) Validate() error {
	if r.ST == "" {
		return &errors.MissingHeaderError{Name: protocol.HeaderST}
	}
	if err := ValidateMX(r.MX); err != nil {
		return err
	}
	if r.Host == "" {
		return &errors.MissingHeaderError{Name: protocol.HeaderHost}
	}
	if r.Man == "" {
		return &errors.MissingHeaderError{Name: protocol.HeaderMan}
	}
	return nil
}

// ValidateMX checks that mx lies in the accepted range.
func ValidateMX(mx int) error {
	if mx < protocol.MinMX || mx > protocol.MaxMX {
		return &errors.InvalidConfigurationError{
			Field:   protocol.HeaderMX,
			Value:   mx,
			Message: "must be between " + strconv.Itoa(protocol.MinMX) + " and " + strconv.Itoa(protocol.MaxMX) + " seconds",
		}
	}
	return nil
}

// Wait returns MX as a duration.
func (r *SearchRequest) Wait() time.Duration {
	return time.Duration(r.MX) * time.Second
}

// Header implements Message.
func (r *SearchRequest) Header(name string) (string, bool) {
	if key(name) == key(protocol.HeaderMX) && r.MX != 0 {
		return strconv.Itoa(r.MX), true
	}
	return headerLookup(r.known(), &r.Extensions, name)
}

func (r *SearchRequest) known() []canonical {
	return []canonical{
		{protocol.HeaderHost, &r.Host},
		{protocol.HeaderMan, &r.Man},
		{protocol.HeaderST, &r.ST},
	}
}

func (r *SearchRequest) frame() (wire.StartLine, []wire.Field) {
	fields := []wire.Field{
		{Name: protocol.HeaderHost, Value: r.Host},
		{Name: protocol.HeaderMan, Value: r.Man},
		{Name: protocol.HeaderMX, Value: strconv.Itoa(r.MX)},
		{Name: protocol.HeaderST, Value: r.ST},
	}
	fields = append(fields, r.Extensions.Fields()...)
	return wire.RequestLine(protocol.MethodSearch), fields
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r *SearchRequest) MarshalBinary() ([]byte, error) { return Serialize(r) }

func searchRequestFromFrame(f *wire.Frame) (*SearchRequest, error) {
	var (
		r  SearchRequest
		mx string
	)
	known := append(r.known(), canonical{protocol.HeaderMX, &mx})
	r.Extensions = splitFields(f.Fields, known)

	if r.Host == "" {
		return nil, &errors.MissingHeaderError{Name: protocol.HeaderHost}
	}
	if r.Man == "" {
		return nil, &errors.MissingHeaderError{Name: protocol.HeaderMan}
	}
	if r.ST == "" {
		return nil, &errors.MissingHeaderError{Name: protocol.HeaderST}
	}
	if mx == "" {
		return nil, &errors.MissingHeaderError{Name: protocol.HeaderMX}
	}
	n, err := strconv.Atoi(mx)
	if err != nil || ValidateMX(n) != nil {
		return nil, &errors.MalformedMessageError{Reason: "invalid MX value", Line: mx}
	}
	r.MX = n
	return &r, nil
}

// SearchResponse is a unicast reply to an M-SEARCH (UDA 1.1 §1.3.3).
type SearchResponse struct {
	CacheControl string // CACHE-CONTROL, e.g. "max-age=1800"
	Location     string // URL of the device description document
	Server       string // "OS/version UPnP/1.1 product/version"
	ST           string // Search target being answered
	USN          string // Unique service name

	// Extensions holds EXT, DATE, BOOTID.UPNP.ORG and any vendor headers in
	// arrival order.
	Extensions HeaderMap
}

// NewSearchResponse builds a validated response. It is mostly useful to
// responders and tests; control points obtain responses from Parse.
func NewSearchResponse(st, usn, location, server string, maxAge time.Duration) (*SearchResponse, error) {
	r := &SearchResponse{
		CacheControl: "max-age=" + strconv.Itoa(int(maxAge/time.Second)),
		Location:     location,
		Server:       server,
		ST:           st,
		USN:          usn,
	}
	r.Extensions.Add("EXT", "")
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Type implements Message.
func (r *SearchResponse) Type() Type { return TypeResponse }

// Validate checks the mandatory fields.
func (r *SearchResponse) Validate() error {
	for _, c := range r.known() {
		if *c.dst == "" {
			return &errors.MissingHeaderError{Name: c.name}
		}
	}
	return nil
}

// Header implements Message.
func (r *SearchResponse) Header(name string) (string, bool) {
	return headerLookup(r.known(), &r.Extensions, name)
}

// MaxAge returns the max-age directive of CACHE-CONTROL.
func (r *SearchResponse) MaxAge() (time.Duration, bool) {
	return parseMaxAge(r.CacheControl)
}

// canonical order follows the UDA 1.1 §1.3.3 example.
func (r *SearchResponse) known() []canonical {
	return []canonical{
		{protocol.HeaderCacheControl, &r.CacheControl},
		{protocol.HeaderLocation, &r.Location},
		{protocol.HeaderServer, &r.Server},
		{protocol.HeaderST, &r.ST},
		{protocol.HeaderUSN, &r.USN},
	}
}

func (r *SearchResponse) frame() (wire.StartLine, []wire.Field) {
	return wire.StatusLine(), canonicalFields(r.known(), &r.Extensions)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r *SearchResponse) MarshalBinary() ([]byte, error) { return Serialize(r) }

func searchResponseFromFrame(f *wire.Frame) (*SearchResponse, error) {
	var r SearchResponse
	r.Extensions = splitFields(f.Fields, r.known())
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// parseMaxAge extracts "max-age=N" from a CACHE-CONTROL value. Other
// directives are ignored.
func parseMaxAge(v string) (time.Duration, bool) {
	for _, directive := range strings.Split(v, ",") {
		name, value, ok := strings.Cut(directive, "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "max-age") {
			continue
		}
		n, err := strconv.Atoi(strings.Trim(strings.TrimSpace(value), `"`))
		if err != nil || n < 0 {
			return 0, false
		}
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}
