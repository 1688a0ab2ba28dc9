package message

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/joshuafuller/ssdp/internal/errors"
	wire "github.com/joshuafuller/ssdp/internal/message"
	"github.com/joshuafuller/ssdp/internal/protocol"
)

// NotifySubtype is the NTS value of a NOTIFY.
type NotifySubtype string

// Recognized NTS values (UDA 1.1 §1.2.2, §1.2.3, §1.2.4).
const (
	Alive  NotifySubtype = protocol.NTSAlive
	ByeBye NotifySubtype = protocol.NTSByeBye
	Update NotifySubtype = protocol.NTSUpdate
)

// Valid reports whether s is one of the three recognized subtypes.
func (s NotifySubtype) Valid() bool {
	switch s {
	case Alive, ByeBye, Update:
		return true
	}
	return false
}

// RequiresLocation reports whether messages of this subtype must carry
// LOCATION. A byebye announces departure and has nothing to describe.
func (s NotifySubtype) RequiresLocation() bool {
	return s == Alive || s == Update
}

// NotifyMessage is a multicast presence announcement.
//
// NT, NTS and USN are always required; LOCATION is required for ssdp:alive
// and ssdp:update only.
type NotifyMessage struct {
	Host         string // HOST, the group the message was sent to
	CacheControl string // CACHE-CONTROL, alive only
	Location     string // URL of the device description document
	NT           string // Notification type
	NTS          NotifySubtype
	Server       string
	USN          string // Unique service name

	// Extensions holds BOOTID.UPNP.ORG, CONFIGID.UPNP.ORG, NEXTBOOTID.UPNP.ORG
	// and vendor headers in arrival order.
	Extensions HeaderMap
}

// NotifyOption customizes a NotifyMessage built by NewNotify.
type NotifyOption func(*NotifyMessage)

// WithLocation sets LOCATION.
func WithLocation(url string) NotifyOption {
	return func(n *NotifyMessage) {
		n.Location = url
	}
}

// WithMaxAge sets CACHE-CONTROL to max-age=d.
func WithMaxAge(d time.Duration) NotifyOption {
	return func(n *NotifyMessage) {
		n.CacheControl = "max-age=" + strconv.Itoa(int(d/time.Second))
	}
}

// WithServer sets SERVER.
func WithServer(server string) NotifyOption {
	return func(n *NotifyMessage) {
		n.Server = server
	}
}

// WithNotifyHost overrides HOST.
func WithNotifyHost(host string) NotifyOption {
	return func(n *NotifyMessage) {
		n.Host = host
	}
}

// WithNotifyHeader appends an extension header. Headers modeled as fields,
// such as SERVER or LOCATION, must be set with their own option.
func WithNotifyHeader(name, value string) NotifyOption {
	return func(n *NotifyMessage) {
		n.Extensions.Add(name, value)
	}
}

// NewNotify builds a validated NOTIFY of subtype nts.
//
// Example:
//
//	alive, err := message.NewNotify(message.Alive, message.TargetRootDevice, usn,
//	    message.WithLocation("http://192.168.1.20:8080/desc.xml"),
//	    message.WithMaxAge(30*time.Minute),
//	)
func NewNotify(nts NotifySubtype, nt, usn string, opts ...NotifyOption) (*NotifyMessage, error) {
	n := &NotifyMessage{
		Host: protocol.HostHeader(false),
		NT:   nt,
		NTS:  nts,
		USN:  usn,
	}
	for _, opt := range opts {
		opt(n)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// Type implements Message.
func (n *NotifyMessage) Type() Type { return TypeNotify }

// Validate checks the required fields for the subtype.
func (n *NotifyMessage) Validate() error {
	if n.NT == "" {
		return &errors.MissingHeaderError{Name: protocol.HeaderNT}
	}
	if n.NTS == "" {
		return &errors.MissingHeaderError{Name: protocol.HeaderNTS}
	}
	if !n.NTS.Valid() {
		return &errors.MalformedMessageError{Reason: "unrecognized NTS value", Line: string(n.NTS)}
	}
	if n.USN == "" {
		return &errors.MissingHeaderError{Name: protocol.HeaderUSN}
	}
	if n.NTS.RequiresLocation() && n.Location == "" {
		return &errors.MissingHeaderError{Name: protocol.HeaderLocation}
	}
	return checkShadowed(append(n.known(), n.trailing()...), &n.Extensions)
}

// Header implements Message.
func (n *NotifyMessage) Header(name string) (string, bool) {
	if key(name) == key(protocol.HeaderNTS) && n.NTS != "" {
		return string(n.NTS), true
	}
	return headerLookup(append(n.known(), n.trailing()...), &n.Extensions, name)
}

// MaxAge returns the max-age directive of CACHE-CONTROL.
func (n *NotifyMessage) MaxAge() (time.Duration, bool) {
	return parseMaxAge(n.CacheControl)
}

// known excludes NTS, which is typed and handled separately.
func (n *NotifyMessage) known() []canonical {
	return []canonical{
		{protocol.HeaderHost, &n.Host},
		{protocol.HeaderCacheControl, &n.CacheControl},
		{protocol.HeaderLocation, &n.Location},
		{protocol.HeaderNT, &n.NT},
	}
}

func (n *NotifyMessage) trailing() []canonical {
	return []canonical{
		{protocol.HeaderServer, &n.Server},
		{protocol.HeaderUSN, &n.USN},
	}
}

// frame emits HOST, CACHE-CONTROL, LOCATION, NT, NTS, SERVER, USN in the
// UDA 1.1 §1.2.2 order, then extensions.
func (n *NotifyMessage) frame() (wire.StartLine, []wire.Field) {
	var empty HeaderMap
	fields := canonicalFields(n.known(), &empty)
	fields = append(fields, wire.Field{Name: protocol.HeaderNTS, Value: string(n.NTS)})
	fields = append(fields, canonicalFields(n.trailing(), &n.Extensions)...)
	return wire.RequestLine(protocol.MethodNotify), fields
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (n *NotifyMessage) MarshalBinary() ([]byte, error) { return Serialize(n) }

func notifyFromFrame(f *wire.Frame) (*NotifyMessage, error) {
	var (
		n   NotifyMessage
		nts string
	)
	known := append(n.known(), canonical{protocol.HeaderNTS, &nts})
	known = append(known, n.trailing()...)
	n.Extensions = splitFields(f.Fields, known)
	n.NTS = NotifySubtype(nts)

	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// NewUSN returns a fresh unique service name "uuid:<random>" or, when
// suffix is not empty, "uuid:<random>::<suffix>" as used for device and
// service types (UDA 1.1 §1.1.4).
func NewUSN(suffix string) string {
	usn := "uuid:" + uuid.NewString()
	if suffix != "" {
		usn += "::" + suffix
	}
	return usn
}
