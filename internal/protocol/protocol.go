// Package protocol holds the SSDP wire constants shared by the codec and the
// transport layer.
//
// UPnP Device Architecture 1.1 §1: SSDP runs over HTTPU/HTTPMU on UDP port 1900,
// using the administratively scoped IPv4 group 239.255.255.250 and the IPv6
// group FF0X::C, where X is the scope.
package protocol

import (
	"net"
	"net/netip"
	"strconv"
	"time"
)

// Multicast group and port.
const (
	// MulticastAddrIPv4 is the SSDP IPv4 multicast group (UDA 1.1 §1.1.2).
	MulticastAddrIPv4 = "239.255.255.250"

	// MulticastAddrIPv6LinkLocal is the SSDP IPv6 link-local group.
	MulticastAddrIPv6LinkLocal = "ff02::c"

	// Port is the well-known SSDP port.
	Port = 1900

	// DefaultMulticastTTL keeps discovery traffic on the local network.
	DefaultMulticastTTL = 4

	// DefaultRecvBufferSize is the default SO_RCVBUF applied to every socket.
	DefaultRecvBufferSize = 64 * 1024

	// MaxDatagramSize bounds a single SSDP datagram. SSDP messages are plain
	// text headers and always fit in one UDP payload.
	MaxDatagramSize = 8192
)

// Start lines.
const (
	MethodSearch = "M-SEARCH"
	MethodNotify = "NOTIFY"

	// RequestTarget is the only request-URI SSDP uses.
	RequestTarget = "*"

	// Version is the HTTP version carried on every SSDP start line.
	Version = "HTTP/1.1"

	// StatusOK is the only status code a search response may carry.
	StatusOK = 200

	// ReasonOK is the reason phrase emitted with StatusOK.
	ReasonOK = "OK"
)

// Canonical header names, as emitted on the wire.
const (
	HeaderHost         = "HOST"
	HeaderMan          = "MAN"
	HeaderMX           = "MX"
	HeaderST           = "ST"
	HeaderUSN          = "USN"
	HeaderLocation     = "LOCATION"
	HeaderCacheControl = "CACHE-CONTROL"
	HeaderServer       = "SERVER"
	HeaderNT           = "NT"
	HeaderNTS          = "NTS"
)

// Well-known header values.
const (
	// ManDiscover is the mandatory MAN value of an M-SEARCH.
	ManDiscover = `"ssdp:discover"`

	NTSAlive  = "ssdp:alive"
	NTSByeBye = "ssdp:byebye"
	NTSUpdate = "ssdp:update"

	// TargetAll matches every device and service.
	TargetAll = "ssdp:all"

	// TargetRootDevice matches root devices only.
	TargetRootDevice = "upnp:rootdevice"
)

// MX bounds. UDA 1.1 caps MX at 5 but asks control points to tolerate more;
// values above MaxMX are rejected as a configuration error.
const (
	MinMX = 1
	MaxMX = 120
)

// DefaultUnicastTimeout is the collection window of a unicast search whose
// request carries no usable MX.
const DefaultUnicastTimeout = 2 * time.Second

// DefaultDeadlineMargin is added to MX before a search stops listening, to
// absorb scheduling jitter and responders that answer right at MX.
const DefaultDeadlineMargin = 500 * time.Millisecond

var (
	groupIPv4 = netip.MustParseAddr(MulticastAddrIPv4)
	groupIPv6 = netip.MustParseAddr(MulticastAddrIPv6LinkLocal)
)

// GroupFor returns the multicast group matching the address family of local.
func GroupFor(local netip.Addr) netip.Addr {
	if local.Unmap().Is4() {
		return groupIPv4
	}
	return groupIPv6
}

// HostHeader returns the HOST value used for messages multicast to the group
// of the given family.
func HostHeader(ipv6 bool) string {
	if ipv6 {
		return net.JoinHostPort(MulticastAddrIPv6LinkLocal, strconv.Itoa(Port))
	}
	return net.JoinHostPort(MulticastAddrIPv4, strconv.Itoa(Port))
}
