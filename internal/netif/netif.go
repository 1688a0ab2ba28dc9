// Package netif enumerates the local addresses SSDP sockets can be bound to
// and maps an address back to the interface that owns it.
//
// Loopback addresses are skipped, as are globally routable IPv6 addresses:
// SSDP is scoped to the local link, so IPv6 discovery uses link-local and
// unique-local addresses only. Interfaces that are down or cannot multicast
// are skipped as well.
package netif

import (
	"fmt"
	"net"
	"net/netip"
)

// Family selects the address families returned by Addresses.
type Family int

const (
	// FamilyAny returns IPv4 and IPv6 addresses.
	FamilyAny Family = iota
	// FamilyIPv4 returns IPv4 addresses only.
	FamilyIPv4
	// FamilyIPv6 returns IPv6 addresses only.
	FamilyIPv6
)

// Address is a bindable local address and its interface.
type Address struct {
	Addr      netip.Addr
	Interface net.Interface
}

// Enumerator lists interfaces and their addresses. The zero value uses the
// operating system's tables.
type Enumerator struct {
	Interfaces func() ([]net.Interface, error)
	Addrs      func(*net.Interface) ([]net.Addr, error)
}

var defaultEnumerator Enumerator

// Addresses returns every usable local address of the given family.
func Addresses(family Family) ([]Address, error) {
	return defaultEnumerator.Addresses(family)
}

// InterfaceFor returns the interface that owns addr.
func InterfaceFor(addr netip.Addr) (*net.Interface, error) {
	return defaultEnumerator.InterfaceFor(addr)
}

func (e Enumerator) interfaces() ([]net.Interface, error) {
	if e.Interfaces != nil {
		return e.Interfaces()
	}
	return net.Interfaces()
}

func (e Enumerator) addrs(ifi *net.Interface) ([]net.Addr, error) {
	if e.Addrs != nil {
		return e.Addrs(ifi)
	}
	return ifi.Addrs()
}

// Addresses returns every usable local address of the given family, in
// interface order.
func (e Enumerator) Addresses(family Family) ([]Address, error) {
	ifaces, err := e.interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var out []Address
	for i := range ifaces {
		ifi := &ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := e.addrs(ifi)
		if err != nil {
			// Skip interfaces whose addresses cannot be read
			continue
		}

		for _, a := range addrs {
			addr, ok := fromNetAddr(a, ifi)
			if !ok || !Usable(addr) {
				continue
			}
			if family == FamilyIPv4 && !addr.Is4() || family == FamilyIPv6 && !addr.Is6() {
				continue
			}
			out = append(out, Address{Addr: addr, Interface: *ifi})
		}
	}
	return out, nil
}

// InterfaceFor returns the interface that owns addr. Zones are ignored when
// comparing.
func (e Enumerator) InterfaceFor(addr netip.Addr) (*net.Interface, error) {
	want := addr.Unmap().WithZone("")

	ifaces, err := e.interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := e.addrs(&ifaces[i])
		if err != nil {
			continue
		}
		for _, a := range addrs {
			got, ok := fromNetAddr(a, &ifaces[i])
			if ok && got.WithZone("") == want {
				ifi := ifaces[i]
				return &ifi, nil
			}
		}
	}
	return nil, fmt.Errorf("no interface owns address %s", addr)
}

// Usable reports whether SSDP sockets should be bound to addr: not
// loopback, not unspecified, not multicast, and for IPv6 not globally
// routable.
func Usable(addr netip.Addr) bool {
	if !addr.IsValid() || addr.IsLoopback() || addr.IsUnspecified() || addr.IsMulticast() {
		return false
	}
	if addr.Is6() {
		return addr.IsLinkLocalUnicast() || addr.IsPrivate()
	}
	return true
}

// fromNetAddr converts an interface address, attaching the interface name
// as zone to IPv6 link-local addresses so they can be bound.
func fromNetAddr(a net.Addr, ifi *net.Interface) (netip.Addr, bool) {
	var ip net.IP
	switch v := a.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	default:
		return netip.Addr{}, false
	}

	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	addr = addr.Unmap()
	if addr.Is6() && addr.IsLinkLocalUnicast() {
		addr = addr.WithZone(ifi.Name)
	}
	return addr, true
}
