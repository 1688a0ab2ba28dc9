//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly && !windows

package transport

import "net/netip"

func setSocketOptions(uintptr) error { return nil }

func notifyBindAddr(_ netip.Addr, group netip.AddrPort) netip.AddrPort {
	if group.Addr().Is4() {
		return netip.AddrPortFrom(netip.IPv4Unspecified(), group.Port())
	}
	return netip.AddrPortFrom(netip.IPv6Unspecified(), group.Port())
}
