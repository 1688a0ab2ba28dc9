//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package transport

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// setSocketOptions lets several processes bind the SSDP port at once.
func setSocketOptions(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return fmt.Errorf("set SO_REUSEPORT: %w", err)
	}
	return nil
}

// notifyBindAddr binds listeners to the group address so the socket only
// sees multicast traffic for the group.
func notifyBindAddr(_ netip.Addr, group netip.AddrPort) netip.AddrPort {
	return group
}
