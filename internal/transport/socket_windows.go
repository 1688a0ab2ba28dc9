//go:build windows

package transport

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/windows"
)

// setSocketOptions sets SO_REUSEADDR. Windows has no SO_REUSEPORT.
func setSocketOptions(fd uintptr) error {
	if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	return nil
}

// notifyBindAddr binds listeners to the interface address; Windows does not
// allow binding a multicast address.
func notifyBindAddr(local netip.Addr, group netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(local, group.Port())
}
