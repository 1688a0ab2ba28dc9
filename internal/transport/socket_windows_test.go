//go:build windows

package transport

import (
	"testing"

	"golang.org/x/sys/windows"
)

// SO_REUSEADDR only; Windows has no SO_REUSEPORT.
func TestSetSocketOptions_Windows(t *testing.T) {
	fd, err := windows.Socket(windows.AF_INET, windows.SOCK_DGRAM, windows.IPPROTO_UDP)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	defer func() { _ = windows.Closesocket(fd) }()

	if err := setSocketOptions(uintptr(fd)); err != nil {
		t.Fatalf("setSocketOptions() = %v", err)
	}
}
