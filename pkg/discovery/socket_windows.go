//go:build windows

// ABOUTME: Windows socket options for the discovery sockets
// ABOUTME: Winsock has no SO_REUSEPORT; SO_REUSEADDR alone shares the port
package discovery

import (
	"syscall"

	"golang.org/x/sys/windows"
)

func controlBroadcast(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func controlReuse(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
