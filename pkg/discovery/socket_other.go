//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

// ABOUTME: Fallback for platforms without tuned socket options
// ABOUTME: Relies on the runtime defaults for UDP sockets
package discovery

import "syscall"

func controlBroadcast(network, address string, c syscall.RawConn) error { return nil }

func controlReuse(network, address string, c syscall.RawConn) error { return nil }
