// ABOUTME: UDP socket setup for broadcasting and sharing the discovery port
// ABOUTME: Derives directed broadcast addresses from the local interfaces
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// maxDatagramSize bounds a single beacon read
const maxDatagramSize = 2048

// listenBroadcast opens an ephemeral UDP4 socket allowed to send to broadcast addresses
func listenBroadcast() (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: controlBroadcast}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to open broadcast socket: %w", err)
	}
	return pc.(*net.UDPConn), nil
}

// listenShared binds the discovery port so several listeners on one host can coexist
func listenShared(host string, port int) (*net.UDPConn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	lc := net.ListenConfig{Control: controlReuse}
	pc, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind discovery port %s: %w", addr, err)
	}
	return pc.(*net.UDPConn), nil
}

// directedBroadcasts returns the broadcast address of every up, non-loopback IPv4 network
func directedBroadcasts() ([]netip.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []netip.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagBroadcast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if bcast, ok := broadcastOf(ipnet); ok {
				out = append(out, bcast)
			}
		}
	}
	return out, nil
}

// broadcastOf computes the directed broadcast address of an IPv4 network
func broadcastOf(ipnet *net.IPNet) (netip.Addr, bool) {
	ip4 := ipnet.IP.To4()
	if ip4 == nil || ip4.IsLoopback() {
		return netip.Addr{}, false
	}
	mask := ipnet.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return netip.Addr{}, false
	}

	var b [4]byte
	for i := range b {
		b[i] = ip4[i] | ^mask[i]
	}
	return netip.AddrFrom4(b), true
}
