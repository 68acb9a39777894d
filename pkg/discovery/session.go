// ABOUTME: Session descriptor and the pipe-delimited beacon wire format
// ABOUTME: Encodes hosted sessions into beacons and parses received beacons back
package discovery

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// BeaconTag is the literal first field of every beacon
	BeaconTag = "LOB"

	// DefaultPort is the UDP port beacons are broadcast and received on
	DefaultPort = 47777

	// PingUnknown marks a descriptor whose round-trip time was never measured
	PingUnknown = -1

	fieldSeparator = "|"
	nameSubstitute = "/"
	beaconFields   = 6
)

// SessionDescriptor describes one discoverable hosted game
type SessionDescriptor struct {
	Name        string
	Address     string // source IP, filled in by the receiver
	Port        uint16
	HasPassword bool
	PlayerCount int
	MaxPlayers  int
	PingMs      int
	LastSeen    time.Time // receipt time, filled in by the receiver
}

// Key identifies a session in the registry as address:port
func (d SessionDescriptor) Key() string {
	return net.JoinHostPort(d.Address, strconv.Itoa(int(d.Port)))
}

// SanitizeName replaces the field separator so a name cannot shift beacon fields
func SanitizeName(name string) string {
	return strings.ReplaceAll(name, fieldSeparator, nameSubstitute)
}

// EncodeBeacon serializes the transmitted fields of d.
// Address, LastSeen and PingMs are never part of the beacon.
func EncodeBeacon(d SessionDescriptor) []byte {
	var b bytes.Buffer
	b.WriteString(BeaconTag)
	b.WriteString(fieldSeparator)
	b.WriteString(SanitizeName(d.Name))
	b.WriteString(fieldSeparator)
	b.WriteString(strconv.FormatUint(uint64(d.Port), 10))
	b.WriteString(fieldSeparator)
	if d.HasPassword {
		b.WriteString("1")
	} else {
		b.WriteString("0")
	}
	b.WriteString(fieldSeparator)
	b.WriteString(strconv.Itoa(d.PlayerCount))
	b.WriteString(fieldSeparator)
	b.WriteString(strconv.Itoa(d.MaxPlayers))
	return b.Bytes()
}

// ParseBeacon parses one datagram payload.
//
// A beacon is rejected outright when it has fewer than six fields, the tag is
// not LOB, or the port is not a decimal uint16. Player counts are lenient and
// fall back to 0, so a bad count never discards an otherwise valid beacon.
func ParseBeacon(payload []byte) (SessionDescriptor, bool) {
	fields := strings.Split(string(payload), fieldSeparator)
	if len(fields) < beaconFields || fields[0] != BeaconTag {
		return SessionDescriptor{}, false
	}

	port, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 16)
	if err != nil {
		return SessionDescriptor{}, false
	}

	return SessionDescriptor{
		Name:        fields[1],
		Port:        uint16(port),
		HasPassword: fields[3] == "1",
		PlayerCount: parseCount(fields[4]),
		MaxPlayers:  parseCount(fields[5]),
		PingMs:      PingUnknown,
	}, true
}

func parseCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
