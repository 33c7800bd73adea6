// Package ams implements AMS (Automation Message Specification) protocol handling.
package ams

import (
	"fmt"
	"strconv"
	"strings"
)

// NetID represents a 6-byte AMS NetID address (e.g., 192.168.1.100.1.1).
// Each byte is stored separately and has no direct relation to IP addresses.
type NetID [6]byte

// ParseNetID parses a dot-separated NetID string like "192.168.1.100.1.1".
func ParseNetID(s string) (NetID, error) {
	var n NetID
	parts := strings.Split(s, ".")
	if len(parts) != 6 {
		return n, fmt.Errorf("ams: NetID requires 6 dot-separated octets, got %d", len(parts))
	}
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return n, fmt.Errorf("ams: invalid NetID octet %q: %w", part, err)
		}
		n[i] = byte(v)
	}
	return n, nil
}

// String returns the dot-separated string representation of the NetID.
func (n NetID) String() string {
	return fmt.Sprintf("%d.%d.%d.%d.%d.%d", n[0], n[1], n[2], n[3], n[4], n[5])
}

// IsZero reports whether the NetID is all zeroes.
func (n NetID) IsZero() bool {
	return n == NetID{}
}

// Port represents a 2-byte AMS port identifier.
type Port uint16

// Addr identifies one logical ADS participant: a NetID plus an AMS port.
// Two Addr values are equal iff both fields match, so Addr is usable as a
// map key and with ==.
type Addr struct {
	NetID NetID
	Port  Port
}

// NewAddr returns the Addr for the given NetID and port.
func NewAddr(netID NetID, port Port) Addr {
	return Addr{NetID: netID, Port: port}
}

func (a Addr) String() string {
	return fmt.Sprintf("%s:%d", a.NetID, a.Port)
}
