package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SessionAddress identifies one device of one user. Equality is
// structural, so the type is usable as a map key.
type SessionAddress struct {
	User   string `json:"user"`
	Device uint8  `json:"device"`
}

// NewSessionAddress builds an address from its parts.
func NewSessionAddress(user string, device uint8) SessionAddress {
	return SessionAddress{User: user, Device: device}
}

// String renders the address as "user:device", the form used for
// persistence map keys.
func (a SessionAddress) String() string {
	return a.User + ":" + strconv.Itoa(int(a.Device))
}

// ParseSessionAddress inverts String.
func ParseSessionAddress(s string) (SessionAddress, error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return SessionAddress{}, fmt.Errorf("malformed session address %q", s)
	}
	device, err := strconv.ParseUint(s[idx+1:], 10, 8)
	if err != nil {
		return SessionAddress{}, fmt.Errorf("malformed session address %q: %w", s, err)
	}
	return SessionAddress{User: s[:idx], Device: uint8(device)}, nil
}

// SenderKeyName identifies a group ratchet: one sender inside one group.
type SenderKeyName struct {
	Group  string         `json:"group"`
	Sender SessionAddress `json:"sender"`
}

// NewSenderKeyName builds a sender key name from its parts.
func NewSenderKeyName(group string, sender SessionAddress) SenderKeyName {
	return SenderKeyName{Group: group, Sender: sender}
}

// String renders the name as "group::user:device".
func (n SenderKeyName) String() string {
	return n.Group + "::" + n.Sender.String()
}
