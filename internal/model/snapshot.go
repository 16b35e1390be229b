package model

import (
	"fmt"
	"strings"
	"time"
)

// pathSeparator joins relays in a displayed circuit path.
const pathSeparator = " → "

// Relay is a resolved Tor relay.
type Relay struct {
	Fingerprint string `json:"fingerprint"`
	Nickname    string `json:"nickname"`
	Country     string `json:"country"`
}

// String formats the relay as "nickname [CC]".
func (r Relay) String() string {
	return fmt.Sprintf("%s [%s]", r.Nickname, r.Country)
}

// CircuitView is a circuit with its path resolved to relays.
type CircuitView struct {
	ID      string  `json:"id"`
	Status  string  `json:"status"`
	Purpose string  `json:"purpose"`
	Relays  []Relay `json:"relays"`
}

// PathString formats the path as "guard [CC] → middle [CC] → exit [CC]".
func (c CircuitView) PathString() string {
	parts := make([]string, len(c.Relays))
	for i, r := range c.Relays {
		parts[i] = r.String()
	}
	return strings.Join(parts, pathSeparator)
}

// Exit returns the last relay of the path.
func (c CircuitView) Exit() (Relay, bool) {
	if len(c.Relays) == 0 {
		return Relay{}, false
	}
	return c.Relays[len(c.Relays)-1], true
}

// Snapshot is the observed state at one point in time: the usable
// circuits and what the Internet sees of our traffic.
type Snapshot struct {
	// TakenAt is when the snapshot was started.
	TakenAt time.Time `json:"taken_at"`

	// Circuits are the usable (BUILT, GENERAL) circuits.
	Circuits []CircuitView `json:"circuits"`

	// Egress is the address seen through Tor.
	Egress EgressInfo `json:"egress"`

	// Direct is the address seen without Tor, nil when not checked.
	Direct *EgressInfo `json:"direct,omitempty"`
}

// HasCircuits reports whether any usable circuit was found.
func (s *Snapshot) HasCircuits() bool {
	return len(s.Circuits) > 0
}

// Leaking reports whether traffic that should go through Tor reached the
// Internet from the direct address.
func (s *Snapshot) Leaking() bool {
	if s.Egress.Tor == TorStatusNotTor {
		return true
	}
	return s.Direct != nil && s.Direct.Known() && s.Egress.Known() && s.Direct.Address == s.Egress.Address
}
