package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnknownLocation is shown for any location part that could not be found.
const UnknownLocation = "Unknown"

// TorStatus is the verdict of the Tor check service about an address.
//
// It has three states because the check service can be unreachable. An
// address that could not be checked is not the same as one that is known
// not to be a Tor exit.
type TorStatus int

const (
	// TorStatusUnknown means the check could not be performed.
	TorStatusUnknown TorStatus = iota

	// TorStatusConfirmed means the address is a Tor exit relay.
	TorStatusConfirmed

	// TorStatusNotTor means the check service saw a non-Tor address. After a
	// rotation this indicates traffic is leaking around the proxy.
	TorStatusNotTor
)

// String returns a human-readable representation of the status.
func (s TorStatus) String() string {
	switch s {
	case TorStatusConfirmed:
		return "CONFIRMED"
	case TorStatusNotTor:
		return "NOT_TOR"
	default:
		return "UNKNOWN"
	}
}

// ParseTorStatus is the inverse of String. Unknown text maps to
// TorStatusUnknown.
func ParseTorStatus(s string) TorStatus {
	switch strings.ToUpper(s) {
	case "CONFIRMED":
		return TorStatusConfirmed
	case "NOT_TOR":
		return TorStatusNotTor
	default:
		return TorStatusUnknown
	}
}

// MarshalJSON encodes the status as its string form.
func (s TorStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form written by MarshalJSON.
func (s *TorStatus) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("tor status must be a string: %w", err)
	}
	*s = ParseTorStatus(text)
	return nil
}

// Location is the geolocation of an egress address. Empty fields mean the
// value is not known.
type Location struct {
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// IsZero reports whether nothing is known about the location.
func (l Location) IsZero() bool {
	return l == Location{}
}

// String formats the location as "City, Country". The country name is
// preferred over the code and each missing part reads "Unknown".
func (l Location) String() string {
	city := l.City
	if city == "" {
		city = UnknownLocation
	}
	country := l.Country
	if country == "" {
		country = l.CountryCode
	}
	if country == "" {
		country = UnknownLocation
	}
	return city + ", " + country
}

// EgressInfo describes the address the Internet sees for our traffic.
type EgressInfo struct {
	// Address is the public IP address, empty when it could not be fetched.
	Address string `json:"address,omitempty"`

	// Tor is the verdict of the Tor check service.
	Tor TorStatus `json:"tor"`

	// Location is the geolocation of Address.
	Location Location `json:"location"`

	// Errors lists the lookups that failed. A partially failed lookup still
	// carries the values that succeeded.
	Errors []string `json:"errors,omitempty"`
}

// Known reports whether the address could be fetched.
func (e EgressInfo) Known() bool {
	return e.Address != ""
}

// DisplayAddress returns Address, or "Unknown" when it is empty.
func (e EgressInfo) DisplayAddress() string {
	if e.Address == "" {
		return UnknownLocation
	}
	return e.Address
}
