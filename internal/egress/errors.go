package egress

import "errors"

var (
	// ErrUnexpectedStatus is returned when a service answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrMalformedResponse is returned when a service answer cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrInvalidAddress is returned when the IP echo service returns something
	// that is not an IP address.
	ErrInvalidAddress = errors.New("invalid IP address")

	// ErrNotTor is returned by Verify when the check service says the request
	// did not come through Tor.
	ErrNotTor = errors.New("connection is not using Tor")

	// ErrTorStatusUnknown is returned by Verify when the check service could
	// not give a verdict.
	ErrTorStatusUnknown = errors.New("tor status could not be determined")
)
