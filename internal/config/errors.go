package config

import "errors"

// Configuration validation errors returned by Config.Validate. They are
// sentinels so callers and tests can use errors.Is.
var (
	// ErrInvalidHost is returned when a Tor host is empty.
	ErrInvalidHost = errors.New("invalid host: must not be empty")

	// ErrInvalidPort is returned when a port is outside 1-65535.
	ErrInvalidPort = errors.New("invalid port: must be between 1 and 65535")

	// ErrSamePorts is returned when the SOCKS and control addresses are the
	// same. A daemon cannot serve both protocols on one port.
	ErrSamePorts = errors.New("invalid ports: SOCKS and control port must differ")

	// ErrInvalidInterval is returned when the rotation interval is not positive.
	ErrInvalidInterval = errors.New("invalid interval: must be positive")

	// ErrInvalidSettleDelay is returned when the settle delay is negative.
	// Use 0 to disable it.
	ErrInvalidSettleDelay = errors.New("invalid settle delay: must be non-negative")

	// ErrInvalidPolling is returned for a negative poll interval or a poll
	// budget below one.
	ErrInvalidPolling = errors.New("invalid circuit polling: interval must be non-negative and budget positive")

	// ErrInvalidTimeout is returned when the HTTP timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidVerify is returned for fewer than one verification attempt
	// or a negative retry delay.
	ErrInvalidVerify = errors.New("invalid verification: attempts must be positive and retry delay non-negative")

	// ErrMissingEndpoint is returned when an egress check URL is empty.
	ErrMissingEndpoint = errors.New("missing egress check endpoint")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidHistoryLimit is returned when the history limit is not positive.
	ErrInvalidHistoryLimit = errors.New("invalid history limit: must be positive")
)
