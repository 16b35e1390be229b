package control

import (
	"errors"
	"fmt"
	"time"
)

// Control client errors.
// Callers branch on these with errors.Is; the typed errors below carry the
// details (status code, failed signal, poll budget) and match their sentinel.
var (
	// ErrIO is matched by every transport failure: the socket was closed,
	// reset, or a deadline expired while reading or writing.
	ErrIO = errors.New("control connection I/O failure")

	// ErrProtocol is matched by every reply the daemon terminated with a
	// non-2xx status code.
	ErrProtocol = errors.New("control command rejected")

	// ErrUnexpectedReply is returned when a command that must be acknowledged
	// with "OK" receives a successful reply without it.
	ErrUnexpectedReply = errors.New("unexpected control reply")

	// ErrNotAuthenticated is returned when a privileged command is attempted
	// before Authenticate succeeded.
	ErrNotAuthenticated = errors.New("control connection is not authenticated")

	// ErrAuth is matched by every authentication failure below.
	ErrAuth = errors.New("control authentication failed")

	// ErrMalformedChallenge is returned when the AUTHCHALLENGE reply lacks
	// SERVERHASH or SERVERNONCE, or either is not valid hex.
	ErrMalformedChallenge = fmt.Errorf("%w: malformed AUTHCHALLENGE reply", ErrAuth)

	// ErrServerHashMismatch is returned when the daemon's SERVERHASH does not
	// match the value computed from the cookie. The daemon could not prove it
	// knows the cookie, so the client refuses to authenticate to it.
	ErrServerHashMismatch = fmt.Errorf("%w: SAFECOOKIE server hash mismatch", ErrAuth)

	// ErrAllMethodsFailed is returned when no applicable method was accepted.
	ErrAllMethodsFailed = fmt.Errorf("%w: all authentication methods failed", ErrAuth)

	// ErrCookieUnavailable is returned when the cookie file cannot be read.
	ErrCookieUnavailable = fmt.Errorf("%w: cookie file unavailable", ErrAuth)

	// ErrTimeout is matched when a wait exhausted its poll budget.
	ErrTimeout = errors.New("timed out waiting for a usable circuit")
)

// IOError reports a transport-level failure on the control connection.
// It is never retried inside this package.
type IOError struct {
	// Op is the operation that failed ("dial", "write", "read").
	Op string
	// Err is the underlying network error.
	Err error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("control %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying network error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrIO.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// ProtocolError reports a reply the daemon terminated with an error status
// such as 515 (bad authentication), 550 (unspecified) or 551 (internal).
type ProtocolError struct {
	// Code is the three-digit status code of the terminal line.
	Code int
	// Message is the text following the status code.
	Message string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("tor control error %d: %s", e.Code, e.Message)
}

// Is reports whether target is ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// TimeoutError reports that WaitUntilUsable polled its whole budget without
// seeing a usable circuit.
type TimeoutError struct {
	// Polls is the number of circuit-status queries that were made.
	Polls int
	// Interval is the delay that separated the polls.
	Interval time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v after %d polls (%s apart)", ErrTimeout, e.Polls, e.Interval)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// RotationError reports which signal of an identity rotation failed.
type RotationError struct {
	// Signal is the signal name, e.g. "NEWNYM".
	Signal string
	// Err is the failure returned for the signal.
	Err error
}

// Error implements the error interface.
func (e *RotationError) Error() string {
	return fmt.Sprintf("identity rotation: SIGNAL %s: %v", e.Signal, e.Err)
}

// Unwrap returns the signal's failure.
func (e *RotationError) Unwrap() error {
	return e.Err
}

// errConnClosed is wrapped in an IOError when a closed Client is used.
var errConnClosed = errors.New("connection is closed")
