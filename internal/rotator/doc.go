// Package rotator drives periodic Tor identity rotation.
//
// A Runner first executes a start-up pipeline: it checks the SOCKS proxy,
// opens an authenticated control session, records the direct egress
// address, verifies that HTTP traffic leaves through Tor and waits for a
// usable circuit. Any failure there is fatal.
//
// It then repeats a cycle until its context is cancelled: snapshot the
// usable circuits and the current egress, rotate the identity, wait for a
// new circuit, replace the HTTP client so new connections use it, and
// record the result. Failures inside a cycle are logged and recorded; only
// the loss of the control connection ends the loop.
package rotator
