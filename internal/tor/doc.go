// Package tor provides the SOCKS side of the local Tor daemon.
//
// A Client verifies that the configured SOCKS port speaks SOCKS5 and builds
// HTTP clients whose connections are routed through it. Egress checks use
// those clients to observe the address the rest of the Internet sees after
// each identity rotation. A Daemon launches a private Tor process through
// tornago for users who do not run one themselves.
//
// Each HTTP client owns its own transport. After a rotation the caller must
// build a new one, since pooled connections keep using the circuits they were
// opened on.
package tor
