// Package main provides the entry point for the torrotator CLI.
//
// torrotator connects to the Tor ControlPort, authenticates, and
// periodically asks Tor for a new identity while checking that traffic
// really leaves through Tor.
//
// Usage:
//
//	torrotator run
//	torrotator status --markdown
//	torrotator history -n 50
//
// See --help for all available options.
package main

// main is the entry point for torrotator.
func main() {
	Execute()
}
