// Package egress finds out what the Internet sees of our traffic.
//
// A Fetcher asks three HTTP services, through whatever *http.Client it is
// given: an IP echo service for the public address, the Tor Project's check
// service for whether that address is a Tor exit, and a geolocation service
// for where it is. Lookup runs the last two concurrently and never fails as
// a whole; parts that could not be determined are left unknown.
//
// Verify is the stricter check used before and after rotation. It succeeds
// only when the check service confirms the request came through Tor.
package egress
