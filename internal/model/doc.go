// Package model defines the data structures shared by the rotator, the
// reports and the history database.
//
// This package contains the following main types:
//   - Relay and CircuitView: a circuit with its path resolved to relays
//   - EgressInfo: the address, Tor verdict and location seen by the Internet
//   - Snapshot: circuits and egress observed at one point in time
//   - RotationRecord: one rotation cycle as stored in history
//
// Keeping these types apart from the packages that produce them avoids
// import cycles between rotator, report and database.
package model
