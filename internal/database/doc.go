// Package database provides SQLite-based storage for rotation history.
//
// Every completed rotation cycle is written as one row of the rotations
// table. The full record is kept as JSON next to a few summary columns used
// for ordering and statistics.
//
// SQLite is used through modernc.org/sqlite, which needs no CGO, and WAL
// mode lets "torrotator history" read while a rotator is running.
package database
