package model

import (
	"time"
)

// RotationRecord is one completed rotation cycle as stored in history.
type RotationRecord struct {
	// ID is assigned by the history database; zero before insertion.
	ID int64 `json:"id"`

	// StartedAt and FinishedAt bound the cycle, excluding the pause that
	// follows it.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Before is the state observed before the identity was rotated.
	Before Snapshot `json:"before"`

	// After is the egress observed once a new circuit was usable. It is the
	// zero value when the cycle failed before that point.
	After EgressInfo `json:"after"`

	// Error describes why the cycle failed, empty on success.
	Error string `json:"error,omitempty"`
}

// Succeeded reports whether the rotation completed.
func (r *RotationRecord) Succeeded() bool {
	return r.Error == ""
}

// Duration is how long the cycle took.
func (r *RotationRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AddressChanged reports whether the egress address differs before and
// after the rotation. Unknown addresses never count as changed.
func (r *RotationRecord) AddressChanged() bool {
	before, after := r.Before.Egress.Address, r.After.Address
	return before != "" && after != "" && before != after
}

// HistoryStats summarizes stored rotations.
type HistoryStats struct {
	// Total is the number of stored rotations.
	Total int `json:"total"`

	// Failed is the number of rotations that recorded an error.
	Failed int `json:"failed"`

	// DistinctExits is the number of distinct egress addresses seen after
	// a rotation.
	DistinctExits int `json:"distinct_exits"`

	// LastStartedAt is when the newest rotation started, zero if none.
	LastStartedAt time.Time `json:"last_started_at"`
}

// History is a page of stored rotations with statistics over all of them.
type History struct {
	Stats     HistoryStats      `json:"stats"`
	Rotations []*RotationRecord `json:"rotations"`
}
