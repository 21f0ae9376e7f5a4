package models

import "time"

// CheckDirection is the physical direction of a gate movement.
type CheckDirection string

const (
	DirectionExit  CheckDirection = "exit"
	DirectionEntry CheckDirection = "entry"
)

// Valid returns true when the direction is a supported value.
func (d CheckDirection) Valid() bool {
	return d == DirectionExit || d == DirectionEntry
}

// CheckMethod distinguishes QR scans from manual guard entries.
type CheckMethod string

const (
	MethodScan   CheckMethod = "scan"
	MethodManual CheckMethod = "manual"
)

// CheckLogEntry is the immutable audit record of a physical gate event.
// LeaveID is nil for routine movements unrelated to a leave request.
// Rows are only ever inserted, never updated or deleted.
type CheckLogEntry struct {
	ID         int64          `db:"id" json:"id"`
	ResidentID int64          `db:"resident_id" json:"resident_id"`
	LeaveID    *int64         `db:"leave_id" json:"leave_id,omitempty"`
	Direction  CheckDirection `db:"direction" json:"direction"`
	Method     CheckMethod    `db:"method" json:"method"`
	RecordedBy int64          `db:"recorded_by" json:"recorded_by"`
	Notes      *string        `db:"notes" json:"notes,omitempty"`
	RecordedAt time.Time      `db:"recorded_at" json:"recorded_at"`

	ResidentName string `db:"resident_name" json:"resident_name,omitempty"`
}

// CheckLogFilter constrains gate-log listings.
type CheckLogFilter struct {
	ResidentID int64
	LeaveID    int64
	Direction  CheckDirection
	Method     CheckMethod
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
