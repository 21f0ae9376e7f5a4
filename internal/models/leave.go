package models

import "time"

// LeaveStatus captures the lifecycle states of a leave request.
// "expired" is never persisted; it is derived at read time by
// EffectiveStatus.
type LeaveStatus string

const (
	LeavePendingDean   LeaveStatus = "pending_dean"
	LeavePendingParent LeaveStatus = "pending_parent"
	LeavePendingVPSAS  LeaveStatus = "pending_vpsas"
	LeaveApproved      LeaveStatus = "approved"
	LeaveActive        LeaveStatus = "active"
	LeaveCompleted     LeaveStatus = "completed"
	LeaveDeclined      LeaveStatus = "declined"
	LeaveCancelled     LeaveStatus = "cancelled"
	LeaveExpired       LeaveStatus = "expired"
)

// Terminal reports whether no further transition is legal.
func (s LeaveStatus) Terminal() bool {
	switch s {
	case LeaveCompleted, LeaveDeclined, LeaveCancelled, LeaveExpired:
		return true
	default:
		return false
	}
}

// Pending reports whether the request still awaits an approver.
func (s LeaveStatus) Pending() bool {
	switch s {
	case LeavePendingDean, LeavePendingParent, LeavePendingVPSAS:
		return true
	default:
		return false
	}
}

// LeaveCategory enumerates the kinds of leave a resident may request.
type LeaveCategory string

const (
	LeaveErrand    LeaveCategory = "errand"
	LeaveOvernight LeaveCategory = "overnight"
	LeaveWeekend   LeaveCategory = "weekend"
	LeaveEmergency LeaveCategory = "emergency"
	LeaveOther     LeaveCategory = "other"
)

// Valid returns true when the category is a supported value.
func (c LeaveCategory) Valid() bool {
	switch c {
	case LeaveErrand, LeaveOvernight, LeaveWeekend, LeaveEmergency, LeaveOther:
		return true
	default:
		return false
	}
}

// LeaveRequest is the central entity: one resident's request to leave
// campus within a validity window, moving through sequential approvals
// to a scannable QR credential. Status only ever changes through
// conditional updates keyed on the expected prior status.
type LeaveRequest struct {
	ID             int64         `db:"id" json:"id"`
	ResidentID     int64         `db:"resident_id" json:"resident_id"`
	Category       LeaveCategory `db:"category" json:"category"`
	Status         LeaveStatus   `db:"status" json:"status"`
	StartAt        time.Time     `db:"start_at" json:"start_at"`
	EndAt          time.Time     `db:"end_at" json:"end_at"`
	Reason         string        `db:"reason" json:"reason"`
	Destination    string        `db:"destination" json:"destination"`
	EmergencyName  string        `db:"emergency_name" json:"emergency_name"`
	EmergencyPhone string        `db:"emergency_phone" json:"emergency_phone"`
	QRToken        *string       `db:"qr_token" json:"qr_token,omitempty"`
	ExitAt         *time.Time    `db:"exit_at" json:"exit_at,omitempty"`
	ExitBy         *int64        `db:"exit_by" json:"exit_by,omitempty"`
	ReturnAt       *time.Time    `db:"return_at" json:"return_at,omitempty"`
	ReturnBy       *int64        `db:"return_by" json:"return_by,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`

	ResidentName string  `db:"resident_name" json:"resident_name,omitempty"`
	ResidentRoom *string `db:"resident_room" json:"resident_room,omitempty"`
}

// EffectiveStatus derives the caller-visible status at the given
// instant. A request left pending or approved past the end of its
// window reads as expired without any background sweep; this is the
// only place that logic lives.
func (r *LeaveRequest) EffectiveStatus(now time.Time) LeaveStatus {
	if r.Status.Terminal() || r.Status == LeaveActive || r.Status == LeaveCompleted {
		return r.Status
	}
	if !now.Before(r.EndAt) {
		return LeaveExpired
	}
	return r.Status
}

// ApprovalDecision records the outcome of one approval stage.
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionDeclined ApprovalDecision = "declined"
)

// LeaveApproval is one append-only entry in a request's approval trail.
type LeaveApproval struct {
	ID        int64            `db:"id" json:"id"`
	LeaveID   int64            `db:"leave_id" json:"leave_id"`
	Stage     LeaveStatus      `db:"stage" json:"stage"`
	ActorID   int64            `db:"actor_id" json:"actor_id"`
	Decision  ApprovalDecision `db:"decision" json:"decision"`
	Notes     *string          `db:"notes" json:"notes,omitempty"`
	DecidedAt time.Time        `db:"decided_at" json:"decided_at"`
}

// LeaveFilter constrains listing queries.
type LeaveFilter struct {
	ResidentID int64
	Status     []LeaveStatus
	Category   LeaveCategory
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
