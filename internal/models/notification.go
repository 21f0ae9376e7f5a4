package models

import "time"

// NotificationCategory mirrors the lifecycle transition that produced
// the notification.
type NotificationCategory string

const (
	NotifyRequestCreated   NotificationCategory = "request_created"
	NotifyAwaitingParent   NotificationCategory = "awaiting_parent"
	NotifyParentApproval   NotificationCategory = "parent_approval_required"
	NotifyDeclined         NotificationCategory = "declined"
	NotifyQRReady          NotificationCategory = "qr_ready"
	NotifyExitRecorded     NotificationCategory = "exit_recorded"
	NotifyReturnRecorded   NotificationCategory = "return_recorded"
	NotifyRequestCancelled NotificationCategory = "request_cancelled"
)

// Notification is a durably persisted message for one recipient.
// Creation is a side effect of lifecycle transitions; delivery to a
// connected device is best-effort and never blocks the transition.
type Notification struct {
	ID          int64                `db:"id" json:"id"`
	RecipientID int64                `db:"recipient_id" json:"recipient_id"`
	Category    NotificationCategory `db:"category" json:"category"`
	Title       string               `db:"title" json:"title"`
	Body        string               `db:"body" json:"body"`
	LeaveID     *int64               `db:"leave_id" json:"leave_id,omitempty"`
	Read        bool                 `db:"read" json:"read"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
}

// NotificationFilter constrains inbox listings.
type NotificationFilter struct {
	RecipientID int64
	UnreadOnly  bool
	Limit       int
	Offset      int
}
