package dto

import (
	"time"

	"github.com/noah-isme/dorm-gate-api/internal/models"
)

// CreateLeaveRequest is the resident-submitted payload for a new leave.
type CreateLeaveRequest struct {
	Category       string    `json:"category" validate:"required,category"`
	StartAt        time.Time `json:"start_at" validate:"required"`
	EndAt          time.Time `json:"end_at" validate:"required"`
	Reason         string    `json:"reason" validate:"required"`
	Destination    string    `json:"destination" validate:"required"`
	EmergencyName  string    `json:"emergency_name" validate:"required"`
	EmergencyPhone string    `json:"emergency_phone" validate:"required"`
}

// DecisionRequest is an approver's verdict at the request's current
// stage. CapturedImage feeds the face gate at the parent stage and is
// ignored elsewhere.
type DecisionRequest struct {
	Approve       bool   `json:"approve"`
	Notes         string `json:"notes"`
	CapturedImage string `json:"captured_image,omitempty"`
}

// LeaveQuery captures listing filters as bound from the query string.
type LeaveQuery struct {
	Status   string `form:"status"`
	Category string `form:"category"`
	From     string `form:"from"`
	To       string `form:"to"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// LeaveDetail is the read model: the persisted row plus the derived
// effective status and approval trail.
type LeaveDetail struct {
	models.LeaveRequest
	EffectiveStatus models.LeaveStatus     `json:"effective_status"`
	Approvals       []models.LeaveApproval `json:"approvals,omitempty"`
}
