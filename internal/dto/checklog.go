package dto

// ScanRequest is a gate QR scan submitted by guard staff.
type ScanRequest struct {
	Token     string `json:"token" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=exit entry"`
}

// ManualCheckRequest records resident movement with no leave request
// attached, entered by a guard for attendance auditing.
type ManualCheckRequest struct {
	ResidentID int64  `json:"resident_id" validate:"required"`
	Direction  string `json:"direction" validate:"required,oneof=exit entry"`
	Notes      string `json:"notes"`
}

// ScanConfirmation is returned to the guard on a successful scan.
type ScanConfirmation struct {
	LeaveID      int64   `json:"leave_id"`
	ResidentID   int64   `json:"resident_id"`
	ResidentName string  `json:"resident_name"`
	Room         *string `json:"room,omitempty"`
	Destination  string  `json:"destination"`
	Category     string  `json:"category"`
	Direction    string  `json:"direction"`
	Status       string  `json:"status"`
}

// CheckLogQuery captures gate-log listing filters.
type CheckLogQuery struct {
	ResidentID int64  `form:"resident_id"`
	Direction  string `form:"direction"`
	Method     string `form:"method"`
	From       string `form:"from"`
	To         string `form:"to"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// RegisterDeviceRequest binds a push device token to the current user.
type RegisterDeviceRequest struct {
	DeviceToken string `json:"device_token" validate:"required"`
	Platform    string `json:"platform" validate:"omitempty,oneof=android ios web"`
}
