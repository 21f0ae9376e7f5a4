package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleHomeDean UserRole = "HOME_DEAN"
	RoleVPSAS    UserRole = "VPSAS"
	RoleGuard    UserRole = "GUARD"
	RoleParent   UserRole = "PARENT"
	RoleStudent  UserRole = "STUDENT"
)

// User represents an application user stored in the users table.
// Students carry an optional linked guardian and a stored reference
// photo used by the face gate at the parent approval stage.
type User struct {
	ID           int64      `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Room         *string    `db:"room" json:"room,omitempty"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	GuardianID   *int64     `db:"guardian_id" json:"guardian_id,omitempty"`
	FaceImageURL *string    `db:"face_image_url" json:"-"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NewPagination normalises page inputs into response metadata.
func NewPagination(page, pageSize, total int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}
