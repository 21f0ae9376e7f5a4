package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dorm-gate-api/internal/models"
)

const leaveColumns = `l.id, l.resident_id, l.category, l.status, l.start_at, l.end_at, l.reason,
       l.destination, l.emergency_name, l.emergency_phone, l.qr_token,
       l.exit_at, l.exit_by, l.return_at, l.return_by, l.created_at, l.updated_at,
       u.full_name AS resident_name, u.room AS resident_room`

// LeaveRepository persists leave requests and their approval trail.
// Every status mutation is a conditional update keyed on the expected
// prior status; zero affected rows surfaces as sql.ErrNoRows so the
// service layer can map it to a conflict.
type LeaveRepository struct {
	db *sqlx.DB
}

// NewLeaveRepository constructs the repository.
func NewLeaveRepository(db *sqlx.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

// Create inserts a new leave request row and fills in the generated id.
func (r *LeaveRepository) Create(ctx context.Context, leave *models.LeaveRequest) error {
	if leave.Status == "" {
		leave.Status = models.LeavePendingDean
	}
	now := time.Now().UTC()
	leave.CreatedAt = now
	leave.UpdatedAt = now
	const query = `INSERT INTO leave_requests
	(resident_id, category, status, start_at, end_at, reason, destination, emergency_name, emergency_phone, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		leave.ResidentID, leave.Category, leave.Status, leave.StartAt, leave.EndAt,
		leave.Reason, leave.Destination, leave.EmergencyName, leave.EmergencyPhone,
		leave.CreatedAt, leave.UpdatedAt,
	).Scan(&leave.ID); err != nil {
		return fmt.Errorf("create leave request: %w", err)
	}
	return nil
}

// GetByID fetches a leave request joined with resident metadata.
func (r *LeaveRepository) GetByID(ctx context.Context, id int64) (*models.LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + `
	FROM leave_requests l JOIN users u ON u.id = l.resident_id
	WHERE l.id = $1`
	var leave models.LeaveRequest
	if err := r.db.GetContext(ctx, &leave, query, id); err != nil {
		return nil, err
	}
	return &leave, nil
}

// GetByToken resolves a scanned QR token to its leave request.
func (r *LeaveRepository) GetByToken(ctx context.Context, token string) (*models.LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + `
	FROM leave_requests l JOIN users u ON u.id = l.resident_id
	WHERE l.qr_token = $1`
	var leave models.LeaveRequest
	if err := r.db.GetContext(ctx, &leave, query, token); err != nil {
		return nil, err
	}
	return &leave, nil
}

// LatestApprovedByResident returns the resident's newest request in an
// approved or active state. Used only by the legacy badge fallback.
func (r *LeaveRepository) LatestApprovedByResident(ctx context.Context, residentID int64) (*models.LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + `
	FROM leave_requests l JOIN users u ON u.id = l.resident_id
	WHERE l.resident_id = $1 AND l.status IN ('approved', 'active')
	ORDER BY l.created_at DESC
	LIMIT 1`
	var leave models.LeaveRequest
	if err := r.db.GetContext(ctx, &leave, query, residentID); err != nil {
		return nil, err
	}
	return &leave, nil
}

// List returns leave requests matching the filter, newest first, along
// with the unpaginated total.
func (r *LeaveRepository) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 8)

	if filter.ResidentID > 0 {
		args = append(args, filter.ResidentID)
		conditions = append(conditions, fmt.Sprintf("l.resident_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("l.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("l.category = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("l.start_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("l.start_at < $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM leave_requests l" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count leave requests: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + leaveColumns + `
	FROM leave_requests l JOIN users u ON u.id = l.resident_id` + where +
		fmt.Sprintf(" ORDER BY l.created_at DESC LIMIT %d OFFSET %d", limit, offset)

	var leaves []models.LeaveRequest
	if err := r.db.SelectContext(ctx, &leaves, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list leave requests: %w", err)
	}
	return leaves, total, nil
}

// UpdateStatus moves a request from one status to another iff the row
// still holds the expected prior status.
func (r *LeaveRepository) UpdateStatus(ctx context.Context, id int64, from, to models.LeaveStatus) error {
	const query = `UPDATE leave_requests SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("update leave status: %w", err)
	}
	return requireRowsAffected(result)
}

// ApproveWithToken atomically transitions to approved and stamps the QR
// token, guarded so a token can never be written twice.
func (r *LeaveRepository) ApproveWithToken(ctx context.Context, id int64, from models.LeaveStatus, token string) error {
	const query = `UPDATE leave_requests SET status = $1, qr_token = $2, updated_at = $3
	WHERE id = $4 AND status = $5 AND qr_token IS NULL`
	result, err := r.db.ExecContext(ctx, query, models.LeaveApproved, token, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("approve leave with token: %w", err)
	}
	return requireRowsAffected(result)
}

// RecordExit stamps the gate exit and activates the request in one
// conditional write.
func (r *LeaveRepository) RecordExit(ctx context.Context, id int64, guardID int64, at time.Time) error {
	const query = `UPDATE leave_requests SET status = $1, exit_at = $2, exit_by = $3, updated_at = $2
	WHERE id = $4 AND status = $5 AND exit_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, models.LeaveActive, at, guardID, id, models.LeaveApproved)
	if err != nil {
		return fmt.Errorf("record exit: %w", err)
	}
	return requireRowsAffected(result)
}

// RecordReturn stamps the gate return and completes the request.
func (r *LeaveRepository) RecordReturn(ctx context.Context, id int64, guardID int64, at time.Time) error {
	const query = `UPDATE leave_requests SET status = $1, return_at = $2, return_by = $3, updated_at = $2
	WHERE id = $4 AND status = $5 AND exit_at IS NOT NULL AND return_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, models.LeaveCompleted, at, guardID, id, models.LeaveActive)
	if err != nil {
		return fmt.Errorf("record return: %w", err)
	}
	return requireRowsAffected(result)
}

// AddApproval appends one entry to the approval trail.
func (r *LeaveRepository) AddApproval(ctx context.Context, approval *models.LeaveApproval) error {
	if approval.DecidedAt.IsZero() {
		approval.DecidedAt = time.Now().UTC()
	}
	const query = `INSERT INTO leave_approvals (leave_id, stage, actor_id, decision, notes, decided_at)
	VALUES (:leave_id, :stage, :actor_id, :decision, :notes, :decided_at)`
	if _, err := r.db.NamedExecContext(ctx, query, approval); err != nil {
		return fmt.Errorf("add approval: %w", err)
	}
	return nil
}

// ApprovalsByLeave returns the approval trail in decision order.
func (r *LeaveRepository) ApprovalsByLeave(ctx context.Context, leaveID int64) ([]models.LeaveApproval, error) {
	const query = `SELECT id, leave_id, stage, actor_id, decision, notes, decided_at
	FROM leave_approvals WHERE leave_id = $1 ORDER BY decided_at ASC`
	var approvals []models.LeaveApproval
	if err := r.db.SelectContext(ctx, &approvals, query, leaveID); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return approvals, nil
}

func requireRowsAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
