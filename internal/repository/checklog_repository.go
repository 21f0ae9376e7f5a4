package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dorm-gate-api/internal/models"
)

// CheckLogRepository appends and lists immutable gate audit records.
// There are deliberately no update or delete methods.
type CheckLogRepository struct {
	db *sqlx.DB
}

// NewCheckLogRepository constructs the repository.
func NewCheckLogRepository(db *sqlx.DB) *CheckLogRepository {
	return &CheckLogRepository{db: db}
}

// Create appends one gate event and fills in the generated id.
func (r *CheckLogRepository) Create(ctx context.Context, entry *models.CheckLogEntry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	const query = `INSERT INTO check_logs (resident_id, leave_id, direction, method, recorded_by, notes, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		entry.ResidentID, entry.LeaveID, entry.Direction, entry.Method,
		entry.RecordedBy, entry.Notes, entry.RecordedAt,
	).Scan(&entry.ID); err != nil {
		return fmt.Errorf("create check log: %w", err)
	}
	return nil
}

// List returns gate events matching the filter, newest first.
func (r *CheckLogRepository) List(ctx context.Context, filter models.CheckLogFilter) ([]models.CheckLogEntry, int, error) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)

	if filter.ResidentID > 0 {
		args = append(args, filter.ResidentID)
		conditions = append(conditions, fmt.Sprintf("c.resident_id = $%d", len(args)))
	}
	if filter.LeaveID > 0 {
		args = append(args, filter.LeaveID)
		conditions = append(conditions, fmt.Sprintf("c.leave_id = $%d", len(args)))
	}
	if filter.Direction != "" {
		args = append(args, filter.Direction)
		conditions = append(conditions, fmt.Sprintf("c.direction = $%d", len(args)))
	}
	if filter.Method != "" {
		args = append(args, filter.Method)
		conditions = append(conditions, fmt.Sprintf("c.method = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("c.recorded_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("c.recorded_at < $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM check_logs c"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count check logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT c.id, c.resident_id, c.leave_id, c.direction, c.method, c.recorded_by, c.notes, c.recorded_at,
       u.full_name AS resident_name
	FROM check_logs c JOIN users u ON u.id = c.resident_id` + where +
		fmt.Sprintf(" ORDER BY c.recorded_at DESC LIMIT %d OFFSET %d", limit, offset)

	var entries []models.CheckLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list check logs: %w", err)
	}
	return entries, total, nil
}
