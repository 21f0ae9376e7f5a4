package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dorm-gate-api/internal/models"
)

// NotificationRepository persists notifications. The insert is the
// durability half of the dispatcher's contract; push delivery may fail
// freely afterwards.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts one notification row.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (recipient_id, category, title, body, leave_id, read, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		n.RecipientID, n.Category, n.Title, n.Body, n.LeaveID, n.Read, n.CreatedAt,
	).Scan(&n.ID); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByRecipient returns the recipient's inbox, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	query := `SELECT id, recipient_id, category, title, body, leave_id, read, created_at
	FROM notifications WHERE recipient_id = $1`
	args := []interface{}{filter.RecipientID}
	if filter.UnreadOnly {
		query += " AND read = FALSE"
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

	var notes []models.Notification
	if err := r.db.SelectContext(ctx, &notes, query, args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notes, nil
}

// CountUnread returns the recipient's unread badge count.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, recipientID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags one notification read, scoped to its recipient.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID int64) error {
	const query = `UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2 AND read = FALSE`
	result, err := r.db.ExecContext(ctx, query, id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
