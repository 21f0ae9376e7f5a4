package service

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/dorm-gate-api/internal/dto"
	"github.com/noah-isme/dorm-gate-api/internal/models"
	"github.com/noah-isme/dorm-gate-api/pkg/errors"
)

type inboxStore interface {
	ListByRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID int64) (int, error)
	MarkRead(ctx context.Context, id, recipientID int64) error
}

// NotificationService serves each user's inbox and device registration.
// Writes into the inbox happen only through the Notifier; this service
// owns the read side.
type NotificationService struct {
	repo     inboxStore
	devices  DeviceRegistry
	validate *validator.Validate
}

// NewNotificationService wires the inbox read side.
func NewNotificationService(repo inboxStore, devices DeviceRegistry) *NotificationService {
	return &NotificationService{repo: repo, devices: devices, validate: validator.New()}
}

// List returns the actor's notifications, newest first, plus the
// current unread count.
func (s *NotificationService) List(ctx context.Context, actor *models.JWTClaims, unreadOnly bool, page, pageSize int) ([]models.Notification, int, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	filter := models.NotificationFilter{
		RecipientID: actor.UserID,
		UnreadOnly:  unreadOnly,
		Limit:       pageSize,
		Offset:      (maxInt(page, 1) - 1) * pageSize,
	}
	items, err := s.repo.ListByRecipient(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := s.repo.CountUnread(ctx, actor.UserID)
	if err != nil {
		return nil, 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return items, unread, nil
}

// MarkRead flags one of the actor's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id int64, actor *models.JWTClaims) error {
	err := s.repo.MarkRead(ctx, id, actor.UserID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.Clone(errors.ErrNotFound, "Notification not found")
	}
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// RegisterDevice binds a push token to the actor's account.
func (s *NotificationService) RegisterDevice(ctx context.Context, actor *models.JWTClaims, req dto.RegisterDeviceRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return errors.Wrap(err, errors.ErrValidation.Code, errors.ErrValidation.Status, "Invalid device payload")
	}
	if err := s.devices.Register(ctx, actor.UserID, req.DeviceToken); err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

// DeregisterDevice removes a push token from the actor's account.
func (s *NotificationService) DeregisterDevice(ctx context.Context, actor *models.JWTClaims, token string) error {
	if token == "" {
		return errors.Clone(errors.ErrValidation, "A device token is required")
	}
	if err := s.devices.Deregister(ctx, actor.UserID, token); err != nil {
		return fmt.Errorf("deregister device: %w", err)
	}
	return nil
}
