package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-gate-api/internal/models"
	"github.com/noah-isme/dorm-gate-api/pkg/config"
	"github.com/noah-isme/dorm-gate-api/pkg/jobs"
	"github.com/noah-isme/dorm-gate-api/pkg/push"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

type staffDirectory interface {
	ListActiveByRoles(ctx context.Context, roles ...models.UserRole) ([]models.User, error)
}

// DeviceRegistry maps users to their registered push tokens. A user may
// hold several tokens at once (one per signed-in device).
type DeviceRegistry interface {
	Register(ctx context.Context, userID int64, token string) error
	Deregister(ctx context.Context, userID int64, token string) error
	Tokens(ctx context.Context, userID int64) ([]string, error)
}

const deviceKeyPrefix = "devices:"

// RedisDeviceRegistry stores device tokens in a Redis set per user.
type RedisDeviceRegistry struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisDeviceRegistry builds the registry. Token sets expire after
// ttl of inactivity so stale devices age out on their own.
func NewRedisDeviceRegistry(rdb *redis.Client, ttl time.Duration) *RedisDeviceRegistry {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisDeviceRegistry{rdb: rdb, ttl: ttl}
}

func deviceKey(userID int64) string {
	return deviceKeyPrefix + strconv.FormatInt(userID, 10)
}

// Register adds a token to the user's device set and refreshes its TTL.
func (r *RedisDeviceRegistry) Register(ctx context.Context, userID int64, token string) error {
	key := deviceKey(userID)
	if err := r.rdb.SAdd(ctx, key, token).Err(); err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	if err := r.rdb.Expire(ctx, key, r.ttl).Err(); err != nil {
		return fmt.Errorf("refresh device ttl: %w", err)
	}
	return nil
}

// Deregister removes a token from the user's device set.
func (r *RedisDeviceRegistry) Deregister(ctx context.Context, userID int64, token string) error {
	if err := r.rdb.SRem(ctx, deviceKey(userID), token).Err(); err != nil {
		return fmt.Errorf("deregister device: %w", err)
	}
	return nil
}

// Tokens returns every token registered for the user.
func (r *RedisDeviceRegistry) Tokens(ctx context.Context, userID int64) ([]string, error) {
	tokens, err := r.rdb.SMembers(ctx, deviceKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	return tokens, nil
}

// PushMetrics records delivery outcomes. nil-safe through the Notifier.
type PushMetrics interface {
	RecordPushDelivery(success bool)
}

type pushJob struct {
	RecipientID int64
	Title       string
	Body        string
	Data        map[string]string
}

// Notifier persists notifications for every lifecycle transition and
// fans delivery out to registered devices in the background. Persisting
// the row is the only part callers may rely on; device delivery is
// best-effort and failures never propagate to the transition.
type Notifier struct {
	store   notificationStore
	users   staffDirectory
	devices DeviceRegistry
	pusher  push.Pusher
	queue   *jobs.Queue
	metrics PushMetrics
	logger  *zap.Logger
}

// NewNotifier wires the dispatcher. pusher may be nil when push is
// disabled; notifications are still persisted.
func NewNotifier(store notificationStore, users staffDirectory, devices DeviceRegistry, pusher push.Pusher, metrics PushMetrics, cfg config.PushConfig, logger *zap.Logger) *Notifier {
	n := &Notifier{
		store:   store,
		users:   users,
		devices: devices,
		pusher:  pusher,
		metrics: metrics,
		logger:  logger,
	}
	n.queue = jobs.NewQueue("push", n.deliver, jobs.QueueConfig{
		Workers:        cfg.Workers,
		BufferSize:     cfg.BufferSize,
		MaxAttempts:    2,
		AttemptTimeout: cfg.Timeout,
		Logger:         logger,
	})
	return n
}

// Start launches the delivery workers.
func (n *Notifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (n *Notifier) Stop() {
	n.queue.Stop()
}

// Notify persists a notification for one recipient and schedules push
// delivery. Persistence failures are logged and swallowed so the
// triggering transition is never rolled back over a notification.
func (n *Notifier) Notify(ctx context.Context, recipientID int64, category models.NotificationCategory, title, body string, leaveID *int64) {
	record := &models.Notification{
		RecipientID: recipientID,
		Category:    category,
		Title:       title,
		Body:        body,
		LeaveID:     leaveID,
	}
	if err := n.store.Create(ctx, record); err != nil {
		n.logger.Error("persist notification failed",
			zap.Int64("recipient_id", recipientID),
			zap.String("category", string(category)),
			zap.Error(err))
		return
	}

	if n.pusher == nil {
		return
	}
	data := map[string]string{"category": string(category)}
	if leaveID != nil {
		data["leave_id"] = strconv.FormatInt(*leaveID, 10)
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(category),
		Payload: pushJob{RecipientID: recipientID, Title: title, Body: body, Data: data},
	}
	if err := n.queue.Enqueue(job); err != nil {
		n.logger.Warn("push enqueue failed",
			zap.Int64("recipient_id", recipientID),
			zap.Error(err))
	}
}

// NotifyRoles persists and dispatches the same notification to every
// active holder of the given roles.
func (n *Notifier) NotifyRoles(ctx context.Context, category models.NotificationCategory, title, body string, leaveID *int64, roles ...models.UserRole) {
	recipients, err := n.users.ListActiveByRoles(ctx, roles...)
	if err != nil {
		n.logger.Error("resolve notification recipients failed",
			zap.String("category", string(category)),
			zap.Error(err))
		return
	}
	for _, recipient := range recipients {
		n.Notify(ctx, recipient.ID, category, title, body, leaveID)
	}
}

// deliver pushes one persisted notification to every device the
// recipient has registered. Individual token failures are logged and do
// not fail the job; only a registry lookup error is retried.
func (n *Notifier) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(pushJob)
	if !ok {
		n.logger.Error("unexpected push payload type", zap.String("job_id", job.ID))
		return nil
	}
	tokens, err := n.devices.Tokens(ctx, payload.RecipientID)
	if err != nil {
		return err
	}
	for _, token := range tokens {
		err := n.pusher.Push(ctx, push.Message{
			DeviceToken: token,
			Title:       payload.Title,
			Body:        payload.Body,
			Data:        payload.Data,
		})
		if n.metrics != nil {
			n.metrics.RecordPushDelivery(err == nil)
		}
		if err != nil {
			n.logger.Warn("push delivery failed",
				zap.Int64("recipient_id", payload.RecipientID),
				zap.Error(err))
		}
	}
	return nil
}
