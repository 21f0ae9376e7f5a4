package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-gate-api/internal/models"
	"github.com/noah-isme/dorm-gate-api/pkg/config"
	"github.com/noah-isme/dorm-gate-api/pkg/jobs"
	"github.com/noah-isme/dorm-gate-api/pkg/push"
)

type notificationStoreStub struct {
	records []models.Notification
	fail    bool
}

func (s *notificationStoreStub) Create(ctx context.Context, n *models.Notification) error {
	if s.fail {
		return sql.ErrConnDone
	}
	n.ID = int64(len(s.records) + 1)
	s.records = append(s.records, *n)
	return nil
}

type staffDirectoryStub struct {
	staff []models.User
	err   error
}

func (s *staffDirectoryStub) ListActiveByRoles(ctx context.Context, roles ...models.UserRole) ([]models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	var matched []models.User
	for _, user := range s.staff {
		for _, role := range roles {
			if user.Role == role {
				matched = append(matched, user)
				break
			}
		}
	}
	return matched, nil
}

type fakeRegistry struct {
	tokens map[int64][]string
	err    error
}

func (r *fakeRegistry) Register(ctx context.Context, userID int64, token string) error {
	if r.tokens == nil {
		r.tokens = map[int64][]string{}
	}
	r.tokens[userID] = append(r.tokens[userID], token)
	return nil
}

func (r *fakeRegistry) Deregister(ctx context.Context, userID int64, token string) error {
	kept := r.tokens[userID][:0]
	for _, t := range r.tokens[userID] {
		if t != token {
			kept = append(kept, t)
		}
	}
	r.tokens[userID] = kept
	return nil
}

func (r *fakeRegistry) Tokens(ctx context.Context, userID int64) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.tokens[userID], nil
}

type fakePusher struct {
	sent     []push.Message
	failFor  string
	failWith error
}

func (p *fakePusher) Push(ctx context.Context, msg push.Message) error {
	if p.failFor != "" && msg.DeviceToken == p.failFor {
		return p.failWith
	}
	p.sent = append(p.sent, msg)
	return nil
}

type pushMetricsStub struct {
	success int
	failure int
}

func (m *pushMetricsStub) RecordPushDelivery(success bool) {
	if success {
		m.success++
	} else {
		m.failure++
	}
}

func TestNotifierPersistsWithoutPusher(t *testing.T) {
	store := &notificationStoreStub{}
	n := NewNotifier(store, &staffDirectoryStub{}, &fakeRegistry{}, nil, nil, config.PushConfig{}, zap.NewNop())

	leaveID := int64(7)
	n.Notify(context.Background(), 10, models.NotifyQRReady, "QR ready", "Your pass is ready", &leaveID)

	require.Len(t, store.records, 1)
	require.Equal(t, int64(10), store.records[0].RecipientID)
	require.Equal(t, models.NotifyQRReady, store.records[0].Category)
	require.Equal(t, &leaveID, store.records[0].LeaveID)
}

func TestNotifierSwallowsStoreFailure(t *testing.T) {
	store := &notificationStoreStub{fail: true}
	n := NewNotifier(store, &staffDirectoryStub{}, &fakeRegistry{}, &fakePusher{}, nil, config.PushConfig{}, zap.NewNop())

	n.Notify(context.Background(), 10, models.NotifyDeclined, "Request declined", "Your request was declined", nil)
	require.Empty(t, store.records)
}

func TestNotifierRolesFanOut(t *testing.T) {
	store := &notificationStoreStub{}
	staff := &staffDirectoryStub{staff: []models.User{
		{ID: 1, Role: models.RoleAdmin},
		{ID: 2, Role: models.RoleHomeDean},
		{ID: 3, Role: models.RoleGuard},
	}}
	n := NewNotifier(store, staff, &fakeRegistry{}, nil, nil, config.PushConfig{}, zap.NewNop())

	n.NotifyRoles(context.Background(), models.NotifyRequestCreated, "New request", "A resident filed a request", nil,
		models.RoleAdmin, models.RoleHomeDean)

	require.Len(t, store.records, 2)
	recipients := []int64{store.records[0].RecipientID, store.records[1].RecipientID}
	require.ElementsMatch(t, []int64{1, 2}, recipients)
}

func TestNotifierRolesDirectoryFailure(t *testing.T) {
	store := &notificationStoreStub{}
	staff := &staffDirectoryStub{err: sql.ErrConnDone}
	n := NewNotifier(store, staff, &fakeRegistry{}, nil, nil, config.PushConfig{}, zap.NewNop())

	n.NotifyRoles(context.Background(), models.NotifyRequestCreated, "New request", "A resident filed a request", nil,
		models.RoleAdmin)
	require.Empty(t, store.records)
}

func TestNotifierDeliverFansOutToDevices(t *testing.T) {
	registry := &fakeRegistry{tokens: map[int64][]string{10: {"tok-a", "tok-b"}}}
	pusher := &fakePusher{}
	metrics := &pushMetricsStub{}
	n := NewNotifier(&notificationStoreStub{}, &staffDirectoryStub{}, registry, pusher, metrics, config.PushConfig{}, zap.NewNop())

	err := n.deliver(context.Background(), jobs.Job{
		ID:      "job-1",
		Payload: pushJob{RecipientID: 10, Title: "QR ready", Body: "Your pass is ready", Data: map[string]string{"leave_id": "7"}},
	})
	require.NoError(t, err)
	require.Len(t, pusher.sent, 2)
	require.Equal(t, "tok-a", pusher.sent[0].DeviceToken)
	require.Equal(t, "7", pusher.sent[0].Data["leave_id"])
	require.Equal(t, 2, metrics.success)
}

func TestNotifierDeliverTokenFailureDoesNotFailJob(t *testing.T) {
	registry := &fakeRegistry{tokens: map[int64][]string{10: {"tok-a", "tok-dead"}}}
	pusher := &fakePusher{failFor: "tok-dead", failWith: context.DeadlineExceeded}
	metrics := &pushMetricsStub{}
	n := NewNotifier(&notificationStoreStub{}, &staffDirectoryStub{}, registry, pusher, metrics, config.PushConfig{}, zap.NewNop())

	err := n.deliver(context.Background(), jobs.Job{
		ID:      "job-2",
		Payload: pushJob{RecipientID: 10, Title: "QR ready", Body: "Your pass is ready"},
	})
	require.NoError(t, err)
	require.Len(t, pusher.sent, 1)
	require.Equal(t, 1, metrics.success)
	require.Equal(t, 1, metrics.failure)
}

func TestNotifierDeliverRegistryErrorRetries(t *testing.T) {
	registry := &fakeRegistry{err: sql.ErrConnDone}
	n := NewNotifier(&notificationStoreStub{}, &staffDirectoryStub{}, registry, &fakePusher{}, nil, config.PushConfig{}, zap.NewNop())

	err := n.deliver(context.Background(), jobs.Job{
		ID:      "job-3",
		Payload: pushJob{RecipientID: 10, Title: "QR ready", Body: "Your pass is ready"},
	})
	require.Error(t, err)
}
