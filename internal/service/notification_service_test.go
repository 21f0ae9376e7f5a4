package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dorm-gate-api/internal/dto"
	"github.com/noah-isme/dorm-gate-api/internal/models"
	"github.com/noah-isme/dorm-gate-api/pkg/errors"
)

type inboxStoreStub struct {
	items      []models.Notification
	lastFilter models.NotificationFilter
	readIDs    []int64
}

func (s *inboxStoreStub) ListByRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	s.lastFilter = filter
	var matched []models.Notification
	for _, item := range s.items {
		if item.RecipientID != filter.RecipientID {
			continue
		}
		if filter.UnreadOnly && item.Read {
			continue
		}
		matched = append(matched, item)
	}
	return matched, nil
}

func (s *inboxStoreStub) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	count := 0
	for _, item := range s.items {
		if item.RecipientID == recipientID && !item.Read {
			count++
		}
	}
	return count, nil
}

func (s *inboxStoreStub) MarkRead(ctx context.Context, id, recipientID int64) error {
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].RecipientID == recipientID {
			s.items[i].Read = true
			s.readIDs = append(s.readIDs, id)
			return nil
		}
	}
	return sql.ErrNoRows
}

func newInboxFixture(t *testing.T) (*NotificationService, *inboxStoreStub, *fakeRegistry) {
	t.Helper()
	repo := &inboxStoreStub{items: []models.Notification{
		{ID: 1, RecipientID: 10, Category: models.NotifyQRReady, Read: false},
		{ID: 2, RecipientID: 10, Category: models.NotifyDeclined, Read: true},
		{ID: 3, RecipientID: 20, Category: models.NotifyExitRecorded, Read: false},
	}}
	registry := &fakeRegistry{}
	return NewNotificationService(repo, registry), repo, registry
}

func TestNotificationServiceList(t *testing.T) {
	svc, repo, _ := newInboxFixture(t)

	items, unread, err := svc.List(context.Background(), &models.JWTClaims{UserID: 10}, false, 1, 20)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 1, unread)
	require.Equal(t, int64(10), repo.lastFilter.RecipientID)
	require.Equal(t, 20, repo.lastFilter.Limit)
	require.Equal(t, 0, repo.lastFilter.Offset)
}

func TestNotificationServiceListUnreadOnly(t *testing.T) {
	svc, _, _ := newInboxFixture(t)

	items, unread, err := svc.List(context.Background(), &models.JWTClaims{UserID: 10}, true, 1, 20)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, models.NotifyQRReady, items[0].Category)
	require.Equal(t, 1, unread)
}

func TestNotificationServiceMarkRead(t *testing.T) {
	svc, repo, _ := newInboxFixture(t)

	require.NoError(t, svc.MarkRead(context.Background(), 1, &models.JWTClaims{UserID: 10}))
	require.Equal(t, []int64{1}, repo.readIDs)
}

func TestNotificationServiceMarkReadForeignNotification(t *testing.T) {
	svc, _, _ := newInboxFixture(t)

	err := svc.MarkRead(context.Background(), 3, &models.JWTClaims{UserID: 10})
	require.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestNotificationServiceDeviceLifecycle(t *testing.T) {
	svc, _, registry := newInboxFixture(t)
	actor := &models.JWTClaims{UserID: 10}

	require.NoError(t, svc.RegisterDevice(context.Background(), actor, dto.RegisterDeviceRequest{DeviceToken: "tok-a", Platform: "android"}))
	require.Equal(t, []string{"tok-a"}, registry.tokens[10])

	err := svc.RegisterDevice(context.Background(), actor, dto.RegisterDeviceRequest{})
	require.True(t, errors.HasCode(err, errors.ErrValidation))

	require.NoError(t, svc.DeregisterDevice(context.Background(), actor, "tok-a"))
	require.Empty(t, registry.tokens[10])

	err = svc.DeregisterDevice(context.Background(), actor, "")
	require.True(t, errors.HasCode(err, errors.ErrValidation))
}
