package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dorm-gate-api/internal/models"
)

func newNotificationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestNotificationRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	note := &models.Notification{
		RecipientID: 10,
		Category:    models.NotifyQRReady,
		Title:       "QR ready",
		Body:        "Your pass is ready",
	}
	require.NoError(t, repo.Create(context.Background(), note))
	require.Equal(t, int64(9), note.ID)
	require.False(t, note.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListUnreadOnly(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	rows := sqlmock.NewRows([]string{"id", "recipient_id", "category", "title", "body", "leave_id", "read", "created_at"}).
		AddRow(int64(1), int64(10), models.NotifyQRReady, "QR ready", "Your pass is ready", int64(7), false, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("read = FALSE")).
		WithArgs(int64(10)).
		WillReturnRows(rows)

	notes, err := repo.ListByRecipient(context.Background(), models.NotificationFilter{
		RecipientID: 10,
		UnreadOnly:  true,
		Limit:       20,
	})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, models.NotifyQRReady, notes[0].Category)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCountUnread(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountUnread(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read = TRUE")).
		WithArgs(int64(1), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkRead(context.Background(), 1, 10))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkReadMissing(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read = TRUE")).
		WithArgs(int64(99), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), 99, 10)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
