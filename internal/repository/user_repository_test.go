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

func newUserRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func userRows(users ...*models.User) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "full_name", "role", "room", "phone", "guardian_id",
		"face_image_url", "active", "last_login", "created_at", "updated_at",
	})
	for _, u := range users {
		rows.AddRow(u.ID, u.Email, u.PasswordHash, u.FullName, u.Role, u.Room, u.Phone, u.GuardianID,
			u.FaceImageURL, u.Active, u.LastLogin, u.CreatedAt, u.UpdatedAt)
	}
	return rows
}

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	guardian := int64(20)
	user := &models.User{ID: 10, Email: "resident@example.com", FullName: "Resident One", Role: models.RoleStudent, GuardianID: &guardian, Active: true}

	mock.ExpectQuery("SELECT id, email, password_hash").
		WithArgs(user.Email).
		WillReturnRows(userRows(user))

	found, err := repo.FindByEmail(context.Background(), user.Email)
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)
	require.NotNil(t, found.GuardianID)
	require.Equal(t, guardian, *found.GuardianID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectQuery("SELECT id, email, password_hash").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 99)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryListActiveByRoles(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	admin := &models.User{ID: 1, Email: "admin@example.com", Role: models.RoleAdmin, Active: true}
	dean := &models.User{ID: 2, Email: "dean@example.com", Role: models.RoleHomeDean, Active: true}

	mock.ExpectQuery(regexp.QuoteMeta("active = TRUE AND role IN")).
		WithArgs(models.RoleAdmin, models.RoleHomeDean).
		WillReturnRows(userRows(admin, dean))

	users, err := repo.ListActiveByRoles(context.Background(), models.RoleAdmin, models.RoleHomeDean)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryListActiveByRolesEmpty(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	users, err := repo.ListActiveByRoles(context.Background())
	require.NoError(t, err)
	require.Empty(t, users)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRefreshTokenLifecycle(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	token := &models.RefreshToken{
		ID:        "rt-1",
		UserID:    10,
		Token:     "opaque",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.CreateRefreshToken(context.Background(), token))

	rows := sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent"}).
		AddRow(token.ID, token.UserID, token.Token, token.ExpiresAt, token.CreatedAt, false, nil, "", "")
	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token =")).
		WithArgs(token.Token).
		WillReturnRows(rows)

	stored, err := repo.FindRefreshToken(context.Background(), token.Token)
	require.NoError(t, err)
	require.Equal(t, token.ID, stored.ID)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1 WHERE id =")).
		WithArgs(sqlmock.AnyArg(), token.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RevokeRefreshToken(context.Background(), token.ID, time.Now()))

	mock.ExpectExec(regexp.QuoteMeta("WHERE user_id = $2 AND revoked = FALSE")).
		WithArgs(sqlmock.AnyArg(), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, repo.RevokeUserRefreshTokens(context.Background(), 10))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryUpdatePassword(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET password_hash =")).
		WithArgs("newhash", sqlmock.AnyArg(), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdatePassword(context.Background(), 10, "newhash", time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}
