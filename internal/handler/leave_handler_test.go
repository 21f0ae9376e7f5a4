package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-gate-api/internal/dto"
	"github.com/noah-isme/dorm-gate-api/internal/middleware"
	"github.com/noah-isme/dorm-gate-api/internal/models"
	"github.com/noah-isme/dorm-gate-api/internal/service"
	"github.com/noah-isme/dorm-gate-api/pkg/config"
	"github.com/noah-isme/dorm-gate-api/pkg/response"
)

type leaveStoreMock struct {
	leaves    map[int64]*models.LeaveRequest
	approvals []models.LeaveApproval
	nextID    int64
}

func newLeaveStoreMock() *leaveStoreMock {
	return &leaveStoreMock{leaves: map[int64]*models.LeaveRequest{}, nextID: 1}
}

func (m *leaveStoreMock) Create(ctx context.Context, leave *models.LeaveRequest) error {
	leave.ID = m.nextID
	m.nextID++
	copy := *leave
	m.leaves[leave.ID] = &copy
	return nil
}

func (m *leaveStoreMock) GetByID(ctx context.Context, id int64) (*models.LeaveRequest, error) {
	leave, ok := m.leaves[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *leave
	return &copy, nil
}

func (m *leaveStoreMock) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error) {
	var out []models.LeaveRequest
	for _, leave := range m.leaves {
		out = append(out, *leave)
	}
	return out, len(out), nil
}

func (m *leaveStoreMock) UpdateStatus(ctx context.Context, id int64, from, to models.LeaveStatus) error {
	leave, ok := m.leaves[id]
	if !ok || leave.Status != from {
		return sql.ErrNoRows
	}
	leave.Status = to
	return nil
}

func (m *leaveStoreMock) ApproveWithToken(ctx context.Context, id int64, from models.LeaveStatus, token string) error {
	leave, ok := m.leaves[id]
	if !ok || leave.Status != from || leave.QRToken != nil {
		return sql.ErrNoRows
	}
	leave.Status = models.LeaveApproved
	leave.QRToken = &token
	return nil
}

func (m *leaveStoreMock) AddApproval(ctx context.Context, approval *models.LeaveApproval) error {
	m.approvals = append(m.approvals, *approval)
	return nil
}

func (m *leaveStoreMock) ApprovalsByLeave(ctx context.Context, leaveID int64) ([]models.LeaveApproval, error) {
	var out []models.LeaveApproval
	for _, approval := range m.approvals {
		if approval.LeaveID == leaveID {
			out = append(out, approval)
		}
	}
	return out, nil
}

type roleNotifierMock struct {
	direct  int
	fanouts int
}

func (m *roleNotifierMock) Notify(ctx context.Context, recipientID int64, category models.NotificationCategory, title, body string, leaveID *int64) {
	m.direct++
}

func (m *roleNotifierMock) NotifyRoles(ctx context.Context, category models.NotificationCategory, title, body string, leaveID *int64, roles ...models.UserRole) {
	m.fanouts++
}

type issuerMock struct{}

func (issuerMock) Mint() string { return "token-fixed" }

func newLeaveHandler(t *testing.T) (*LeaveHandler, *leaveStoreMock) {
	t.Helper()
	guardian := int64(20)
	users := &residentDirectoryMock{users: map[int64]*models.User{
		10: {ID: 10, FullName: "Resident One", Role: models.RoleStudent, GuardianID: &guardian},
		20: {ID: 20, FullName: "Guardian One", Role: models.RoleParent},
	}}
	store := newLeaveStoreMock()
	gate := service.NewApprovalGate(config.FaceConfig{}, nil, zap.NewNop())
	svc := service.NewLeaveService(store, users, gate, issuerMock{}, &roleNotifierMock{}, nil, zap.NewNop())
	return NewLeaveHandler(svc), store
}

func actorContext(t *testing.T, claims *models.JWTClaims, method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, claims)
	return c, w
}

func seedLeaveRow(store *leaveStoreMock, status models.LeaveStatus) *models.LeaveRequest {
	now := time.Now().UTC()
	leave := &models.LeaveRequest{
		ResidentID:     10,
		Category:       models.LeaveWeekend,
		Status:         status,
		StartAt:        now.Add(-time.Hour),
		EndAt:          now.Add(24 * time.Hour),
		Reason:         "Family visit",
		Destination:    "Hometown",
		EmergencyName:  "Jordan Parent",
		EmergencyPhone: "555-0100",
	}
	_ = store.Create(context.Background(), leave)
	return leave
}

func TestLeaveHandlerCreate(t *testing.T) {
	handler, store := newLeaveHandler(t)
	now := time.Now().UTC()

	c, w := actorContext(t, &models.JWTClaims{UserID: 10, Role: models.RoleStudent},
		http.MethodPost, "/leaves", dto.CreateLeaveRequest{
			Category:       "weekend",
			StartAt:        now.Add(time.Hour),
			EndAt:          now.Add(24 * time.Hour),
			Reason:         "Family visit",
			Destination:    "Hometown",
			EmergencyName:  "Jordan Parent",
			EmergencyPhone: "555-0100",
		})
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.leaves, 1)
	var envelope struct {
		Data dto.LeaveDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, models.LeavePendingDean, envelope.Data.Status)
}

func TestLeaveHandlerCreateInvalidPayload(t *testing.T) {
	handler, _ := newLeaveHandler(t)

	c, w := actorContext(t, &models.JWTClaims{UserID: 10, Role: models.RoleStudent},
		http.MethodPost, "/leaves", dto.CreateLeaveRequest{Category: "weekend"})
	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaveHandlerGet(t *testing.T) {
	handler, store := newLeaveHandler(t)
	leave := seedLeaveRow(store, models.LeavePendingDean)

	c, w := actorContext(t, &models.JWTClaims{UserID: 10, Role: models.RoleStudent},
		http.MethodGet, "/leaves/1", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	handler.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data dto.LeaveDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, leave.ID, envelope.Data.ID)
}

func TestLeaveHandlerGetForbiddenForStranger(t *testing.T) {
	handler, store := newLeaveHandler(t)
	seedLeaveRow(store, models.LeavePendingDean)

	c, w := actorContext(t, &models.JWTClaims{UserID: 99, Role: models.RoleStudent},
		http.MethodGet, "/leaves/1", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	handler.Get(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLeaveHandlerGetBadID(t *testing.T) {
	handler, _ := newLeaveHandler(t)

	c, w := actorContext(t, &models.JWTClaims{UserID: 10, Role: models.RoleStudent},
		http.MethodGet, "/leaves/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	handler.Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaveHandlerDecide(t *testing.T) {
	handler, store := newLeaveHandler(t)
	leave := seedLeaveRow(store, models.LeavePendingDean)

	c, w := actorContext(t, &models.JWTClaims{UserID: 2, Role: models.RoleHomeDean},
		http.MethodPost, "/leaves/1/decision", dto.DecisionRequest{Approve: true})
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	handler.Decide(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.LeavePendingParent, store.leaves[leave.ID].Status)
}

func TestLeaveHandlerDecideConflict(t *testing.T) {
	handler, store := newLeaveHandler(t)
	seedLeaveRow(store, models.LeaveDeclined)

	c, w := actorContext(t, &models.JWTClaims{UserID: 2, Role: models.RoleHomeDean},
		http.MethodPost, "/leaves/1/decision", dto.DecisionRequest{Approve: true})
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	handler.Decide(c)

	require.Equal(t, http.StatusConflict, w.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Contains(t, envelope.Error.Message, "declined")
}

func TestLeaveHandlerCancel(t *testing.T) {
	handler, store := newLeaveHandler(t)
	leave := seedLeaveRow(store, models.LeavePendingDean)

	c, w := actorContext(t, &models.JWTClaims{UserID: 10, Role: models.RoleStudent},
		http.MethodPost, "/leaves/1/cancel", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	handler.Cancel(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.LeaveCancelled, store.leaves[leave.ID].Status)
}

func TestLeaveHandlerQRImageNotIssued(t *testing.T) {
	handler, store := newLeaveHandler(t)
	seedLeaveRow(store, models.LeavePendingDean)

	c, w := actorContext(t, &models.JWTClaims{UserID: 10, Role: models.RoleStudent},
		http.MethodGet, "/leaves/1/qr", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	handler.QRImage(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLeaveHandlerQRImage(t *testing.T) {
	handler, store := newLeaveHandler(t)
	leave := seedLeaveRow(store, models.LeaveApproved)
	token := "qr-token-1"
	store.leaves[leave.ID].QRToken = &token

	c, w := actorContext(t, &models.JWTClaims{UserID: 10, Role: models.RoleStudent},
		http.MethodGet, "/leaves/1/qr", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	handler.QRImage(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestLeaveHandlerList(t *testing.T) {
	handler, store := newLeaveHandler(t)
	seedLeaveRow(store, models.LeavePendingDean)

	c, w := actorContext(t, &models.JWTClaims{UserID: 1, Role: models.RoleAdmin},
		http.MethodGet, "/leaves?page=1&page_size=20", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data       []dto.LeaveDetail  `json:"data"`
		Pagination *models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	require.NotNil(t, envelope.Pagination)
}
