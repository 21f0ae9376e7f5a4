package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dorm-gate-api/internal/dto"
	"github.com/noah-isme/dorm-gate-api/internal/service"
	appErrors "github.com/noah-isme/dorm-gate-api/pkg/errors"
	"github.com/noah-isme/dorm-gate-api/pkg/response"
)

// NotificationHandler wires the inbox and device registration routes.
type NotificationHandler struct {
	service *service.NotificationService
}

// NewNotificationHandler creates a new handler.
func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List notifications
// @Description List the authenticated user's notifications, newest first
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims, err := currentUser(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	items, unread, err := h.service.List(c.Request.Context(), claims, unreadOnly, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"unread_count": unread})
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags Notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims, err := currentUser(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := paramID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), id, claims); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// RegisterDevice godoc
// @Summary Register a push device
// @Description Bind a push token to the authenticated user
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.RegisterDeviceRequest true "Device payload"
// @Success 204 {object} response.Envelope
// @Router /devices [post]
func (h *NotificationHandler) RegisterDevice(c *gin.Context) {
	claims, err := currentUser(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid device payload"))
		return
	}

	if err := h.service.RegisterDevice(c.Request.Context(), claims, req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// DeregisterDevice godoc
// @Summary Deregister a push device
// @Tags Notifications
// @Produce json
// @Param token query string true "Device token"
// @Success 204 {object} response.Envelope
// @Router /devices [delete]
func (h *NotificationHandler) DeregisterDevice(c *gin.Context) {
	claims, err := currentUser(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.service.DeregisterDevice(c.Request.Context(), claims, c.Query("token")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
