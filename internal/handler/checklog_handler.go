package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dorm-gate-api/internal/dto"
	"github.com/noah-isme/dorm-gate-api/internal/service"
	appErrors "github.com/noah-isme/dorm-gate-api/pkg/errors"
	"github.com/noah-isme/dorm-gate-api/pkg/response"
)

// CheckLogHandler wires the gate endpoints: QR scans, manual entries
// and the audit log listing.
type CheckLogHandler struct {
	service *service.CheckLogService
}

// NewCheckLogHandler creates a new handler.
func NewCheckLogHandler(svc *service.CheckLogService) *CheckLogHandler {
	return &CheckLogHandler{service: svc}
}

// Scan godoc
// @Summary Process a gate QR scan
// @Description Verify a scanned QR token and record the movement
// @Tags Gate
// @Accept json
// @Produce json
// @Param payload body dto.ScanRequest true "Scan payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /gate/scan [post]
func (h *CheckLogHandler) Scan(c *gin.Context) {
	claims, err := currentUser(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan payload"))
		return
	}

	confirmation, err := h.service.Scan(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, confirmation, nil)
}

// Manual godoc
// @Summary Record a manual gate entry
// @Description Append a guard-entered movement with no leave attached
// @Tags Gate
// @Accept json
// @Produce json
// @Param payload body dto.ManualCheckRequest true "Manual check payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /gate/manual [post]
func (h *CheckLogHandler) Manual(c *gin.Context) {
	claims, err := currentUser(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.ManualCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid manual check payload"))
		return
	}

	entry, err := h.service.Manual(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, entry)
}

// List godoc
// @Summary List gate log entries
// @Description List check-log entries matching the filters
// @Tags Gate
// @Produce json
// @Param resident_id query int false "Resident filter"
// @Param direction query string false "Direction filter"
// @Param method query string false "Method filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /gate/logs [get]
func (h *CheckLogHandler) List(c *gin.Context) {
	var query dto.CheckLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	entries, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, pagination)
}
