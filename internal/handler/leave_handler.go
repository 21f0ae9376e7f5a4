package handler

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeqown/go-qrcode"

	"github.com/noah-isme/dorm-gate-api/internal/dto"
	"github.com/noah-isme/dorm-gate-api/internal/service"
	appErrors "github.com/noah-isme/dorm-gate-api/pkg/errors"
	"github.com/noah-isme/dorm-gate-api/pkg/response"
)

// LeaveHandler wires HTTP endpoints to the leave request lifecycle.
type LeaveHandler struct {
	service *service.LeaveService
}

// NewLeaveHandler creates a new handler.
func NewLeaveHandler(svc *service.LeaveService) *LeaveHandler {
	return &LeaveHandler{service: svc}
}

// Create godoc
// @Summary Submit a leave request
// @Description Register a new leave request for the authenticated resident
// @Tags Leaves
// @Accept json
// @Produce json
// @Param payload body dto.CreateLeaveRequest true "Leave request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /leaves [post]
func (h *LeaveHandler) Create(c *gin.Context) {
	claims, err := currentUser(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.CreateLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid leave payload"))
		return
	}

	detail, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, detail)
}

// List godoc
// @Summary List leave requests
// @Description List leave requests visible to the authenticated actor
// @Tags Leaves
// @Produce json
// @Param status query string false "Status filter, comma separated"
// @Param category query string false "Category filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /leaves [get]
func (h *LeaveHandler) List(c *gin.Context) {
	claims, err := currentUser(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var query dto.LeaveQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	details, pagination, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, details, pagination)
}

// Get godoc
// @Summary Get a leave request
// @Description Fetch one leave request with its approval trail
// @Tags Leaves
// @Produce json
// @Param id path int true "Leave ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /leaves/{id} [get]
func (h *LeaveHandler) Get(c *gin.Context) {
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

	detail, err := h.service.Get(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// Decide godoc
// @Summary Decide a leave request
// @Description Apply an approval or decline at the request's current stage
// @Tags Leaves
// @Accept json
// @Produce json
// @Param id path int true "Leave ID"
// @Param payload body dto.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /leaves/{id}/decision [post]
func (h *LeaveHandler) Decide(c *gin.Context) {
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

	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	detail, err := h.service.Decide(c.Request.Context(), id, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// Cancel godoc
// @Summary Cancel a leave request
// @Description Withdraw a pending or unused approved request
// @Tags Leaves
// @Produce json
// @Param id path int true "Leave ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /leaves/{id}/cancel [post]
func (h *LeaveHandler) Cancel(c *gin.Context) {
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

	detail, err := h.service.Cancel(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// QRImage godoc
// @Summary Render the leave QR code
// @Description Render the minted credential token as a scannable image
// @Tags Leaves
// @Produce jpeg
// @Param id path int true "Leave ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /leaves/{id}/qr [get]
func (h *LeaveHandler) QRImage(c *gin.Context) {
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

	detail, err := h.service.Get(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	if detail.QRToken == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "No QR code has been issued for this request"))
		return
	}

	qrc, err := qrcode.New(*detail.QRToken)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render QR code"))
		return
	}
	buf := &bytes.Buffer{}
	if err := qrc.SaveTo(buf); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render QR code"))
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

// Export godoc
// @Summary Export leave requests
// @Description Export filtered leave requests as CSV or PDF
// @Tags Leaves
// @Produce octet-stream
// @Param format query string true "Export format (csv or pdf)"
// @Success 200 {file} binary
// @Router /leaves/export [get]
func (h *LeaveHandler) Export(c *gin.Context) {
	claims, err := currentUser(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var query dto.LeaveQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	format := c.DefaultQuery("format", "csv")

	data, filename, err := h.service.Export(c.Request.Context(), query, format, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	contentType := "text/csv"
	if format == "pdf" {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}
