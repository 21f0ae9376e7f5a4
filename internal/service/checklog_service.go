package service

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-gate-api/internal/dto"
	"github.com/noah-isme/dorm-gate-api/internal/models"
	"github.com/noah-isme/dorm-gate-api/pkg/errors"
)

type checkLogStore interface {
	Create(ctx context.Context, entry *models.CheckLogEntry) error
	List(ctx context.Context, filter models.CheckLogFilter) ([]models.CheckLogEntry, int, error)
}

type scanVerifier interface {
	Verify(ctx context.Context, scanned string, direction models.CheckDirection, guardID int64) (*models.LeaveRequest, error)
}

// CheckLogService is the gate-facing surface: QR scans that advance the
// leave lifecycle, and manual movement entries that exist purely for
// attendance auditing and never touch the state machine.
type CheckLogService struct {
	logs     checkLogStore
	users    residentDirectory
	verifier scanVerifier
	validate *validator.Validate
	now      func() time.Time
	logger   *zap.Logger
}

// NewCheckLogService wires the reconciler.
func NewCheckLogService(logs checkLogStore, users residentDirectory, verifier scanVerifier, logger *zap.Logger) *CheckLogService {
	return &CheckLogService{
		logs:     logs,
		users:    users,
		verifier: verifier,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Scan processes a QR gate scan and returns the guard-facing
// confirmation payload.
func (s *CheckLogService) Scan(ctx context.Context, req dto.ScanRequest, actor *models.JWTClaims) (*dto.ScanConfirmation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, errors.Wrap(err, errors.ErrValidation.Code, errors.ErrValidation.Status, "Invalid scan payload")
	}

	leave, err := s.verifier.Verify(ctx, req.Token, models.CheckDirection(req.Direction), actor.UserID)
	if err != nil {
		return nil, err
	}
	return &dto.ScanConfirmation{
		LeaveID:      leave.ID,
		ResidentID:   leave.ResidentID,
		ResidentName: leave.ResidentName,
		Room:         leave.ResidentRoom,
		Destination:  leave.Destination,
		Category:     string(leave.Category),
		Direction:    req.Direction,
		Status:       string(leave.Status),
	}, nil
}

// Manual appends a guard-entered movement with no leave attached.
// Manual entries always succeed once the resident is known.
func (s *CheckLogService) Manual(ctx context.Context, req dto.ManualCheckRequest, actor *models.JWTClaims) (*models.CheckLogEntry, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, errors.Wrap(err, errors.ErrValidation.Code, errors.ErrValidation.Status, "Invalid manual check payload")
	}

	resident, err := s.users.FindByID(ctx, req.ResidentID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Clone(errors.ErrNotFound, "Resident not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load resident %d: %w", req.ResidentID, err)
	}

	entry := &models.CheckLogEntry{
		ResidentID: resident.ID,
		Direction:  models.CheckDirection(req.Direction),
		Method:     models.MethodManual,
		RecordedBy: actor.UserID,
		RecordedAt: s.now(),
	}
	if req.Notes != "" {
		entry.Notes = &req.Notes
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("append check log: %w", err)
	}
	entry.ResidentName = resident.FullName
	return entry, nil
}

// List returns gate-log entries matching the query.
func (s *CheckLogService) List(ctx context.Context, query dto.CheckLogQuery) ([]models.CheckLogEntry, *models.Pagination, error) {
	filter := models.CheckLogFilter{
		ResidentID: query.ResidentID,
		Limit:      query.PageSize,
		Offset:     (maxInt(query.Page, 1) - 1) * query.PageSize,
	}
	if query.Direction != "" {
		direction := models.CheckDirection(query.Direction)
		if !direction.Valid() {
			return nil, nil, errors.Clone(errors.ErrValidation, "Unknown direction "+query.Direction)
		}
		filter.Direction = direction
	}
	switch query.Method {
	case "":
	case string(models.MethodScan), string(models.MethodManual):
		filter.Method = models.CheckMethod(query.Method)
	default:
		return nil, nil, errors.Clone(errors.ErrValidation, "Unknown method "+query.Method)
	}
	if query.From != "" {
		from, err := time.Parse(time.RFC3339, query.From)
		if err != nil {
			return nil, nil, errors.Clone(errors.ErrValidation, "Invalid 'from' timestamp")
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := time.Parse(time.RFC3339, query.To)
		if err != nil {
			return nil, nil, errors.Clone(errors.ErrValidation, "Invalid 'to' timestamp")
		}
		filter.To = &to
	}

	entries, total, err := s.logs.List(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("list check logs: %w", err)
	}
	pagination := models.NewPagination(query.Page, query.PageSize, total)
	return entries, &pagination, nil
}
