package service

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-gate-api/internal/models"
	"github.com/noah-isme/dorm-gate-api/pkg/config"
	"github.com/noah-isme/dorm-gate-api/pkg/errors"
)

type scanLeaveStore interface {
	GetByToken(ctx context.Context, token string) (*models.LeaveRequest, error)
	LatestApprovedByResident(ctx context.Context, residentID int64) (*models.LeaveRequest, error)
	RecordExit(ctx context.Context, id int64, guardID int64, at time.Time) error
	RecordReturn(ctx context.Context, id int64, guardID int64, at time.Time) error
}

type gateLogStore interface {
	Create(ctx context.Context, entry *models.CheckLogEntry) error
}

type residentDirectory interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type lifecycleNotifier interface {
	Notify(ctx context.Context, recipientID int64, category models.NotificationCategory, title, body string, leaveID *int64)
}

// ScanMetrics records gate scan outcomes. nil-safe through the service.
type ScanMetrics interface {
	RecordScan(direction string, accepted bool)
}

// QRService mints credential tokens and verifies gate scans. A token is
// minted exactly once, at the moment a request becomes fully approved,
// and never rotates afterwards. Verification resolves a scanned value
// back to its request, enforces state and window preconditions, records
// the movement, and appends the audit entry.
type QRService struct {
	leaves       scanLeaveStore
	logs         gateLogStore
	users        residentDirectory
	notifier     lifecycleNotifier
	metrics      ScanMetrics
	legacyPrefix string
	now          func() time.Time
	logger       *zap.Logger
}

// NewQRService wires the issuer and verifier.
func NewQRService(leaves scanLeaveStore, logs gateLogStore, users residentDirectory, notifier lifecycleNotifier, metrics ScanMetrics, cfg config.QRConfig, logger *zap.Logger) *QRService {
	return &QRService{
		leaves:       leaves,
		logs:         logs,
		users:        users,
		notifier:     notifier,
		metrics:      metrics,
		legacyPrefix: cfg.LegacyPrefix,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// Mint produces a fresh opaque credential token. UUIDv4 carries 122
// random bits, enough to make guessing a live token infeasible.
func (s *QRService) Mint() string {
	return uuid.NewString()
}

// resolve maps a scanned value to its leave request. Values carrying
// the legacy prefix are resident-id badges from the previous system;
// they resolve to the resident's latest approved or active request so
// old printed cards keep working at the gate.
func (s *QRService) resolve(ctx context.Context, scanned string) (*models.LeaveRequest, error) {
	if s.legacyPrefix != "" && strings.HasPrefix(scanned, s.legacyPrefix) {
		residentID, err := strconv.ParseInt(strings.TrimPrefix(scanned, s.legacyPrefix), 10, 64)
		if err != nil {
			return nil, errors.Clone(errors.ErrNotFound, "QR code not recognized")
		}
		leave, err := s.leaves.LatestApprovedByResident(ctx, residentID)
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.Clone(errors.ErrNotFound, "No approved leave found for this resident")
		}
		return leave, err
	}

	leave, err := s.leaves.GetByToken(ctx, scanned)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Clone(errors.ErrNotFound, "QR code not recognized")
	}
	return leave, err
}

// Verify executes a gate scan of the given direction against a scanned
// value and the scanning guard. On success the movement is stamped on
// the request, the state machine advances and an audit entry is
// appended.
func (s *QRService) Verify(ctx context.Context, scanned string, direction models.CheckDirection, guardID int64) (*models.LeaveRequest, error) {
	leave, err := s.verify(ctx, scanned, direction, guardID)
	if s.metrics != nil {
		s.metrics.RecordScan(string(direction), err == nil)
	}
	return leave, err
}

func (s *QRService) verify(ctx context.Context, scanned string, direction models.CheckDirection, guardID int64) (*models.LeaveRequest, error) {
	leave, err := s.resolve(ctx, scanned)
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch direction {
	case models.DirectionExit:
		if leave.Status != models.LeaveApproved {
			return nil, s.stateError(leave, direction, now)
		}
	case models.DirectionEntry:
		if leave.Status != models.LeaveActive {
			return nil, s.stateError(leave, direction, now)
		}
	default:
		return nil, errors.Clone(errors.ErrValidation, "Unknown scan direction")
	}

	if now.Before(leave.StartAt) {
		return nil, errors.Clone(errors.ErrInvalidWindow, "Leave window has not started yet")
	}
	if !now.Before(leave.EndAt) {
		if direction == models.DirectionEntry {
			return nil, errors.Clone(errors.ErrInvalidWindow, "Return window has expired")
		}
		return nil, errors.Clone(errors.ErrInvalidWindow, "Leave window has expired")
	}

	switch direction {
	case models.DirectionExit:
		err = s.leaves.RecordExit(ctx, leave.ID, guardID, now)
	case models.DirectionEntry:
		err = s.leaves.RecordReturn(ctx, leave.ID, guardID, now)
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		// Another scan won the conditional update.
		if direction == models.DirectionExit {
			return nil, errors.Clone(errors.ErrAlreadyRecorded, "Exit already recorded")
		}
		return nil, errors.Clone(errors.ErrAlreadyRecorded, "Return already recorded")
	}
	if err != nil {
		return nil, err
	}

	leaveID := leave.ID
	entry := &models.CheckLogEntry{
		ResidentID: leave.ResidentID,
		LeaveID:    &leaveID,
		Direction:  direction,
		Method:     models.MethodScan,
		RecordedBy: guardID,
		RecordedAt: now,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		// The conditional update already stamped the movement; the
		// scan stands even if the audit append fails.
		s.logger.Error("append check log failed",
			zap.Int64("leave_id", leave.ID),
			zap.String("direction", string(direction)),
			zap.Error(err))
	}

	if direction == models.DirectionExit {
		leave.Status = models.LeaveActive
		leave.ExitAt = &now
		leave.ExitBy = &guardID
		s.notifyGuardian(ctx, leave, models.NotifyExitRecorded,
			"Campus exit recorded",
			leave.ResidentName+" left campus at "+now.Format("15:04"))
	} else {
		leave.Status = models.LeaveCompleted
		leave.ReturnAt = &now
		leave.ReturnBy = &guardID
		s.notifyGuardian(ctx, leave, models.NotifyReturnRecorded,
			"Campus return recorded",
			leave.ResidentName+" returned to campus at "+now.Format("15:04"))
	}
	return leave, nil
}

// stateError renders a precondition failure naming the request's
// current effective state. An exit scan against an already-active
// request is reported as a duplicate instead of a generic conflict.
func (s *QRService) stateError(leave *models.LeaveRequest, direction models.CheckDirection, now time.Time) error {
	effective := leave.EffectiveStatus(now)
	switch {
	case direction == models.DirectionExit && leave.Status == models.LeaveActive:
		return errors.Clone(errors.ErrAlreadyRecorded, "Exit already recorded")
	case direction == models.DirectionEntry && leave.Status == models.LeaveCompleted:
		return errors.Clone(errors.ErrAlreadyRecorded, "Return already recorded")
	case direction == models.DirectionEntry && leave.Status == models.LeaveApproved:
		return errors.Clone(errors.ErrConflict, "No exit has been recorded for this leave")
	case effective == models.LeaveExpired:
		return errors.Clone(errors.ErrInvalidWindow, "Leave window has expired")
	default:
		return errors.Clone(errors.ErrConflict, "Leave request is "+string(effective))
	}
}

func (s *QRService) notifyGuardian(ctx context.Context, leave *models.LeaveRequest, category models.NotificationCategory, title, body string) {
	resident, err := s.users.FindByID(ctx, leave.ResidentID)
	if err != nil {
		s.logger.Warn("resolve resident for guardian notification failed",
			zap.Int64("resident_id", leave.ResidentID),
			zap.Error(err))
		return
	}
	if resident.GuardianID == nil {
		return
	}
	leaveID := leave.ID
	s.notifier.Notify(ctx, *resident.GuardianID, category, title, body, &leaveID)
}
