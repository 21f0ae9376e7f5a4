package service

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-gate-api/internal/dto"
	"github.com/noah-isme/dorm-gate-api/internal/models"
	"github.com/noah-isme/dorm-gate-api/pkg/errors"
	"github.com/noah-isme/dorm-gate-api/pkg/export"
)

type leaveStore interface {
	Create(ctx context.Context, leave *models.LeaveRequest) error
	GetByID(ctx context.Context, id int64) (*models.LeaveRequest, error)
	List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error)
	UpdateStatus(ctx context.Context, id int64, from, to models.LeaveStatus) error
	ApproveWithToken(ctx context.Context, id int64, from models.LeaveStatus, token string) error
	AddApproval(ctx context.Context, approval *models.LeaveApproval) error
	ApprovalsByLeave(ctx context.Context, leaveID int64) ([]models.LeaveApproval, error)
}

type roleNotifier interface {
	lifecycleNotifier
	NotifyRoles(ctx context.Context, category models.NotificationCategory, title, body string, leaveID *int64, roles ...models.UserRole)
}

type tokenIssuer interface {
	Mint() string
}

// LeaveService owns the request lifecycle: creation, the sequential
// approval chain, cancellation and the derived expiry view. Every
// mutation goes through a conditional update keyed on the expected
// prior status; a failed precondition surfaces as Conflict, never as a
// silent overwrite.
type LeaveService struct {
	repo     leaveStore
	users    residentDirectory
	gate     *ApprovalGate
	issuer   tokenIssuer
	notifier roleNotifier
	metrics  *MetricsService
	validate *validator.Validate
	now      func() time.Time
	logger   *zap.Logger
}

// NewLeaveService wires the state machine.
func NewLeaveService(repo leaveStore, users residentDirectory, gate *ApprovalGate, issuer tokenIssuer, notifier roleNotifier, metrics *MetricsService, logger *zap.Logger) *LeaveService {
	validate := validator.New()
	_ = validate.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return models.LeaveCategory(fl.Field().String()).Valid()
	})
	return &LeaveService{
		repo:     repo,
		users:    users,
		gate:     gate,
		issuer:   issuer,
		notifier: notifier,
		metrics:  metrics,
		validate: validate,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Create registers a new request for the acting resident and starts the
// approval chain at the home dean.
func (s *LeaveService) Create(ctx context.Context, req dto.CreateLeaveRequest, actor *models.JWTClaims) (*dto.LeaveDetail, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, errors.Wrap(err, errors.ErrValidation.Code, errors.ErrValidation.Status, "Invalid leave request payload")
	}
	if !req.StartAt.Before(req.EndAt) {
		return nil, errors.Clone(errors.ErrValidation, "Leave window must start before it ends")
	}

	leave := &models.LeaveRequest{
		ResidentID:     actor.UserID,
		Category:       models.LeaveCategory(req.Category),
		Status:         models.LeavePendingDean,
		StartAt:        req.StartAt.UTC(),
		EndAt:          req.EndAt.UTC(),
		Reason:         req.Reason,
		Destination:    req.Destination,
		EmergencyName:  req.EmergencyName,
		EmergencyPhone: req.EmergencyPhone,
	}
	if err := s.repo.Create(ctx, leave); err != nil {
		return nil, fmt.Errorf("create leave request: %w", err)
	}

	leaveID := leave.ID
	s.notifier.NotifyRoles(ctx, models.NotifyRequestCreated,
		"New leave request",
		fmt.Sprintf("%s requested %s leave to %s", actor.FullName, leave.Category, leave.Destination),
		&leaveID, models.RoleAdmin, models.RoleHomeDean)

	leave.ResidentName = actor.FullName
	leave.ResidentRoom = actor.Room
	return s.detail(ctx, leave, false)
}

// Decide applies one approver's verdict at the request's current stage.
func (s *LeaveService) Decide(ctx context.Context, id int64, req dto.DecisionRequest, actor *models.JWTClaims) (*dto.LeaveDetail, error) {
	leave, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if effective := leave.EffectiveStatus(now); effective.Terminal() {
		return nil, errors.Clone(errors.ErrConflict, "Leave request is "+string(effective))
	}

	stage, err := s.gate.Stage(leave.Status)
	if err != nil {
		return nil, err
	}
	resident, err := s.users.FindByID(ctx, leave.ResidentID)
	if err != nil {
		return nil, fmt.Errorf("load resident %d: %w", leave.ResidentID, err)
	}
	if err := s.gate.Authorize(stage, actor, resident); err != nil {
		return nil, err
	}

	decision := models.DecisionDeclined
	next := stage.onDecline
	if req.Approve {
		if stage.parentStage {
			if err := s.gate.VerifyParent(ctx, resident, req.CapturedImage); err != nil {
				return nil, err
			}
		}
		decision = models.DecisionApproved
		next = s.gate.NextOnApprove(stage, resident.GuardianID != nil)
	}

	if next == models.LeaveApproved {
		err = s.repo.ApproveWithToken(ctx, leave.ID, leave.Status, s.issuer.Mint())
	} else {
		err = s.repo.UpdateStatus(ctx, leave.ID, leave.Status, next)
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Clone(errors.ErrConflict, "Leave request was updated by another approver")
	}
	if err != nil {
		return nil, fmt.Errorf("transition leave %d: %w", leave.ID, err)
	}

	approval := &models.LeaveApproval{
		LeaveID:   leave.ID,
		Stage:     leave.Status,
		ActorID:   actor.UserID,
		Decision:  decision,
		DecidedAt: now,
	}
	if req.Notes != "" {
		approval.Notes = &req.Notes
	}
	if err := s.repo.AddApproval(ctx, approval); err != nil {
		s.logger.Error("append approval trail failed",
			zap.Int64("leave_id", leave.ID),
			zap.Error(err))
	}

	s.dispatchDecision(ctx, leave, resident, actor, next)

	updated, err := s.load(ctx, leave.ID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, updated, true)
}

// dispatchDecision fires the notification matching the new status. The
// dean-to-vpsas skip and the parent-to-vpsas advance are deliberately
// silent.
func (s *LeaveService) dispatchDecision(ctx context.Context, leave *models.LeaveRequest, resident *models.User, actor *models.JWTClaims, next models.LeaveStatus) {
	leaveID := leave.ID
	switch next {
	case models.LeaveDeclined:
		s.notifier.Notify(ctx, leave.ResidentID, models.NotifyDeclined,
			"Leave request declined",
			fmt.Sprintf("Your %s leave request was declined by %s", leave.Category, roleLabel(actor.Role)),
			&leaveID)
	case models.LeavePendingParent:
		s.notifier.Notify(ctx, leave.ResidentID, models.NotifyAwaitingParent,
			"Awaiting parent approval",
			"Your leave request now awaits your parent's approval",
			&leaveID)
		if resident.GuardianID != nil {
			s.notifier.Notify(ctx, *resident.GuardianID, models.NotifyParentApproval,
				"Approval required",
				fmt.Sprintf("%s requests %s leave to %s", resident.FullName, leave.Category, leave.Destination),
				&leaveID)
		}
	case models.LeaveApproved:
		s.notifier.Notify(ctx, leave.ResidentID, models.NotifyQRReady,
			"QR ready",
			"Your leave request is fully approved, your gate QR code is ready",
			&leaveID)
	}
}

// roleLabel renders a role constant for notification text, e.g.
// HOME_DEAN becomes "home dean".
func roleLabel(role models.UserRole) string {
	return strings.ToLower(strings.ReplaceAll(string(role), "_", " "))
}

// Cancel withdraws a pending or approved-but-unused request. Only the
// owning resident or an admin may cancel.
func (s *LeaveService) Cancel(ctx context.Context, id int64, actor *models.JWTClaims) (*dto.LeaveDetail, error) {
	leave, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && leave.ResidentID != actor.UserID {
		return nil, errors.Clone(errors.ErrForbidden, "Only the requesting resident may cancel this request")
	}

	effective := leave.EffectiveStatus(s.now())
	if effective.Terminal() {
		return nil, errors.Clone(errors.ErrConflict, "Leave request is "+string(effective))
	}
	if !leave.Status.Pending() && leave.Status != models.LeaveApproved {
		return nil, errors.Clone(errors.ErrConflict, "Leave request is "+string(effective))
	}

	err = s.repo.UpdateStatus(ctx, leave.ID, leave.Status, models.LeaveCancelled)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Clone(errors.ErrConflict, "Leave request was updated concurrently")
	}
	if err != nil {
		return nil, fmt.Errorf("cancel leave %d: %w", leave.ID, err)
	}

	leaveID := leave.ID
	s.notifier.NotifyRoles(ctx, models.NotifyRequestCancelled,
		"Leave request cancelled",
		fmt.Sprintf("%s cancelled a %s leave request", leave.ResidentName, leave.Category),
		&leaveID, models.RoleAdmin, models.RoleHomeDean)

	leave.Status = models.LeaveCancelled
	return s.detail(ctx, leave, true)
}

// Get returns one request with its approval trail. Residents see their
// own requests, guardians their wards', staff everything.
func (s *LeaveService) Get(ctx context.Context, id int64, actor *models.JWTClaims) (*dto.LeaveDetail, error) {
	leave, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, leave, actor); err != nil {
		return nil, err
	}
	return s.detail(ctx, leave, true)
}

func (s *LeaveService) authorizeRead(ctx context.Context, leave *models.LeaveRequest, actor *models.JWTClaims) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleHomeDean, models.RoleVPSAS, models.RoleGuard:
		return nil
	case models.RoleStudent:
		if leave.ResidentID == actor.UserID {
			return nil
		}
	case models.RoleParent:
		resident, err := s.users.FindByID(ctx, leave.ResidentID)
		if err != nil {
			return fmt.Errorf("load resident %d: %w", leave.ResidentID, err)
		}
		if resident.GuardianID != nil && *resident.GuardianID == actor.UserID {
			return nil
		}
	}
	return errors.Clone(errors.ErrForbidden, "You may not view this leave request")
}

// List returns requests matching the query. Students are always scoped
// to their own requests regardless of the filter.
func (s *LeaveService) List(ctx context.Context, query dto.LeaveQuery, actor *models.JWTClaims) ([]dto.LeaveDetail, *models.Pagination, error) {
	filter, expiredOnly, err := s.buildFilter(query)
	if err != nil {
		return nil, nil, err
	}
	if actor.Role == models.RoleStudent {
		filter.ResidentID = actor.UserID
	}

	start := time.Now()
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("list leave requests: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("leave_list", time.Since(start))
	}

	now := s.now()
	details := make([]dto.LeaveDetail, 0, len(rows))
	for i := range rows {
		effective := rows[i].EffectiveStatus(now)
		if expiredOnly && effective != models.LeaveExpired {
			continue
		}
		details = append(details, dto.LeaveDetail{LeaveRequest: rows[i], EffectiveStatus: effective})
	}
	if expiredOnly {
		total = len(details)
	}

	pagination := models.NewPagination(query.Page, query.PageSize, total)
	return details, &pagination, nil
}

// buildFilter translates the bound query into a repository filter. The
// derived "expired" status cannot be queried directly; it narrows the
// fetch to the states expiry can apply to and filters in memory.
func (s *LeaveService) buildFilter(query dto.LeaveQuery) (models.LeaveFilter, bool, error) {
	filter := models.LeaveFilter{
		Limit:  query.PageSize,
		Offset: (maxInt(query.Page, 1) - 1) * query.PageSize,
	}
	if query.Category != "" {
		category := models.LeaveCategory(query.Category)
		if !category.Valid() {
			return filter, false, errors.Clone(errors.ErrValidation, "Unknown leave category "+query.Category)
		}
		filter.Category = category
	}

	expiredOnly := false
	for _, raw := range strings.Split(query.Status, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		status := models.LeaveStatus(raw)
		if status == models.LeaveExpired {
			expiredOnly = true
			filter.Status = []models.LeaveStatus{
				models.LeavePendingDean, models.LeavePendingParent,
				models.LeavePendingVPSAS, models.LeaveApproved,
			}
			continue
		}
		switch status {
		case models.LeavePendingDean, models.LeavePendingParent, models.LeavePendingVPSAS,
			models.LeaveApproved, models.LeaveActive, models.LeaveCompleted,
			models.LeaveDeclined, models.LeaveCancelled:
			filter.Status = append(filter.Status, status)
		default:
			return filter, false, errors.Clone(errors.ErrValidation, "Unknown status filter "+raw)
		}
	}

	if query.From != "" {
		from, err := time.Parse(time.RFC3339, query.From)
		if err != nil {
			return filter, false, errors.Clone(errors.ErrValidation, "Invalid 'from' timestamp")
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := time.Parse(time.RFC3339, query.To)
		if err != nil {
			return filter, false, errors.Clone(errors.ErrValidation, "Invalid 'to' timestamp")
		}
		filter.To = &to
	}
	return filter, expiredOnly, nil
}

// Export renders the filtered requests as CSV or PDF for office
// reporting.
func (s *LeaveService) Export(ctx context.Context, query dto.LeaveQuery, format string, actor *models.JWTClaims) ([]byte, string, error) {
	query.Page = 1
	if query.PageSize <= 0 {
		query.PageSize = 200
	}
	details, _, err := s.List(ctx, query, actor)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{
		Headers: []string{"ID", "Resident", "Room", "Category", "Status", "Start", "End", "Destination"},
	}
	for _, d := range details {
		room := ""
		if d.ResidentRoom != nil {
			room = *d.ResidentRoom
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":          fmt.Sprintf("%d", d.ID),
			"Resident":    d.ResidentName,
			"Room":        room,
			"Category":    string(d.Category),
			"Status":      string(d.EffectiveStatus),
			"Start":       d.StartAt.Format(time.RFC3339),
			"End":         d.EndAt.Format(time.RFC3339),
			"Destination": d.Destination,
		})
	}

	stamp := s.now().Format("20060102-150405")
	switch format {
	case "csv":
		data, err := export.NewCSVExporter().Render(dataset)
		return data, "leave-requests-" + stamp + ".csv", err
	case "pdf":
		data, err := export.NewPDFExporter().Render(dataset, "Leave Requests")
		return data, "leave-requests-" + stamp + ".pdf", err
	default:
		return nil, "", errors.Clone(errors.ErrValidation, "Unsupported export format "+format)
	}
}

func (s *LeaveService) load(ctx context.Context, id int64) (*models.LeaveRequest, error) {
	leave, err := s.repo.GetByID(ctx, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Clone(errors.ErrNotFound, "Leave request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load leave %d: %w", id, err)
	}
	return leave, nil
}

func (s *LeaveService) detail(ctx context.Context, leave *models.LeaveRequest, withTrail bool) (*dto.LeaveDetail, error) {
	detail := &dto.LeaveDetail{
		LeaveRequest:    *leave,
		EffectiveStatus: leave.EffectiveStatus(s.now()),
	}
	if withTrail {
		approvals, err := s.repo.ApprovalsByLeave(ctx, leave.ID)
		if err != nil {
			return nil, fmt.Errorf("load approval trail for leave %d: %w", leave.ID, err)
		}
		detail.Approvals = approvals
	}
	return detail, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
