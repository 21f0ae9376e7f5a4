package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/dorm-gate-api/internal/models"
	"github.com/noah-isme/dorm-gate-api/pkg/config"
	"github.com/noah-isme/dorm-gate-api/pkg/errors"
)

// approvalStage describes who may decide a request at a given pending
// state and where each verdict moves it. The parent stage is skipped
// entirely when the resident has no linked guardian.
type approvalStage struct {
	staffRoles  []models.UserRole
	parentStage bool
	onApprove   models.LeaveStatus
	// onApproveSkip replaces onApprove when the resident has no
	// guardian link. Zero means no skip branch.
	onApproveSkip models.LeaveStatus
	onDecline     models.LeaveStatus
}

var approvalStages = map[models.LeaveStatus]approvalStage{
	models.LeavePendingDean: {
		staffRoles:    []models.UserRole{models.RoleHomeDean, models.RoleAdmin},
		onApprove:     models.LeavePendingParent,
		onApproveSkip: models.LeavePendingVPSAS,
		onDecline:     models.LeaveDeclined,
	},
	models.LeavePendingParent: {
		parentStage: true,
		onApprove:   models.LeavePendingVPSAS,
		onDecline:   models.LeaveDeclined,
	},
	models.LeavePendingVPSAS: {
		staffRoles: []models.UserRole{models.RoleVPSAS, models.RoleAdmin},
		onApprove:  models.LeaveApproved,
		onDecline:  models.LeaveDeclined,
	},
}

// ApprovalGate authorizes approval decisions and resolves the state
// transition each verdict produces. Parent approvals optionally pass
// through identity verification against the resident's stored face
// image.
type ApprovalGate struct {
	faces     FaceComparer
	threshold float64
	enabled   bool
	logger    *zap.Logger
}

// NewApprovalGate wires the gate. faces may be nil when verification
// is disabled.
func NewApprovalGate(cfg config.FaceConfig, faces FaceComparer, logger *zap.Logger) *ApprovalGate {
	return &ApprovalGate{
		faces:     faces,
		threshold: cfg.Threshold,
		enabled:   cfg.Enabled && faces != nil,
		logger:    logger,
	}
}

// Stage returns the approval stage for the given persisted status, or
// a conflict error when the request holds no pending approval.
func (g *ApprovalGate) Stage(status models.LeaveStatus) (approvalStage, error) {
	stage, ok := approvalStages[status]
	if !ok {
		return approvalStage{}, errors.Clone(errors.ErrConflict, "No approval is pending at status "+string(status))
	}
	return stage, nil
}

// Authorize checks that the actor may decide the request at this
// stage. Staff stages require one of the listed roles. The parent
// stage accepts only the resident's linked guardian.
func (g *ApprovalGate) Authorize(stage approvalStage, actor *models.JWTClaims, resident *models.User) error {
	for _, role := range stage.staffRoles {
		if actor.Role == role {
			return nil
		}
	}
	if stage.parentStage && actor.Role == models.RoleParent {
		if resident.GuardianID != nil && *resident.GuardianID == actor.UserID {
			return nil
		}
		return errors.Clone(errors.ErrForbidden, "You are not the linked guardian for this resident")
	}
	return errors.Clone(errors.ErrForbidden, "Your role cannot decide this request at its current stage")
}

// NextOnApprove resolves the post-approval status, honoring the
// guardian skip branch.
func (g *ApprovalGate) NextOnApprove(stage approvalStage, hasGuardian bool) models.LeaveStatus {
	if stage.onApproveSkip != "" && !hasGuardian {
		return stage.onApproveSkip
	}
	return stage.onApprove
}

// VerifyParent runs the face check for a guardian approval. Any
// comparison failure maps to a verification error so the caller never
// distinguishes transport trouble from a genuine mismatch.
func (g *ApprovalGate) VerifyParent(ctx context.Context, resident *models.User, capturedImage string) error {
	if !g.enabled {
		return nil
	}
	if resident.FaceImageURL == nil || *resident.FaceImageURL == "" {
		g.logger.Warn("resident has no stored face image, skipping verification",
			zap.Int64("resident_id", resident.ID))
		return nil
	}
	if capturedImage == "" {
		return errors.Clone(errors.ErrVerificationFailed, "A captured image is required for parent approval")
	}

	match, err := g.faces.Compare(ctx, *resident.FaceImageURL, capturedImage, g.threshold)
	if err != nil {
		g.logger.Warn("face comparison failed",
			zap.Int64("resident_id", resident.ID),
			zap.Error(err))
		return errors.Clone(errors.ErrVerificationFailed, "Identity verification is unavailable, please try again")
	}
	if !match.Match {
		return errors.ErrVerificationFailed
	}
	return nil
}
