package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cmcs-platform/claims-api/internal/models"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
)

type approvalClaimRepository interface {
	FindByID(ctx context.Context, id string) (*models.Claim, error)
	ListByStatus(ctx context.Context, status models.ClaimStatus) ([]models.Claim, error)
	UpdateStatusIf(ctx context.Context, id string, expected, next models.ClaimStatus, approvedAt *time.Time, reason *string) (bool, error)
}

// ApprovalService drives the two-step approval pipeline. Every transition is
// a conditional update guarded on the expected current status, so two
// approvers racing on the same claim cannot both win.
type ApprovalService struct {
	repo      approvalClaimRepository
	metrics   *MetricsService
	dashboard dashboardInvalidator
	logger    *zap.Logger
}

// NewApprovalService constructs an ApprovalService.
func NewApprovalService(repo approvalClaimRepository, metrics *MetricsService, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{repo: repo, metrics: metrics, logger: logger}
}

// SetDashboardCache wires the dashboard cache so every decision drops the
// stale queue and payout counters.
func (s *ApprovalService) SetDashboardCache(cache dashboardInvalidator) {
	s.dashboard = cache
}

// PendingQueue returns claims awaiting coordinator review, oldest first.
func (s *ApprovalService) PendingQueue(ctx context.Context) ([]models.Claim, error) {
	claims, err := s.repo.ListByStatus(ctx, models.ClaimStatusPending)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending queue")
	}
	return claims, nil
}

// ReviewQueue returns coordinator-approved claims awaiting manager sign-off.
func (s *ApprovalService) ReviewQueue(ctx context.Context) ([]models.Claim, error) {
	claims, err := s.repo.ListByStatus(ctx, models.ClaimStatusApprovedByCoordinator)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review queue")
	}
	return claims, nil
}

// Approve advances a claim one approval step for the principal's role.
func (s *ApprovalService) Approve(ctx context.Context, principal *models.JWTClaims, claimID string) (*models.Claim, error) {
	expected, next, err := approvalStep(principal)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	claim, err := s.transition(ctx, claimID, expected, next, &now, nil)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordClaimDecision("approve")
	s.logger.Info("claim approved",
		zap.String("claim_id", claimID),
		zap.String("approver_id", principal.UserID),
		zap.String("status", string(next)))
	return claim, nil
}

// Reject moves a claim to REJECTED with a mandatory reason. Coordinators
// reject pending claims, managers reject coordinator-approved ones.
func (s *ApprovalService) Reject(ctx context.Context, principal *models.JWTClaims, claimID, reason string) (*models.Claim, error) {
	expected, _, err := approvalStep(principal)
	if err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.NewValidation(appErrors.FieldError{Field: "reason", Message: "a rejection reason is required"})
	}

	claim, err := s.transition(ctx, claimID, expected, models.ClaimStatusRejected, nil, &reason)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordClaimDecision("reject")
	s.logger.Info("claim rejected",
		zap.String("claim_id", claimID),
		zap.String("approver_id", principal.UserID))
	return claim, nil
}

// MarkPaid settles a fully approved claim. HR only.
func (s *ApprovalService) MarkPaid(ctx context.Context, principal *models.JWTClaims, claimID string) (*models.Claim, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if principal.Role != models.RoleHR {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only HR can settle claims")
	}

	claim, err := s.transition(ctx, claimID, models.ClaimStatusApprovedByManager, models.ClaimStatusPaid, nil, nil)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordClaimDecision("pay")
	s.logger.Info("claim settled", zap.String("claim_id", claimID))
	return claim, nil
}

// transition performs the guarded status move and disambiguates a zero-row
// outcome between "claim missing" and "lost the race".
func (s *ApprovalService) transition(ctx context.Context, claimID string, expected, next models.ClaimStatus, approvedAt *time.Time, reason *string) (*models.Claim, error) {
	if !models.CanTransition(expected, next) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot move a claim from %s to %s", expected, next))
	}

	ok, err := s.repo.UpdateStatusIf(ctx, claimID, expected, next, approvedAt, reason)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update claim status")
	}

	if !ok {
		current, err := s.repo.FindByID(ctx, claimID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "claim not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load claim")
		}
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("claim is %s, expected %s", current.Status, expected))
	}

	claim, err := s.repo.FindByID(ctx, claimID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload claim")
	}

	if s.dashboard != nil {
		s.dashboard.Invalidate(ctx)
	}
	return claim, nil
}

// approvalStep maps the principal's role onto its slot in the pipeline.
func approvalStep(principal *models.JWTClaims) (expected, next models.ClaimStatus, err error) {
	if principal == nil {
		return "", "", appErrors.ErrUnauthorized
	}
	switch principal.Role {
	case models.RoleCoordinator:
		return models.ClaimStatusPending, models.ClaimStatusApprovedByCoordinator, nil
	case models.RoleManager:
		return models.ClaimStatusApprovedByCoordinator, models.ClaimStatusApprovedByManager, nil
	default:
		return "", "", appErrors.Clone(appErrors.ErrForbidden, "only coordinators and managers review claims")
	}
}
