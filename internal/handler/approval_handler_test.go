package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/cmcs-platform/claims-api/internal/middleware"
	"github.com/cmcs-platform/claims-api/internal/models"
	"github.com/cmcs-platform/claims-api/internal/service"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
)

type approvalRepoMock struct {
	claims map[string]*models.Claim
}

func (m *approvalRepoMock) FindByID(ctx context.Context, id string) (*models.Claim, error) {
	claim, ok := m.claims[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "claim not found")
	}
	copied := *claim
	return &copied, nil
}

func (m *approvalRepoMock) ListByStatus(ctx context.Context, status models.ClaimStatus) ([]models.Claim, error) {
	var out []models.Claim
	for _, claim := range m.claims {
		if claim.Status == status {
			out = append(out, *claim)
		}
	}
	return out, nil
}

func (m *approvalRepoMock) UpdateStatusIf(ctx context.Context, id string, expected, next models.ClaimStatus, approvedAt *time.Time, reason *string) (bool, error) {
	claim, ok := m.claims[id]
	if !ok || claim.Status != expected {
		return false, nil
	}
	claim.Status = next
	claim.ApprovedDate = approvedAt
	claim.RejectionReason = reason
	return true, nil
}

func newApprovalHandler(repo *approvalRepoMock) *ApprovalHandler {
	return NewApprovalHandler(service.NewApprovalService(repo, nil, nil))
}

func TestApprovalHandlerApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &approvalRepoMock{claims: map[string]*models.Claim{
		"c1": {ID: "c1", Status: models.ClaimStatusPending},
	}}
	handler := newApprovalHandler(repo)

	c, w := newGinContext(http.MethodPost, "/claims/c1/approve", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "coord", Role: models.RoleCoordinator})

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.ClaimStatusApprovedByCoordinator, repo.claims["c1"].Status)
}

func TestApprovalHandlerApproveWrongState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &approvalRepoMock{claims: map[string]*models.Claim{
		"c1": {ID: "c1", Status: models.ClaimStatusRejected},
	}}
	handler := newApprovalHandler(repo)

	c, w := newGinContext(http.MethodPost, "/claims/c1/approve", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "coord", Role: models.RoleCoordinator})

	handler.Approve(c)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestApprovalHandlerRejectRequiresReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &approvalRepoMock{claims: map[string]*models.Claim{
		"c1": {ID: "c1", Status: models.ClaimStatusPending},
	}}
	handler := newApprovalHandler(repo)

	c, w := newGinContext(http.MethodPost, "/claims/c1/reject", []byte(`{}`), "application/json")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "coord", Role: models.RoleCoordinator})

	handler.Reject(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, models.ClaimStatusPending, repo.claims["c1"].Status)
}

func TestApprovalHandlerReject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &approvalRepoMock{claims: map[string]*models.Claim{
		"c1": {ID: "c1", Status: models.ClaimStatusPending},
	}}
	handler := newApprovalHandler(repo)

	c, w := newGinContext(http.MethodPost, "/claims/c1/reject", []byte(`{"reason":"missing timesheet"}`), "application/json")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "coord", Role: models.RoleCoordinator})

	handler.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.ClaimStatusRejected, repo.claims["c1"].Status)
	require.NotNil(t, repo.claims["c1"].RejectionReason)
}

func TestApprovalHandlerMarkPaidRequiresHR(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &approvalRepoMock{claims: map[string]*models.Claim{
		"c1": {ID: "c1", Status: models.ClaimStatusApprovedByManager},
	}}
	handler := newApprovalHandler(repo)

	c, w := newGinContext(http.MethodPost, "/claims/c1/pay", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "mgr", Role: models.RoleManager})

	handler.MarkPaid(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, models.ClaimStatusApprovedByManager, repo.claims["c1"].Status)
}
