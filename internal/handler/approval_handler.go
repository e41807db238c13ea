package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cmcs-platform/claims-api/internal/dto"
	"github.com/cmcs-platform/claims-api/internal/service"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
	"github.com/cmcs-platform/claims-api/pkg/response"
)

// ApprovalHandler exposes the approval pipeline endpoints.
type ApprovalHandler struct {
	service *service.ApprovalService
}

// NewApprovalHandler creates a new handler.
func NewApprovalHandler(svc *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{service: svc}
}

// PendingQueue godoc
// @Summary Coordinator queue
// @Description Claims awaiting coordinator review, oldest first
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /approvals/pending [get]
func (h *ApprovalHandler) PendingQueue(c *gin.Context) {
	claims, err := h.service.PendingQueue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claims, nil)
}

// ReviewQueue godoc
// @Summary Manager queue
// @Description Coordinator-approved claims awaiting manager sign-off
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /approvals/review [get]
func (h *ApprovalHandler) ReviewQueue(c *gin.Context) {
	claims, err := h.service.ReviewQueue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claims, nil)
}

// Approve godoc
// @Summary Approve a claim
// @Description Advance a claim one approval step for the caller's role
// @Tags Approvals
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /claims/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	principal := claimsFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	claim, err := h.service.Approve(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claim, nil)
}

// Reject godoc
// @Summary Reject a claim
// @Description Reject a claim with a mandatory reason
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Claim ID"
// @Param payload body dto.RejectClaimRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /claims/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	principal := claimsFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.RejectClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "rejection reason required"))
		return
	}

	claim, err := h.service.Reject(c.Request.Context(), principal, c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claim, nil)
}

// MarkPaid godoc
// @Summary Settle a claim
// @Description Mark a fully approved claim as paid (HR only)
// @Tags Approvals
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /claims/{id}/pay [post]
func (h *ApprovalHandler) MarkPaid(c *gin.Context) {
	principal := claimsFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	claim, err := h.service.MarkPaid(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claim, nil)
}
