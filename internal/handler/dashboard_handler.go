package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cmcs-platform/claims-api/internal/service"
	"github.com/cmcs-platform/claims-api/pkg/response"
)

// DashboardHandler exposes the HR dashboard endpoint.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Stats godoc
// @Summary HR dashboard
// @Description Aggregate claim counts, totals, and recent activity
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
