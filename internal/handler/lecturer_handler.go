package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cmcs-platform/claims-api/internal/dto"
	"github.com/cmcs-platform/claims-api/internal/models"
	"github.com/cmcs-platform/claims-api/internal/service"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
	"github.com/cmcs-platform/claims-api/pkg/response"
)

// LecturerHandler exposes the HR lecturer register endpoints.
type LecturerHandler struct {
	service *service.LecturerService
}

// NewLecturerHandler creates a new handler.
func NewLecturerHandler(svc *service.LecturerService) *LecturerHandler {
	return &LecturerHandler{service: svc}
}

// List godoc
// @Summary List lecturers
// @Description List lecturers with optional search and active filters
// @Tags Lecturers
// @Produce json
// @Param search query string false "Search by name or email"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lecturers [get]
func (h *LecturerHandler) List(c *gin.Context) {
	filter := models.LecturerFilter{
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.NewValidation(appErrors.FieldError{Field: "active", Message: "active must be true or false"}))
			return
		}
		filter.Active = &active
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	lecturers, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lecturers, pagination)
}

// Get godoc
// @Summary Get lecturer
// @Description Fetch a single lecturer
// @Tags Lecturers
// @Produce json
// @Param id path string true "Lecturer ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lecturers/{id} [get]
func (h *LecturerHandler) Get(c *gin.Context) {
	lecturer, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lecturer, nil)
}

// Create godoc
// @Summary Register lecturer
// @Description Register a new lecturer with an hourly rate (HR only)
// @Tags Lecturers
// @Accept json
// @Produce json
// @Param payload body dto.CreateLecturerRequest true "Lecturer payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lecturers [post]
func (h *LecturerHandler) Create(c *gin.Context) {
	var req dto.CreateLecturerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lecturer payload"))
		return
	}

	lecturer, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lecturer)
}

// Update godoc
// @Summary Update lecturer
// @Description Update lecturer details; rate changes do not touch submitted claims
// @Tags Lecturers
// @Accept json
// @Produce json
// @Param id path string true "Lecturer ID"
// @Param payload body dto.UpdateLecturerRequest true "Lecturer payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lecturers/{id} [put]
func (h *LecturerHandler) Update(c *gin.Context) {
	var req dto.UpdateLecturerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lecturer payload"))
		return
	}

	lecturer, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lecturer, nil)
}

// Deactivate godoc
// @Summary Deactivate lecturer
// @Description Soft-delete a lecturer; existing claims keep their snapshots
// @Tags Lecturers
// @Produce json
// @Param id path string true "Lecturer ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lecturers/{id} [delete]
func (h *LecturerHandler) Deactivate(c *gin.Context) {
	if err := h.service.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
