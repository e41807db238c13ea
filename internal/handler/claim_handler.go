package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cmcs-platform/claims-api/internal/dto"
	"github.com/cmcs-platform/claims-api/internal/models"
	"github.com/cmcs-platform/claims-api/internal/service"
	"github.com/cmcs-platform/claims-api/pkg/config"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
	"github.com/cmcs-platform/claims-api/pkg/response"
)

// ClaimHandler exposes claim submission and retrieval endpoints.
type ClaimHandler struct {
	service *service.ClaimService
	cfg     config.ClaimsConfig
}

// NewClaimHandler creates a new handler.
func NewClaimHandler(svc *service.ClaimService, cfg config.ClaimsConfig) *ClaimHandler {
	return &ClaimHandler{service: svc, cfg: cfg}
}

// Submit godoc
// @Summary Submit a monthly claim
// @Description Submit hours worked for the current month with supporting documents
// @Tags Claims
// @Accept multipart/form-data
// @Produce json
// @Param hours_worked formData string true "Hours worked"
// @Param notes formData string false "Additional notes"
// @Param documents formData file false "Supporting documents"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /claims [post]
func (h *ClaimHandler) Submit(c *gin.Context) {
	principal := claimsFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	maxUpload := h.cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 * 1024 * 1024
	}
	// Hard cap on the whole request body: per-file limit plus form overhead.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload*8)

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart payload"))
		return
	}

	req := dto.SubmitClaimRequest{
		HoursWorked: c.PostForm("hours_worked"),
		Notes:       c.PostForm("notes"),
	}

	for _, header := range form.File["documents"] {
		// The declared size is checked before buffering so an oversized file
		// never gets read into memory.
		if header.Size > maxUpload {
			response.Error(c, appErrors.NewValidation(appErrors.FieldError{
				Field:   "documents",
				Message: fmt.Sprintf("file %q exceeds the maximum size of %d bytes", header.Filename, maxUpload),
			}))
			return
		}

		file, err := header.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read uploaded file"))
			return
		}
		content, err := io.ReadAll(io.LimitReader(file, maxUpload+1))
		file.Close()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read uploaded file"))
			return
		}
		if int64(len(content)) > maxUpload {
			response.Error(c, appErrors.NewValidation(appErrors.FieldError{
				Field:   "documents",
				Message: fmt.Sprintf("file %q exceeds the maximum size of %d bytes", header.Filename, maxUpload),
			}))
			return
		}

		req.Files = append(req.Files, dto.SubmittedFile{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        int64(len(content)),
			Content:     content,
		})
	}

	claim, err := h.service.Submit(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, claim)
}

// List godoc
// @Summary List claims
// @Description List claims visible to the current user
// @Tags Claims
// @Produce json
// @Param status query string false "Filter by status"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /claims [get]
func (h *ClaimHandler) List(c *gin.Context) {
	principal := claimsFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ClaimFilter{
		LecturerID: c.Query("lecturer_id"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.ClaimStatus(raw)
		if !models.ValidClaimStatus(status) {
			response.Error(c, appErrors.NewValidation(appErrors.FieldError{Field: "status", Message: fmt.Sprintf("unknown claim status %q", raw)}))
			return
		}
		filter.Status = &status
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	claims, pagination, err := h.service.List(c.Request.Context(), principal, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, claims, pagination)
}

// Get godoc
// @Summary Get claim detail
// @Description Fetch a claim with its line items and document metadata
// @Tags Claims
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /claims/{id} [get]
func (h *ClaimHandler) Get(c *gin.Context) {
	principal := claimsFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	claim, err := h.service.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, claim, nil)
}

// DownloadDocument godoc
// @Summary Download a claim document
// @Description Stream an attachment belonging to a visible claim
// @Tags Claims
// @Produce octet-stream
// @Param id path string true "Claim ID"
// @Param docId path string true "Document ID"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /claims/{id}/documents/{docId} [get]
func (h *ClaimHandler) DownloadDocument(c *gin.Context) {
	principal := claimsFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	doc, err := h.service.DownloadDocument(c.Request.Context(), principal, c.Param("id"), c.Param("docId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.OriginalFileName))
	c.Data(http.StatusOK, contentType, doc.Content)
}
