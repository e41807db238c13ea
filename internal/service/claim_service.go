package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cmcs-platform/claims-api/internal/dto"
	"github.com/cmcs-platform/claims-api/internal/models"
	"github.com/cmcs-platform/claims-api/pkg/config"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
)

// maxNotesLength bounds the free-text notes carried onto the claim line.
const maxNotesLength = 500

type claimRepository interface {
	Create(ctx context.Context, claim *models.Claim) error
	FindDetail(ctx context.Context, id string) (*models.Claim, error)
	List(ctx context.Context, filter models.ClaimFilter) ([]models.Claim, int, error)
	FindDocument(ctx context.Context, claimID, docID string) (*models.Document, error)
}

type lecturerResolver interface {
	ResolveForPrincipal(ctx context.Context, claims *models.JWTClaims) (*models.Lecturer, error)
}

// ClaimService handles claim submission and retrieval. Amounts are computed
// once at submission from the resolved lecturer's rate and never recomputed.
type ClaimService struct {
	repo      claimRepository
	resolver  lecturerResolver
	cfg       config.ClaimsConfig
	dashboard dashboardInvalidator
	logger    *zap.Logger
}

// NewClaimService constructs a ClaimService.
func NewClaimService(repo claimRepository, resolver lecturerResolver, cfg config.ClaimsConfig, logger *zap.Logger) *ClaimService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimService{repo: repo, resolver: resolver, cfg: cfg, logger: logger}
}

// SetDashboardCache wires the dashboard cache so new submissions drop the
// stale pending counters.
func (s *ClaimService) SetDashboardCache(cache dashboardInvalidator) {
	s.dashboard = cache
}

// Submit validates and persists a monthly claim for the authenticated
// lecturer. The whole submission is atomic: claim, line and documents land
// together or not at all.
func (s *ClaimService) Submit(ctx context.Context, principal *models.JWTClaims, req dto.SubmitClaimRequest) (*models.Claim, error) {
	hours, err := s.validateSubmission(req)
	if err != nil {
		return nil, err
	}

	lecturer, err := s.resolver.ResolveForPrincipal(ctx, principal)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	claim := &models.Claim{
		LecturerID:   lecturer.ID,
		LecturerName: lecturer.Name,
		Month:        month,
		TotalHours:   hours,
		TotalAmount:  hours.Mul(lecturer.HourlyRate),
		Status:       models.ClaimStatusPending,
		Items: []models.ClaimItem{
			{
				Date:        now,
				Hours:       hours,
				Rate:        lecturer.HourlyRate,
				Description: req.Notes,
			},
		},
	}

	for _, file := range req.Files {
		claim.Documents = append(claim.Documents, models.Document{
			FileName:         storedFileName(file.FileName),
			OriginalFileName: file.FileName,
			Content:          file.Content,
			ContentType:      file.ContentType,
			SizeBytes:        file.Size,
		})
	}

	if err := s.repo.Create(ctx, claim); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist claim")
	}

	if s.dashboard != nil {
		s.dashboard.Invalidate(ctx)
	}

	s.logger.Info("claim submitted",
		zap.String("claim_id", claim.ID),
		zap.String("lecturer_id", lecturer.ID),
		zap.String("total_amount", claim.TotalAmount.String()))

	return claim, nil
}

// List returns claims visible to the principal. Lecturers only ever see their
// own; approvers and HR see everything.
func (s *ClaimService) List(ctx context.Context, principal *models.JWTClaims, filter models.ClaimFilter) ([]models.Claim, *models.Pagination, error) {
	if principal == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}

	if principal.Role == models.RoleLecturer {
		lecturer, err := s.resolver.ResolveForPrincipal(ctx, principal)
		if err != nil {
			var appErr *appErrors.Error
			if errors.As(err, &appErr) && appErr.Code == appErrors.ErrNoLecturerProfile.Code {
				return []models.Claim{}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 0}, nil
			}
			return nil, nil, err
		}
		filter.LecturerID = lecturer.ID
	}

	claims, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list claims")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	return claims, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get fetches a claim with items and document metadata, enforcing ownership
// for lecturer principals.
func (s *ClaimService) Get(ctx context.Context, principal *models.JWTClaims, id string) (*models.Claim, error) {
	claim, err := s.repo.FindDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "claim not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load claim")
	}

	if err := s.authorizeAccess(ctx, principal, claim.LecturerID); err != nil {
		return nil, err
	}
	return claim, nil
}

// DownloadDocument streams an attachment belonging to a claim the principal
// may see.
func (s *ClaimService) DownloadDocument(ctx context.Context, principal *models.JWTClaims, claimID, docID string) (*models.Document, error) {
	claim, err := s.repo.FindDetail(ctx, claimID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "claim not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load claim")
	}

	if err := s.authorizeAccess(ctx, principal, claim.LecturerID); err != nil {
		return nil, err
	}

	doc, err := s.repo.FindDocument(ctx, claimID, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

func (s *ClaimService) authorizeAccess(ctx context.Context, principal *models.JWTClaims, lecturerID string) error {
	if principal == nil {
		return appErrors.ErrUnauthorized
	}
	if principal.Role != models.RoleLecturer {
		return nil
	}
	lecturer, err := s.resolver.ResolveForPrincipal(ctx, principal)
	if err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "claim does not belong to you")
	}
	if lecturer.ID != lecturerID {
		return appErrors.Clone(appErrors.ErrForbidden, "claim does not belong to you")
	}
	return nil
}

// validateSubmission checks hours and attachments, collecting every problem
// into one validation error instead of failing on the first.
func (s *ClaimService) validateSubmission(req dto.SubmitClaimRequest) (decimal.Decimal, error) {
	var fields []appErrors.FieldError
	var hours decimal.Decimal

	raw := strings.TrimSpace(req.HoursWorked)
	if raw == "" {
		fields = append(fields, appErrors.FieldError{Field: "hours_worked", Message: "hours worked is required"})
	} else {
		parsed, err := decimal.NewFromString(raw)
		switch {
		case err != nil:
			fields = append(fields, appErrors.FieldError{Field: "hours_worked", Message: "hours worked must be a decimal number"})
		case parsed.LessThanOrEqual(decimal.Zero):
			fields = append(fields, appErrors.FieldError{Field: "hours_worked", Message: "hours worked must be greater than zero"})
		case parsed.LessThan(decimal.NewFromFloat(s.minClaimHours())):
			fields = append(fields, appErrors.FieldError{Field: "hours_worked", Message: fmt.Sprintf("hours worked must be at least %g", s.minClaimHours())})
		case parsed.GreaterThan(decimal.NewFromFloat(s.maxMonthlyHours())):
			fields = append(fields, appErrors.FieldError{Field: "hours_worked", Message: fmt.Sprintf("hours worked cannot exceed %g per month", s.maxMonthlyHours())})
		default:
			hours = parsed
		}
	}

	if utf8.RuneCountInString(req.Notes) > maxNotesLength {
		fields = append(fields, appErrors.FieldError{Field: "notes", Message: fmt.Sprintf("notes cannot exceed %d characters", maxNotesLength)})
	}

	allowedList := s.cfg.AllowedExtensions
	if len(allowedList) == 0 {
		allowedList = []string{".pdf", ".docx", ".xlsx"}
	}
	allowed := make(map[string]struct{}, len(allowedList))
	for _, ext := range allowedList {
		allowed[strings.ToLower(strings.TrimSpace(ext))] = struct{}{}
	}
	for _, file := range req.Files {
		ext := strings.ToLower(filepath.Ext(file.FileName))
		if _, ok := allowed[ext]; !ok {
			fields = append(fields, appErrors.FieldError{
				Field:   "documents",
				Message: fmt.Sprintf("file %q has an unsupported type; allowed types are %s", file.FileName, strings.Join(allowedList, ", ")),
			})
			continue
		}
		if file.Size > s.maxUploadBytes() {
			fields = append(fields, appErrors.FieldError{
				Field:   "documents",
				Message: fmt.Sprintf("file %q exceeds the maximum size of %d bytes", file.FileName, s.maxUploadBytes()),
			})
		}
	}

	if len(fields) > 0 {
		return decimal.Decimal{}, appErrors.NewValidation(fields...)
	}
	return hours, nil
}

func (s *ClaimService) minClaimHours() float64 {
	if s.cfg.MinClaimHours <= 0 {
		return 0.25
	}
	return s.cfg.MinClaimHours
}

func (s *ClaimService) maxMonthlyHours() float64 {
	if s.cfg.MaxMonthlyHours <= 0 {
		return 180
	}
	return s.cfg.MaxMonthlyHours
}

func (s *ClaimService) maxUploadBytes() int64 {
	if s.cfg.MaxUploadBytes <= 0 {
		return 10 * 1024 * 1024
	}
	return s.cfg.MaxUploadBytes
}

// storedFileName keeps the extension but replaces the base name with a
// timestamped slug so stored names never collide or carry path fragments.
func storedFileName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	return fmt.Sprintf("%d%s", time.Now().UTC().UnixNano(), ext)
}
