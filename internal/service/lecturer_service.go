package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cmcs-platform/claims-api/internal/dto"
	"github.com/cmcs-platform/claims-api/internal/models"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
)

type lecturerRepository interface {
	List(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, int, error)
	FindByID(ctx context.Context, id string) (*models.Lecturer, error)
	FindActiveByEmail(ctx context.Context, email string) (*models.Lecturer, error)
	FindActiveByNameContains(ctx context.Context, name string) (*models.Lecturer, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, lecturer *models.Lecturer) error
	Update(ctx context.Context, lecturer *models.Lecturer) error
	Deactivate(ctx context.Context, id string) error
}

// LecturerService manages the lecturer register and resolves the lecturer
// profile behind an authenticated principal.
type LecturerService struct {
	repo      lecturerRepository
	validator *validator.Validate
	dashboard dashboardInvalidator
	logger    *zap.Logger
}

// NewLecturerService constructs a LecturerService.
func NewLecturerService(repo lecturerRepository, validate *validator.Validate, logger *zap.Logger) *LecturerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &LecturerService{repo: repo, validator: validate, logger: logger}
}

// SetDashboardCache wires the dashboard cache so register changes drop the
// stale lecturer counters.
func (s *LecturerService) SetDashboardCache(cache dashboardInvalidator) {
	s.dashboard = cache
}

// List returns lecturers matching the filter with pagination metadata.
func (s *LecturerService) List(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, *models.Pagination, error) {
	lecturers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lecturers")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	return lecturers, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get fetches a single lecturer.
func (s *LecturerService) Get(ctx context.Context, id string) (*models.Lecturer, error) {
	lecturer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lecturer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	return lecturer, nil
}

// Create registers a new lecturer with a positive hourly rate.
func (s *LecturerService) Create(ctx context.Context, req dto.CreateLecturerRequest) (*models.Lecturer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lecturer payload")
	}

	rate, err := parsePositiveRate(req.HourlyRate)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check lecturer email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a lecturer with this email already exists")
	}

	lecturer := &models.Lecturer{
		Name:       req.Name,
		Email:      req.Email,
		HourlyRate: rate,
		Active:     true,
	}
	if err := s.repo.Create(ctx, lecturer); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lecturer")
	}

	if s.dashboard != nil {
		s.dashboard.Invalidate(ctx)
	}

	s.logger.Info("lecturer created", zap.String("lecturer_id", lecturer.ID))
	return lecturer, nil
}

// Update modifies a lecturer record. Rate changes never touch amounts already
// snapshotted onto submitted claims.
func (s *LecturerService) Update(ctx context.Context, id string, req dto.UpdateLecturerRequest) (*models.Lecturer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lecturer payload")
	}

	lecturer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && *req.Email != lecturer.Email {
		exists, err := s.repo.ExistsByEmail(ctx, *req.Email, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check lecturer email")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a lecturer with this email already exists")
		}
		lecturer.Email = *req.Email
	}
	if req.Name != nil {
		lecturer.Name = *req.Name
	}
	if req.HourlyRate != nil {
		rate, err := parsePositiveRate(*req.HourlyRate)
		if err != nil {
			return nil, err
		}
		lecturer.HourlyRate = rate
	}
	if req.Active != nil {
		lecturer.Active = *req.Active
	}

	if err := s.repo.Update(ctx, lecturer); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lecturer")
	}

	if s.dashboard != nil {
		s.dashboard.Invalidate(ctx)
	}
	return lecturer, nil
}

// Deactivate soft-deletes a lecturer. Existing claims keep their snapshots.
func (s *LecturerService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate lecturer")
	}

	if s.dashboard != nil {
		s.dashboard.Invalidate(ctx)
	}
	return nil
}

// ResolveForPrincipal maps an authenticated user onto an active lecturer
// profile. Exact email match wins; a name substring match is the fallback.
// Without a match the submission fails closed rather than inventing a rate.
func (s *LecturerService) ResolveForPrincipal(ctx context.Context, claims *models.JWTClaims) (*models.Lecturer, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	if claims.Email != "" {
		lecturer, err := s.repo.FindActiveByEmail(ctx, claims.Email)
		if err == nil {
			return lecturer, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lecturer by email")
		}
	}

	if claims.FullName != "" {
		lecturer, err := s.repo.FindActiveByNameContains(ctx, claims.FullName)
		if err == nil {
			return lecturer, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lecturer by name")
		}
	}

	return nil, appErrors.Clone(appErrors.ErrNoLecturerProfile, "")
}

// maxHourlyRate caps the rate a lecturer can be registered with; claim line
// rates are snapshots of it, so the cap bounds them too.
var maxHourlyRate = decimal.NewFromInt(10000)

func parsePositiveRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, appErrors.NewValidation(appErrors.FieldError{Field: "hourly_rate", Message: "hourly rate must be a decimal number"})
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, appErrors.NewValidation(appErrors.FieldError{Field: "hourly_rate", Message: "hourly rate must be greater than zero"})
	}
	if rate.GreaterThan(maxHourlyRate) {
		return decimal.Decimal{}, appErrors.NewValidation(appErrors.FieldError{Field: "hourly_rate", Message: fmt.Sprintf("hourly rate cannot exceed %s", maxHourlyRate)})
	}
	return rate, nil
}
