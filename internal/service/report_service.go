package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cmcs-platform/claims-api/internal/dto"
	"github.com/cmcs-platform/claims-api/internal/models"
	"github.com/cmcs-platform/claims-api/internal/repository"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
	"github.com/cmcs-platform/claims-api/pkg/jobs"
	"github.com/cmcs-platform/claims-api/pkg/storage"
)

type reportJobRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type reportQueue interface {
	Enqueue(job jobs.Job) error
}

// ReportService queues report jobs, processes them on the worker pool and
// resolves signed download tokens for finished artifacts.
type ReportService struct {
	repo      reportJobRepository
	exporter  *ExportService
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	queue     reportQueue
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	retention time.Duration
}

// NewReportService constructs a ReportService. The queue is attached later
// via SetQueue because the queue handler needs the service itself.
func NewReportService(repo reportJobRepository, exporter *ExportService, store *storage.LocalStorage, signer *storage.SignedURLSigner, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, retention time.Duration) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &ReportService{
		repo:      repo,
		exporter:  exporter,
		store:     store,
		signer:    signer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		retention: retention,
	}
}

// SetQueue wires the worker queue used for asynchronous processing.
func (s *ReportService) SetQueue(q reportQueue) {
	s.queue = q
}

// CreateJob validates the request, persists a queued job and enqueues it.
func (s *ReportService) CreateJob(ctx context.Context, principal *models.JWTClaims, req dto.ReportRequest) (*dto.ReportJobResponse, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report request")
	}

	job := &models.ReportJob{
		Type: req.Type,
		Params: models.ReportJobParams{
			Format:     req.Format,
			LecturerID: req.LecturerID,
			Month:      req.Month,
			Year:       req.Year,
			StartDate:  req.StartDate,
			EndDate:    req.EndDate,
			Status:     req.Status,
		},
		Status:    models.ReportStatusQueued,
		Progress:  0,
		CreatedBy: principal.UserID,
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist report job")
	}

	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "report queue unavailable")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}

	s.logger.Info("report job queued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("format", string(job.Params.Format)))

	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus returns job progress for its creator or HR.
func (s *ReportService) GetStatus(ctx context.Context, principal *models.JWTClaims, jobID string) (*dto.ReportStatusResponse, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}

	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}

	if job.CreatedBy != principal.UserID && principal.Role != models.RoleHR {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report job belongs to another user")
	}

	return &dto.ReportStatusResponse{
		ID:        job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
		Error:     job.ErrorMessage,
	}, nil
}

// HandleJob is the queue handler: it renders the report and stores the file.
func (s *ReportService) HandleJob(ctx context.Context, queued jobs.Job) error {
	job, err := s.repo.GetByID(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", queued.ID, err)
	}
	if job.Status == models.ReportStatusFinished {
		return nil
	}

	started := time.Now()
	processing := models.ReportStatusProcessing
	progress := 10
	if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{Status: &processing, Progress: &progress}); err != nil {
		return fmt.Errorf("mark report job processing: %w", err)
	}

	data, title, err := s.exporter.BuildDataset(ctx, job.Type, job.Params)
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	progress = 60
	_ = s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{Progress: &progress})

	content, err := s.exporter.Render(data, job.Params.Format, title)
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	relPath := fmt.Sprintf("reports/%s.%s", job.ID, job.Params.Format)
	if _, err := s.store.Save(relPath, content); err != nil {
		return s.failJob(ctx, job, err)
	}

	token, _, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return s.failJob(ctx, job, err)
	}
	resultURL := fmt.Sprintf("/api/v1/reports/download/%s", token)

	finished := models.ReportStatusFinished
	progress = 100
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:     &finished,
		Progress:   &progress,
		ResultURL:  &resultURL,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("mark report job finished: %w", err)
	}

	s.metrics.ObserveReportGeneration(string(job.Type), string(job.Params.Format), time.Since(started))
	s.logger.Info("report job finished",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Duration("took", time.Since(started)))
	return nil
}

// failJob records the failure on the job row. Validation and no-data failures
// are final; everything else propagates so the queue retries.
func (s *ReportService) failJob(ctx context.Context, job *models.ReportJob, cause error) error {
	failed := models.ReportStatusFailed
	msg := cause.Error()
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:       &failed,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Error("failed to record report job failure", zap.String("job_id", job.ID), zap.Error(err))
	}

	s.metrics.RecordReportFailure(string(job.Type))

	var appErr *appErrors.Error
	if errors.As(cause, &appErr) && appErr.Status < 500 {
		s.logger.Warn("report job rejected",
			zap.String("job_id", job.ID),
			zap.String("code", appErr.Code),
			zap.String("reason", appErr.Message))
		return nil
	}
	return cause
}

// ResolveDownload validates a signed token and opens the stored artifact.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}

	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report is not ready")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report file no longer available")
	}

	filename := fmt.Sprintf("%s-report.%s", job.Type, job.Params.Format)
	return file, filename, nil
}

// Cleanup removes artifacts for finished jobs older than the retention window.
func (s *ReportService) Cleanup(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retention)
	jobsToClean, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Warn("report cleanup scan failed", zap.Error(err))
		return
	}
	for _, job := range jobsToClean {
		relPath := fmt.Sprintf("reports/%s.%s", job.ID, job.Params.Format)
		if err := s.store.Delete(relPath); err != nil {
			s.logger.Warn("failed to delete report artifact", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
	}
	if _, err := s.store.CleanupOlderThan(s.retention); err != nil {
		s.logger.Warn("report storage sweep failed", zap.Error(err))
	}
}

// StartCleanupLoop runs Cleanup on the interval until the context ends.
func (s *ReportService) StartCleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup(ctx)
			}
		}
	}()
}
