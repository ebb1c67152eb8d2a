package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-admission-api/internal/dto"
	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/internal/repository"
	appErrors "github.com/noah-isme/ims-admission-api/pkg/errors"
	"github.com/noah-isme/ims-admission-api/pkg/jobs"
	"github.com/noah-isme/ims-admission-api/pkg/storage"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

// ReportService owns the report job lifecycle: submission, status reads,
// download resolution, restart recovery, and expiry cleanup.
type ReportService struct {
	repo      reportJobStore
	queue     jobDispatcher
	exporter  *ExportService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReportServiceConfig
}

// ReportServiceConfig sets how long finished exports stay downloadable and
// how the worker retries failed generations.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ReportDownload is an open export file plus the metadata the handler needs
// to stream it. The caller owns closing File.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// NewReportService wires the job store, dispatcher, and exporter together
// and registers the report enum validators.
func NewReportService(repo reportJobStore, queue jobDispatcher, exporter *ExportService, validate *validator.Validate, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	svc := &ReportService{
		repo:      repo,
		queue:     queue,
		exporter:  exporter,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
	svc.validator.RegisterValidation("report_type", func(fl validator.FieldLevel) bool {
		return models.IsValidReportType(models.ReportType(fl.Field().String()))
	})
	svc.validator.RegisterValidation("report_format", func(fl validator.FieldLevel) bool {
		return models.IsValidReportFormat(models.ReportFormat(fl.Field().String()))
	})
	return svc
}

// CreateJob validates the request, persists the job, and enqueues processing.
func (s *ReportService) CreateJob(ctx context.Context, req dto.ReportRequest, actorID string) (*dto.ReportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report request")
	}
	if err := validateReportFilters(req); err != nil {
		return nil, err
	}
	job := &models.ReportJob{
		Type: req.Type,
		Params: models.ReportJobParams{
			Status:        req.Status,
			PaymentMethod: req.PaymentMethod,
			AdmissionID:   req.AdmissionID,
			Format:        req.Format,
		},
		Status:    models.ReportStatusQueued,
		Progress:  0,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	s.logger.Info("report job submitted",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("format", string(req.Format)),
		zap.String("created_by", actorID),
	)
	return &dto.ReportJobResponse{
		ID:       job.ID,
		Type:     job.Type,
		Status:   job.Status,
		Progress: job.Progress,
		QueuedAt: job.CreatedAt,
	}, nil
}

// GetStatus exposes job metadata to clients. Non-admin callers only see jobs
// they created.
func (s *ReportService) GetStatus(ctx context.Context, id string, actorID string, role models.UserRole) (*dto.ReportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if role != models.RoleAdmin && role != models.RoleSuperAdmin && job.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ReportStatusResponse{
		ID:         job.ID,
		Type:       job.Type,
		Status:     job.Status,
		Progress:   job.Progress,
		QueuedAt:   job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ResultURL != nil && *job.ResultURL != "" {
		resp.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload turns a signed token back into an open export file. The
// token alone is not enough; the job row must still advertise it and the
// job must have finished.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	filename := filepath.Base(relPath)
	return &ReportDownload{
		File:      file,
		Filename:  filename,
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a process restart. The job
// table is the durable record; the in-memory queue starts empty.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("recover queued report jobs", zap.Error(err))
		return
	}
	requeued := 0
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Warn("requeue pending report job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	if requeued > 0 {
		s.logger.Info("requeued report jobs after restart", zap.Int("count", requeued))
	}
}

// StartCleanup runs the expiry sweep on a ticker until ctx is cancelled.
// A zero interval disables the sweep.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ReportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	for {
		batch, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			s.logger.Warn("list expired report jobs", zap.Error(err))
			return
		}
		if len(batch) == 0 {
			break
		}
		for _, job := range batch {
			s.purgeArtifact(ctx, job)
		}
		if len(batch) < 100 {
			break
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("filesystem cleanup", zap.Error(err))
	}
}

// purgeArtifact deletes the stored file and clears the job's result link so
// GetStatus stops advertising a download that no longer exists.
func (s *ReportService) purgeArtifact(ctx context.Context, job models.ReportJob) {
	if job.ResultURL == nil || *job.ResultURL == "" {
		return
	}
	token := tokenFromURL(*job.ResultURL)
	if token == "" {
		return
	}
	_, relPath, _, err := s.exporter.ParseToken(token, true)
	if err != nil {
		return
	}
	if err := s.exporter.Delete(relPath); err != nil {
		s.logger.Warn("delete expired export", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	cleared := ""
	if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{ResultURL: &cleared}); err != nil {
		s.logger.Warn("clear expired result link", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// markFailed is a best-effort terminal update on the submission path; the
// caller already holds the primary error to report.
func (s *ReportService) markFailed(ctx context.Context, id, msg string) {
	status := models.ReportStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateReportJobParams{
		Status:       &status,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("mark report job failed", zap.String("job_id", id), zap.Error(err))
	}
}

// validateReportFilters covers the optional filters the struct tags cannot
// express against the admission enums.
func validateReportFilters(req dto.ReportRequest) error {
	if req.Status != nil && !models.IsValidStatus(*req.Status) {
		return appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}
	if req.PaymentMethod != nil && !models.IsValidPaymentMethod(*req.PaymentMethod) {
		return appErrors.Clone(appErrors.ErrValidation, "unknown payment method filter")
	}
	if req.AdmissionID != nil && strings.TrimSpace(*req.AdmissionID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "admissionId must not be blank")
	}
	return nil
}

func tokenFromURL(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// ReportWorker runs queued jobs against the export service and writes the
// outcome back to the job row.
type ReportWorker struct {
	repo       reportJobStore
	exporter   exportGenerator
	logger     *zap.Logger
	maxRetries int
}

// NewReportWorker builds the queue consumer for report jobs.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReportWorker{
		repo:       repo,
		exporter:   exporter,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes one queue job. A generation error requeues the job until
// the attempt count reaches the retry cap, then marks it failed for good.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if err := w.setProcessing(ctx, job.ID); err != nil {
		return err
	}
	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		if job.Attempt >= w.maxRetries {
			w.failTerminal(ctx, job.ID, err)
		} else {
			w.requeue(ctx, job.ID, err)
		}
		return err
	}
	return w.finish(ctx, job.ID, result.URL)
}

func (w *ReportWorker) setProcessing(ctx context.Context, id string) error {
	processing := models.ReportStatusProcessing
	progress := 10
	return w.repo.Update(ctx, id, repository.UpdateReportJobParams{
		Status:   &processing,
		Progress: &progress,
	})
}

func (w *ReportWorker) requeue(ctx context.Context, id string, cause error) {
	queued := models.ReportStatusQueued
	reset := 0
	msg := cause.Error()
	if err := w.repo.Update(ctx, id, repository.UpdateReportJobParams{
		Status:       &queued,
		Progress:     &reset,
		ErrorMessage: &msg,
	}); err != nil {
		w.logger.Warn("requeue report job", zap.String("job_id", id), zap.Error(err))
	}
}

func (w *ReportWorker) failTerminal(ctx context.Context, id string, cause error) {
	failed := models.ReportStatusFailed
	progress := 100
	msg := cause.Error()
	now := time.Now().UTC()
	if err := w.repo.Update(ctx, id, repository.UpdateReportJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("mark report job failed", zap.String("job_id", id), zap.Error(err))
	}
	w.logger.Warn("report job failed permanently", zap.String("job_id", id), zap.Error(cause))
}

func (w *ReportWorker) finish(ctx context.Context, id, url string) error {
	finished := models.ReportStatusFinished
	progress := 100
	now := time.Now().UTC()
	cleared := ""
	if err := w.repo.Update(ctx, id, repository.UpdateReportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &cleared,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("mark report job finished", zap.String("job_id", id), zap.Error(err))
		return err
	}
	return nil
}
