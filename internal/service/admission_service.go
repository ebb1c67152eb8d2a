package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ims-admission-api/internal/events"
	"github.com/noah-isme/ims-admission-api/internal/lifecycle"
	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/internal/repository"
	appErrors "github.com/noah-isme/ims-admission-api/pkg/errors"
)

type admissionStore interface {
	GetByID(ctx context.Context, id string) (*models.AdmissionRecord, error)
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, int, error)
	ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]models.AdmissionRecord, error)
	ApplyTransition(ctx context.Context, params repository.ApplyTransitionParams) (*models.TransitionEntry, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type transitionNotifier interface {
	NotifyTransition(ctx context.Context, record *models.AdmissionRecord, entry *models.TransitionEntry) (bool, error)
}

type transitionPublisher interface {
	PublishTransitioned(event events.AdmissionTransitionedEvent)
}

// TransitionOutcome bundles the updated record, the appended log entry, and
// any post-commit warnings. Warnings mark partial success: the transition is
// committed even when a follow-up step failed.
type TransitionOutcome struct {
	Record   models.AdmissionRecord
	Entry    *models.TransitionEntry
	Warnings []string
}

// AdmissionServiceConfig tunes caching and the installment schedule.
type AdmissionServiceConfig struct {
	CacheTTL         time.Duration
	InstallmentCycle time.Duration
}

// AdmissionService orchestrates the admission lifecycle: reads, the guarded
// transition write, and the post-commit fan-out to cache, notifications,
// events, and metrics.
type AdmissionService struct {
	repo      admissionStore
	registry  *lifecycle.Registry
	lifecycle *lifecycle.Validator
	audit     auditLogger
	cache     *CacheService
	metrics   *MetricsService
	notifier  transitionNotifier
	publisher transitionPublisher
	logger    *zap.Logger
	now       func() time.Time
	cfg       AdmissionServiceConfig
}

// AdmissionServiceParams groups constructor dependencies.
type AdmissionServiceParams struct {
	Repo      admissionStore
	Registry  *lifecycle.Registry
	Audit     auditLogger
	Cache     *CacheService
	Metrics   *MetricsService
	Notifier  transitionNotifier
	Publisher transitionPublisher
	Logger    *zap.Logger
	Config    AdmissionServiceConfig
}

// NewAdmissionService constructs an AdmissionService with sane defaults.
func NewAdmissionService(params AdmissionServiceParams) *AdmissionService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.InstallmentCycle <= 0 {
		cfg.InstallmentCycle = 720 * time.Hour
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionService{
		repo:      params.Repo,
		registry:  params.Registry,
		lifecycle: lifecycle.NewValidator(params.Registry),
		audit:     params.Audit,
		cache:     params.Cache,
		metrics:   params.Metrics,
		notifier:  params.Notifier,
		publisher: params.Publisher,
		logger:    logger,
		now:       time.Now,
		cfg:       cfg,
	}
}

// Registry exposes the transition table for introspection endpoints.
func (s *AdmissionService) Registry() *lifecycle.Registry {
	return s.registry
}

// List returns admissions matching the filter. The boolean indicates whether
// data originated from cache.
func (s *AdmissionService) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, int, bool, error) {
	cacheKey := admissionListKey(filter)
	var cached admissionListPayload
	if s.cache.Enabled() {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, 0, false, fmt.Errorf("get admissions cache: %w", err)
		} else if hit {
			return cached.Records, cached.Total, true, nil
		}
	}

	start := time.Now()
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admissions")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("admissions_list", time.Since(start))
	}
	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, admissionListPayload{Records: records, Total: total}, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("cache admissions list", zap.Error(err))
		}
	}
	return records, total, false, nil
}

// Get returns a single admission. The boolean indicates a cache hit.
func (s *AdmissionService) Get(ctx context.Context, id string) (*models.AdmissionRecord, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "admission id is required")
	}

	cacheKey := admissionRecordKey(id)
	var cached models.AdmissionRecord
	if s.cache.Enabled() {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get admission cache: %w", err)
		} else if hit {
			return &cached, true, nil
		}
	}

	start := time.Now()
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "admission not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("admissions_get", time.Since(start))
	}
	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, record, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("cache admission", zap.Error(err))
		}
	}
	return record, false, nil
}

// AvailableActions returns the actions the given role may trigger on the
// record right now, with prior-status restores resolved to their real target.
func (s *AdmissionService) AvailableActions(ctx context.Context, id string, role models.UserRole) (*models.AdmissionRecord, []models.ActionOption, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "admission id is required")
	}

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "admission not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission")
	}

	options := make([]models.ActionOption, 0, 4)
	for _, rule := range s.registry.ActionsFrom(record.Status) {
		result, err := s.lifecycle.Validate(record, lifecycle.Request{
			RecordID:  record.ID,
			Action:    rule.Action,
			ActorRole: role,
		})
		if err != nil || !result.Allowed {
			continue
		}
		options = append(options, models.ActionOption{Action: rule.Action, To: result.To})
	}
	return record, options, nil
}

// OverdueCandidates lists installment admissions whose next due date passed
// before the cutoff. The sweep feeds each one back through Transition.
func (s *AdmissionService) OverdueCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.AdmissionRecord, error) {
	records, err := s.repo.ListOverdue(ctx, cutoff, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overdue admissions")
	}
	return records, nil
}

// Transition validates and applies one lifecycle action. Denials come back
// as INVALID_TRANSITION with the validator's reason; a lost write race comes
// back as TRANSITION_CONFLICT. Post-commit steps never fail the call: a
// notification failure is reported through Warnings on the outcome.
func (s *AdmissionService) Transition(ctx context.Context, req lifecycle.Request, requestID string) (*TransitionOutcome, error) {
	if strings.TrimSpace(req.RecordID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "admission id is required")
	}
	if req.Action == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action is required")
	}

	record, err := s.repo.GetByID(ctx, req.RecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission")
	}

	result, err := s.lifecycle.Validate(record, req)
	if err != nil {
		var unknown *lifecycle.UnknownActionError
		if errors.As(err, &unknown) {
			return nil, appErrors.Clone(appErrors.ErrUnknownAction, unknown.Error())
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate transition")
	}
	if !result.Allowed {
		s.metrics.RecordTransition(req.Action, false)
		s.logger.Info("transition denied",
			zap.String("admission_id", req.RecordID),
			zap.String("action", string(req.Action)),
			zap.String("status", string(record.Status)),
			zap.String("actor_role", string(req.ActorRole)),
			zap.String("reason", result.Reason))
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, result.Reason)
	}

	rule, _ := s.registry.RuleFor(req.Action)
	now := s.now().UTC()

	params := repository.ApplyTransitionParams{
		RecordID:   record.ID,
		Action:     req.Action,
		From:       result.From,
		To:         result.To,
		ActorID:    optionalString(req.ActorID),
		ActorRole:  req.ActorRole,
		Reason:     optionalString(req.Reason),
		RequestID:  optionalString(requestID),
		OccurredAt: now,
	}
	if rule.StorePrior {
		prior := record.Status
		params.SetPrior = &prior
	}
	if rule.RestorePrior {
		params.ClearPrior = true
	}
	switch req.Action {
	case models.ActionVerifyInstallment, models.ActionCollectPayment:
		due := now.Add(s.cfg.InstallmentCycle)
		params.NextDueAt = &due
		params.SetNextDue = true
	case models.ActionVerifyFullPayment:
		// Full payment clears any scheduled installment.
		params.SetNextDue = true
	}

	entry, err := s.repo.ApplyTransition(ctx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrTransitionConflict, "admission was modified concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transition")
	}

	s.metrics.RecordTransition(req.Action, true)

	updated := *record
	updated.Status = result.To
	updated.UpdatedAt = entry.OccurredAt
	if params.SetPrior != nil {
		prior := *params.SetPrior
		updated.PriorStatus = &prior
	}
	if params.ClearPrior {
		updated.PriorStatus = nil
	}
	if params.SetNextDue {
		updated.NextInstallmentDueAt = params.NextDueAt
	}

	s.emitTransitionAudit(ctx, &updated, entry)

	if s.cache.Enabled() {
		if err := s.cache.InvalidateAdmissions(ctx); err != nil {
			s.logger.Warn("invalidate admissions cache", zap.Error(err))
		}
	}

	var warnings []string
	if s.notifier != nil {
		sent, err := s.notifier.NotifyTransition(ctx, &updated, entry)
		if err != nil {
			warnings = append(warnings, "transition applied but the student notification could not be delivered")
			s.metrics.RecordNotification(false)
			s.logger.Warn("transition notification failed",
				zap.String("admission_id", record.ID),
				zap.String("action", string(req.Action)),
				zap.Error(err))
		} else if sent {
			s.metrics.RecordNotification(true)
		}
	}

	if s.publisher != nil {
		s.publisher.PublishTransitioned(transitionEvent(&updated, entry))
	}

	s.logger.Info("admission transitioned",
		zap.String("admission_id", record.ID),
		zap.String("action", string(req.Action)),
		zap.String("from", string(result.From)),
		zap.String("to", string(result.To)),
		zap.String("actor_role", string(req.ActorRole)),
		zap.Int64("seq", entry.Seq))

	return &TransitionOutcome{Record: updated, Entry: entry, Warnings: warnings}, nil
}

func (s *AdmissionService) emitTransitionAudit(ctx context.Context, record *models.AdmissionRecord, entry *models.TransitionEntry) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     entry.ActorID,
		Action:     models.AuditActionTransition,
		Resource:   "admission",
		ResourceID: &record.ID,
		RequestID:  entry.RequestID,
		OldValues:  []byte(fmt.Sprintf(`{"status":%q}`, entry.FromStatus)),
		NewValues:  []byte(fmt.Sprintf(`{"status":%q,"action":%q}`, entry.ToStatus, entry.Action)),
		IPAddress:  "system",
		UserAgent:  "admission-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func transitionEvent(record *models.AdmissionRecord, entry *models.TransitionEntry) events.AdmissionTransitionedEvent {
	event := events.AdmissionTransitionedEvent{
		Seq:              entry.Seq,
		EntryID:          entry.ID,
		AdmissionID:      entry.AdmissionID,
		StudentProfileID: record.StudentProfileID,
		Action:           entry.Action,
		FromStatus:       entry.FromStatus,
		ToStatus:         entry.ToStatus,
		ActorRole:        entry.ActorRole,
		OccurredAt:       entry.OccurredAt,
	}
	if entry.RequestID != nil {
		event.RequestID = *entry.RequestID
	}
	return event
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}

type admissionListPayload struct {
	Records []models.AdmissionRecord `json:"records"`
	Total   int                      `json:"total"`
}
