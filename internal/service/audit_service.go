package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ims-admission-api/internal/models"
	appErrors "github.com/noah-isme/ims-admission-api/pkg/errors"
	"github.com/noah-isme/ims-admission-api/pkg/hashchain"
)

type transitionReader interface {
	ListChain(ctx context.Context, admissionID string) ([]models.TransitionEntry, error)
	ListRecent(ctx context.Context, filter models.TransitionFilter) ([]models.TransitionEntry, int, error)
	AdmissionIDs(ctx context.Context) ([]string, error)
}

// AuditService reads the transition log and verifies its hash chain. It never
// writes entries; those are appended inside ApplyTransition only.
type AuditService struct {
	repo    transitionReader
	chainer *hashchain.Chainer
	audit   auditLogger
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuditService wires the trail reader to the chain verifier. A nil
// logger is replaced with a no-op one.
func NewAuditService(repo transitionReader, chainer *hashchain.Chainer, audit auditLogger, metrics *MetricsService, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		repo:    repo,
		chainer: chainer,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// History returns one admission's transition entries in chain order, genesis
// first. A record that never transitioned yields an empty slice, not an error.
func (s *AuditService) History(ctx context.Context, admissionID string) ([]models.TransitionEntry, error) {
	if strings.TrimSpace(admissionID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "admission id is required")
	}
	entries, err := s.repo.ListChain(ctx, admissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transition history")
	}
	return entries, nil
}

// Recent lists transition entries across all admissions, newest first.
func (s *AuditService) Recent(ctx context.Context, filter models.TransitionFilter) ([]models.TransitionEntry, int, error) {
	entries, total, err := s.repo.ListRecent(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent transitions")
	}
	return entries, total, nil
}

// VerifyChain recomputes one admission's hash linkage and status walk and
// records the check in the audit log.
func (s *AuditService) VerifyChain(ctx context.Context, admissionID string) (*models.ChainVerification, error) {
	if strings.TrimSpace(admissionID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "admission id is required")
	}
	report, err := s.verify(ctx, admissionID)
	if err != nil {
		return nil, err
	}
	s.emitVerifyAudit(ctx, &admissionID, fmt.Sprintf(`{"intact":%t,"entries":%d}`, report.Intact, report.Entries))
	return report, nil
}

// VerifyAll verifies every admission that has at least one transition entry.
// The nightly job calls this; a broken chain is logged and counted, never
// repaired.
func (s *AuditService) VerifyAll(ctx context.Context) (*models.ChainVerificationSummary, error) {
	ids, err := s.repo.AdmissionIDs(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admissions for verification")
	}

	summary := &models.ChainVerificationSummary{CheckedAt: s.now().UTC()}
	for _, id := range ids {
		report, err := s.verify(ctx, id)
		if err != nil {
			return nil, err
		}
		summary.Checked++
		if report.Intact {
			summary.Intact++
			continue
		}
		summary.Broken = append(summary.Broken, *report)
	}

	s.emitVerifyAudit(ctx, nil, fmt.Sprintf(`{"checked":%d,"intact":%d,"broken":%d}`, summary.Checked, summary.Intact, len(summary.Broken)))
	return summary, nil
}

func (s *AuditService) verify(ctx context.Context, admissionID string) (*models.ChainVerification, error) {
	entries, err := s.repo.ListChain(ctx, admissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transition history")
	}

	report := &models.ChainVerification{
		AdmissionID: admissionID,
		Entries:     len(entries),
		Intact:      true,
		CheckedAt:   s.now().UTC(),
	}

	prevHash := hashchain.Genesis
	var prevTo models.AdmissionStatus
	for i, entry := range entries {
		problem := s.checkEntry(entry, prevHash, prevTo, i == 0)
		if problem != "" {
			seq := entry.Seq
			report.Intact = false
			report.BrokenSeq = &seq
			report.Problem = problem
			break
		}
		prevHash = entry.EntryHash
		prevTo = entry.ToStatus
	}

	if s.metrics != nil {
		s.metrics.RecordChainVerification(report.Intact)
	}
	if !report.Intact {
		s.logger.Warn("transition chain broken",
			zap.String("admission_id", admissionID),
			zap.Int64p("seq", report.BrokenSeq),
			zap.String("problem", report.Problem))
	}
	return report, nil
}

func (s *AuditService) checkEntry(entry models.TransitionEntry, prevHash string, prevTo models.AdmissionStatus, first bool) string {
	if entry.PrevHash != prevHash {
		return "prev_hash does not match the previous entry"
	}
	if !first && entry.FromStatus != prevTo {
		return fmt.Sprintf("from_status %s does not continue the walk from %s", entry.FromStatus, prevTo)
	}

	actorID := ""
	if entry.ActorID != nil {
		actorID = *entry.ActorID
	}
	computed, err := s.chainer.EntryHash(hashchain.Entry{
		AdmissionID: entry.AdmissionID,
		Action:      string(entry.Action),
		FromStatus:  string(entry.FromStatus),
		ToStatus:    string(entry.ToStatus),
		ActorID:     actorID,
		ActorRole:   string(entry.ActorRole),
		OccurredAt:  entry.OccurredAt,
		PrevHash:    entry.PrevHash,
	})
	if err != nil {
		return fmt.Sprintf("entry hash could not be recomputed: %v", err)
	}
	if computed != entry.EntryHash {
		return "entry_hash does not match the recomputed entry"
	}
	return ""
}

func (s *AuditService) emitVerifyAudit(ctx context.Context, admissionID *string, payload string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     models.AuditActionChainVerify,
		Resource:   "admission_chain",
		ResourceID: admissionID,
		NewValues:  []byte(payload),
		IPAddress:  "system",
		UserAgent:  "admission-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
