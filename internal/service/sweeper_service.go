package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-admission-api/internal/lifecycle"
	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/pkg/config"
)

type overdueSource interface {
	OverdueCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.AdmissionRecord, error)
	Transition(ctx context.Context, req lifecycle.Request, requestID string) (*TransitionOutcome, error)
}

type chainVerifier interface {
	VerifyAll(ctx context.Context) (*models.ChainVerificationSummary, error)
}

const sweepBatchSize = 200

// SweeperService owns the scheduled maintenance jobs: marking overdue
// installments and the nightly chain verification. Sweep transitions go
// through the same path as HTTP callers, so each one is validated, audited
// and published like any other.
type SweeperService struct {
	admissions overdueSource
	audit      chainVerifier
	cfg        config.SweepConfig
	cron       *cron.Cron
	logger     *zap.Logger
	now        func() time.Time
	batchSize  int
}

// NewSweeperService builds the cron-driven sweeper. Start must be called
// before any schedule fires.
func NewSweeperService(admissions overdueSource, audit chainVerifier, cfg config.SweepConfig, logger *zap.Logger) *SweeperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweeperService{
		admissions: admissions,
		audit:      audit,
		cfg:        cfg,
		cron:       cron.New(),
		logger:     logger,
		now:        time.Now,
		batchSize:  sweepBatchSize,
	}
}

// Start registers the cron entries and begins scheduling. With the sweep
// disabled in config this is a no-op, so main can call it unconditionally.
func (s *SweeperService) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("sweep disabled, scheduler not started")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.OverdueSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.SweepOverdue(ctx); err != nil {
			s.logger.Error("overdue sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule overdue sweep: %w", err)
	}

	if _, err := s.cron.AddFunc(s.cfg.ChainVerifySpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := s.VerifyChains(ctx); err != nil {
			s.logger.Error("chain verification sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule chain verification: %w", err)
	}

	s.cron.Start()
	s.logger.Info("sweep scheduler started",
		zap.String("overdue_spec", s.cfg.OverdueSpec),
		zap.String("chain_verify_spec", s.cfg.ChainVerifySpec))
	return nil
}

// Stop halts scheduling and waits for any running job to finish.
func (s *SweeperService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// SweepOverdue applies markOverdue as the SYSTEM actor to every ACTIVE
// installment admission whose due date has passed. A record that fails to
// transition (for example one a concurrent caller just moved) is logged and
// skipped; the sweep keeps going.
func (s *SweeperService) SweepOverdue(ctx context.Context) (int, error) {
	cutoff := s.now().UTC()
	records, err := s.admissions.OverdueCandidates(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, record := range records {
		_, err := s.admissions.Transition(ctx, lifecycle.Request{
			RecordID:  record.ID,
			Action:    models.ActionMarkOverdue,
			ActorRole: models.RoleSystem,
			Reason:    "installment past due",
		}, "")
		if err != nil {
			s.logger.Warn("overdue sweep skipped record",
				zap.String("admission_id", record.ID),
				zap.Error(err))
			continue
		}
		marked++
	}

	if len(records) > 0 {
		s.logger.Info("overdue sweep finished",
			zap.Int("candidates", len(records)),
			zap.Int("marked", marked))
	}
	return marked, nil
}

// VerifyChains runs the full chain verification and logs the summary.
func (s *SweeperService) VerifyChains(ctx context.Context) (*models.ChainVerificationSummary, error) {
	summary, err := s.audit.VerifyAll(ctx)
	if err != nil {
		return nil, err
	}

	if len(summary.Broken) > 0 {
		s.logger.Error("chain verification found corrupt chains",
			zap.Int("checked", summary.Checked),
			zap.Int("broken", len(summary.Broken)))
	} else {
		s.logger.Info("chain verification clean", zap.Int("checked", summary.Checked))
	}
	return summary, nil
}
