package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-admission-api/internal/models"
	appErrors "github.com/noah-isme/ims-admission-api/pkg/errors"
	"github.com/noah-isme/ims-admission-api/pkg/hashchain"
)

type transitionReaderStub struct {
	chains map[string][]models.TransitionEntry
	recent []models.TransitionEntry
	total  int
	err    error
}

func (m *transitionReaderStub) ListChain(ctx context.Context, admissionID string) ([]models.TransitionEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.chains[admissionID], nil
}

func (m *transitionReaderStub) ListRecent(ctx context.Context, filter models.TransitionFilter) ([]models.TransitionEntry, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	return m.recent, m.total, nil
}

func (m *transitionReaderStub) AdmissionIDs(ctx context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	ids := make([]string, 0, len(m.chains))
	for id := range m.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type chainHop struct {
	action models.Action
	from   models.AdmissionStatus
	to     models.AdmissionStatus
}

func buildChain(t *testing.T, chainer *hashchain.Chainer, admissionID string, hops []chainHop) []models.TransitionEntry {
	t.Helper()
	actor := "staff-1"
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	prev := hashchain.Genesis
	entries := make([]models.TransitionEntry, 0, len(hops))
	for i, hop := range hops {
		occurredAt := base.Add(time.Duration(i) * time.Minute)
		hash, err := chainer.EntryHash(hashchain.Entry{
			AdmissionID: admissionID,
			Action:      string(hop.action),
			FromStatus:  string(hop.from),
			ToStatus:    string(hop.to),
			ActorID:     actor,
			ActorRole:   string(models.RoleAdmin),
			OccurredAt:  occurredAt,
			PrevHash:    prev,
		})
		require.NoError(t, err)
		entries = append(entries, models.TransitionEntry{
			Seq:         int64(i + 1),
			ID:          fmt.Sprintf("ent-%d", i+1),
			AdmissionID: admissionID,
			Action:      hop.action,
			FromStatus:  hop.from,
			ToStatus:    hop.to,
			ActorID:     &actor,
			ActorRole:   models.RoleAdmin,
			PrevHash:    prev,
			EntryHash:   hash,
			OccurredAt:  occurredAt,
		})
		prev = hash
	}
	return entries
}

func approvalChain(t *testing.T, chainer *hashchain.Chainer, admissionID string) []models.TransitionEntry {
	t.Helper()
	return buildChain(t, chainer, admissionID, []chainHop{
		{models.ActionApproveAdmission, models.StatusPending, models.StatusApproved},
		{models.ActionVerifyFullPayment, models.StatusApproved, models.StatusFullPaymentVerified},
		{models.ActionEnableAccess, models.StatusFullPaymentVerified, models.StatusActive},
	})
}

func TestAuditVerifyChainIntact(t *testing.T) {
	chainer := hashchain.New("test-key")
	repo := &transitionReaderStub{chains: map[string][]models.TransitionEntry{
		"adm-1": approvalChain(t, chainer, "adm-1"),
	}}
	audit := &auditStub{}
	svc := NewAuditService(repo, chainer, audit, nil, zap.NewNop())

	report, err := svc.VerifyChain(context.Background(), "adm-1")
	require.NoError(t, err)

	assert.True(t, report.Intact)
	assert.Equal(t, 3, report.Entries)
	assert.Nil(t, report.BrokenSeq)
	assert.Empty(t, report.Problem)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionChainVerify, audit.logs[0].Action)
	assert.Equal(t, "admission_chain", audit.logs[0].Resource)
	require.NotNil(t, audit.logs[0].ResourceID)
	assert.Equal(t, "adm-1", *audit.logs[0].ResourceID)
	assert.Contains(t, string(audit.logs[0].NewValues), `"intact":true`)
}

func TestAuditVerifyChainDetectsRewrittenStatus(t *testing.T) {
	chainer := hashchain.New("test-key")
	entries := approvalChain(t, chainer, "adm-1")
	entries[1].ToStatus = models.StatusDropped
	repo := &transitionReaderStub{chains: map[string][]models.TransitionEntry{"adm-1": entries}}
	svc := NewAuditService(repo, chainer, nil, nil, zap.NewNop())

	report, err := svc.VerifyChain(context.Background(), "adm-1")
	require.NoError(t, err)

	assert.False(t, report.Intact)
	require.NotNil(t, report.BrokenSeq)
	assert.Equal(t, int64(2), *report.BrokenSeq)
	assert.Contains(t, report.Problem, "entry_hash")
}

func TestAuditVerifyChainDetectsBrokenLink(t *testing.T) {
	chainer := hashchain.New("test-key")
	entries := approvalChain(t, chainer, "adm-1")
	entries[2].PrevHash = hashchain.Genesis
	repo := &transitionReaderStub{chains: map[string][]models.TransitionEntry{"adm-1": entries}}
	svc := NewAuditService(repo, chainer, nil, nil, zap.NewNop())

	report, err := svc.VerifyChain(context.Background(), "adm-1")
	require.NoError(t, err)

	assert.False(t, report.Intact)
	require.NotNil(t, report.BrokenSeq)
	assert.Equal(t, int64(3), *report.BrokenSeq)
	assert.Contains(t, report.Problem, "prev_hash")
}

func TestAuditVerifyChainDetectsStatusWalkGap(t *testing.T) {
	chainer := hashchain.New("test-key")
	// Each entry hashes cleanly on its own, but the second one starts from a
	// status the first never reached.
	entries := buildChain(t, chainer, "adm-1", []chainHop{
		{models.ActionApproveAdmission, models.StatusPending, models.StatusApproved},
		{models.ActionSuspendStudent, models.StatusActive, models.StatusSuspended},
	})
	repo := &transitionReaderStub{chains: map[string][]models.TransitionEntry{"adm-1": entries}}
	svc := NewAuditService(repo, chainer, nil, nil, zap.NewNop())

	report, err := svc.VerifyChain(context.Background(), "adm-1")
	require.NoError(t, err)

	assert.False(t, report.Intact)
	require.NotNil(t, report.BrokenSeq)
	assert.Equal(t, int64(2), *report.BrokenSeq)
	assert.Contains(t, report.Problem, "does not continue the walk")
}

func TestAuditVerifyChainEmpty(t *testing.T) {
	chainer := hashchain.New("test-key")
	repo := &transitionReaderStub{chains: map[string][]models.TransitionEntry{}}
	svc := NewAuditService(repo, chainer, nil, nil, zap.NewNop())

	report, err := svc.VerifyChain(context.Background(), "adm-none")
	require.NoError(t, err)
	assert.True(t, report.Intact)
	assert.Equal(t, 0, report.Entries)
}

func TestAuditVerifyAll(t *testing.T) {
	chainer := hashchain.New("test-key")
	broken := approvalChain(t, chainer, "adm-2")
	broken[0].EntryHash = broken[1].EntryHash
	repo := &transitionReaderStub{chains: map[string][]models.TransitionEntry{
		"adm-1": approvalChain(t, chainer, "adm-1"),
		"adm-2": broken,
	}}
	audit := &auditStub{}
	svc := NewAuditService(repo, chainer, audit, nil, zap.NewNop())

	summary, err := svc.VerifyAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Intact)
	require.Len(t, summary.Broken, 1)
	assert.Equal(t, "adm-2", summary.Broken[0].AdmissionID)

	require.Len(t, audit.logs, 1)
	assert.Nil(t, audit.logs[0].ResourceID)
	assert.Contains(t, string(audit.logs[0].NewValues), `"broken":1`)
}

func TestAuditHistory(t *testing.T) {
	chainer := hashchain.New("test-key")
	repo := &transitionReaderStub{chains: map[string][]models.TransitionEntry{
		"adm-1": approvalChain(t, chainer, "adm-1"),
	}}
	svc := NewAuditService(repo, chainer, nil, nil, zap.NewNop())

	entries, err := svc.History(context.Background(), "adm-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, hashchain.Genesis, entries[0].PrevHash)
	assert.Equal(t, entries[0].EntryHash, entries[1].PrevHash)

	_, err = svc.History(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuditRecentWrapsRepositoryError(t *testing.T) {
	repo := &transitionReaderStub{err: errors.New("boom")}
	svc := NewAuditService(repo, hashchain.New("test-key"), nil, nil, zap.NewNop())

	_, _, err := svc.Recent(context.Background(), models.TransitionFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)

	repo.err = nil
	repo.recent = []models.TransitionEntry{{Seq: 9, AdmissionID: "adm-1"}}
	repo.total = 1
	entries, total, err := svc.Recent(context.Background(), models.TransitionFilter{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(9), entries[0].Seq)
}
