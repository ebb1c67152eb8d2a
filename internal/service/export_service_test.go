package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/pkg/export"
	"github.com/noah-isme/ims-admission-api/pkg/storage"
)

type rosterStub struct {
	pages [][]models.AdmissionRecord
	total int
	calls int
}

func (m *rosterStub) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, int, error) {
	m.calls++
	idx := filter.Page - 1
	if idx < 0 || idx >= len(m.pages) {
		return nil, m.total, nil
	}
	return m.pages[idx], m.total, nil
}

type logStub struct {
	entries []models.TransitionEntry
}

func (m *logStub) ListRecent(ctx context.Context, filter models.TransitionFilter) ([]models.TransitionEntry, int, error) {
	if filter.Page > 1 {
		return nil, len(m.entries), nil
	}
	return m.entries, len(m.entries), nil
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func newExportServiceForTest(t *testing.T, admissions *rosterStub, transitions *logStub) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(admissions, transitions, store, signer, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store
}

func TestExportServiceGenerateRosterCSV(t *testing.T) {
	record := admissionRecord(models.StatusPending)
	admissions := &rosterStub{pages: [][]models.AdmissionRecord{{*record}}, total: 1}
	svc, store := newExportServiceForTest(t, admissions, &logStub{})

	job := &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeAdmissionsRoster,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.NotEmpty(t, result.RelativePath)
	require.Contains(t, result.URL, "/export/")

	payload, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	require.Contains(t, string(payload), "Budi Santoso")
	require.Contains(t, string(payload), "PENDING")
}

func TestExportServiceGenerateTransitionLogPDF(t *testing.T) {
	actor := "staff-1"
	transitions := &logStub{entries: []models.TransitionEntry{
		{
			Seq:         2,
			AdmissionID: "adm-1",
			Action:      models.ActionApproveAdmission,
			FromStatus:  models.StatusPending,
			ToStatus:    models.StatusApproved,
			ActorID:     &actor,
			ActorRole:   models.RoleAdmin,
			OccurredAt:  time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		},
	}}
	svc, store := newExportServiceForTest(t, &rosterStub{}, transitions)

	job := &models.ReportJob{
		ID:        "job-2",
		Type:      models.ReportTypeTransitionLog,
		Params:    models.ReportJobParams{Format: models.ReportFormatPDF},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ReportFormatPDF, result.Format)

	path := filepath.Clean(store.Path(result.RelativePath))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceRosterPagination(t *testing.T) {
	first := make([]models.AdmissionRecord, rosterPageSize)
	for i := range first {
		first[i] = models.AdmissionRecord{ID: fmt.Sprintf("adm-%d", i), Status: models.StatusActive}
	}
	second := []models.AdmissionRecord{{ID: "adm-last", Status: models.StatusActive}}
	admissions := &rosterStub{pages: [][]models.AdmissionRecord{first, second}, total: rosterPageSize + 1}
	svc, _ := newExportServiceForTest(t, admissions, &logStub{})

	job := &models.ReportJob{
		ID:        "job-3",
		Type:      models.ReportTypeAdmissionsRoster,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		CreatedBy: "admin",
	}
	_, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, 2, admissions.calls, "export must page through the full roster")
}

func TestExportServiceRejectsUnknownType(t *testing.T) {
	svc, _ := newExportServiceForTest(t, &rosterStub{}, &logStub{})
	job := &models.ReportJob{
		ID:     "job-4",
		Type:   models.ReportType("bogus"),
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
	}
	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}
