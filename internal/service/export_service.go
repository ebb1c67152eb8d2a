package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/pkg/export"
	"github.com/noah-isme/ims-admission-api/pkg/storage"
)

type rosterReader interface {
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, int, error)
}

type transitionLogReader interface {
	ListRecent(ctx context.Context, filter models.TransitionFilter) ([]models.TransitionEntry, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// Page sizes match the repository caps so the pagination loop can detect the
// last page; exportRowCap bounds the whole dataset.
const (
	rosterPageSize = 100
	logPageSize    = 200
	exportRowCap   = 10000
)

// ExportConfig places published download links under the API prefix and
// bounds how long exports stay on disk.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult describes a published export: the file's location under the
// storage root and the signed link clients fetch it through.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService turns report jobs into downloadable files. It pages the
// dataset out of the repositories, renders it, stores the result, and
// signs the download link.
type ExportService struct {
	admissions  rosterReader
	transitions transitionLogReader
	storage     fileStorage
	csv         csvRenderer
	pdf         pdfRenderer
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService wires readers, storage, and renderers. Nil renderers
// fall back to the package defaults; tests inject failing ones.
func NewExportService(admissions rosterReader, transitions transitionLogReader, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		admissions:  admissions,
		transitions: transitions,
		storage:     storage,
		csv:         csv,
		pdf:         pdf,
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
	}
}

// Generate builds the dataset according to the job definition and stores the
// rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("generate export: nil report job")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken unpacks a download token. allowExpired lets the cleanup sweep
// resolve files whose links already lapsed.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open hands back the stored export for streaming.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes one export from storage.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup sweeps exports older than ttl; zero or negative means the
// configured ResultTTL.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := "all"
	switch {
	case job.Params.AdmissionID != nil:
		scope = sanitizeFilename(*job.Params.AdmissionID)
	case job.Params.Status != nil:
		scope = sanitizeFilename(strings.ToLower(string(*job.Params.Status)))
	}
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), scope, timestamp, job.Params.Format)
}

// sanitizeFilename keeps filename segments to a filesystem-safe allowlist.
// Anything outside it becomes a dash, so a hostile admission id cannot
// smuggle separators into the stored path.
func sanitizeFilename(raw string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, raw)
	if len(mapped) > 100 {
		mapped = mapped[:100]
	}
	if strings.Trim(mapped, "-") == "" {
		return "na"
	}
	return mapped
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeAdmissionsRoster:
		return s.buildRosterDataset(ctx, job.Params)
	case models.ReportTypeTransitionLog:
		return s.buildTransitionLogDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildRosterDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	filter := models.AdmissionFilter{
		Status:        params.Status,
		PaymentMethod: params.PaymentMethod,
		PageSize:      rosterPageSize,
		SortBy:        "created_at",
		SortOrder:     "asc",
	}

	var records []models.AdmissionRecord
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := s.admissions.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		records = append(records, batch...)
		if len(batch) < rosterPageSize || len(records) >= total || len(records) >= exportRowCap {
			break
		}
	}

	rows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, map[string]string{
			"Admission ID":   record.ID,
			"Full Name":      record.FullName,
			"Email":          record.Email,
			"Payment Method": string(record.PaymentMethod),
			"Status":         string(record.Status),
			"Next Due":       formatReportTime(record.NextInstallmentDueAt),
			"Updated At":     record.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Admission ID", "Full Name", "Email", "Payment Method", "Status", "Next Due", "Updated At"},
		Rows:    rows,
	}
	title := "Admissions Roster"
	if params.Status != nil {
		title = fmt.Sprintf("Admissions Roster (%s)", *params.Status)
	}
	return dataset, title, nil
}

func (s *ExportService) buildTransitionLogDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	filter := models.TransitionFilter{PageSize: logPageSize}
	if params.AdmissionID != nil {
		filter.AdmissionID = *params.AdmissionID
	}

	var entries []models.TransitionEntry
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := s.transitions.ListRecent(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		entries = append(entries, batch...)
		if len(batch) < logPageSize || len(entries) >= total || len(entries) >= exportRowCap {
			break
		}
	}

	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, map[string]string{
			"Seq":          strconv.FormatInt(entry.Seq, 10),
			"Admission ID": entry.AdmissionID,
			"Action":       string(entry.Action),
			"From":         string(entry.FromStatus),
			"To":           string(entry.ToStatus),
			"Actor Role":   string(entry.ActorRole),
			"Reason":       deref(entry.Reason),
			"Occurred At":  entry.OccurredAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Seq", "Admission ID", "Action", "From", "To", "Actor Role", "Reason", "Occurred At"},
		Rows:    rows,
	}
	title := "Transition Log"
	if filter.AdmissionID != "" {
		title = fmt.Sprintf("Transition Log %s", filter.AdmissionID)
	}
	return dataset, title, nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
