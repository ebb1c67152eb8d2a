package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportType names the dataset a background export renders.
type ReportType string

const (
	ReportTypeAdmissionsRoster ReportType = "admissions_roster"
	ReportTypeTransitionLog    ReportType = "transition_log"
)

// IsValidReportType reports whether t names a supported report.
func IsValidReportType(t ReportType) bool {
	switch t {
	case ReportTypeAdmissionsRoster, ReportTypeTransitionLog:
		return true
	default:
		return false
	}
}

// ReportFormat selects the file type an export is rendered to.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// IsValidReportFormat reports whether f names a supported export format.
func IsValidReportFormat(f ReportFormat) bool {
	return f == ReportFormatCSV || f == ReportFormatPDF
}

// ReportStatus tracks a job from submission to its terminal state.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// ReportJob is one row in report_jobs. The table doubles as the durable
// queue record, which is what makes restart recovery possible.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ReportJobParams carries the caller's format choice and optional admission
// filters, persisted with the job as a JSONB document.
type ReportJobParams struct {
	Format        ReportFormat     `json:"format"`
	Status        *AdmissionStatus `json:"status,omitempty"`
	PaymentMethod *PaymentMethod   `json:"paymentMethod,omitempty"`
	AdmissionID   *string          `json:"admissionId,omitempty"`
}

// Value implements driver.Valuer so params land in the JSONB column.
func (p ReportJobParams) Value() (driver.Value, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode report params: %w", err)
	}
	return raw, nil
}

// Scan restores params from the JSONB column.
func (p *ReportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ReportJobParams{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan report params: unsupported type %T", value)
	}
	if len(raw) == 0 {
		*p = ReportJobParams{}
		return nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return fmt.Errorf("decode report params: %w", err)
	}
	return nil
}
