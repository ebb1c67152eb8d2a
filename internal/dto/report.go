package dto

import (
	"time"

	"github.com/noah-isme/ims-admission-api/internal/models"
)

// ReportRequest is the POST /reports/generate payload. The filter fields
// narrow the exported dataset; leaving them nil exports every row the
// caller may see.
type ReportRequest struct {
	Type          models.ReportType       `json:"type" validate:"required,report_type"`
	Format        models.ReportFormat     `json:"format" validate:"required,report_format"`
	Status        *models.AdmissionStatus `json:"status,omitempty"`
	PaymentMethod *models.PaymentMethod   `json:"paymentMethod,omitempty"`
	AdmissionID   *string                 `json:"admissionId,omitempty"`
}

// ReportJobResponse acknowledges an accepted export. QueuedAt lets the
// admin UI show how long the job has been waiting.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Type     models.ReportType   `json:"type"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
	QueuedAt time.Time           `json:"queuedAt"`
}

// ReportStatusResponse is the polling shape for a report job. ResultURL
// appears once the export is published; Error carries the message of the
// last failed attempt once retries are exhausted.
type ReportStatusResponse struct {
	ID         string              `json:"id"`
	Type       models.ReportType   `json:"type"`
	Status     models.ReportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	QueuedAt   time.Time           `json:"queuedAt"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
	ResultURL  *string             `json:"resultUrl,omitempty"`
	Error      *string             `json:"error,omitempty"`
}
