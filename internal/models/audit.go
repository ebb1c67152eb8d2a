package models

import "time"

// Actions recorded in the HTTP audit trail. Transitions additionally land
// in admission_transitions; these rows capture the caller-facing surface.
const (
	AuditActionTransition   = "ADMISSION_TRANSITION"
	AuditActionReportCreate = "REPORT_CREATE"
	AuditActionChainVerify  = "CHAIN_VERIFY"
)

// AuditLog is one row of the HTTP-level audit trail: who called what, from
// where, under which request id. The id ties the row to log lines on both
// sides of the legacy proxy.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	RequestID  *string   `db:"request_id" json:"request_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
