package models

import "time"

// AdmissionStatus enumerates the lifecycle states of an admission record.
type AdmissionStatus string

const (
	StatusPending             AdmissionStatus = "PENDING"
	StatusApproved            AdmissionStatus = "APPROVED"
	StatusRejected            AdmissionStatus = "REJECTED"
	StatusFullPaymentVerified AdmissionStatus = "FULL_PAYMENT_VERIFIED"
	StatusInstallmentVerified AdmissionStatus = "INSTALLMENT_VERIFIED"
	StatusActive              AdmissionStatus = "ACTIVE"
	StatusPaymentDue          AdmissionStatus = "PAYMENT_DUE"
	StatusSuspended           AdmissionStatus = "SUSPENDED"
	StatusDropped             AdmissionStatus = "DROPPED"
	StatusCourseCompleted     AdmissionStatus = "COURSE_COMPLETED"
	StatusDisabled            AdmissionStatus = "DISABLED"
)

// IsValidStatus reports whether s names a lifecycle state.
func IsValidStatus(s AdmissionStatus) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusFullPaymentVerified,
		StatusInstallmentVerified, StatusActive, StatusPaymentDue, StatusSuspended,
		StatusDropped, StatusCourseCompleted, StatusDisabled:
		return true
	default:
		return false
	}
}

// PaymentMethod identifies how a student settles tuition.
type PaymentMethod string

const (
	PaymentMethodFull        PaymentMethod = "FULL"
	PaymentMethodInstallment PaymentMethod = "INSTALLMENT"
)

// IsValidPaymentMethod reports whether m is a known payment method.
func IsValidPaymentMethod(m PaymentMethod) bool {
	return m == PaymentMethodFull || m == PaymentMethodInstallment
}

// AdmissionRecord represents one student's admission stored in the admissions table.
// Records are created by the enrollment intake in PENDING and are never deleted.
type AdmissionRecord struct {
	ID                   string           `db:"id" json:"id"`
	StudentProfileID     string           `db:"student_profile_id" json:"student_profile_id"`
	FullName             string           `db:"full_name" json:"full_name"`
	Email                string           `db:"email" json:"email"`
	Phone                string           `db:"phone" json:"phone"`
	PaymentMethod        PaymentMethod    `db:"payment_method" json:"payment_method"`
	Status               AdmissionStatus  `db:"status" json:"status"`
	PriorStatus          *AdmissionStatus `db:"prior_status" json:"prior_status,omitempty"`
	NextInstallmentDueAt *time.Time       `db:"next_installment_due_at" json:"next_installment_due_at,omitempty"`
	CreatedAt            time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time        `db:"updated_at" json:"updated_at"`
}

// AdmissionFilter encapsulates allowed search parameters for listing admissions.
type AdmissionFilter struct {
	Status        *AdmissionStatus
	PaymentMethod *PaymentMethod
	Search        string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
