package models

import "time"

// Action identifies a lifecycle transition trigger.
type Action string

const (
	ActionApproveAdmission  Action = "approveAdmission"
	ActionRejectAdmission   Action = "rejectAdmission"
	ActionVerifyFullPayment Action = "verifyFullPayment"
	ActionVerifyInstallment Action = "verifyInstallment"
	ActionEnableAccess      Action = "enableAccess"
	ActionDisableAccess     Action = "disableAccess"
	ActionMarkOverdue       Action = "markOverdue"
	ActionCollectPayment    Action = "collectPayment"
	ActionSuspendStudent    Action = "suspendStudent"
	ActionReactivateStudent Action = "reactivateStudent"
	ActionDropStudent       Action = "dropStudent"
	ActionCompleteCourse    Action = "completeCourse"
)

// TransitionEntry is one append-only row of the admission transition log.
// seq totally orders entries across all records; prev_hash/entry_hash link
// each record's entries into a keyed hash chain.
type TransitionEntry struct {
	Seq         int64           `db:"seq" json:"seq"`
	ID          string          `db:"id" json:"id"`
	AdmissionID string          `db:"admission_id" json:"admission_id"`
	Action      Action          `db:"action" json:"action"`
	FromStatus  AdmissionStatus `db:"from_status" json:"from_status"`
	ToStatus    AdmissionStatus `db:"to_status" json:"to_status"`
	ActorID     *string         `db:"actor_id" json:"actor_id,omitempty"`
	ActorRole   UserRole        `db:"actor_role" json:"actor_role"`
	Reason      *string         `db:"reason" json:"reason,omitempty"`
	RequestID   *string         `db:"request_id" json:"request_id,omitempty"`
	PrevHash    string          `db:"prev_hash" json:"prev_hash"`
	EntryHash   string          `db:"entry_hash" json:"entry_hash"`
	OccurredAt  time.Time       `db:"occurred_at" json:"occurred_at"`
}

// TransitionFilter captures filtering criteria for listing transition entries.
type TransitionFilter struct {
	AdmissionID string
	Action      *Action
	ActorRole   *UserRole
	Page        int
	PageSize    int
}

// ActionOption is one action the caller may currently trigger on a record.
type ActionOption struct {
	Action Action          `json:"action"`
	To     AdmissionStatus `json:"to"`
}

// ChainVerification reports the outcome of recomputing one admission's
// transition chain. BrokenSeq and Problem are set only when Intact is false
// and point at the first entry that fails the walk.
type ChainVerification struct {
	AdmissionID string    `json:"admission_id"`
	Entries     int       `json:"entries"`
	Intact      bool      `json:"intact"`
	BrokenSeq   *int64    `json:"broken_seq,omitempty"`
	Problem     string    `json:"problem,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

// ChainVerificationSummary aggregates a verification sweep across every
// admission that has at least one transition entry.
type ChainVerificationSummary struct {
	Checked   int                 `json:"checked"`
	Intact    int                 `json:"intact"`
	Broken    []ChainVerification `json:"broken,omitempty"`
	CheckedAt time.Time           `json:"checked_at"`
}
