package events

import (
	"time"

	"github.com/noah-isme/ims-admission-api/internal/models"
)

// TopicAdmissionTransitioned carries every applied lifecycle transition.
const TopicAdmissionTransitioned = "admission.transitioned"

// AdmissionTransitionedEvent is the wire payload published after a
// transition commits.
type AdmissionTransitionedEvent struct {
	Seq              int64                  `json:"seq"`
	EntryID          string                 `json:"entry_id"`
	AdmissionID      string                 `json:"admission_id"`
	StudentProfileID string                 `json:"student_profile_id"`
	Action           models.Action          `json:"action"`
	FromStatus       models.AdmissionStatus `json:"from_status"`
	ToStatus         models.AdmissionStatus `json:"to_status"`
	ActorRole        models.UserRole        `json:"actor_role"`
	RequestID        string                 `json:"request_id,omitempty"`
	OccurredAt       time.Time              `json:"occurred_at"`
}
