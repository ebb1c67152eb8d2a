package notify

import (
	"context"
	"fmt"

	"github.com/noah-isme/ims-admission-api/internal/models"
)

// Message is a rendered student-facing notification.
type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Body    string
}

// Sender delivers a single message. Implementations must be synchronous:
// the caller decides what a failure means, so it has to see the error.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher turns applied transitions into student notifications. It runs
// after the transition has committed, so a delivery failure can only ever
// degrade the response to a partial success, never roll anything back.
// A nil Dispatcher drops every notification.
type Dispatcher struct {
	sender Sender
}

func NewDispatcher(sender Sender) *Dispatcher {
	if sender == nil {
		return nil
	}
	return &Dispatcher{sender: sender}
}

// NotifyTransition sends the message configured for the applied action, if
// any. It reports whether a message went out; access toggles are
// administrative and stay silent.
func (d *Dispatcher) NotifyTransition(ctx context.Context, record *models.AdmissionRecord, entry *models.TransitionEntry) (bool, error) {
	if d == nil || record == nil || entry == nil {
		return false, nil
	}
	if record.Email == "" {
		return false, nil
	}

	msg, ok := messageFor(record, entry)
	if !ok {
		return false, nil
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		return false, fmt.Errorf("send %s notification: %w", entry.Action, err)
	}
	return true, nil
}

func messageFor(record *models.AdmissionRecord, entry *models.TransitionEntry) (Message, bool) {
	msg := Message{ToName: record.FullName, ToEmail: record.Email}

	switch entry.Action {
	case models.ActionApproveAdmission:
		msg.Subject = "Your admission has been approved"
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nYour admission has been approved. The next step is payment: once it is verified, your learning access will be activated.\n",
			record.FullName)
	case models.ActionRejectAdmission:
		msg.Subject = "Update on your admission"
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nWe are sorry to let you know that your admission was not approved this time.\n",
			record.FullName)
	case models.ActionVerifyFullPayment:
		msg.Subject = "Payment received"
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nYour full payment has been verified. Your learning access will be activated shortly.\n",
			record.FullName)
	case models.ActionVerifyInstallment:
		msg.Subject = "Installment received"
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nYour first installment has been verified. Your learning access will be activated shortly.%s\n",
			record.FullName, dueLine(record))
	case models.ActionMarkOverdue:
		msg.Subject = "Payment reminder"
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nAn installment payment is due on your account. Please settle it to keep your learning access.%s\n",
			record.FullName, dueLine(record))
	case models.ActionCollectPayment:
		msg.Subject = "Payment received"
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nThank you, your installment payment has been received and your account is in good standing again.%s\n",
			record.FullName, dueLine(record))
	case models.ActionSuspendStudent:
		msg.Subject = "Your enrollment has been suspended"
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nYour enrollment has been suspended. Please contact the administration office for details.\n",
			record.FullName)
	case models.ActionReactivateStudent:
		msg.Subject = "Your enrollment is active again"
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nYour enrollment has been reactivated. Welcome back.\n",
			record.FullName)
	case models.ActionDropStudent:
		msg.Subject = "Your enrollment has ended"
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nYour enrollment has been closed. If you believe this is a mistake, please contact the administration office.\n",
			record.FullName)
	case models.ActionCompleteCourse:
		msg.Subject = "Congratulations on completing your course"
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nCongratulations, you have completed your course. Your certificate will follow separately.\n",
			record.FullName)
	default:
		return Message{}, false
	}

	return msg, true
}

func dueLine(record *models.AdmissionRecord) string {
	if record.NextInstallmentDueAt == nil {
		return ""
	}
	return fmt.Sprintf(" Your next installment is due on %s.", record.NextInstallmentDueAt.Format("2 January 2006"))
}
