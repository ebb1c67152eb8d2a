package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ims-admission-api/internal/models"
)

type captureSender struct {
	sent []Message
	err  error
}

func (s *captureSender) Send(_ context.Context, msg Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func notifyRecord() *models.AdmissionRecord {
	return &models.AdmissionRecord{
		ID:       "adm-1",
		FullName: "Budi Santoso",
		Email:    "budi@example.com",
		Status:   models.StatusActive,
	}
}

func notifyEntry(action models.Action) *models.TransitionEntry {
	return &models.TransitionEntry{
		ID:          "ent-1",
		AdmissionID: "adm-1",
		Action:      action,
		OccurredAt:  time.Now(),
	}
}

func TestDispatcherNotifiesPerAction(t *testing.T) {
	subjects := map[models.Action]string{
		models.ActionApproveAdmission:  "approved",
		models.ActionRejectAdmission:   "admission",
		models.ActionVerifyFullPayment: "Payment received",
		models.ActionVerifyInstallment: "Installment received",
		models.ActionMarkOverdue:       "reminder",
		models.ActionCollectPayment:    "Payment received",
		models.ActionSuspendStudent:    "suspended",
		models.ActionReactivateStudent: "active again",
		models.ActionDropStudent:       "ended",
		models.ActionCompleteCourse:    "Congratulations",
	}

	for action, want := range subjects {
		sender := &captureSender{}
		d := NewDispatcher(sender)

		sent, err := d.NotifyTransition(context.Background(), notifyRecord(), notifyEntry(action))
		require.NoError(t, err, "action %s", action)
		require.True(t, sent, "action %s", action)
		require.Len(t, sender.sent, 1, "action %s", action)
		require.Contains(t, sender.sent[0].Subject, want, "action %s", action)
		require.Equal(t, "budi@example.com", sender.sent[0].ToEmail)
		require.Contains(t, sender.sent[0].Body, "Budi Santoso")
	}
}

func TestDispatcherSkipsAccessToggles(t *testing.T) {
	for _, action := range []models.Action{models.ActionEnableAccess, models.ActionDisableAccess} {
		sender := &captureSender{}
		d := NewDispatcher(sender)

		sent, err := d.NotifyTransition(context.Background(), notifyRecord(), notifyEntry(action))
		require.NoError(t, err)
		require.False(t, sent)
		require.Empty(t, sender.sent, "action %s should not notify", action)
	}
}

func TestDispatcherSkipsMissingEmail(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender)

	record := notifyRecord()
	record.Email = ""

	sent, err := d.NotifyTransition(context.Background(), record, notifyEntry(models.ActionApproveAdmission))
	require.NoError(t, err)
	require.False(t, sent)
	require.Empty(t, sender.sent)
}

func TestDispatcherPropagatesSenderFailure(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	d := NewDispatcher(sender)

	sent, err := d.NotifyTransition(context.Background(), notifyRecord(), notifyEntry(models.ActionApproveAdmission))
	require.Error(t, err)
	require.False(t, sent)
	require.Contains(t, err.Error(), "approveAdmission")
}

func TestDispatcherNilSafe(t *testing.T) {
	var d *Dispatcher
	sent, err := d.NotifyTransition(context.Background(), notifyRecord(), notifyEntry(models.ActionApproveAdmission))
	require.NoError(t, err)
	require.False(t, sent)
}

func TestDispatcherIncludesDueDate(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender)

	due := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	record := notifyRecord()
	record.NextInstallmentDueAt = &due

	sent, err := d.NotifyTransition(context.Background(), record, notifyEntry(models.ActionVerifyInstallment))
	require.NoError(t, err)
	require.True(t, sent)
	require.Len(t, sender.sent, 1)
	require.Contains(t, sender.sent[0].Body, "15 April 2026")
}
