package lifecycle

import (
	"fmt"

	"github.com/noah-isme/ims-admission-api/internal/models"
)

// UnknownActionError reports a request naming an action the registry does not
// know. Callers surface it; retrying cannot succeed.
type UnknownActionError struct {
	Action models.Action
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Action)
}

// Request carries one attempted transition.
type Request struct {
	RecordID  string
	Action    models.Action
	ActorID   string
	ActorRole models.UserRole
	Reason    string
}

// Result reports the outcome of validating a transition. When Allowed is
// false, To equals the record's current status and Reason says why.
type Result struct {
	Allowed bool
	Action  models.Action
	From    models.AdmissionStatus
	To      models.AdmissionStatus
	Reason  string
}

// Validator decides transitions against the registry. It performs no I/O and
// reads no clock; everything it needs arrives in its arguments.
type Validator struct {
	registry *Registry
}

// NewValidator builds a validator over the given registry.
func NewValidator(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate checks one transition against the table. A denial is data, not an
// error: the record stays untouched and Reason carries the explanation. Only
// an unregistered action returns an error.
func (v *Validator) Validate(record *models.AdmissionRecord, req Request) (Result, error) {
	denied := Result{
		Allowed: false,
		Action:  req.Action,
		From:    record.Status,
		To:      record.Status,
	}

	rule, ok := v.registry.RuleFor(req.Action)
	if !ok {
		return denied, &UnknownActionError{Action: req.Action}
	}

	if !fromAllowed(rule, record.Status) {
		denied.Reason = fmt.Sprintf("cannot %s for a %s student", actionPhrase(req.Action), record.Status)
		return denied, nil
	}

	if !roleAllowed(rule, req.ActorRole) {
		denied.Reason = fmt.Sprintf("role %s is not permitted to %s", req.ActorRole, actionPhrase(req.Action))
		return denied, nil
	}

	to := rule.To
	if rule.RestorePrior && record.PriorStatus != nil {
		if prior := *record.PriorStatus; v.restorable(prior, record.Status) {
			to = prior
		}
	}

	return Result{
		Allowed: true,
		Action:  req.Action,
		From:    record.Status,
		To:      to,
	}, nil
}

// restorable guards the stored prior status before returning to it: it must
// still be a known, non-terminal state different from where the record sits.
func (v *Validator) restorable(prior, current models.AdmissionStatus) bool {
	if prior == current {
		return false
	}
	if !v.registry.IsValidStatus(prior) {
		return false
	}
	return !v.registry.IsTerminal(prior)
}

func fromAllowed(rule Rule, current models.AdmissionStatus) bool {
	for _, from := range rule.FromStates {
		if from == current {
			return true
		}
	}
	return false
}

func roleAllowed(rule Rule, role models.UserRole) bool {
	for _, r := range rule.Roles {
		if r == role {
			return true
		}
	}
	return false
}

var actionPhrases = map[models.Action]string{
	models.ActionApproveAdmission:  "approve admission",
	models.ActionRejectAdmission:   "reject admission",
	models.ActionVerifyFullPayment: "verify payment",
	models.ActionVerifyInstallment: "verify installment",
	models.ActionEnableAccess:      "enable access",
	models.ActionDisableAccess:     "disable access",
	models.ActionMarkOverdue:       "mark payment overdue",
	models.ActionCollectPayment:    "collect payment",
	models.ActionSuspendStudent:    "suspend enrollment",
	models.ActionReactivateStudent: "reactivate enrollment",
	models.ActionDropStudent:       "drop enrollment",
	models.ActionCompleteCourse:    "complete the course",
}

func actionPhrase(action models.Action) string {
	if phrase, ok := actionPhrases[action]; ok {
		return phrase
	}
	return string(action)
}
