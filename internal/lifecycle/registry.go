package lifecycle

import (
	"fmt"

	"github.com/noah-isme/ims-admission-api/internal/models"
)

// Rule describes one action: the states it may fire from, the state it lands
// on, and the roles allowed to trigger it. StorePrior marks actions that must
// remember the pre-transition status; RestorePrior marks actions that return
// to it.
type Rule struct {
	Action       models.Action
	FromStates   []models.AdmissionStatus
	To           models.AdmissionStatus
	Roles        []models.UserRole
	StorePrior   bool
	RestorePrior bool
}

// ConfigError reports an invalid transition table. It is fatal: the process
// must not start with a registry that references undefined states or roles.
type ConfigError struct {
	Action models.Action
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("lifecycle config: action %s: %s", e.Action, e.Detail)
	}
	return "lifecycle config: " + e.Detail
}

// Registry holds the closed state set and the transition table.
type Registry struct {
	states    []models.AdmissionStatus
	stateSet  map[models.AdmissionStatus]struct{}
	terminals map[models.AdmissionStatus]struct{}
	rules     map[models.Action]Rule
	order     []models.Action
}

// NewRegistry validates the table against the state and role sets and builds
// the registry. Any inconsistency returns a ConfigError.
func NewRegistry(states, terminals []models.AdmissionStatus, rules []Rule) (*Registry, error) {
	if len(states) == 0 {
		return nil, &ConfigError{Detail: "no states defined"}
	}

	r := &Registry{
		states:    make([]models.AdmissionStatus, 0, len(states)),
		stateSet:  make(map[models.AdmissionStatus]struct{}, len(states)),
		terminals: make(map[models.AdmissionStatus]struct{}, len(terminals)),
		rules:     make(map[models.Action]Rule, len(rules)),
		order:     make([]models.Action, 0, len(rules)),
	}

	for _, s := range states {
		if _, dup := r.stateSet[s]; dup {
			return nil, &ConfigError{Detail: fmt.Sprintf("duplicate state %s", s)}
		}
		r.stateSet[s] = struct{}{}
		r.states = append(r.states, s)
	}

	for _, t := range terminals {
		if _, ok := r.stateSet[t]; !ok {
			return nil, &ConfigError{Detail: fmt.Sprintf("terminal state %s is not in the state set", t)}
		}
		r.terminals[t] = struct{}{}
	}

	for _, rule := range rules {
		if rule.Action == "" {
			return nil, &ConfigError{Detail: "rule with empty action"}
		}
		if _, dup := r.rules[rule.Action]; dup {
			return nil, &ConfigError{Action: rule.Action, Detail: "registered twice"}
		}
		if len(rule.FromStates) == 0 {
			return nil, &ConfigError{Action: rule.Action, Detail: "no from states"}
		}
		for _, from := range rule.FromStates {
			if _, ok := r.stateSet[from]; !ok {
				return nil, &ConfigError{Action: rule.Action, Detail: fmt.Sprintf("from state %s is not defined", from)}
			}
			if _, terminal := r.terminals[from]; terminal {
				return nil, &ConfigError{Action: rule.Action, Detail: fmt.Sprintf("from state %s is terminal", from)}
			}
		}
		if _, ok := r.stateSet[rule.To]; !ok {
			return nil, &ConfigError{Action: rule.Action, Detail: fmt.Sprintf("to state %s is not defined", rule.To)}
		}
		if len(rule.Roles) == 0 {
			return nil, &ConfigError{Action: rule.Action, Detail: "no roles"}
		}
		for _, role := range rule.Roles {
			if !models.IsValidRole(role) {
				return nil, &ConfigError{Action: rule.Action, Detail: fmt.Sprintf("role %s is not defined", role)}
			}
		}

		r.rules[rule.Action] = rule
		r.order = append(r.order, rule.Action)
	}

	return r, nil
}

// States returns the closed state set in declaration order.
func (r *Registry) States() []models.AdmissionStatus {
	out := make([]models.AdmissionStatus, len(r.states))
	copy(out, r.states)
	return out
}

// IsValidStatus reports whether the status belongs to the closed set.
func (r *Registry) IsValidStatus(s models.AdmissionStatus) bool {
	_, ok := r.stateSet[s]
	return ok
}

// IsTerminal reports whether no action may ever leave the given status.
func (r *Registry) IsTerminal(s models.AdmissionStatus) bool {
	_, ok := r.terminals[s]
	return ok
}

// RuleFor looks up the rule registered for an action.
func (r *Registry) RuleFor(action models.Action) (Rule, bool) {
	rule, ok := r.rules[action]
	return rule, ok
}

// Actions returns every rule in registration order.
func (r *Registry) Actions() []Rule {
	out := make([]Rule, 0, len(r.order))
	for _, action := range r.order {
		out = append(out, r.rules[action])
	}
	return out
}

// ActionsFrom returns the rules that may fire from the given status.
func (r *Registry) ActionsFrom(s models.AdmissionStatus) []Rule {
	var out []Rule
	for _, action := range r.order {
		rule := r.rules[action]
		for _, from := range rule.FromStates {
			if from == s {
				out = append(out, rule)
				break
			}
		}
	}
	return out
}

// DefaultRegistry builds the canonical admission machine: the consolidated
// table every status mutation in the legacy panel boiled down to.
func DefaultRegistry() (*Registry, error) {
	states := []models.AdmissionStatus{
		models.StatusPending,
		models.StatusApproved,
		models.StatusRejected,
		models.StatusFullPaymentVerified,
		models.StatusInstallmentVerified,
		models.StatusActive,
		models.StatusPaymentDue,
		models.StatusSuspended,
		models.StatusDropped,
		models.StatusCourseCompleted,
		models.StatusDisabled,
	}
	terminals := []models.AdmissionStatus{
		models.StatusRejected,
		models.StatusDropped,
		models.StatusCourseCompleted,
	}

	admins := []models.UserRole{models.RoleAdmin, models.RoleSuperAdmin}
	finance := []models.UserRole{models.RoleFinance, models.RoleAdmin, models.RoleSuperAdmin}
	overdue := []models.UserRole{models.RoleFinance, models.RoleAdmin, models.RoleSuperAdmin, models.RoleSystem}

	rules := []Rule{
		{
			Action:     models.ActionApproveAdmission,
			FromStates: []models.AdmissionStatus{models.StatusPending},
			To:         models.StatusApproved,
			Roles:      admins,
		},
		{
			Action:     models.ActionRejectAdmission,
			FromStates: []models.AdmissionStatus{models.StatusPending},
			To:         models.StatusRejected,
			Roles:      admins,
		},
		{
			Action:     models.ActionVerifyFullPayment,
			FromStates: []models.AdmissionStatus{models.StatusApproved},
			To:         models.StatusFullPaymentVerified,
			Roles:      finance,
		},
		{
			Action:     models.ActionVerifyInstallment,
			FromStates: []models.AdmissionStatus{models.StatusApproved},
			To:         models.StatusInstallmentVerified,
			Roles:      finance,
		},
		{
			Action: models.ActionEnableAccess,
			FromStates: []models.AdmissionStatus{
				models.StatusFullPaymentVerified,
				models.StatusInstallmentVerified,
				models.StatusDisabled,
			},
			To:           models.StatusActive,
			Roles:        admins,
			RestorePrior: true,
		},
		{
			Action: models.ActionDisableAccess,
			FromStates: []models.AdmissionStatus{
				models.StatusApproved,
				models.StatusFullPaymentVerified,
				models.StatusInstallmentVerified,
				models.StatusActive,
				models.StatusPaymentDue,
				models.StatusSuspended,
			},
			To:         models.StatusDisabled,
			Roles:      admins,
			StorePrior: true,
		},
		{
			Action:     models.ActionMarkOverdue,
			FromStates: []models.AdmissionStatus{models.StatusActive},
			To:         models.StatusPaymentDue,
			Roles:      overdue,
		},
		{
			Action:     models.ActionCollectPayment,
			FromStates: []models.AdmissionStatus{models.StatusPaymentDue},
			To:         models.StatusActive,
			Roles:      finance,
		},
		{
			Action:     models.ActionSuspendStudent,
			FromStates: []models.AdmissionStatus{models.StatusActive},
			To:         models.StatusSuspended,
			Roles:      admins,
		},
		{
			Action:     models.ActionReactivateStudent,
			FromStates: []models.AdmissionStatus{models.StatusSuspended},
			To:         models.StatusActive,
			Roles:      admins,
		},
		{
			Action: models.ActionDropStudent,
			FromStates: []models.AdmissionStatus{
				models.StatusActive,
				models.StatusPaymentDue,
				models.StatusSuspended,
			},
			To:    models.StatusDropped,
			Roles: admins,
		},
		{
			Action:     models.ActionCompleteCourse,
			FromStates: []models.AdmissionStatus{models.StatusActive},
			To:         models.StatusCourseCompleted,
			Roles:      admins,
		},
	}

	return NewRegistry(states, terminals, rules)
}
