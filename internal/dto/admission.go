package dto

import "github.com/noah-isme/ims-admission-api/internal/models"

// TransitionRequest is the optional body accepted by the action endpoints.
// Terminal actions such as reject and drop are expected to carry a reason.
type TransitionRequest struct {
	Reason string `json:"reason"`
}

// TransitionResponse returns the updated record together with the hash-chain
// entry appended for the transition.
type TransitionResponse struct {
	Record models.AdmissionRecord  `json:"record"`
	Entry  *models.TransitionEntry `json:"entry,omitempty"`
}

// ActionsResponse lists the transitions the caller may trigger right now.
type ActionsResponse struct {
	Status  models.AdmissionStatus `json:"status"`
	Actions []models.ActionOption  `json:"actions"`
}

// StateInfo describes one lifecycle state.
type StateInfo struct {
	Status   models.AdmissionStatus `json:"status"`
	Terminal bool                   `json:"terminal"`
}

// ActionInfo describes one transition rule from the registry.
type ActionInfo struct {
	Action       models.Action            `json:"action"`
	From         []models.AdmissionStatus `json:"from"`
	To           models.AdmissionStatus   `json:"to"`
	Roles        []models.UserRole        `json:"roles"`
	RestorePrior bool                     `json:"restore_prior,omitempty"`
}
