// Package web provides the HTTP handlers of the sidecar API. The desktop
// shell and the oni CLI are its only intended clients.
package web

import "github.com/onios/onid/pkg/models"

// ExecuteCommandRequest is the body of POST /api/commands/execute.
type ExecuteCommandRequest struct {
	Command string `json:"command"          validate:"required,min=1"`
	Source  string `json:"source,omitempty" validate:"omitempty,oneof=human widget scheduler workflow system"`
}

// ExecuteCommandResponse names the runs opened for one invocation. The
// dispatch is asynchronous; runs settle after this response is sent.
type ExecuteCommandResponse struct {
	RunID   string           `json:"run_id"`
	RunIDs  []string         `json:"run_ids"`
	ChainID string           `json:"chain_id,omitempty"`
	Status  models.RunStatus `json:"status"`
}

// ExecuteWorkflowRequest is the optional body of POST /api/workflows/:id/execute.
type ExecuteWorkflowRequest struct {
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}
