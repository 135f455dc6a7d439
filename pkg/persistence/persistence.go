// Package persistence defines the workflow store boundary. The engine never
// touches graph or runtime state except through this interface.
package persistence

import (
	"context"

	"github.com/onios/onid/pkg/models"
)

// DefaultLogLimit bounds the execution log kept per workflow.
const DefaultLogLimit = 200

// WorkflowStore is the sanctioned surface for reading workflows and writing
// node runtime state. SaveWorkflow is an edit: it resets every node's
// runtime fields, because edited graphs must never carry stale run state.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error

	UpdateNode(ctx context.Context, workflowID, nodeID string, patch *models.NodePatch) error
	ResetNodeStates(ctx context.Context, workflowID string) error
	SetLastRunStatus(ctx context.Context, workflowID string, status models.ExecutionStatus) error

	AddLog(ctx context.Context, workflowID string, entry *models.ExecutionLogEntry) error
	Logs(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionLogEntry, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
