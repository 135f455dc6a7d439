package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/persistence"
	"github.com/onios/onid/pkg/registry"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Workflow serves workflow queries and validation for the API and the CLI.
// The store owns the data; the node registry supplies the per-type config
// schemas validation checks against.
type Workflow struct {
	store    persistence.WorkflowStore
	registry *registry.Registry
	validate *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(store persistence.WorkflowStore, nodeRegistry *registry.Registry) *Workflow {
	return &Workflow{
		store:    store,
		registry: nodeRegistry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the workflow store.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.store == nil {
		return "workflow store not initialized", false
	}

	if err := w.store.HealthCheck(ctx); err != nil {
		return "workflow store is unhealthy: " + err.Error(), false
	}

	return "workflow store is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	// Pagination
	Limit  int
	Offset int

	// Filtering
	Enabled *bool

	// Sorting
	SortBy    string // name | created_at | updated_at
	SortOrder string // asc | desc
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int                `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListWorkflows retrieves workflows with filtering, sorting and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := w.normalizeListRequest(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	workflows, err := w.store.ListWorkflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	if req.Enabled != nil {
		filtered := workflows[:0]

		for _, workflow := range workflows {
			if workflow.Enabled == *req.Enabled {
				filtered = append(filtered, workflow)
			}
		}

		workflows = filtered
	}

	sortWorkflows(workflows, req.SortBy, req.SortOrder)

	total := len(workflows)

	if req.Offset >= total {
		workflows = nil
	} else {
		workflows = workflows[req.Offset:]
	}

	hasNext := false
	if len(workflows) > req.Limit {
		workflows = workflows[:req.Limit]
		hasNext = true
	}

	return &ListWorkflowsResponse{
		Workflows:   workflows,
		TotalCount:  total,
		HasNextPage: hasNext,
	}, nil
}

// normalizeListRequest fills defaults and rejects out-of-range values.
func (w *Workflow) normalizeListRequest(req *ListWorkflowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}

	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"name", "created_at", "updated_at"}
	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"ListWorkflows",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"ListWorkflows",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	return nil
}

func sortWorkflows(workflows []*models.Workflow, by, order string) {
	sort.SliceStable(workflows, func(i, j int) bool {
		var less bool

		switch by {
		case "name":
			less = workflows[i].Name < workflows[j].Name
		case "updated_at":
			less = workflows[i].UpdatedAt.Before(workflows[j].UpdatedAt)
		default:
			less = workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
		}

		if order == "desc" {
			return !less
		}

		return less
	})
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// Logs returns the latest execution log entries of a workflow.
func (w *Workflow) Logs(ctx context.Context, id string, limit int) ([]*models.ExecutionLogEntry, error) {
	return w.store.Logs(ctx, id, limit)
}

// Create stores a new workflow. A missing ID is generated. Disabled
// workflows may be saved in any shape so the editor can hold drafts;
// an enabled workflow must validate cleanly.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if workflow.Enabled {
		if err := w.Validate(workflow); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWorkflowInvalid, err)
		}
	}

	if err := w.store.SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces an existing workflow by its ID. The same enablement
// rule as Create applies.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt

	if workflow.Enabled {
		if err := w.Validate(workflow); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWorkflowInvalid, err)
		}
	}

	if err := w.store.SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// NodeDescriptor describes one registered node type for the editor's
// palette.
type NodeDescriptor struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// NodeCatalog lists the registered node types, sorted by ID.
func (w *Workflow) NodeCatalog() []NodeDescriptor {
	if w.registry == nil {
		return nil
	}

	factories := w.registry.GetAvailableNodes()
	catalog := make([]NodeDescriptor, 0, len(factories))

	for _, factory := range factories {
		catalog = append(catalog, NodeDescriptor{
			ID:          factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return catalog
}

// Delete removes a workflow and its logs by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.store.GetWorkflow(ctx, workflowID); err != nil {
		return err
	}

	if err := w.store.DeleteWorkflow(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

/// Validate checks a workflow end to end: struct tags on the workflow and
// its nodes, graph invariants, trigger presence, and each node's config
// against its type's schema. All findings are joined into one error; nil
// means the workflow is executable.
func (w *Workflow) Validate(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	var issues []error

	if err := w.validate.Struct(workflow); err != nil {
		issues = append(issues, err)
	}

	if len(workflow.Nodes) == 0 {
		issues = append(issues, ErrNoNodes)
	} else if len(workflow.TriggerNodes()) == 0 {
		issues = append(issues, ErrNoTriggerNode)
	}

	for _, node := range workflow.Nodes {
		if err := w.validate.Struct(node); err != nil {
			issues = append(issues, fmt.Errorf("node '%s': %w", node.ID, err))
		}

		if err := w.validateNodeConfig(node); err != nil {
			issues = append(issues, err)
		}
	}

	if err := workflow.ValidateGraph(); err != nil {
		issues = append(issues, err)
	}

	return errors.Join(issues...)
}

func (w *Workflow) validateNodeConfig(node *models.WorkflowNode) error {
	if w.registry == nil {
		return nil
	}

	err := w.registry.ValidateNodeConfig(string(node.Type), node.Config)
	if err == nil {
		return nil
	}

	if errors.Is(err, registry.ErrNodeNotRegistered) {
		return fmt.Errorf("node '%s': %w: %s", node.ID, ErrUnknownNodeType, node.Type)
	}

	return fmt.Errorf("node '%s': %w", node.ID, err)
}
