package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/onios/onid/pkg/models"
)

// MockWorkflowStore is a mock implementation of the persistence.WorkflowStore
// interface.
type MockWorkflowStore struct {
	mock.Mock
}

func (m *MockWorkflowStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowStore) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowStore) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowStore) DeleteWorkflow(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockWorkflowStore) UpdateNode(ctx context.Context, workflowID, nodeID string, patch *models.NodePatch) error {
	args := m.Called(ctx, workflowID, nodeID, patch)

	return args.Error(0)
}

func (m *MockWorkflowStore) ResetNodeStates(ctx context.Context, workflowID string) error {
	args := m.Called(ctx, workflowID)

	return args.Error(0)
}

func (m *MockWorkflowStore) SetLastRunStatus(ctx context.Context, workflowID string, status models.ExecutionStatus) error {
	args := m.Called(ctx, workflowID, status)

	return args.Error(0)
}

func (m *MockWorkflowStore) AddLog(ctx context.Context, workflowID string, entry *models.ExecutionLogEntry) error {
	args := m.Called(ctx, workflowID, entry)

	return args.Error(0)
}

func (m *MockWorkflowStore) Logs(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionLogEntry, error) {
	args := m.Called(ctx, workflowID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionLogEntry), args.Error(1)
}

func (m *MockWorkflowStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockWorkflowStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
