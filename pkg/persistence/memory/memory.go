// Package memory provides the in-process workflow store the desktop shell
// runs on by default. Everything lives in maps behind one mutex; copies go
// in and copies come out, so callers can never alias store state.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/persistence"
)

type Store struct {
	logLimit int

	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	logs      map[string][]*models.ExecutionLogEntry
}

// NewStore creates an empty in-memory store. logLimit bounds the execution
// log kept per workflow; zero means persistence.DefaultLogLimit.
func NewStore(logLimit int) *Store {
	if logLimit <= 0 {
		logLimit = persistence.DefaultLogLimit
	}

	return &Store{
		logLimit:  logLimit,
		workflows: make(map[string]*models.Workflow),
		logs:      make(map[string][]*models.ExecutionLogEntry),
	}
}

func (s *Store) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflow, ok := s.workflows[id]
	if !ok {
		return nil, persistence.NewWorkflowError("GetWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	return workflow.Clone(), nil
}

func (s *Store) ListWorkflows(_ context.Context) ([]*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Workflow, 0, len(s.workflows))
	for _, workflow := range s.workflows {
		out = append(out, workflow.Clone())
	}

	return out, nil
}

// SaveWorkflow stores an edited workflow. Edits always reset node runtime
// state so a stored graph never carries a previous run's fields.
func (s *Store) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return persistence.NewWorkflowError("SaveWorkflow", "", persistence.ErrInvalidWorkflow)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := workflow.Clone()
	stored.ResetRuntime()

	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	stored.UpdatedAt = now

	s.workflows[stored.ID] = stored

	return nil
}

func (s *Store) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return persistence.NewWorkflowError("DeleteWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	delete(s.workflows, id)
	delete(s.logs, id)

	return nil
}

func (s *Store) UpdateNode(_ context.Context, workflowID, nodeID string, patch *models.NodePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflow, ok := s.workflows[workflowID]
	if !ok {
		return persistence.NewNodeError("UpdateNode", workflowID, nodeID, persistence.ErrWorkflowNotFound)
	}

	node := workflow.NodeByID(nodeID)
	if node == nil {
		return persistence.NewNodeError("UpdateNode", workflowID, nodeID, persistence.ErrNodeNotFound)
	}

	if patch != nil {
		patch.Apply(node)
	}

	return nil
}

func (s *Store) ResetNodeStates(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflow, ok := s.workflows[workflowID]
	if !ok {
		return persistence.NewWorkflowError("ResetNodeStates", workflowID, persistence.ErrWorkflowNotFound)
	}

	workflow.ResetRuntime()

	return nil
}

func (s *Store) SetLastRunStatus(_ context.Context, workflowID string, status models.ExecutionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflow, ok := s.workflows[workflowID]
	if !ok {
		return persistence.NewWorkflowError("SetLastRunStatus", workflowID, persistence.ErrWorkflowNotFound)
	}

	workflow.LastRunStatus = status

	return nil
}

func (s *Store) AddLog(_ context.Context, workflowID string, entry *models.ExecutionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[workflowID]; !ok {
		return persistence.NewWorkflowError("AddLog", workflowID, persistence.ErrWorkflowNotFound)
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	entries := append(s.logs[workflowID], entry)
	if len(entries) > s.logLimit {
		entries = entries[len(entries)-s.logLimit:]
	}

	s.logs[workflowID] = entries

	return nil
}

// Logs returns the latest entries in chronological order, up to limit
// (0 means all retained).
func (s *Store) Logs(_ context.Context, workflowID string, limit int) ([]*models.ExecutionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.workflows[workflowID]; !ok {
		return nil, persistence.NewWorkflowError("Logs", workflowID, persistence.ErrWorkflowNotFound)
	}

	entries := s.logs[workflowID]
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}

	out := make([]*models.ExecutionLogEntry, len(entries))
	copy(out, entries)

	return out, nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}
