// Package file provides file-based persistence for workflows and their
// execution logs. Each workflow is one JSON document under <root>/workflows;
// logs live as one JSON document per workflow under <root>/logs.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/persistence"
)

type Store struct {
	root     string
	logLimit int

	// One mutex serializes the read-modify-write cycles of node patches
	// and log appends.
	mu sync.Mutex
}

// NewStore creates a file store rooted at the given directory. A "file://"
// prefix on root is accepted and stripped.
func NewStore(root string, logLimit int) *Store {
	if logLimit <= 0 {
		logLimit = persistence.DefaultLogLimit
	}

	return &Store{
		root:     strings.Replace(root, "file://", "", 1),
		logLimit: logLimit,
	}
}

func (s *Store) workflowPath(id string) string {
	return filepath.Clean(path.Join(s.root, "workflows", id+".json"))
}

func (s *Store) logPath(id string) string {
	return filepath.Clean(path.Join(s.root, "logs", id+".json"))
}

func (s *Store) readWorkflow(id string) (*models.Workflow, error) {
	body, err := os.ReadFile(s.workflowPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to read workflow %s: %w", id, err)
	}

	var workflow models.Workflow

	if err := json.Unmarshal(body, &workflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &workflow, nil
}

func (s *Store) writeWorkflow(workflow *models.Workflow) error {
	if err := os.MkdirAll(path.Join(s.root, "workflows"), 0750); err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	return os.WriteFile(s.workflowPath(workflow.ID), data, 0600)
}

func (s *Store) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflow, err := s.readWorkflow(id)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetWorkflow", id, err)
	}

	return workflow, nil
}

func (s *Store) ListWorkflows(_ context.Context) ([]*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := os.DirFS(path.Join(s.root, "workflows"))

	jsonFiles, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		id := strings.TrimSuffix(name, ".json")

		workflow, err := s.readWorkflow(id)
		if err != nil {
			return nil, persistence.NewWorkflowError("ListWorkflows", id, err)
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

// SaveWorkflow stores an edited workflow, resetting node runtime fields.
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

	if err := s.writeWorkflow(stored); err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", stored.ID, err)
	}

	return nil
}

func (s *Store) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.workflowPath(id))
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	err = os.Remove(s.logPath(id))
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	return nil
}

func (s *Store) UpdateNode(_ context.Context, workflowID, nodeID string, patch *models.NodePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflow, err := s.readWorkflow(workflowID)
	if err != nil {
		return persistence.NewNodeError("UpdateNode", workflowID, nodeID, err)
	}

	node := workflow.NodeByID(nodeID)
	if node == nil {
		return persistence.NewNodeError("UpdateNode", workflowID, nodeID, persistence.ErrNodeNotFound)
	}

	if patch != nil {
		patch.Apply(node)
	}

	if err := s.writeWorkflow(workflow); err != nil {
		return persistence.NewNodeError("UpdateNode", workflowID, nodeID, err)
	}

	return nil
}

func (s *Store) ResetNodeStates(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflow, err := s.readWorkflow(workflowID)
	if err != nil {
		return persistence.NewWorkflowError("ResetNodeStates", workflowID, err)
	}

	workflow.ResetRuntime()

	if err := s.writeWorkflow(workflow); err != nil {
		return persistence.NewWorkflowError("ResetNodeStates", workflowID, err)
	}

	return nil
}

func (s *Store) SetLastRunStatus(_ context.Context, workflowID string, status models.ExecutionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflow, err := s.readWorkflow(workflowID)
	if err != nil {
		return persistence.NewWorkflowError("SetLastRunStatus", workflowID, err)
	}

	workflow.LastRunStatus = status

	if err := s.writeWorkflow(workflow); err != nil {
		return persistence.NewWorkflowError("SetLastRunStatus", workflowID, err)
	}

	return nil
}

func (s *Store) AddLog(_ context.Context, workflowID string, entry *models.ExecutionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readWorkflow(workflowID); err != nil {
		return persistence.NewWorkflowError("AddLog", workflowID, err)
	}

	entries, err := s.readLogs(workflowID)
	if err != nil {
		return persistence.NewWorkflowError("AddLog", workflowID, err)
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	entries = append(entries, entry)
	if len(entries) > s.logLimit {
		entries = entries[len(entries)-s.logLimit:]
	}

	if err := s.writeLogs(workflowID, entries); err != nil {
		return persistence.NewWorkflowError("AddLog", workflowID, err)
	}

	return nil
}

func (s *Store) Logs(_ context.Context, workflowID string, limit int) ([]*models.ExecutionLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readWorkflow(workflowID); err != nil {
		return nil, persistence.NewWorkflowError("Logs", workflowID, err)
	}

	entries, err := s.readLogs(workflowID)
	if err != nil {
		return nil, persistence.NewWorkflowError("Logs", workflowID, err)
	}

	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}

	return entries, nil
}

func (s *Store) readLogs(workflowID string) ([]*models.ExecutionLogEntry, error) {
	body, err := os.ReadFile(s.logPath(workflowID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read logs for %s: %w", workflowID, err)
	}

	var entries []*models.ExecutionLogEntry

	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal logs for %s: %w", workflowID, err)
	}

	return entries, nil
}

func (s *Store) writeLogs(workflowID string, entries []*models.ExecutionLogEntry) error {
	if err := os.MkdirAll(path.Join(s.root, "logs"), 0750); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal logs for %s: %w", workflowID, err)
	}

	return os.WriteFile(s.logPath(workflowID), data, 0600)
}

// HealthCheck verifies the root directory exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}
