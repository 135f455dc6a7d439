package models

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// ExecutionStatus summarizes one engine execution of a workflow.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusAborted   ExecutionStatus = "aborted"
)

// Workflow is a node graph owned by the shell's editor. The engine only
// reads its structure and writes the per-node runtime fields while it runs.
type Workflow struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"    validate:"required,min=1"`
	Description   string          `json:"description,omitempty"`
	Enabled       bool            `json:"enabled"` // Gates event and schedule triggers
	Nodes         []*WorkflowNode `json:"nodes"`
	Connections   []*Connection   `json:"connections"`
	LastRunStatus ExecutionStatus `json:"last_run_status,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// TriggerNodes returns the trigger nodes in declaration order.
func (w *Workflow) TriggerNodes() []*WorkflowNode {
	var triggers []*WorkflowNode

	for _, n := range w.Nodes {
		if n.IsTrigger() {
			triggers = append(triggers, n)
		}
	}

	return triggers
}

// OutgoingConnections returns the edges leaving a node in declaration order.
func (w *Workflow) OutgoingConnections(nodeID string) []*Connection {
	var out []*Connection

	for _, c := range w.Connections {
		if c.From == nodeID {
			out = append(out, c)
		}
	}

	return out
}

// IncomingConnections returns the edges entering a node in declaration order.
func (w *Workflow) IncomingConnections(nodeID string) []*Connection {
	var in []*Connection

	for _, c := range w.Connections {
		if c.To == nodeID {
			in = append(in, c)
		}
	}

	return in
}

// ResetRuntime clears every node's runtime fields.
func (w *Workflow) ResetRuntime() {
	for _, n := range w.Nodes {
		n.ResetRuntime()
	}
}

// Clone copies the workflow's structure. Node config maps are copied one
// level deep; runtime input/output values are shared and treated as
// immutable.
func (w *Workflow) Clone() *Workflow {
	c := *w

	c.Nodes = make([]*WorkflowNode, len(w.Nodes))
	for i, n := range w.Nodes {
		node := *n

		if n.Config != nil {
			node.Config = make(map[string]any, len(n.Config))
			maps.Copy(node.Config, n.Config)
		}

		c.Nodes[i] = &node
	}

	c.Connections = make([]*Connection, len(w.Connections))
	for i, conn := range w.Connections {
		edge := *conn
		c.Connections[i] = &edge
	}

	return &c
}

var (
	ErrSelfLoop           = errors.New("connection loops a node onto itself")
	ErrDuplicateEdge      = errors.New("duplicate connection between nodes")
	ErrDanglingConnection = errors.New("connection references an unknown node")
	ErrBranchLabel        = errors.New("branch label on a non-condition source")
	ErrDuplicateBranch    = errors.New("duplicate branch label on condition node")
)

// ValidateGraph checks the structural invariants of the node graph: every
// edge references existing nodes, no self loops, at most one edge per node
// pair, labels only out of condition nodes and at most one per label.
func (w *Workflow) ValidateGraph() error {
	seen := make(map[string]struct{}, len(w.Connections))
	branches := make(map[string]struct{})

	for _, c := range w.Connections {
		from := w.NodeByID(c.From)
		to := w.NodeByID(c.To)

		if from == nil || to == nil {
			return fmt.Errorf("%w: %s -> %s", ErrDanglingConnection, c.From, c.To)
		}

		if c.From == c.To {
			return fmt.Errorf("%w: %s", ErrSelfLoop, c.From)
		}

		pair := c.From + "->" + c.To
		if _, dup := seen[pair]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateEdge, pair)
		}

		seen[pair] = struct{}{}

		if c.Label == "" {
			continue
		}

		if from.Type != NodeTypeCondition {
			return fmt.Errorf("%w: %s (%s)", ErrBranchLabel, c.From, c.Label)
		}

		branch := c.From + ":" + c.Label
		if _, dup := branches[branch]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateBranch, branch)
		}

		branches[branch] = struct{}{}
	}

	return nil
}
