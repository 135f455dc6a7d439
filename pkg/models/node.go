// Package models defines core node-based workflow models for graph execution
package models

// NodeType enumerates the built-in node kinds.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeCommand   NodeType = "command"
	NodeTypeCondition NodeType = "condition"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeOutput    NodeType = "output"
	NodeTypeHTTP      NodeType = "http"
	NodeTypeMCP       NodeType = "mcp"
	NodeTypeAI        NodeType = "ai"
)

// TriggerType selects how a trigger node fires.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"   // Fired by execute/API only
	TriggerTypeSchedule TriggerType = "schedule" // Fired by a cron expression
	TriggerTypeEvent    TriggerType = "event"    // Fired by a named bus event
)

// NodeStatus defines the runtime states of a node within one execution.
// Idle is both the initial state and the terminal state of a skipped node.
type NodeStatus string

const (
	NodeStatusIdle     NodeStatus = "idle"
	NodeStatusRunning  NodeStatus = "running"
	NodeStatusResolved NodeStatus = "resolved"
	NodeStatusRejected NodeStatus = "rejected"
)

// Connection labels carried by edges leaving a condition node.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Connection is a directed edge between two nodes. Label is empty except on
// edges leaving a condition node, where it names the branch taken.
type Connection struct {
	ID    string `json:"id"`
	From  string `json:"from"            validate:"required"`
	To    string `json:"to"              validate:"required"`
	Label string `json:"label,omitempty" validate:"omitempty,oneof=true false"`
}

// WorkflowNode is a node instance in a workflow. Config holds the
// type-specific parameters; the runtime fields are owned by the engine and
// reset to idle/null at the start of every execution and on every edit.
type WorkflowNode struct {
	ID        string         `json:"id"    validate:"required"`
	Type      NodeType       `json:"type"  validate:"required"`
	Label     string         `json:"label" validate:"required,min=1"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`

	// Runtime fields, engine-owned.
	Status NodeStatus `json:"status,omitempty"`
	Input  any        `json:"input,omitempty"`
	Output any        `json:"output,omitempty"`
	RunID  string     `json:"run_id,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// IsTrigger reports whether the node starts executions.
func (n *WorkflowNode) IsTrigger() bool {
	return n.Type == NodeTypeTrigger
}

// TriggerKind reads config.triggerType, defaulting to manual.
func (n *WorkflowNode) TriggerKind() TriggerType {
	if v, ok := n.Config["triggerType"].(string); ok && v != "" {
		return TriggerType(v)
	}

	return TriggerTypeManual
}

// ConfigString reads a string entry from the node config.
func (n *WorkflowNode) ConfigString(key string) string {
	v, _ := n.Config[key].(string)

	return v
}

// ResetRuntime clears the engine-owned fields back to idle/null.
func (n *WorkflowNode) ResetRuntime() {
	n.Status = NodeStatusIdle
	n.Input = nil
	n.Output = nil
	n.RunID = ""
	n.Error = ""
}

// NodePatch is a partial update of a node's runtime fields. Nil pointers
// leave the corresponding field untouched.
type NodePatch struct {
	Status *NodeStatus
	Input  *any
	Output *any
	RunID  *string
	Error  *string
}

// Apply writes the non-nil patch fields onto the node.
func (p *NodePatch) Apply(n *WorkflowNode) {
	if p.Status != nil {
		n.Status = *p.Status
	}

	if p.Input != nil {
		n.Input = *p.Input
	}

	if p.Output != nil {
		n.Output = *p.Output
	}

	if p.RunID != nil {
		n.RunID = *p.RunID
	}

	if p.Error != nil {
		n.Error = *p.Error
	}
}
