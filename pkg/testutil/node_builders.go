// Package testutil provides test data builders shared across packages.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/onios/onid/pkg/models"
)

// CreateTestNode creates a command node with default values that can be
// overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:        uuid.New().String(),
		Type:      models.NodeTypeCommand,
		Label:     "Test Node",
		Config:    map[string]any{"command": "system.echo(hello)"},
		PositionX: 100,
		PositionY: 200,
		Status:    models.NodeStatusIdle,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithTriggerNode configures the node as a manual trigger.
func WithTriggerNode() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = models.NodeTypeTrigger
		n.Label = "Trigger"
		n.Config = map[string]any{"triggerType": "manual"}
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithLabel sets the node label.
func WithLabel(label string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Label = label
	}
}

// WithPosition sets the node position.
func WithPosition(x, y int) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.PositionX = x
		n.PositionY = y
	}
}

// WithType sets the node type.
func WithType(nodeType models.NodeType) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// CreateTestWorkflow creates an enabled workflow with no nodes.
func CreateTestWorkflow() *models.Workflow {
	now := time.Now().UTC()

	return &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Description: "A workflow for testing",
		Enabled:     true,
		Nodes:       []*models.WorkflowNode{},
		Connections: []*models.Connection{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CreateTestWorkflowWithNodes creates a workflow with a manual trigger wired
// to a command node.
func CreateTestWorkflowWithNodes() *models.Workflow {
	workflow := CreateTestWorkflow()

	triggerNode := CreateTestNode(WithTriggerNode(), WithID("trigger-1"))
	commandNode := CreateTestNode(WithID("step-1"), WithLabel("Echo"))

	workflow.Nodes = []*models.WorkflowNode{triggerNode, commandNode}
	workflow.Connections = []*models.Connection{
		CreateTestConnection("trigger-1", "step-1"),
	}

	return workflow
}

// CreateTestConnection creates an unlabeled connection between two nodes.
func CreateTestConnection(from, to string) *models.Connection {
	return &models.Connection{
		ID:   uuid.New().String(),
		From: from,
		To:   to,
	}
}

// CreateTestBranch creates a labeled connection leaving a condition node.
func CreateTestBranch(from, to, label string) *models.Connection {
	return &models.Connection{
		ID:    uuid.New().String(),
		From:  from,
		To:    to,
		Label: label,
	}
}
