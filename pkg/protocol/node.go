// Package protocol defines the interfaces and contracts for workflow nodes.
package protocol

import (
	"context"
	"log/slog"

	"github.com/onios/onid/pkg/commands"
	"github.com/onios/onid/pkg/eventbus"
	"github.com/onios/onid/pkg/models"
)

// Node is an executable node instance, created from a WorkflowNode's
// configuration for the duration of one workflow execution.
type Node interface {
	// ID returns the node ID within its workflow.
	ID() string

	// Type returns the node type.
	Type() models.NodeType

	// Execute runs the node. A nil error with a populated output marks the
	// node resolved; a non-nil error marks it rejected, except for context
	// cancellation, which leaves the node idle. An output may accompany an
	// error when the node has identifiers worth recording, such as the run
	// backing a failed command.
	Execute(ctx context.Context, input NodeInput) (*NodeOutput, error)
}

// CommandRunner executes command invocations on behalf of nodes.
type CommandRunner interface {
	ExecuteAs(ctx context.Context, raw string, source models.RunSource, parentRunID string) *commands.Handle
}

// NodeEnv carries the services a node may use while executing.
type NodeEnv struct {
	Commands  CommandRunner
	Publisher eventbus.EventPublisher
	Logger    *slog.Logger

	// AppendLog records an entry in the execution log of the running
	// workflow. The engine binds the workflow, execution and node IDs.
	AppendLog func(level models.LogLevel, message string)
}

// NodeInput carries the data flowing into a node execution.
type NodeInput struct {
	WorkflowID  string
	ExecutionID string

	// Input is the output of the upstream node, or the trigger data for
	// nodes fed directly by a trigger.
	Input any

	// TriggerData is the payload the triggering event carried, if any.
	TriggerData map[string]any

	Env NodeEnv
}

// NodeOutput carries the result of a successful node execution.
type NodeOutput struct {
	// Value is the node's output, handed to downstream nodes as input.
	Value any

	// Branch names the outgoing connection label to follow. Empty means
	// all unlabeled connections.
	Branch string

	// RunID references the command run backing this node, when one exists.
	RunID string
}

// NodeFactory creates node instances and provides metadata about the node type.
type NodeFactory interface {
	// Create creates a new node instance with the given configuration
	Create(ctx context.Context, id string, config map[string]any) (Node, error)

	// ID returns the unique identifier for this node type
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}
