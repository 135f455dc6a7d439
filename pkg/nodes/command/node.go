// Package command provides the node that dispatches a command invocation
// through the command registry.
package command

import (
	"context"
	"errors"

	"github.com/onios/onid/pkg/commands"
	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/protocol"
	"github.com/onios/onid/pkg/template"
)

// CommandNode executes a textual command invocation, pipe chains included,
// and resolves with the chain's final output.
type CommandNode struct {
	id  string
	raw string
}

// NewCommandNode creates a new command node.
func NewCommandNode(id string, config map[string]any) (*CommandNode, error) {
	raw, ok := config["command"].(string)
	if !ok || raw == "" {
		return nil, errors.New("missing required field 'command'")
	}

	return &CommandNode{
		id:  id,
		raw: raw,
	}, nil
}

// ID returns the node ID.
func (n *CommandNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *CommandNode) Type() models.NodeType {
	return models.NodeTypeCommand
}

// Execute substitutes the input into the invocation, dispatches it and
// awaits the resulting run.
func (n *CommandNode) Execute(ctx context.Context, input protocol.NodeInput) (*protocol.NodeOutput, error) {
	if input.Env.Commands == nil {
		return nil, errors.New("command registry not available")
	}

	raw := template.Resolve(n.raw, input.Input)
	handle := input.Env.Commands.ExecuteAs(ctx, raw, models.RunSourceWorkflow, commands.RunIDFromContext(ctx))

	settled, err := handle.Wait(ctx)
	if err != nil {
		return nil, err
	}

	if settled.Status == models.RunStatusRejected {
		// Keep the run reference so the failure stays inspectable.
		return &protocol.NodeOutput{RunID: handle.RunID()}, errors.New(settled.Error)
	}

	return &protocol.NodeOutput{
		Value: handle.Output(),
		RunID: handle.RunID(),
	}, nil
}
