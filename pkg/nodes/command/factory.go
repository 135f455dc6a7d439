package command

import (
	"context"

	"github.com/onios/onid/pkg/protocol"
)

// CommandNodeFactory creates CommandNode instances.
type CommandNodeFactory struct{}

// NewCommandNodeFactory creates a new command node factory.
func NewCommandNodeFactory() protocol.NodeFactory {
	return &CommandNodeFactory{}
}

// Create creates a new CommandNode instance.
func (f *CommandNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewCommandNode(id, config)
}

// ID returns the factory ID.
func (f *CommandNodeFactory) ID() string {
	return "command"
}

// Name returns the factory name.
func (f *CommandNodeFactory) Name() string {
	return "Command"
}

// Description returns the factory description.
func (f *CommandNodeFactory) Description() string {
	return "Runs a registered command, pipe chains included, and resolves with its output"
}

// Schema returns the JSON schema for command node configuration.
func (f *CommandNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Command invocation. Supports {{input}} placeholders and pipe chains.",
				"examples": []string{
					"system.echo({{input}})",
					"files.read(notes.md) | text.upper()",
				},
			},
		},
		"required": []string{"command"},
	}
}
