package output

import (
	"context"

	"github.com/onios/onid/pkg/protocol"
)

// OutputNodeFactory creates OutputNode instances.
type OutputNodeFactory struct{}

// NewOutputNodeFactory creates a new output node factory.
func NewOutputNodeFactory() protocol.NodeFactory {
	return &OutputNodeFactory{}
}

// Create creates a new OutputNode instance.
func (f *OutputNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewOutputNode(id, config)
}

// ID returns the factory ID.
func (f *OutputNodeFactory) ID() string {
	return "output"
}

// Name returns the factory name.
func (f *OutputNodeFactory) Name() string {
	return "Output"
}

// Description returns the factory description.
func (f *OutputNodeFactory) Description() string {
	return "Raises a notification or records a log line rendered from the input"
}

// Schema returns the JSON schema for output node configuration.
func (f *OutputNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to surface. Supports {{input}} placeholders.",
				"examples": []string{
					"Build finished: {{input.status}}",
					"{{input}}",
				},
			},
			"action": map[string]any{
				"type":        "string",
				"description": "How to surface the message",
				"default":     ActionNotify,
				"enum":        []string{ActionNotify, ActionLog},
			},
		},
		"required": []string{"message"},
	}
}
