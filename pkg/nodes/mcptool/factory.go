package mcptool

import (
	"context"

	"github.com/onios/onid/pkg/protocol"
)

// MCPToolNodeFactory creates MCPToolNode instances.
type MCPToolNodeFactory struct{}

// NewMCPToolNodeFactory creates a new MCP tool node factory.
func NewMCPToolNodeFactory() protocol.NodeFactory {
	return &MCPToolNodeFactory{}
}

// Create creates a new MCPToolNode instance.
func (f *MCPToolNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewMCPToolNode(id, config)
}

// ID returns the factory ID.
func (f *MCPToolNodeFactory) ID() string {
	return "mcp"
}

// Name returns the factory name.
func (f *MCPToolNodeFactory) Name() string {
	return "MCP Tool"
}

// Description returns the factory description.
func (f *MCPToolNodeFactory) Description() string {
	return "Launches an MCP server over stdio and calls one of its tools"
}

// Schema returns the JSON schema for MCP tool node configuration.
func (f *MCPToolNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Executable that serves the MCP protocol on stdio",
				"examples": []string{
					"npx",
					"/usr/local/bin/filesystem-mcp",
				},
			},
			"args": map[string]any{
				"type":        "array",
				"description": "Arguments passed to the server executable",
				"items":       map[string]any{"type": "string"},
			},
			"env": map[string]any{
				"type":        "object",
				"description": "Environment variables for the server process",
			},
			"tool": map[string]any{
				"type":        "string",
				"description": "Name of the tool to call",
			},
			"arguments": map[string]any{
				"type":        "object",
				"description": "Tool arguments. String values support {{input}} placeholders.",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Call timeout in seconds, covering server startup",
				"default":     defaultTimeoutSeconds,
				"minimum":     1,
				"maximum":     600,
			},
		},
		"required": []string{"command", "tool"},
	}
}
