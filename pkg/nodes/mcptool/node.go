// Package mcptool provides the node that calls a tool on an MCP server.
//
// The server is launched as a subprocess for the duration of the call and
// spoken to over stdio.
package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/protocol"
	"github.com/onios/onid/pkg/template"
)

const (
	defaultTimeoutSeconds = 60
	protocolVersion       = "2024-11-05"
)

// MCPToolNode launches an MCP server and invokes one of its tools.
type MCPToolNode struct {
	id     string
	config MCPToolConfig
}

// MCPToolConfig defines the configuration for MCP tool nodes.
type MCPToolConfig struct {
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Tool      string            `json:"tool"`
	Arguments map[string]any    `json:"arguments,omitempty"`
	Timeout   float64           `json:"timeout"`
}

// NewMCPToolNode creates a new MCP tool node.
func NewMCPToolNode(id string, config map[string]any) (*MCPToolNode, error) {
	toolConfig := MCPToolConfig{
		Timeout: defaultTimeoutSeconds,
	}

	command, ok := config["command"].(string)
	if !ok || command == "" {
		return nil, errors.New("missing required field 'command'")
	}

	toolConfig.Command = command

	tool, ok := config["tool"].(string)
	if !ok || tool == "" {
		return nil, errors.New("missing required field 'tool'")
	}

	toolConfig.Tool = tool

	if args, ok := config["args"].([]any); ok {
		for _, arg := range args {
			if strVal, ok := arg.(string); ok {
				toolConfig.Args = append(toolConfig.Args, strVal)
			}
		}
	}

	if env, ok := config["env"].(map[string]any); ok {
		toolConfig.Env = make(map[string]string, len(env))
		for k, v := range env {
			if strVal, ok := v.(string); ok {
				toolConfig.Env[k] = strVal
			}
		}
	}

	if arguments, ok := config["arguments"].(map[string]any); ok {
		toolConfig.Arguments = arguments
	}

	if timeout, ok := config["timeout"].(float64); ok && timeout > 0 {
		toolConfig.Timeout = timeout
	}

	return &MCPToolNode{
		id:     id,
		config: toolConfig,
	}, nil
}

// ID returns the node ID.
func (n *MCPToolNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *MCPToolNode) Type() models.NodeType {
	return models.NodeTypeMCP
}

// Execute launches the server, initializes the session and calls the tool.
func (n *MCPToolNode) Execute(ctx context.Context, input protocol.NodeInput) (*protocol.NodeOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(n.config.Timeout*float64(time.Second)))
	defer cancel()

	env := make([]string, 0, len(n.config.Env))
	for k, v := range n.config.Env {
		env = append(env, k+"="+v)
	}

	mcpClient, err := client.NewStdioMCPClient(n.config.Command, env, n.config.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to launch MCP server: %w", err)
	}

	defer func() {
		_ = mcpClient.Close()
	}()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = protocolVersion
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "onid",
		Version: "1.0.0",
	}

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("failed to initialize MCP session: %w", err)
	}

	arguments, _ := template.ResolveDeep(n.config.Arguments, input.Input).(map[string]any)

	result, err := mcpClient.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      n.config.Tool,
			Arguments: arguments,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	text := contentText(result.Content)

	if result.IsError {
		return nil, fmt.Errorf("tool '%s' failed: %s", n.config.Tool, text)
	}

	return &protocol.NodeOutput{Value: text}, nil
}

// contentText joins the text blocks of a tool result, skipping any
// non-text content.
func contentText(content any) string {
	contentBytes, _ := json.Marshal(content)

	var contentList []map[string]any
	_ = json.Unmarshal(contentBytes, &contentList)

	var sb strings.Builder

	for _, block := range contentList {
		blockType, _ := block["type"].(string)
		if blockType != "text" {
			continue
		}

		if text, ok := block["text"].(string); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}

			sb.WriteString(text)
		}
	}

	return sb.String()
}
