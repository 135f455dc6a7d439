package ai

import (
	"context"

	"github.com/onios/onid/pkg/protocol"
)

// AINodeFactory creates AINode instances.
type AINodeFactory struct{}

// NewAINodeFactory creates a new AI node factory.
func NewAINodeFactory() protocol.NodeFactory {
	return &AINodeFactory{}
}

// Create creates a new AINode instance.
func (f *AINodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewAINode(id, config)
}

// ID returns the factory ID.
func (f *AINodeFactory) ID() string {
	return "ai"
}

// Name returns the factory name.
func (f *AINodeFactory) Name() string {
	return "AI"
}

// Description returns the factory description.
func (f *AINodeFactory) Description() string {
	return "Sends a prompt to an Anthropic model and resolves with the completion"
}

// Schema returns the JSON schema for AI node configuration.
func (f *AINodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "User prompt. Supports {{input}} placeholders.",
				"examples": []string{
					"Summarize: {{input}}",
					"Classify the sentiment of {{input.review}} as positive or negative",
				},
			},
			"system": map[string]any{
				"type":        "string",
				"description": "System prompt. Supports {{input}} placeholders.",
			},
			"model": map[string]any{
				"type":        "string",
				"description": "Model to use",
				"default":     defaultModel,
			},
			"maxTokens": map[string]any{
				"type":        "number",
				"description": "Maximum tokens in the completion",
				"default":     defaultMaxTokens,
				"minimum":     1,
			},
			"apiKey": map[string]any{
				"type":        "string",
				"description": "API key. Falls back to the ANTHROPIC_API_KEY environment variable.",
			},
			"baseUrl": map[string]any{
				"type":        "string",
				"description": "API base URL, for gateways and proxies",
				"default":     defaultBaseURL,
			},
			"extract": map[string]any{
				"type":        "string",
				"description": "Path into the result to resolve with instead of the full payload",
				"examples": []string{
					"text",
					"usage.output_tokens",
				},
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     defaultTimeoutSeconds,
				"minimum":     1,
				"maximum":     600,
			},
		},
		"required": []string{"prompt"},
	}
}
