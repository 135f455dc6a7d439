// Package ai provides the node that asks an Anthropic model for a completion.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/protocol"
	"github.com/onios/onid/pkg/template"
)

const (
	defaultBaseURL        = "https://api.anthropic.com"
	messagesPath          = "/v1/messages"
	apiVersion            = "2023-06-01"
	defaultModel          = "claude-sonnet-4-20250514"
	defaultMaxTokens      = 1024
	defaultTimeoutSeconds = 120
)

// AINode sends a prompt to the Anthropic messages API and resolves with the
// model's reply.
type AINode struct {
	id     string
	config AIConfig
}

// AIConfig defines the configuration for AI nodes.
type AIConfig struct {
	Prompt    string  `json:"prompt"`
	System    string  `json:"system,omitempty"`
	Model     string  `json:"model"`
	MaxTokens int     `json:"maxTokens"`
	APIKey    string  `json:"apiKey,omitempty"`
	BaseURL   string  `json:"baseUrl,omitempty"`
	Extract   string  `json:"extract,omitempty"`
	Timeout   float64 `json:"timeout"`
}

// messageRequest is the Anthropic API request format.
type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
	System    string    `json:"system,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messageResponse is the Anthropic API response format.
type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAINode creates a new AI node.
func NewAINode(id string, config map[string]any) (*AINode, error) {
	aiConfig := AIConfig{
		Model:     defaultModel,
		MaxTokens: defaultMaxTokens,
		BaseURL:   defaultBaseURL,
		Timeout:   defaultTimeoutSeconds,
	}

	prompt, ok := config["prompt"].(string)
	if !ok || prompt == "" {
		return nil, errors.New("missing required field 'prompt'")
	}

	aiConfig.Prompt = prompt

	if system, ok := config["system"].(string); ok {
		aiConfig.System = system
	}

	if model, ok := config["model"].(string); ok && model != "" {
		aiConfig.Model = model
	}

	if maxTokens, ok := config["maxTokens"].(float64); ok && maxTokens > 0 {
		aiConfig.MaxTokens = int(maxTokens)
	}

	if apiKey, ok := config["apiKey"].(string); ok {
		aiConfig.APIKey = apiKey
	}

	if baseURL, ok := config["baseUrl"].(string); ok && baseURL != "" {
		aiConfig.BaseURL = baseURL
	}

	if extract, ok := config["extract"].(string); ok {
		aiConfig.Extract = extract
	}

	if timeout, ok := config["timeout"].(float64); ok && timeout > 0 {
		aiConfig.Timeout = timeout
	}

	return &AINode{
		id:     id,
		config: aiConfig,
	}, nil
}

// ID returns the node ID.
func (n *AINode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *AINode) Type() models.NodeType {
	return models.NodeTypeAI
}

// Execute sends the templated prompt and resolves with the completion.
func (n *AINode) Execute(ctx context.Context, input protocol.NodeInput) (*protocol.NodeOutput, error) {
	apiKey := n.config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	if apiKey == "" {
		return nil, errors.New("no API key: set config 'apiKey' or ANTHROPIC_API_KEY")
	}

	prompt := template.Resolve(n.config.Prompt, input.Input)
	system := template.Resolve(n.config.System, input.Input)

	body, err := json.Marshal(messageRequest{
		Model:     n.config.Model,
		MaxTokens: n.config.MaxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(n.config.Timeout*float64(time.Second)))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.BaseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed messageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if parsed.Error != nil {
		return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
	}

	text := ""

	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	result := map[string]any{
		"text":        text,
		"model":       parsed.Model,
		"stop_reason": parsed.StopReason,
		"usage": map[string]any{
			"input_tokens":  parsed.Usage.InputTokens,
			"output_tokens": parsed.Usage.OutputTokens,
		},
	}

	value := any(result)
	if n.config.Extract != "" {
		extracted, ok := template.Lookup(n.config.Extract, result)
		if !ok {
			return nil, fmt.Errorf("extract path '%s' not found in response", n.config.Extract)
		}

		value = extracted
	}

	return &protocol.NodeOutput{Value: value}, nil
}
