// Package httprequest provides the node that performs HTTP calls from a workflow.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/protocol"
	"github.com/onios/onid/pkg/template"
)

const defaultTimeoutSeconds = 30

// HTTPRequestNode performs one HTTP request and resolves with the response,
// optionally reduced to a single extracted field.
type HTTPRequestNode struct {
	id     string
	config HTTPRequestConfig
}

// HTTPRequestConfig defines the configuration for HTTP request nodes.
type HTTPRequestConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
	Timeout float64           `json:"timeout"`
	Extract string            `json:"extract,omitempty"`
}

// NewHTTPRequestNode creates a new HTTP request node.
func NewHTTPRequestNode(id string, config map[string]any) (*HTTPRequestNode, error) {
	httpConfig := HTTPRequestConfig{
		Method:  http.MethodGet,
		Headers: make(map[string]string),
		Timeout: defaultTimeoutSeconds,
	}

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	httpConfig.URL = url

	if method, ok := config["method"].(string); ok && method != "" {
		httpConfig.Method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if strVal, ok := v.(string); ok {
				httpConfig.Headers[k] = strVal
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		httpConfig.Body = body
	}

	if timeout, ok := config["timeout"].(float64); ok && timeout > 0 {
		httpConfig.Timeout = timeout
	}

	if extract, ok := config["extract"].(string); ok {
		httpConfig.Extract = extract
	}

	return &HTTPRequestNode{
		id:     id,
		config: httpConfig,
	}, nil
}

// ID returns the node ID.
func (n *HTTPRequestNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *HTTPRequestNode) Type() models.NodeType {
	return models.NodeTypeHTTP
}

// Execute performs the HTTP request with the input substituted into the
// URL, headers and body.
func (n *HTTPRequestNode) Execute(ctx context.Context, input protocol.NodeInput) (*protocol.NodeOutput, error) {
	url := template.Resolve(n.config.URL, input.Input)
	body := template.Resolve(n.config.Body, input.Input)

	headers := make(map[string]string, len(n.config.Headers))
	for key, value := range n.config.Headers {
		headers[key] = template.Resolve(value, input.Input)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(n.config.Timeout*float64(time.Second)))
	defer cancel()

	result, err := n.performRequest(ctx, url, body, headers)
	if err != nil {
		return nil, err
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

// performRequest executes a single HTTP request.
func (n *HTTPRequestNode) performRequest(ctx context.Context, url, body string, headers map[string]string) (map[string]any, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, n.config.Method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	// Default Content-Type when a body is present
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(respBody),
	}

	// Structured access for JSON responses
	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["json"] = jsonBody
	}

	return result, nil
}
