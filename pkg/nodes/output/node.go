// Package output provides the node that surfaces a value to the user.
package output

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onios/onid/pkg/events"
	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/protocol"
	"github.com/onios/onid/pkg/template"
)

// Supported output actions.
const (
	ActionNotify = "notify"
	ActionLog    = "log"
)

// OutputNode renders a message from its input and either raises a
// user-visible notification or records it in the execution log.
type OutputNode struct {
	id      string
	action  string
	message string
}

// NewOutputNode creates a new output node.
func NewOutputNode(id string, config map[string]any) (*OutputNode, error) {
	message, ok := config["message"].(string)
	if !ok {
		return nil, errors.New("missing required field 'message'")
	}

	action := ActionNotify
	if a, ok := config["action"].(string); ok && a != "" {
		action = a
	}

	if action != ActionNotify && action != ActionLog {
		return nil, fmt.Errorf("unknown output action '%s'", action)
	}

	return &OutputNode{
		id:      id,
		action:  action,
		message: message,
	}, nil
}

// ID returns the node ID.
func (n *OutputNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *OutputNode) Type() models.NodeType {
	return models.NodeTypeOutput
}

// Execute renders the message and performs the configured side effect.
func (n *OutputNode) Execute(ctx context.Context, input protocol.NodeInput) (*protocol.NodeOutput, error) {
	message := template.Resolve(n.message, input.Input)

	switch n.action {
	case ActionLog:
		if input.Env.AppendLog != nil {
			input.Env.AppendLog(models.LogLevelInfo, message)
		}
	case ActionNotify:
		n.notify(ctx, input, message)
	}

	value := map[string]any{
		"_output":   true,
		"action":    n.action,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	return &protocol.NodeOutput{Value: value}, nil
}

// notify publishes the notification event. Delivery failure does not fail
// the node; the message is still part of its resolved payload.
func (n *OutputNode) notify(ctx context.Context, input protocol.NodeInput, message string) {
	if input.Env.Publisher == nil {
		return
	}

	event := events.Notification{
		BaseEvent: events.NewBaseEvent(events.NotificationRaisedEvent, input.WorkflowID),
		Level:     models.LogLevelInfo,
		Message:   message,
		NodeID:    n.id,
	}

	if err := input.Env.Publisher.Publish(ctx, input.WorkflowID, event); err != nil && input.Env.Logger != nil {
		input.Env.Logger.WarnContext(ctx, "Failed to publish notification", "error", err)
	}
}
