// Package events defines the event types and structures published on the
// shell's event bus: command settlements, workflow execution lifecycle,
// node transitions, notifications and user-named custom events.
package events

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onios/onid/pkg/models"
)

type EventType string

// Topic carries every event of the in-process bus.
const Topic = "onid.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Command settlement events.
	CommandExecutedEvent EventType = "command.executed"
	CommandFailedEvent   EventType = "command.failed"

	// Workflow execution lifecycle events.
	WorkflowExecutionStartedEvent   EventType = "workflow.execution.started"
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"
	WorkflowExecutionAbortedEvent   EventType = "workflow.execution.aborted"

	// Node transition events.
	NodeStartedEvent  EventType = "node.started"
	NodeFinishedEvent EventType = "node.finished"
	NodeFailedEvent   EventType = "node.failed"

	// Raised by output nodes and system notifications.
	NotificationRaisedEvent EventType = "notification.raised"
)

// CustomPrefix namespaces user-named events so they can never collide with
// the built-in lifecycle types.
const CustomPrefix = "custom."

// CustomEventType derives the bus event type for a user-named event.
func CustomEventType(name string) EventType {
	return EventType(CustomPrefix + name)
}

// IsCustom reports whether the type belongs to a user-named event and
// returns the bare name.
func IsCustom(t EventType) (string, bool) {
	name, ok := strings.CutPrefix(string(t), CustomPrefix)

	return name, ok && name != ""
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Command settlement events

type CommandExecuted struct {
	BaseEvent

	RunID      string            `json:"run_id"`
	Path       string            `json:"path"`
	Source     models.RunSource  `json:"source"`
	OutputType models.OutputType `json:"output_type"`
	DurationMs int64             `json:"duration_ms"`
}

func (c CommandExecuted) GetType() EventType {
	return CommandExecutedEvent
}

type CommandFailed struct {
	BaseEvent

	RunID      string           `json:"run_id"`
	Path       string           `json:"path"`
	Source     models.RunSource `json:"source"`
	Error      string           `json:"error"`
	DurationMs int64            `json:"duration_ms"`
}

func (c CommandFailed) GetType() EventType {
	return CommandFailedEvent
}

// Workflow execution lifecycle events

type WorkflowExecutionStarted struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	WorkflowName string `json:"workflow_name"`
	TriggerKind  string `json:"trigger_kind"`
	TriggerData  any    `json:"trigger_data,omitempty"`
}

func (w WorkflowExecutionStarted) GetType() EventType {
	return WorkflowExecutionStartedEvent
}

type WorkflowExecutionCompleted struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
	NodesSkipped  int    `json:"nodes_skipped"`
}

func (w WorkflowExecutionCompleted) GetType() EventType {
	return WorkflowExecutionCompletedEvent
}

type WorkflowExecutionFailed struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
	FailedNodeID  string `json:"failed_node_id,omitempty"`
	Error         string `json:"error"`
}

func (w WorkflowExecutionFailed) GetType() EventType {
	return WorkflowExecutionFailedEvent
}

type WorkflowExecutionAborted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	DurationMs  int64  `json:"duration_ms"`
}

func (w WorkflowExecutionAborted) GetType() EventType {
	return WorkflowExecutionAbortedEvent
}

// Node transition events

type NodeStarted struct {
	BaseEvent

	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id"`
	NodeType    models.NodeType `json:"node_type"`
	Input       any             `json:"input,omitempty"`
}

func (n NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

type NodeFinished struct {
	BaseEvent

	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id"`
	NodeType    models.NodeType `json:"node_type"`
	Output      any             `json:"output,omitempty"`
	Branch      string          `json:"branch,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

func (n NodeFinished) GetType() EventType {
	return NodeFinishedEvent
}

type NodeFailed struct {
	BaseEvent

	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id"`
	NodeType    models.NodeType `json:"node_type"`
	Error       string          `json:"error"`
	DurationMs  int64           `json:"duration_ms"`
}

func (n NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

// Notification is what output nodes raise for the shell to display.
type Notification struct {
	BaseEvent

	Level   models.LogLevel `json:"level"`
	Message string          `json:"message"`
	NodeID  string          `json:"node_id,omitempty"`
}

func (n Notification) GetType() EventType {
	return NotificationRaisedEvent
}

// Custom is a user-named event, emitted via events.emit or the API and
// consumed by event-type trigger nodes.
type Custom struct {
	BaseEvent

	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

func (c Custom) GetType() EventType {
	return CustomEventType(c.Name)
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}
