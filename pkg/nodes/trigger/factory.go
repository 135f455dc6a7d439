package trigger

import (
	"context"

	"github.com/onios/onid/pkg/protocol"
)

// TriggerNodeFactory creates TriggerNode instances.
type TriggerNodeFactory struct{}

// NewTriggerNodeFactory creates a new trigger node factory.
func NewTriggerNodeFactory() protocol.NodeFactory {
	return &TriggerNodeFactory{}
}

// Create creates a new TriggerNode instance.
func (f *TriggerNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewTriggerNode(id, config)
}

// ID returns the factory ID.
func (f *TriggerNodeFactory) ID() string {
	return "trigger"
}

// Name returns the factory name.
func (f *TriggerNodeFactory) Name() string {
	return "Trigger"
}

// Description returns the factory description.
func (f *TriggerNodeFactory) Description() string {
	return "Starts a workflow execution manually, on a schedule, or when a named event fires"
}

// Schema returns the JSON schema for trigger node configuration.
func (f *TriggerNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"triggerType": map[string]any{
				"type":        "string",
				"description": "How this workflow starts",
				"default":     "manual",
				"enum":        []string{"manual", "schedule", "event"},
			},
			"schedule": map[string]any{
				"type":        "string",
				"description": "Cron expression, required when triggerType is 'schedule'",
				"examples": []string{
					"*/5 * * * *",
					"0 9 * * MON-FRI",
				},
			},
			"event": map[string]any{
				"type":        "string",
				"description": "Event name to listen for, required when triggerType is 'event'",
				"examples": []string{
					"file.saved",
					"session.started",
				},
			},
		},
	}
}
