// Package trigger provides the entry point node of every workflow graph.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/protocol"
)

// TriggerNode marks where an execution enters the graph. It always resolves,
// emitting firing metadata plus whatever payload the trigger carried.
type TriggerNode struct {
	id          string
	triggerType models.TriggerType
}

// NewTriggerNode creates a new trigger node.
func NewTriggerNode(id string, config map[string]any) (*TriggerNode, error) {
	triggerType := models.TriggerTypeManual
	if tt, ok := config["triggerType"].(string); ok && tt != "" {
		triggerType = models.TriggerType(tt)
	}

	switch triggerType {
	case models.TriggerTypeManual, models.TriggerTypeSchedule, models.TriggerTypeEvent:
	default:
		return nil, fmt.Errorf("unknown trigger type '%s'", triggerType)
	}

	if triggerType == models.TriggerTypeEvent {
		if event, ok := config["event"].(string); !ok || event == "" {
			return nil, fmt.Errorf("trigger type 'event' requires field 'event'")
		}
	}

	if triggerType == models.TriggerTypeSchedule {
		if schedule, ok := config["schedule"].(string); !ok || schedule == "" {
			return nil, fmt.Errorf("trigger type 'schedule' requires field 'schedule'")
		}
	}

	return &TriggerNode{
		id:          id,
		triggerType: triggerType,
	}, nil
}

// ID returns the node ID.
func (n *TriggerNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *TriggerNode) Type() models.NodeType {
	return models.NodeTypeTrigger
}

// Execute emits the trigger metadata as the node's output.
func (n *TriggerNode) Execute(_ context.Context, input protocol.NodeInput) (*protocol.NodeOutput, error) {
	value := map[string]any{
		"trigger_type": string(n.triggerType),
		"triggered_at": time.Now().UTC().Format(time.RFC3339),
	}

	if len(input.TriggerData) > 0 {
		value["data"] = input.TriggerData
	}

	return &protocol.NodeOutput{Value: value}, nil
}
