package condition

import (
	"context"

	"github.com/onios/onid/pkg/protocol"
)

// ConditionNodeFactory creates ConditionNode instances.
type ConditionNodeFactory struct{}

// NewConditionNodeFactory creates a new condition node factory.
func NewConditionNodeFactory() protocol.NodeFactory {
	return &ConditionNodeFactory{}
}

// Create creates a new ConditionNode instance.
func (f *ConditionNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewConditionNode(id, config)
}

// ID returns the factory ID.
func (f *ConditionNodeFactory) ID() string {
	return "condition"
}

// Name returns the factory name.
func (f *ConditionNodeFactory) Name() string {
	return "Condition"
}

// Description returns the factory description.
func (f *ConditionNodeFactory) Description() string {
	return "Evaluates a predicate over the input and follows the matching true/false branch"
}

// Schema returns the JSON schema for condition node configuration.
func (f *ConditionNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operator": map[string]any{
				"type":        "string",
				"description": "Comparison to evaluate",
				"enum": []string{
					OperatorEquals, OperatorNotEquals,
					OperatorContains, OperatorNotContains,
					OperatorGreaterThan, OperatorLessThan,
					OperatorExists, OperatorEmpty,
				},
			},
			"field": map[string]any{
				"type":        "string",
				"description": "Path into the input to compare; the whole input when empty",
				"examples": []string{
					"status",
					"data.items[0].name",
				},
			},
			"value": map[string]any{
				"description": "Value to compare against, for operators that take one",
			},
		},
		"required": []string{"operator"},
	}
}
