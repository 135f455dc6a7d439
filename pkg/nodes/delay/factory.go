package delay

import (
	"context"

	"github.com/onios/onid/pkg/protocol"
)

// DelayNodeFactory creates DelayNode instances.
type DelayNodeFactory struct{}

// NewDelayNodeFactory creates a new delay node factory.
func NewDelayNodeFactory() protocol.NodeFactory {
	return &DelayNodeFactory{}
}

// Create creates a new DelayNode instance.
func (f *DelayNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewDelayNode(id, config)
}

// ID returns the factory ID.
func (f *DelayNodeFactory) ID() string {
	return "delay"
}

// Name returns the factory name.
func (f *DelayNodeFactory) Name() string {
	return "Delay"
}

// Description returns the factory description.
func (f *DelayNodeFactory) Description() string {
	return "Suspends the branch for a number of seconds, then passes the input through"
}

// Schema returns the JSON schema for delay node configuration.
func (f *DelayNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seconds": map[string]any{
				"type":             "number",
				"description":      "Seconds to wait before continuing",
				"exclusiveMinimum": 0,
				"maximum":          3600,
				"examples":         []float64{1, 0.5, 30},
			},
		},
		"required": []string{"seconds"},
	}
}
