// Package delay provides a node that suspends execution for a configured duration.
package delay

import (
	"context"
	"errors"
	"time"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/protocol"
)

// DelayNode waits out its configured duration and passes its input through
// unchanged. An aborted execution interrupts the wait.
type DelayNode struct {
	id      string
	seconds float64
}

// NewDelayNode creates a new delay node.
func NewDelayNode(id string, config map[string]any) (*DelayNode, error) {
	seconds, ok := toSeconds(config["seconds"])
	if !ok {
		return nil, errors.New("missing required field 'seconds'")
	}

	if seconds <= 0 {
		return nil, errors.New("field 'seconds' must be greater than zero")
	}

	return &DelayNode{
		id:      id,
		seconds: seconds,
	}, nil
}

func toSeconds(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// ID returns the node ID.
func (n *DelayNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *DelayNode) Type() models.NodeType {
	return models.NodeTypeDelay
}

// Execute waits for the configured duration, then passes the input through.
func (n *DelayNode) Execute(ctx context.Context, input protocol.NodeInput) (*protocol.NodeOutput, error) {
	timer := time.NewTimer(time.Duration(n.seconds * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-timer.C:
		return &protocol.NodeOutput{Value: input.Input}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
