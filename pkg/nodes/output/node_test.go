package output

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onios/onid/pkg/eventbus"
	"github.com/onios/onid/pkg/events"
	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/protocol"
)

// capturingPublisher records published events for assertions.
type capturingPublisher struct {
	published []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.published = append(p.published, event)

	return nil
}

func TestNewOutputNode(t *testing.T) {
	node, err := NewOutputNode("out-1", map[string]any{"message": "done"})
	require.NoError(t, err)
	assert.Equal(t, "out-1", node.ID())
	assert.Equal(t, models.NodeTypeOutput, node.Type())

	_, err = NewOutputNode("out-1", map[string]any{})
	assert.ErrorContains(t, err, "missing required field 'message'")

	_, err = NewOutputNode("out-1", map[string]any{"message": "x", "action": "email"})
	assert.ErrorContains(t, err, "unknown output action 'email'")
}

func TestOutputNode_Execute_Notify(t *testing.T) {
	node, err := NewOutputNode("out-1", map[string]any{
		"message": "build finished: {{input.status}}",
	})
	require.NoError(t, err)

	publisher := &capturingPublisher{}

	out, err := node.Execute(t.Context(), protocol.NodeInput{
		WorkflowID: "wf-1",
		Input:      map[string]any{"status": "green"},
		Env:        protocol.NodeEnv{Publisher: publisher},
	})
	require.NoError(t, err)

	value, ok := out.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, value["_output"])
	assert.Equal(t, ActionNotify, value["action"])
	assert.Equal(t, "build finished: green", value["message"])
	assert.NotEmpty(t, value["timestamp"])

	require.Len(t, publisher.published, 1)

	notification, ok := publisher.published[0].(events.Notification)
	require.True(t, ok)
	assert.Equal(t, "build finished: green", notification.Message)
	assert.Equal(t, "out-1", notification.NodeID)
	assert.Equal(t, "wf-1", notification.WorkflowID)
}

func TestOutputNode_Execute_Log(t *testing.T) {
	node, err := NewOutputNode("out-1", map[string]any{
		"message": "saw {{input}}",
		"action":  "log",
	})
	require.NoError(t, err)

	var logged []string

	out, err := node.Execute(t.Context(), protocol.NodeInput{
		Input: "hello",
		Env: protocol.NodeEnv{
			AppendLog: func(level models.LogLevel, message string) {
				logged = append(logged, string(level)+": "+message)
			},
		},
	})
	require.NoError(t, err)

	value, ok := out.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ActionLog, value["action"])

	require.Len(t, logged, 1)
	assert.Equal(t, "info: saw hello", logged[0])
}

func TestOutputNode_Execute_WithoutServices(t *testing.T) {
	// A node with no publisher or log sink still resolves
	node, err := NewOutputNode("out-1", map[string]any{"message": "quiet"})
	require.NoError(t, err)

	out, err := node.Execute(t.Context(), protocol.NodeInput{})
	require.NoError(t, err)

	value, ok := out.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "quiet", value["message"])
}
