package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/protocol"
)

func TestNewTriggerNode(t *testing.T) {
	testCases := []struct {
		name    string
		config  map[string]any
		wantErr string
	}{
		{
			name:   "defaults to manual",
			config: map[string]any{},
		},
		{
			name:   "explicit manual",
			config: map[string]any{"triggerType": "manual"},
		},
		{
			name:   "schedule with expression",
			config: map[string]any{"triggerType": "schedule", "schedule": "*/5 * * * *"},
		},
		{
			name:   "event with name",
			config: map[string]any{"triggerType": "event", "event": "file.saved"},
		},
		{
			name:    "unknown trigger type",
			config:  map[string]any{"triggerType": "webhook"},
			wantErr: "unknown trigger type",
		},
		{
			name:    "event without name",
			config:  map[string]any{"triggerType": "event"},
			wantErr: "requires field 'event'",
		},
		{
			name:    "schedule without expression",
			config:  map[string]any{"triggerType": "schedule"},
			wantErr: "requires field 'schedule'",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			node, err := NewTriggerNode("trigger-1", tc.config)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "trigger-1", node.ID())
			assert.Equal(t, models.NodeTypeTrigger, node.Type())
		})
	}
}

func TestTriggerNode_Execute(t *testing.T) {
	node, err := NewTriggerNode("trigger-1", map[string]any{"triggerType": "manual"})
	require.NoError(t, err)

	out, err := node.Execute(t.Context(), protocol.NodeInput{})
	require.NoError(t, err)

	value, ok := out.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "manual", value["trigger_type"])
	assert.NotContains(t, value, "data")

	triggeredAt, ok := value["triggered_at"].(string)
	require.True(t, ok)

	_, err = time.Parse(time.RFC3339, triggeredAt)
	assert.NoError(t, err)
}

func TestTriggerNode_Execute_WithTriggerData(t *testing.T) {
	node, err := NewTriggerNode("trigger-1", map[string]any{"triggerType": "event", "event": "file.saved"})
	require.NoError(t, err)

	out, err := node.Execute(t.Context(), protocol.NodeInput{
		TriggerData: map[string]any{"path": "/tmp/notes.md"},
	})
	require.NoError(t, err)

	value, ok := out.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "event", value["trigger_type"])
	assert.Equal(t, map[string]any{"path": "/tmp/notes.md"}, value["data"])
}
