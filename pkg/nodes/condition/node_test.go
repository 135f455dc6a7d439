package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/protocol"
)

func TestNewConditionNode(t *testing.T) {
	node, err := NewConditionNode("cond-1", map[string]any{
		"operator": OperatorEquals,
		"field":    "status",
		"value":    "ready",
	})
	require.NoError(t, err)
	assert.Equal(t, "cond-1", node.ID())
	assert.Equal(t, models.NodeTypeCondition, node.Type())

	_, err = NewConditionNode("cond-1", map[string]any{})
	assert.ErrorContains(t, err, "missing required field 'operator'")

	_, err = NewConditionNode("cond-1", map[string]any{"operator": "matches"})
	assert.ErrorContains(t, err, "unknown operator 'matches'")
}

func TestConditionNode_Evaluate(t *testing.T) {
	testCases := []struct {
		name     string
		config   map[string]any
		input    any
		expected bool
	}{
		{
			name:     "equals on field",
			config:   map[string]any{"operator": "equals", "field": "status", "value": "ready"},
			input:    map[string]any{"status": "ready"},
			expected: true,
		},
		{
			name:     "equals numeric across types",
			config:   map[string]any{"operator": "equals", "value": 5},
			input:    5.0,
			expected: true,
		},
		{
			name:     "equals number against its rendering",
			config:   map[string]any{"operator": "equals", "value": "5"},
			input:    5.0,
			expected: true,
		},
		{
			name:     "notEquals",
			config:   map[string]any{"operator": "notEquals", "value": "done"},
			input:    "pending",
			expected: true,
		},
		{
			name:     "contains on string",
			config:   map[string]any{"operator": "contains", "value": "err"},
			input:    "internal error",
			expected: true,
		},
		{
			name:     "contains on list",
			config:   map[string]any{"operator": "contains", "field": "tags", "value": "urgent"},
			input:    map[string]any{"tags": []any{"draft", "urgent"}},
			expected: true,
		},
		{
			name:     "notContains on list",
			config:   map[string]any{"operator": "notContains", "field": "tags", "value": "spam"},
			input:    map[string]any{"tags": []any{"draft"}},
			expected: true,
		},
		{
			name:     "greaterThan",
			config:   map[string]any{"operator": "greaterThan", "field": "count", "value": 10},
			input:    map[string]any{"count": 12.0},
			expected: true,
		},
		{
			name:     "greaterThan on non-number",
			config:   map[string]any{"operator": "greaterThan", "value": 10},
			input:    map[string]any{"nested": true},
			expected: false,
		},
		{
			name:     "lessThan",
			config:   map[string]any{"operator": "lessThan", "value": 10},
			input:    3.0,
			expected: true,
		},
		{
			name:     "exists on present field",
			config:   map[string]any{"operator": "exists", "field": "user.name"},
			input:    map[string]any{"user": map[string]any{"name": "ada"}},
			expected: true,
		},
		{
			name:     "exists on missing field",
			config:   map[string]any{"operator": "exists", "field": "user.email"},
			input:    map[string]any{"user": map[string]any{"name": "ada"}},
			expected: false,
		},
		{
			name:     "exists on nil input",
			config:   map[string]any{"operator": "exists"},
			input:    nil,
			expected: false,
		},
		{
			name:     "empty on empty list",
			config:   map[string]any{"operator": "empty", "field": "items"},
			input:    map[string]any{"items": []any{}},
			expected: true,
		},
		{
			name:     "empty on blank string",
			config:   map[string]any{"operator": "empty"},
			input:    "",
			expected: true,
		},
		{
			name:     "empty on number",
			config:   map[string]any{"operator": "empty"},
			input:    0.0,
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			node, err := NewConditionNode("cond-1", tc.config)
			require.NoError(t, err)

			out, err := node.Execute(t.Context(), protocol.NodeInput{Input: tc.input})
			require.NoError(t, err)

			wantBranch := models.BranchFalse
			if tc.expected {
				wantBranch = models.BranchTrue
			}

			assert.Equal(t, wantBranch, out.Branch)

			value, ok := out.Value.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tc.expected, value["result"])
		})
	}
}

func TestConditionNode_Execute_Payload(t *testing.T) {
	node, err := NewConditionNode("cond-1", map[string]any{
		"operator": "equals",
		"field":    "status",
		"value":    "ready",
	})
	require.NoError(t, err)

	out, err := node.Execute(t.Context(), protocol.NodeInput{
		Input: map[string]any{"status": "ready"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.BranchTrue, out.Branch)

	value, ok := out.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, value["_condition"])
	assert.Equal(t, true, value["result"])
	assert.Equal(t, "equals", value["operator"])
	assert.Equal(t, "ready", value["actual"])
	assert.Equal(t, "ready", value["expected"])
}
