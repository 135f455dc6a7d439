// Package condition provides the branching node that routes execution on a predicate.
package condition

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/protocol"
	"github.com/onios/onid/pkg/template"
)

// Supported comparison operators.
const (
	OperatorEquals      = "equals"
	OperatorNotEquals   = "notEquals"
	OperatorContains    = "contains"
	OperatorNotContains = "notContains"
	OperatorGreaterThan = "greaterThan"
	OperatorLessThan    = "lessThan"
	OperatorExists      = "exists"
	OperatorEmpty       = "empty"
)

// ConditionNode evaluates a predicate over its input and resolves on either
// the "true" or the "false" branch.
type ConditionNode struct {
	id       string
	field    string
	operator string
	value    any
}

// NewConditionNode creates a new condition node.
func NewConditionNode(id string, config map[string]any) (*ConditionNode, error) {
	operator, ok := config["operator"].(string)
	if !ok || operator == "" {
		return nil, errors.New("missing required field 'operator'")
	}

	switch operator {
	case OperatorEquals, OperatorNotEquals, OperatorContains, OperatorNotContains,
		OperatorGreaterThan, OperatorLessThan, OperatorExists, OperatorEmpty:
	default:
		return nil, fmt.Errorf("unknown operator '%s'", operator)
	}

	field, _ := config["field"].(string)

	return &ConditionNode{
		id:       id,
		field:    field,
		operator: operator,
		value:    config["value"],
	}, nil
}

// ID returns the node ID.
func (n *ConditionNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *ConditionNode) Type() models.NodeType {
	return models.NodeTypeCondition
}

// Execute evaluates the predicate and routes to the matching branch.
func (n *ConditionNode) Execute(_ context.Context, input protocol.NodeInput) (*protocol.NodeOutput, error) {
	actual := input.Input
	if n.field != "" {
		actual, _ = template.Lookup(n.field, input.Input)
	}

	result := n.evaluate(actual)

	branch := models.BranchFalse
	if result {
		branch = models.BranchTrue
	}

	value := map[string]any{
		"_condition": true,
		"result":     result,
		"operator":   n.operator,
		"actual":     actual,
		"expected":   n.value,
	}

	return &protocol.NodeOutput{Value: value, Branch: branch}, nil
}

func (n *ConditionNode) evaluate(actual any) bool {
	switch n.operator {
	case OperatorEquals:
		return looseEquals(actual, n.value)
	case OperatorNotEquals:
		return !looseEquals(actual, n.value)
	case OperatorContains:
		return contains(actual, n.value)
	case OperatorNotContains:
		return !contains(actual, n.value)
	case OperatorGreaterThan:
		a, aok := toNumber(actual)
		b, bok := toNumber(n.value)

		return aok && bok && a > b
	case OperatorLessThan:
		a, aok := toNumber(actual)
		b, bok := toNumber(n.value)

		return aok && bok && a < b
	case OperatorExists:
		return actual != nil
	case OperatorEmpty:
		return isEmpty(actual)
	default:
		return false
	}
}

// looseEquals compares numerically when both sides are numbers, otherwise
// by the textual rendering of each side.
func looseEquals(a, b any) bool {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)

	if aok && bok {
		return an == bn
	}

	return template.Stringify(a) == template.Stringify(b)
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if looseEquals(item, needle) {
				return true
			}
		}

		return false
	case nil:
		return false
	default:
		return strings.Contains(template.Stringify(haystack), template.Stringify(needle))
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
