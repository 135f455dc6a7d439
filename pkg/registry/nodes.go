package registry

import (
	"github.com/onios/onid/pkg/nodes/ai"
	"github.com/onios/onid/pkg/nodes/command"
	"github.com/onios/onid/pkg/nodes/condition"
	"github.com/onios/onid/pkg/nodes/delay"
	"github.com/onios/onid/pkg/nodes/httprequest"
	"github.com/onios/onid/pkg/nodes/mcptool"
	"github.com/onios/onid/pkg/nodes/output"
	"github.com/onios/onid/pkg/nodes/trigger"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes() {
	// Graph entry point
	r.RegisterNode(trigger.NewTriggerNodeFactory())

	// Core execution nodes
	r.RegisterNode(command.NewCommandNodeFactory())
	r.RegisterNode(condition.NewConditionNodeFactory())
	r.RegisterNode(delay.NewDelayNodeFactory())
	r.RegisterNode(output.NewOutputNodeFactory())

	// Integration nodes
	r.RegisterNode(httprequest.NewHTTPRequestNodeFactory())
	r.RegisterNode(mcptool.NewMCPToolNodeFactory())
	r.RegisterNode(ai.NewAINodeFactory())
}
