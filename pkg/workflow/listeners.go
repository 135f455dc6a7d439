package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/onios/onid/pkg/eventbus"
	"github.com/onios/onid/pkg/events"
	"github.com/onios/onid/pkg/models"
)

// listenerTarget is one trigger a listener must serve: a workflow waiting on
// a named event or on a cron schedule.
type listenerTarget struct {
	workflowID string
	kind       models.TriggerType
	spec       string
}

// InitListeners wires event and schedule triggers for every enabled
// workflow: event triggers subscribe to their named bus event, schedule
// triggers register cron entries. Safe to call repeatedly; the wiring is
// only rebuilt when the derived listener set changed.
func (e *Engine) InitListeners(ctx context.Context) error {
	workflows, err := e.store.ListWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	targets := listenerTargets(workflows)
	signature := listenerSignature(targets)

	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()

	if signature == e.listenerSig {
		return nil
	}

	e.teardownLocked()

	byEvent := make(map[string][]string)

	var eventNames []string

	for _, target := range targets {
		if target.kind != models.TriggerTypeEvent {
			continue
		}

		if _, seen := byEvent[target.spec]; !seen {
			eventNames = append(eventNames, target.spec)
		}

		byEvent[target.spec] = append(byEvent[target.spec], target.workflowID)
	}

	for _, name := range eventNames {
		if e.bus == nil {
			e.logger.WarnContext(ctx, "event triggers configured without an event bus", "event", name)

			continue
		}

		eventType := events.CustomEventType(name)
		if err := e.bus.Handle(eventType, e.customEventHandler(name, byEvent[name])); err != nil {
			return fmt.Errorf("failed to subscribe event '%s': %w", name, err)
		}

		e.subscribed = append(e.subscribed, eventType)
	}

	scheduled := 0

	for _, target := range targets {
		if target.kind != models.TriggerTypeSchedule {
			continue
		}

		if e.cron == nil {
			e.cron = cron.New(cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			))
		}

		workflowID := target.workflowID

		if _, err := e.cron.AddFunc(target.spec, func() {
			e.fireSchedule(workflowID)
		}); err != nil {
			e.logger.WarnContext(ctx, "invalid schedule expression",
				"workflow_id", target.workflowID, "schedule", target.spec, "error", err)

			continue
		}

		scheduled++
	}

	if e.cron != nil {
		e.cron.Start()
	}

	e.listenerSig = signature

	e.logger.InfoContext(ctx, "listeners initialized",
		"event_subscriptions", len(e.subscribed), "schedules", scheduled)

	return nil
}

// StopListeners drops every event subscription and cron entry.
func (e *Engine) StopListeners() {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()

	e.teardownLocked()
	e.listenerSig = ""
}

func (e *Engine) teardownLocked() {
	if e.bus != nil {
		for _, eventType := range e.subscribed {
			e.bus.Off(eventType)
		}
	}

	e.subscribed = nil

	if e.cron != nil {
		e.cron.Stop()
		e.cron = nil
	}
}

func (e *Engine) customEventHandler(name string, workflowIDs []string) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		custom, ok := event.(*events.Custom)
		if !ok {
			return nil
		}

		data := triggerDataFromPayload(custom.Payload)

		e.logger.InfoContext(ctx, "event trigger fired", "event", name, "workflows", len(workflowIDs))

		for _, workflowID := range workflowIDs {
			go func(workflowID string) {
				if _, err := e.ExecuteWithTrigger(ctx, workflowID, models.TriggerTypeEvent, data); err != nil {
					e.logger.ErrorContext(ctx, "event-triggered execution failed",
						"workflow_id", workflowID, "event", name, "error", err)
				}
			}(workflowID)
		}

		return nil
	}
}

func (e *Engine) fireSchedule(workflowID string) {
	data := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if _, err := e.ExecuteWithTrigger(context.Background(), workflowID, models.TriggerTypeSchedule, data); err != nil {
		e.logger.Error("scheduled execution failed", "workflow_id", workflowID, "error", err)
	}
}

// listenerTargets derives the listener set from the stored workflows.
// Disabled workflows never listen.
func listenerTargets(workflows []*models.Workflow) []listenerTarget {
	var targets []listenerTarget

	for _, workflow := range workflows {
		if !workflow.Enabled {
			continue
		}

		for _, node := range workflow.TriggerNodes() {
			switch node.TriggerKind() {
			case models.TriggerTypeEvent:
				if name := node.ConfigString("event"); name != "" {
					targets = append(targets, listenerTarget{
						workflowID: workflow.ID,
						kind:       models.TriggerTypeEvent,
						spec:       name,
					})
				}
			case models.TriggerTypeSchedule:
				if expr := node.ConfigString("schedule"); expr != "" {
					targets = append(targets, listenerTarget{
						workflowID: workflow.ID,
						kind:       models.TriggerTypeSchedule,
						spec:       expr,
					})
				}
			case models.TriggerTypeManual:
			}
		}
	}

	return targets
}

// listenerSignature fingerprints everything the listener wiring depends on.
// InitListeners compares it against the previous derivation instead of
// diffing subscription state.
func listenerSignature(targets []listenerTarget) string {
	parts := make([]string, 0, len(targets))

	for _, target := range targets {
		parts = append(parts, target.workflowID+"|"+string(target.kind)+"|"+target.spec)
	}

	sort.Strings(parts)

	return strings.Join(parts, "\n")
}

// triggerDataFromPayload seeds an event's payload into trigger data. Object
// payloads ride as-is; anything else is wrapped under "payload".
func triggerDataFromPayload(payload any) map[string]any {
	if payload == nil {
		return nil
	}

	if m, ok := payload.(map[string]any); ok {
		return m
	}

	return map[string]any{"payload": payload}
}
