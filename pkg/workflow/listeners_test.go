package workflow

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/onios/onid/pkg/channels/gochannel"
	"github.com/onios/onid/pkg/commands"
	"github.com/onios/onid/pkg/eventbus"
	"github.com/onios/onid/pkg/events"
	"github.com/onios/onid/pkg/mocks"
	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/persistence/memory"
	"github.com/onios/onid/pkg/registry"
)

func newListenerEngine(t *testing.T, bus eventbus.EventBus) (*Engine, *memory.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := memory.NewStore(50)

	tracker := commands.NewTracker(100, logger)
	cmds := commands.NewRegistry(tracker, nil, logger)

	nodeRegistry := registry.NewRegistry(logger)
	nodeRegistry.RegisterDefaultNodes()

	return NewEngine(store, cmds, nodeRegistry, bus, logger), store
}

func saveEventWorkflow(t *testing.T, store *memory.Store, id, event string) {
	t.Helper()

	saveTestWorkflow(t, store, id,
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{"triggerType": "event", "event": event}),
			testNode("output-1", models.NodeTypeOutput, map[string]any{"message": "fired"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "output-1", ""),
		})
}

func TestEngine_InitListeners_UnchangedStoreIsNoOp(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Handle", events.CustomEventType("ping"), mock.Anything).Return(nil).Once()

	engine, store := newListenerEngine(t, bus)
	saveEventWorkflow(t, store, "wf-1", "ping")

	require.NoError(t, engine.InitListeners(t.Context()))

	// Same store, same signature: no rewiring.
	require.NoError(t, engine.InitListeners(t.Context()))
	require.NoError(t, engine.InitListeners(t.Context()))

	bus.AssertExpectations(t)
	bus.AssertNumberOfCalls(t, "Handle", 1)
}

func TestEngine_InitListeners_RederivesOnChange(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Handle", events.CustomEventType("ping"), mock.Anything).Return(nil)
	bus.On("Off", events.CustomEventType("ping")).Return()

	engine, store := newListenerEngine(t, bus)
	saveEventWorkflow(t, store, "wf-1", "ping")

	require.NoError(t, engine.InitListeners(t.Context()))

	// Disabling the workflow empties the listener set; the old subscription
	// is dropped and nothing new is wired.
	workflow, err := store.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)

	workflow.Enabled = false
	require.NoError(t, store.SaveWorkflow(t.Context(), workflow))

	require.NoError(t, engine.InitListeners(t.Context()))

	bus.AssertNumberOfCalls(t, "Handle", 1)
	bus.AssertNumberOfCalls(t, "Off", 1)
}

func TestEngine_StopListeners_AllowsRewiring(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Handle", events.CustomEventType("ping"), mock.Anything).Return(nil).Twice()
	bus.On("Off", events.CustomEventType("ping")).Return().Twice()

	engine, store := newListenerEngine(t, bus)
	saveEventWorkflow(t, store, "wf-1", "ping")

	require.NoError(t, engine.InitListeners(t.Context()))
	engine.StopListeners()

	// Stop cleared the signature, so the same store wires again.
	require.NoError(t, engine.InitListeners(t.Context()))
	engine.StopListeners()

	bus.AssertExpectations(t)
}

func TestEngine_EventTrigger_EndToEnd(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	engine, store := newListenerEngine(t, bus)

	saveTestWorkflow(t, store, "wf-events",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{"triggerType": "event", "event": "deploy.finished"}),
			testNode("output-1", models.NodeTypeOutput, map[string]any{"action": "log", "message": "deployed {{input.data.version}}"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "output-1", ""),
		})

	require.NoError(t, engine.InitListeners(t.Context()))
	require.NoError(t, bus.Subscribe(t.Context()))

	event := events.Custom{
		BaseEvent: events.NewBaseEvent(events.CustomEventType("deploy.finished"), ""),
		Name:      "deploy.finished",
		Payload:   map[string]any{"version": "1.4.2"},
	}
	require.NoError(t, bus.Publish(t.Context(), "deploy.finished", event))

	require.Eventually(t, func() bool {
		workflow, err := store.GetWorkflow(context.Background(), "wf-events")
		if err != nil {
			return false
		}

		return workflow.LastRunStatus == models.ExecutionStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	// The event payload rode into the trigger data.
	logs, err := store.Logs(t.Context(), "wf-events", 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, logIndex(logs, "output-1", "deployed 1.4.2"), 0)

	engine.StopListeners()
	require.NoError(t, bus.Close())
}

func TestEngine_ScheduleTrigger_Fires(t *testing.T) {
	engine, store := newListenerEngine(t, nil)

	saveTestWorkflow(t, store, "wf-cron",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{"triggerType": "schedule", "schedule": "@every 100ms"}),
			testNode("output-1", models.NodeTypeOutput, map[string]any{"message": "tick"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "output-1", ""),
		})

	require.NoError(t, engine.InitListeners(t.Context()))
	defer engine.StopListeners()

	// The next firing resets node state, so grab a settled snapshot instead
	// of reading after the fact.
	var snapshot *models.Workflow

	require.Eventually(t, func() bool {
		workflow, err := store.GetWorkflow(context.Background(), "wf-cron")
		if err != nil || workflow.LastRunStatus != models.ExecutionStatusCompleted {
			return false
		}

		if _, ok := workflow.NodeByID("trigger-1").Output.(map[string]any); !ok {
			return false
		}

		snapshot = workflow

		return true
	}, 3*time.Second, 25*time.Millisecond)

	trigger, ok := snapshot.NodeByID("trigger-1").Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "schedule", trigger["trigger_type"])

	data, ok := trigger["data"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, data["timestamp"])
}

func TestEngine_InitListeners_BadScheduleIsSkipped(t *testing.T) {
	engine, store := newListenerEngine(t, nil)

	saveTestWorkflow(t, store, "wf-bad-cron",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{"triggerType": "schedule", "schedule": "not a cron"}),
			testNode("output-1", models.NodeTypeOutput, map[string]any{"message": "never"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "output-1", ""),
		})

	// A bad expression is logged and skipped, never fatal.
	require.NoError(t, engine.InitListeners(t.Context()))

	engine.StopListeners()
}

func TestListenerTargets_Derivation(t *testing.T) {
	workflows := []*models.Workflow{
		{
			ID:      "wf-ev",
			Name:    "wf-ev",
			Enabled: true,
			Nodes: []*models.WorkflowNode{
				testNode("t1", models.NodeTypeTrigger, map[string]any{"triggerType": "event", "event": "ping"}),
				testNode("t2", models.NodeTypeTrigger, map[string]any{"triggerType": "schedule", "schedule": "*/5 * * * *"}),
				testNode("t3", models.NodeTypeTrigger, map[string]any{"triggerType": "manual"}),
				// An event trigger without a name listens to nothing.
				testNode("t4", models.NodeTypeTrigger, map[string]any{"triggerType": "event"}),
			},
		},
		{
			ID:      "wf-off",
			Name:    "wf-off",
			Enabled: false,
			Nodes: []*models.WorkflowNode{
				testNode("t1", models.NodeTypeTrigger, map[string]any{"triggerType": "event", "event": "ping"}),
			},
		},
	}

	targets := listenerTargets(workflows)
	require.Len(t, targets, 2)
	assert.Equal(t, listenerTarget{workflowID: "wf-ev", kind: models.TriggerTypeEvent, spec: "ping"}, targets[0])
	assert.Equal(t, listenerTarget{workflowID: "wf-ev", kind: models.TriggerTypeSchedule, spec: "*/5 * * * *"}, targets[1])
}

func TestListenerSignature_OrderIndependent(t *testing.T) {
	a := []listenerTarget{
		{workflowID: "wf-1", kind: models.TriggerTypeEvent, spec: "ping"},
		{workflowID: "wf-2", kind: models.TriggerTypeSchedule, spec: "* * * * *"},
	}
	b := []listenerTarget{a[1], a[0]}

	assert.Equal(t, listenerSignature(a), listenerSignature(b))
	assert.NotEqual(t, listenerSignature(a), listenerSignature(a[:1]))
	assert.Empty(t, listenerSignature(nil))
}
