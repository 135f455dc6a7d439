package workflow

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onios/onid/pkg/commands"
	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/persistence"
	"github.com/onios/onid/pkg/persistence/memory"
	"github.com/onios/onid/pkg/registry"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store, *commands.Registry) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := memory.NewStore(50)

	tracker := commands.NewTracker(100, logger)
	cmds := commands.NewRegistry(tracker, nil, logger)

	nodeRegistry := registry.NewRegistry(logger)
	nodeRegistry.RegisterDefaultNodes()

	return NewEngine(store, cmds, nodeRegistry, nil, logger, opts...), store, cmds
}

func testNode(id string, nodeType models.NodeType, config map[string]any) *models.WorkflowNode {
	return &models.WorkflowNode{ID: id, Type: nodeType, Label: id, Config: config}
}

func testEdge(from, to, label string) *models.Connection {
	return &models.Connection{ID: from + "->" + to, From: from, To: to, Label: label}
}

func saveTestWorkflow(t *testing.T, store *memory.Store, id string, nodes []*models.WorkflowNode, conns []*models.Connection) {
	t.Helper()

	workflow := &models.Workflow{
		ID:          id,
		Name:        id,
		Enabled:     true,
		Nodes:       nodes,
		Connections: conns,
	}

	require.NoError(t, store.SaveWorkflow(t.Context(), workflow))
}

func nodeStatus(t *testing.T, store *memory.Store, workflowID, nodeID string) models.NodeStatus {
	t.Helper()

	workflow, err := store.GetWorkflow(t.Context(), workflowID)
	require.NoError(t, err)

	node := workflow.NodeByID(nodeID)
	require.NotNil(t, node)

	return node.Status
}

func logIndex(logs []*models.ExecutionLogEntry, nodeID, message string) int {
	for i, entry := range logs {
		if entry.NodeID == nodeID && entry.Message == message {
			return i
		}
	}

	return -1
}

func TestEngine_Execute_CommandDelayOutput(t *testing.T) {
	engine, store, cmds := newTestEngine(t)

	require.NoError(t, cmds.Register("test.greet", func(_ context.Context, _ []any) (any, error) {
		return "hello", nil
	}, nil))

	saveTestWorkflow(t, store, "wf-1",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{}),
			testNode("command-1", models.NodeTypeCommand, map[string]any{"command": "test.greet()"}),
			testNode("delay-1", models.NodeTypeDelay, map[string]any{"seconds": 0.05}),
			testNode("output-1", models.NodeTypeOutput, map[string]any{"action": "log", "message": "got {{input}}"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "command-1", ""),
			testEdge("command-1", "delay-1", ""),
			testEdge("delay-1", "output-1", ""),
		})

	result, err := engine.Execute(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)
	assert.Empty(t, result.Error)

	for _, id := range []string{"trigger-1", "command-1", "delay-1", "output-1"} {
		assert.Equal(t, models.NodeStatusResolved, nodeStatus(t, store, "wf-1", id), id)
	}

	workflow, err := store.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, workflow.LastRunStatus)
	assert.Equal(t, "hello", workflow.NodeByID("command-1").Output)
	// Delay passes its input through unchanged.
	assert.Equal(t, "hello", workflow.NodeByID("delay-1").Output)
	assert.NotEmpty(t, workflow.NodeByID("command-1").RunID)

	// The command ran through the registry on behalf of the workflow.
	history := cmds.Tracker().GetHistory(0)
	require.Len(t, history, 1)
	assert.Equal(t, "test.greet", history[0].Path)
	assert.Equal(t, models.RunSourceWorkflow, history[0].Source)

	// The output node rendered its message into the execution log.
	logs, err := store.Logs(t.Context(), "wf-1", 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, logIndex(logs, "output-1", "got hello"), 0)
}

func TestEngine_Execute_RejectedCommandLeavesDownstreamIdle(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	saveTestWorkflow(t, store, "wf-1",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{}),
			testNode("command-1", models.NodeTypeCommand, map[string]any{"command": "ghost.command()"}),
			testNode("output-1", models.NodeTypeOutput, map[string]any{"message": "never"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "command-1", ""),
			testEdge("command-1", "output-1", ""),
		})

	result, err := engine.Execute(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
	assert.Contains(t, result.Error, "ghost.command")

	assert.Equal(t, models.NodeStatusResolved, nodeStatus(t, store, "wf-1", "trigger-1"))
	assert.Equal(t, models.NodeStatusRejected, nodeStatus(t, store, "wf-1", "command-1"))
	assert.Equal(t, models.NodeStatusIdle, nodeStatus(t, store, "wf-1", "output-1"))

	workflow, err := store.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, workflow.LastRunStatus)
	assert.Contains(t, workflow.NodeByID("command-1").Error, "not registered")
}

func TestEngine_Execute_ConditionBranches(t *testing.T) {
	buildWorkflow := func(t *testing.T, store *memory.Store, field string) {
		t.Helper()

		saveTestWorkflow(t, store, "wf-1",
			[]*models.WorkflowNode{
				testNode("trigger-1", models.NodeTypeTrigger, map[string]any{}),
				testNode("condition-1", models.NodeTypeCondition, map[string]any{"operator": "exists", "field": field}),
				testNode("output-true", models.NodeTypeOutput, map[string]any{"message": "taken"}),
				testNode("output-false", models.NodeTypeOutput, map[string]any{"message": "not taken"}),
			},
			[]*models.Connection{
				testEdge("trigger-1", "condition-1", ""),
				testEdge("condition-1", "output-true", models.BranchTrue),
				testEdge("condition-1", "output-false", models.BranchFalse),
			})
	}

	t.Run("true branch", func(t *testing.T) {
		engine, store, _ := newTestEngine(t)
		// The trigger's metadata always carries trigger_type.
		buildWorkflow(t, store, "trigger_type")

		result, err := engine.Execute(t.Context(), "wf-1")
		require.NoError(t, err)
		assert.True(t, result.Success)

		assert.Equal(t, models.NodeStatusResolved, nodeStatus(t, store, "wf-1", "condition-1"))
		assert.Equal(t, models.NodeStatusResolved, nodeStatus(t, store, "wf-1", "output-true"))
		assert.Equal(t, models.NodeStatusIdle, nodeStatus(t, store, "wf-1", "output-false"))

		workflow, err := store.GetWorkflow(t.Context(), "wf-1")
		require.NoError(t, err)

		payload, ok := workflow.NodeByID("condition-1").Output.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, payload["_condition"])
		assert.Equal(t, true, payload["result"])
	})

	t.Run("false branch", func(t *testing.T) {
		engine, store, _ := newTestEngine(t)
		buildWorkflow(t, store, "no.such.field")

		result, err := engine.Execute(t.Context(), "wf-1")
		require.NoError(t, err)
		assert.True(t, result.Success)

		assert.Equal(t, models.NodeStatusResolved, nodeStatus(t, store, "wf-1", "condition-1"))
		assert.Equal(t, models.NodeStatusIdle, nodeStatus(t, store, "wf-1", "output-true"))
		assert.Equal(t, models.NodeStatusResolved, nodeStatus(t, store, "wf-1", "output-false"))
	})
}

func TestEngine_Execute_ConditionWithoutTakenBranchConnection(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	// Only the false branch is wired; the condition evaluates true.
	saveTestWorkflow(t, store, "wf-1",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{}),
			testNode("condition-1", models.NodeTypeCondition, map[string]any{"operator": "exists", "field": "trigger_type"}),
			testNode("output-false", models.NodeTypeOutput, map[string]any{"message": "not taken"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "condition-1", ""),
			testEdge("condition-1", "output-false", models.BranchFalse),
		})

	result, err := engine.Execute(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)

	assert.Equal(t, models.NodeStatusResolved, nodeStatus(t, store, "wf-1", "condition-1"))
	assert.Equal(t, models.NodeStatusIdle, nodeStatus(t, store, "wf-1", "output-false"))
}

func TestEngine_Execute_FailureIsLocalToItsBranch(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	saveTestWorkflow(t, store, "wf-1",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{}),
			testNode("command-1", models.NodeTypeCommand, map[string]any{"command": "ghost.command()"}),
			testNode("output-after", models.NodeTypeOutput, map[string]any{"message": "never"}),
			testNode("output-side", models.NodeTypeOutput, map[string]any{"message": "still runs"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "command-1", ""),
			testEdge("command-1", "output-after", ""),
			testEdge("trigger-1", "output-side", ""),
		})

	result, err := engine.Execute(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.ExecutionStatusFailed, result.Status)

	// The sibling branch is untouched by the failure.
	assert.Equal(t, models.NodeStatusRejected, nodeStatus(t, store, "wf-1", "command-1"))
	assert.Equal(t, models.NodeStatusIdle, nodeStatus(t, store, "wf-1", "output-after"))
	assert.Equal(t, models.NodeStatusResolved, nodeStatus(t, store, "wf-1", "output-side"))
}

func TestEngine_Execute_JoinWaitsForAllUpstream(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	saveTestWorkflow(t, store, "wf-1",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{}),
			testNode("delay-1", models.NodeTypeDelay, map[string]any{"seconds": 0.05}),
			testNode("output-b", models.NodeTypeOutput, map[string]any{"message": "branch b"}),
			testNode("join-1", models.NodeTypeOutput, map[string]any{"action": "log", "message": "joined {{input.trigger_type}}"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "delay-1", ""),
			testEdge("trigger-1", "output-b", ""),
			testEdge("delay-1", "join-1", ""),
			testEdge("output-b", "join-1", ""),
		})

	result, err := engine.Execute(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.True(t, result.Success)

	assert.Equal(t, models.NodeStatusResolved, nodeStatus(t, store, "wf-1", "join-1"))

	// The join's input comes from its first supplying connection, the delay
	// branch, which passes the trigger metadata through.
	logs, err := store.Logs(t.Context(), "wf-1", 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, logIndex(logs, "join-1", "joined manual"), 0)
}

func TestEngine_Execute_NoTriggerNode(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	saveTestWorkflow(t, store, "wf-1",
		[]*models.WorkflowNode{
			testNode("output-1", models.NodeTypeOutput, map[string]any{"message": "orphan"}),
		}, nil)

	result, err := engine.Execute(t.Context(), "wf-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTriggerNode)
	assert.Nil(t, result)

	// The failure is synchronous; no node and no run status were touched.
	workflow, err := store.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Empty(t, workflow.LastRunStatus)
	assert.Equal(t, models.NodeStatusIdle, workflow.NodeByID("output-1").Status)
}

func TestEngine_Execute_WorkflowNotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	result, err := engine.Execute(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
	assert.Nil(t, result)
}

func TestEngine_Execute_SingleFlight(t *testing.T) {
	engine, store, cmds := newTestEngine(t)

	var once sync.Once

	started := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, cmds.Register("test.block", func(_ context.Context, _ []any) (any, error) {
		once.Do(func() { close(started) })
		<-release

		return "done", nil
	}, nil))

	saveTestWorkflow(t, store, "wf-1",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{}),
			testNode("command-1", models.NodeTypeCommand, map[string]any{"command": "test.block()"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "command-1", ""),
		})

	results := make(chan *Result, 1)

	go func() {
		result, err := engine.Execute(context.Background(), "wf-1")
		assert.NoError(t, err)
		results <- result
	}()

	<-started

	_, err := engine.Execute(t.Context(), "wf-1")
	assert.ErrorIs(t, err, ErrWorkflowBusy)

	close(release)

	result := <-results
	require.NotNil(t, result)
	assert.True(t, result.Success)

	// The slot frees up once the execution returns.
	again, err := engine.Execute(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.True(t, again.Success)
}

func TestEngine_Abort_DuringDelay(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	saveTestWorkflow(t, store, "wf-1",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{}),
			testNode("delay-1", models.NodeTypeDelay, map[string]any{"seconds": 10.0}),
			testNode("output-1", models.NodeTypeOutput, map[string]any{"message": "never"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "delay-1", ""),
			testEdge("delay-1", "output-1", ""),
		})

	results := make(chan *Result, 1)

	go func() {
		result, err := engine.Execute(context.Background(), "wf-1")
		assert.NoError(t, err)
		results <- result
	}()

	require.Eventually(t, func() bool {
		workflow, err := store.GetWorkflow(context.Background(), "wf-1")
		if err != nil {
			return false
		}

		return workflow.NodeByID("delay-1").Status == models.NodeStatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, engine.Abort("wf-1"))

	result := <-results
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, models.ExecutionStatusAborted, result.Status)

	// The interrupted delay ends idle, never rejected, and nothing downstream
	// of it moved.
	assert.Equal(t, models.NodeStatusResolved, nodeStatus(t, store, "wf-1", "trigger-1"))
	assert.Equal(t, models.NodeStatusIdle, nodeStatus(t, store, "wf-1", "delay-1"))
	assert.Equal(t, models.NodeStatusIdle, nodeStatus(t, store, "wf-1", "output-1"))

	workflow, err := store.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusAborted, workflow.LastRunStatus)
}

func TestEngine_Abort_NotRunning(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	err := engine.Abort("wf-unknown")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestEngine_Execute_Idempotent(t *testing.T) {
	engine, store, cmds := newTestEngine(t)

	require.NoError(t, cmds.Register("test.greet", func(_ context.Context, _ []any) (any, error) {
		return "hello", nil
	}, nil))

	saveTestWorkflow(t, store, "wf-1",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{}),
			testNode("command-1", models.NodeTypeCommand, map[string]any{"command": "test.greet()"}),
			testNode("output-1", models.NodeTypeOutput, map[string]any{"action": "log", "message": "got {{input}}"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "command-1", ""),
			testEdge("command-1", "output-1", ""),
		})

	first, err := engine.Execute(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.True(t, first.Success)

	second, err := engine.Execute(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.True(t, second.Success)

	for _, id := range []string{"trigger-1", "command-1", "output-1"} {
		assert.Equal(t, models.NodeStatusResolved, nodeStatus(t, store, "wf-1", id), id)
	}

	// Each execution opened its own independent command run.
	runs := cmds.Tracker().Search("test.greet")
	assert.Len(t, runs, 2)

	for _, run := range runs {
		assert.Equal(t, models.RunStatusResolved, run.Status)
	}
}

func TestEngine_Execute_ConcurrentFanOut(t *testing.T) {
	engine, store, cmds := newTestEngine(t)

	started := make(chan string, 2)
	release := make(chan struct{})

	blocking := func(name string) commands.Handler {
		return func(_ context.Context, _ []any) (any, error) {
			started <- name
			<-release

			return name, nil
		}
	}

	require.NoError(t, cmds.Register("test.left", blocking("left"), nil))
	require.NoError(t, cmds.Register("test.right", blocking("right"), nil))

	saveTestWorkflow(t, store, "wf-1",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{}),
			testNode("command-left", models.NodeTypeCommand, map[string]any{"command": "test.left()"}),
			testNode("command-right", models.NodeTypeCommand, map[string]any{"command": "test.right()"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "command-left", ""),
			testEdge("trigger-1", "command-right", ""),
		})

	results := make(chan *Result, 1)

	go func() {
		result, err := engine.Execute(context.Background(), "wf-1")
		assert.NoError(t, err)
		results <- result
	}()

	// Both siblings are in flight before either resolves.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("expected both branches to be issued together")
		}
	}

	close(release)

	result := <-results
	require.NotNil(t, result)
	assert.True(t, result.Success)
}

func TestEngine_Execute_SequentialFanOut(t *testing.T) {
	engine, store, _ := newTestEngine(t, WithSequentialFanOut())

	saveTestWorkflow(t, store, "wf-1",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{}),
			testNode("output-a", models.NodeTypeOutput, map[string]any{"message": "a"}),
			testNode("output-b", models.NodeTypeOutput, map[string]any{"message": "b"}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "output-a", ""),
			testEdge("trigger-1", "output-b", ""),
		})

	result, err := engine.Execute(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.True(t, result.Success)

	// Siblings run one at a time in declaration order: a settles before b
	// starts.
	logs, err := store.Logs(t.Context(), "wf-1", 0)
	require.NoError(t, err)

	aResolved := logIndex(logs, "output-a", "node resolved")
	bStarted := logIndex(logs, "output-b", "node started")
	require.GreaterOrEqual(t, aResolved, 0)
	require.GreaterOrEqual(t, bStarted, 0)
	assert.Less(t, aResolved, bStarted)
}

func TestEngine_ExecuteWithTrigger_SeedsTriggerData(t *testing.T) {
	engine, store, cmds := newTestEngine(t)

	require.NoError(t, cmds.Register("test.echo", func(_ context.Context, args []any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}

		return args[0], nil
	}, nil))

	saveTestWorkflow(t, store, "wf-1",
		[]*models.WorkflowNode{
			testNode("trigger-1", models.NodeTypeTrigger, map[string]any{"triggerType": "event", "event": "ping"}),
			testNode("command-1", models.NodeTypeCommand, map[string]any{"command": `test.echo("{{input.data.message}}")`}),
		},
		[]*models.Connection{
			testEdge("trigger-1", "command-1", ""),
		})

	result, err := engine.ExecuteWithTrigger(t.Context(), "wf-1", models.TriggerTypeEvent, map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.True(t, result.Success)

	workflow, err := store.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "hi", workflow.NodeByID("command-1").Output)

	// The trigger's own output carries the seeded payload.
	trigger, ok := workflow.NodeByID("trigger-1").Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "event", trigger["trigger_type"])
	assert.Equal(t, map[string]any{"message": "hi"}, trigger["data"])
}
