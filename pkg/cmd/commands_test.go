package cmd

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/onios/onid/pkg/commands"
	"github.com/onios/onid/pkg/mocks"
	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/persistence/memory"
	"github.com/onios/onid/pkg/testutil"
	"github.com/onios/onid/pkg/workflow"
)

func newSystemSetup(t *testing.T) (*commands.Registry, *memory.Store, *mocks.MockEventBus) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := memory.NewStore(50)
	tracker := commands.NewTracker(100, logger)
	cmds := commands.NewRegistry(tracker, nil, logger)
	bus := &mocks.MockEventBus{}

	engine := workflow.NewEngine(store, cmds, NewNodeRegistry(logger), nil, logger)

	require.NoError(t, RegisterSystemCommands(cmds, engine, store, bus))

	return cmds, store, bus
}

func runCommand(t *testing.T, cmds *commands.Registry, raw string) *models.CommandRun {
	t.Helper()

	handle := cmds.Execute(t.Context(), raw, models.RunSourceSystem)

	run, err := handle.Wait(t.Context())
	require.NoError(t, err)

	return run
}

func TestRegisterSystemCommands(t *testing.T) {
	cmds, _, _ := newSystemSetup(t)

	specs := cmds.Commands()
	assert.Len(t, specs, 9)

	paths := make([]string, 0, len(specs))
	for _, spec := range specs {
		paths = append(paths, spec.Path)
	}

	assert.Contains(t, paths, "system.echo")
	assert.Contains(t, paths, "events.emit")
	assert.Contains(t, paths, "workflows.execute")
	assert.Contains(t, paths, "runs.stats")
}

func TestSystemEcho(t *testing.T) {
	cmds, _, _ := newSystemSetup(t)

	run := runCommand(t, cmds, "system.echo(hello)")
	assert.Equal(t, models.RunStatusResolved, run.Status)
	assert.Equal(t, "hello", run.Output)

	run = runCommand(t, cmds, "system.echo(1, 2)")
	assert.Equal(t, models.OutputTypeList, run.OutputType)
}

func TestSystemSleepCancel(t *testing.T) {
	cmds, _, _ := newSystemSetup(t)

	ctx, cancel := context.WithCancel(t.Context())
	handle := cmds.Execute(ctx, "system.sleep(5000)", models.RunSourceSystem)
	cancel()

	run, err := handle.Wait(t.Context())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRejected, run.Status)
	assert.Contains(t, run.Error, "context canceled")
}

func TestSystemRandom(t *testing.T) {
	cmds, _, _ := newSystemSetup(t)

	run := runCommand(t, cmds, "system.random(10)")
	require.Equal(t, models.RunStatusResolved, run.Status)

	value, ok := run.Output.(int)
	require.True(t, ok)
	assert.GreaterOrEqual(t, value, 0)
	assert.Less(t, value, 10)

	run = runCommand(t, cmds, "system.random(-1)")
	assert.Equal(t, models.RunStatusRejected, run.Status)
}

func TestEventsEmit(t *testing.T) {
	cmds, _, bus := newSystemSetup(t)

	bus.On("Publish", mock.Anything, "ping", mock.Anything).Return(nil)

	run := runCommand(t, cmds, "events.emit(ping)")
	require.Equal(t, models.RunStatusResolved, run.Status)

	output, ok := run.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "custom.ping", output["event"])

	bus.AssertExpectations(t)
}

func TestWorkflowsExecuteThreadsParentRun(t *testing.T) {
	cmds, store, _ := newSystemSetup(t)

	wf := testutil.CreateTestWorkflowWithNodes()
	wf.ID = "wf-1"
	require.NoError(t, store.SaveWorkflow(t.Context(), wf))

	handle := cmds.Execute(t.Context(), "workflows.execute(wf-1)", models.RunSourceHuman)

	run, err := handle.Wait(t.Context())
	require.NoError(t, err)
	require.Equal(t, models.RunStatusResolved, run.Status)

	result, ok := run.Output.(*workflow.Result)
	require.True(t, ok)
	assert.True(t, result.Success)

	// The workflow's command node issued a nested run recording this one
	// as its parent.
	nested := cmds.Tracker().Search("system.echo")
	require.NotEmpty(t, nested)
	assert.Equal(t, handle.RunID(), nested[0].ParentRunID)
	assert.Equal(t, models.RunSourceWorkflow, nested[0].Source)
}

func TestWorkflowsList(t *testing.T) {
	cmds, store, _ := newSystemSetup(t)

	wf := testutil.CreateTestWorkflowWithNodes()
	wf.Name = "Morning Routine"
	require.NoError(t, store.SaveWorkflow(t.Context(), wf))

	run := runCommand(t, cmds, "workflows.list()")
	require.Equal(t, models.RunStatusResolved, run.Status)

	rows, ok := run.Output.([]map[string]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "Morning Routine", rows[0]["name"])
}

func TestRunsHistoryAndStats(t *testing.T) {
	cmds, _, _ := newSystemSetup(t)

	runCommand(t, cmds, "system.echo(one)")
	runCommand(t, cmds, "system.echo(two)")

	run := runCommand(t, cmds, "runs.history(5)")
	require.Equal(t, models.RunStatusResolved, run.Status)

	history, ok := run.Output.([]*models.CommandRun)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(history), 2)

	run = runCommand(t, cmds, "runs.stats()")
	require.Equal(t, models.RunStatusResolved, run.Status)

	stats, ok := run.Output.(models.RunStats)
	require.True(t, ok)
	assert.GreaterOrEqual(t, stats.Resolved, 3)
}

func TestParseDatabaseURL(t *testing.T) {
	provider, rest := parseDatabaseURL("file:///tmp/onid")
	assert.Equal(t, "file", provider)
	assert.Equal(t, "/tmp/onid", rest)

	provider, _ = parseDatabaseURL("memory://")
	assert.Equal(t, "memory", provider)

	provider, _ = parseDatabaseURL("")
	assert.Equal(t, "memory", provider)
}
