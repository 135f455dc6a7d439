package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"time"

	"github.com/onios/onid/pkg/commands"
	"github.com/onios/onid/pkg/eventbus"
	"github.com/onios/onid/pkg/events"
	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/persistence"
	"github.com/onios/onid/pkg/workflow"
)

var errMissingArgument = errors.New("missing argument")

// RegisterSystemCommands installs the built-in command namespace both
// binaries ship with.
func RegisterSystemCommands(
	cmds *commands.Registry,
	engine *workflow.Engine,
	store persistence.WorkflowStore,
	bus eventbus.EventBus,
) error {
	registrations := []struct {
		path    string
		handler commands.Handler
		spec    *models.CommandSpec
	}{
		{
			path:    "system.echo",
			handler: echoHandler,
			spec: &models.CommandSpec{
				Description: "Returns its arguments unchanged",
				ArgNames:    []string{"value"},
			},
		},
		{
			path:    "system.time",
			handler: timeHandler,
			spec: &models.CommandSpec{
				Description: "Returns the current UTC time",
			},
		},
		{
			path:    "system.sleep",
			handler: sleepHandler,
			spec: &models.CommandSpec{
				Description: "Waits the given number of milliseconds",
				ArgNames:    []string{"ms"},
			},
		},
		{
			path:    "system.random",
			handler: randomHandler,
			spec: &models.CommandSpec{
				Description: "Returns a random number, below the bound when one is given",
				ArgNames:    []string{"bound"},
			},
		},
		{
			path:    "events.emit",
			handler: emitHandler(bus),
			spec: &models.CommandSpec{
				Description: "Publishes a named event; event-triggered workflows fire off it",
				ArgNames:    []string{"name", "payload"},
			},
		},
		{
			path:    "workflows.execute",
			handler: executeWorkflowHandler(engine),
			spec: &models.CommandSpec{
				Description: "Runs a workflow to completion and returns its outcome",
				ArgNames:    []string{"workflow_id"},
			},
		},
		{
			path:    "workflows.list",
			handler: listWorkflowsHandler(store),
			spec: &models.CommandSpec{
				Description: "Lists stored workflows",
				Widget:      "table",
			},
		},
		{
			path:    "runs.history",
			handler: runsHistoryHandler(cmds),
			spec: &models.CommandSpec{
				Description: "Returns recent command runs, newest first",
				Widget:      "table",
				ArgNames:    []string{"limit"},
			},
		},
		{
			path:    "runs.stats",
			handler: runsStatsHandler(cmds),
			spec: &models.CommandSpec{
				Description: "Counts command runs by status",
			},
		},
	}

	for _, reg := range registrations {
		if err := cmds.Register(reg.path, reg.handler, reg.spec); err != nil {
			return fmt.Errorf("failed to register '%s': %w", reg.path, err)
		}
	}

	return nil
}

func echoHandler(_ context.Context, args []any) (any, error) {
	switch len(args) {
	case 0:
		return "", nil
	case 1:
		return args[0], nil
	default:
		return args, nil
	}
}

func timeHandler(_ context.Context, _ []any) (any, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func sleepHandler(ctx context.Context, args []any) (any, error) {
	ms, err := intArg(args, 0)
	if err != nil {
		return nil, err
	}

	if ms < 0 {
		return nil, fmt.Errorf("negative duration: %d", ms)
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return map[string]any{"slept_ms": ms}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func randomHandler(_ context.Context, args []any) (any, error) {
	if len(args) == 0 {
		return rand.Float64(), nil
	}

	bound, err := intArg(args, 0)
	if err != nil {
		return nil, err
	}

	if bound <= 0 {
		return nil, fmt.Errorf("bound must be positive: %d", bound)
	}

	return rand.IntN(bound), nil
}

func emitHandler(bus eventbus.EventBus) commands.Handler {
	return func(ctx context.Context, args []any) (any, error) {
		name, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}

		var payload any
		if len(args) > 1 {
			payload = args[1]
		}

		event := events.Custom{
			BaseEvent: events.NewBaseEvent(events.CustomEventType(name), ""),
			Name:      name,
			Payload:   payload,
		}

		if err := bus.Publish(ctx, name, event); err != nil {
			return nil, err
		}

		return map[string]any{"event": string(events.CustomEventType(name))}, nil
	}
}

func executeWorkflowHandler(engine *workflow.Engine) commands.Handler {
	return func(ctx context.Context, args []any) (any, error) {
		id, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}

		// ctx carries this run's id, so the workflow's nested command runs
		// record it as their parent.
		return engine.Execute(ctx, id)
	}
}

func listWorkflowsHandler(store persistence.WorkflowStore) commands.Handler {
	return func(ctx context.Context, _ []any) (any, error) {
		workflows, err := store.ListWorkflows(ctx)
		if err != nil {
			return nil, err
		}

		sort.Slice(workflows, func(i, j int) bool {
			return workflows[i].Name < workflows[j].Name
		})

		out := make([]map[string]any, 0, len(workflows))

		for _, wf := range workflows {
			out = append(out, map[string]any{
				"id":      wf.ID,
				"name":    wf.Name,
				"enabled": wf.Enabled,
				"nodes":   len(wf.Nodes),
			})
		}

		return out, nil
	}
}

func runsHistoryHandler(cmds *commands.Registry) commands.Handler {
	return func(_ context.Context, args []any) (any, error) {
		limit := 0

		if len(args) > 0 {
			parsed, err := intArg(args, 0)
			if err != nil {
				return nil, err
			}

			limit = parsed
		}

		return cmds.Tracker().GetHistory(limit), nil
	}
}

func runsStatsHandler(cmds *commands.Registry) commands.Handler {
	return func(_ context.Context, _ []any) (any, error) {
		return cmds.Tracker().GetStats(), nil
	}
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w %d", errMissingArgument, i)
	}

	s, ok := args[i].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %d: expected non-empty string, got %v", i, args[i])
	}

	return s, nil
}

func intArg(args []any, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w %d", errMissingArgument, i)
	}

	switch v := args[i].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("argument %d: not a number: %q", i, v)
		}

		return parsed, nil
	default:
		return 0, fmt.Errorf("argument %d: expected number, got %T", i, args[i])
	}
}
