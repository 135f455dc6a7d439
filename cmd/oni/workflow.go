package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/onios/onid/pkg/cmd"
	"github.com/onios/onid/pkg/commands"
	"github.com/onios/onid/pkg/config"
	"github.com/onios/onid/pkg/log"
	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/services"
	"github.com/onios/onid/pkg/workflow"
)

var (
	ErrMissingWorkflowID = errors.New("workflow id argument required")
	ErrWorkflowFailed    = errors.New("workflow did not succeed")
)

func NewWorkflowCommand() *cli.Command {
	return &cli.Command{
		Name:    "workflow",
		Aliases: []string{"w"},
		Usage:   "Inspect, run and validate stored workflows",
		Commands: []*cli.Command{
			newWorkflowListCommand(),
			newWorkflowRunCommand(),
			NewValidateCommand(),
		},
	}
}

func newWorkflowListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List stored workflows",
		Flags:   []cli.Flag{databaseURLFlag(), logLevelFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("oni")

			defaults := config.Default()

			store := cmd.NewPersistence(command.String("database-url"), defaults.LogLimit)
			defer func() {
				_ = store.Close(context.WithoutCancel(ctx))
			}()

			service := services.NewWorkflow(store, cmd.NewNodeRegistry(logger))

			result, err := service.ListWorkflows(ctx, services.ListWorkflowsRequest{
				Limit:     100,
				SortBy:    "name",
				SortOrder: "asc",
			})
			if err != nil {
				return fmt.Errorf("failed to list workflows: %w", err)
			}

			if len(result.Workflows) == 0 {
				_, _ = fmt.Fprintln(os.Stdout, "No workflows stored.")

				return nil
			}

			for _, wf := range result.Workflows {
				state := "disabled"
				if wf.Enabled {
					state = "enabled"
				}

				_, _ = fmt.Fprintf(os.Stdout, "%s  %-24s %-9s nodes=%-3d last_run=%s\n",
					wf.ID, wf.Name, state, len(wf.Nodes), lastRun(wf))
			}

			return nil
		},
	}
}

func lastRun(wf *models.Workflow) string {
	if wf.LastRunStatus == "" {
		return "never"
	}

	return string(wf.LastRunStatus)
}

func newWorkflowRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Execute a stored workflow and wait for the outcome",
		ArgsUsage: "<workflow-id>",
		Flags: []cli.Flag{
			databaseURLFlag(),
			logLevelFlag(),
			&cli.StringFlag{
				Name:  "trigger-data",
				Usage: "JSON object seeded into the trigger nodes",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			workflowID := command.Args().First()
			if workflowID == "" {
				return ErrMissingWorkflowID
			}

			var triggerData map[string]any
			if raw := command.String("trigger-data"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &triggerData); err != nil {
					return fmt.Errorf("bad trigger-data: %w", err)
				}
			}

			log.Setup(command.String("log-level"))
			logger := log.WithModule("oni")

			defaults := config.Default()

			store := cmd.NewPersistence(command.String("database-url"), defaults.LogLimit)
			defer func() {
				_ = store.Close(context.WithoutCancel(ctx))
			}()

			eventBus := cmd.NewEventBus(logger)
			defer func() {
				_ = eventBus.Close()
			}()

			tracker := commands.NewTracker(defaults.HistoryLimit, logger)
			cmds := commands.NewRegistry(tracker, eventBus, logger)
			engine := workflow.NewEngine(store, cmds, cmd.NewNodeRegistry(logger), eventBus, logger)

			if err := cmd.RegisterSystemCommands(cmds, engine, store, eventBus); err != nil {
				return err
			}

			result, err := engine.ExecuteWithTrigger(ctx, workflowID, models.TriggerTypeManual, triggerData)
			if err != nil {
				return fmt.Errorf("execution failed to start: %w", err)
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(os.Stdout, string(out))

			if !result.Success {
				return fmt.Errorf("%w: %s", ErrWorkflowFailed, result.Status)
			}

			return nil
		},
	}
}
