package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/onios/onid/pkg/cmd"
	"github.com/onios/onid/pkg/commands"
	"github.com/onios/onid/pkg/config"
	"github.com/onios/onid/pkg/log"
	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/workflow"
)

var (
	ErrNoInvocation    = errors.New("no command invocation given")
	ErrUnknownSource   = errors.New("unknown run source")
	ErrCommandRejected = errors.New("command rejected")
)

var runSources = []string{
	string(models.RunSourceHuman),
	string(models.RunSourceWidget),
	string(models.RunSourceScheduler),
	string(models.RunSourceWorkflow),
	string(models.RunSourceSystem),
}

func NewExecCommand() *cli.Command {
	defaults := config.Default()

	return &cli.Command{
		Name:      "exec",
		Aliases:   []string{"x"},
		Usage:     "Run a command invocation in-process and print its output",
		ArgsUsage: "\"system.echo(hello) | system.time()\"",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Workflow store URL (memory:// or file://<dir>)",
				Value:   defaults.DatabaseURL,
				Sources: cli.EnvVars("ONID_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Run source to record (human, widget, scheduler, workflow, system)",
				Value: string(models.RunSourceHuman),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the chain to settle",
				Value: 30 * time.Second,
			},
			logLevelFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			raw := strings.TrimSpace(strings.Join(command.Args().Slice(), " "))
			if raw == "" {
				return ErrNoInvocation
			}

			source := command.String("source")
			if !slices.Contains(runSources, source) {
				return fmt.Errorf("%w: %s", ErrUnknownSource, source)
			}

			log.Setup(command.String("log-level"))
			logger := log.WithModule("oni")

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

			waitCtx, cancel := context.WithTimeout(ctx, command.Duration("timeout"))
			defer cancel()

			run, err := cmds.Execute(ctx, raw, models.RunSource(source)).Wait(waitCtx)
			if err != nil {
				return fmt.Errorf("failed to await run: %w", err)
			}

			if run.Status == models.RunStatusRejected {
				_, _ = fmt.Fprintf(os.Stderr, "❌ %s\n", run.Command)

				return fmt.Errorf("%w: %s", ErrCommandRejected, run.Error)
			}

			printOutput(run)

			return nil
		},
	}
}

func printOutput(run *models.CommandRun) {
	switch run.OutputType {
	case models.OutputTypeVoid:
	case models.OutputTypeString:
		_, _ = fmt.Fprintln(os.Stdout, run.Output)
	default:
		out, err := json.MarshalIndent(run.Output, "", "  ")
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%v\n", run.Output)

			return
		}

		_, _ = fmt.Fprintln(os.Stdout, string(out))
	}
}
