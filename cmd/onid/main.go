package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/onios/onid/pkg/cmd"
	"github.com/onios/onid/pkg/commands"
	"github.com/onios/onid/pkg/config"
	"github.com/onios/onid/pkg/log"
	"github.com/onios/onid/pkg/otelhelper"
	"github.com/onios/onid/pkg/services"
	"github.com/onios/onid/pkg/workflow"
)

const (
	listenerRefreshInterval = 15 * time.Second
	shutdownTimeout         = 10 * time.Second
)

func main() {
	defaults := config.Default()

	cmd := &cli.Command{
		Name:                  "onid",
		Usage:                 "OniOS sidecar: command registry, run history and workflow engine behind the shell",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				Value:   "onid.yaml",
				Sources: cli.EnvVars("ONID_CONFIG"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the sidecar API on",
				Value:   defaults.Port,
				Sources: cli.EnvVars("ONID_PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Workflow store URL (memory:// or file://<dir>)",
				Value:   defaults.DatabaseURL,
				Sources: cli.EnvVars("ONID_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   defaults.LogLevel,
				Sources: cli.EnvVars("ONID_LOG_LEVEL"),
			},
			&cli.IntFlag{
				Name:    "history-limit",
				Usage:   "How many command runs the tracker keeps",
				Value:   defaults.HistoryLimit,
				Sources: cli.EnvVars("ONID_HISTORY_LIMIT"),
			},
			&cli.BoolFlag{
				Name:    "sequential",
				Usage:   "Run sibling workflow nodes one at a time",
				Sources: cli.EnvVars("ONID_SEQUENTIAL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg := config.LoadOrDefault(command.String("config"))

			if command.IsSet("port") {
				cfg.Port = command.Int("port")
			}

			if command.IsSet("database-url") {
				cfg.DatabaseURL = command.String("database-url")
			}

			if command.IsSet("log-level") {
				cfg.LogLevel = command.String("log-level")
			}

			if command.IsSet("history-limit") {
				cfg.HistoryLimit = command.Int("history-limit")
			}

			if command.IsSet("sequential") {
				cfg.SequentialFanOut = command.Bool("sequential")
			}

			if err := config.Validate(cfg); err != nil {
				return err
			}

			log.Setup(cfg.LogLevel)

			logger := log.WithModule("onid")
			logger.InfoContext(ctx, "Initializing onid sidecar")

			store := cmd.NewPersistence(cfg.DatabaseURL, cfg.LogLimit)
			defer func() {
				if err := store.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close store", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			nodeRegistry := cmd.NewNodeRegistry(logger)
			tracker := commands.NewTracker(cfg.HistoryLimit, logger)
			cmds := commands.NewRegistry(tracker, eventBus, logger)

			engineOpts := make([]workflow.Option, 0, 2)
			if cfg.SequentialFanOut {
				engineOpts = append(engineOpts, workflow.WithSequentialFanOut())
			}

			if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
				tracer, err := otelhelper.NewTracer(ctx, "onid")
				if err != nil {
					logger.WarnContext(ctx, "Failed to initialize tracer", "error", err)
				} else {
					engineOpts = append(engineOpts, workflow.WithTracer(tracer))
				}
			}

			engine := workflow.NewEngine(store, cmds, nodeRegistry, eventBus, logger, engineOpts...)

			if err := cmd.RegisterSystemCommands(cmds, engine, store, eventBus); err != nil {
				return err
			}

			if err := engine.InitListeners(ctx); err != nil {
				return err
			}

			if err := eventBus.Subscribe(ctx); err != nil {
				return err
			}

			go refreshListeners(ctx, logger, engine)

			api := NewAPI(logger, cmds, engine, services.NewWorkflow(store, nodeRegistry), eventBus)

			errCh := make(chan error, 1)

			go func() {
				errCh <- api.Start(cfg.Port)
			}()

			logger.InfoContext(ctx, "onid ready", "port", cfg.Port, "database", cfg.DatabaseURL)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case <-sigChan:
				logger.InfoContext(ctx, "Shutting down...")
			}

			engine.StopListeners()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			return api.Shutdown(shutdownCtx)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

// refreshListeners re-derives event and schedule listeners on an interval so
// workflows edited out of band, like a file store changed on disk, still get
// wired. InitListeners compares signatures, so an unchanged store is a no-op.
func refreshListeners(ctx context.Context, logger *slog.Logger, engine *workflow.Engine) {
	ticker := time.NewTicker(listenerRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := engine.InitListeners(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to refresh listeners", "error", err)
			}
		}
	}
}
