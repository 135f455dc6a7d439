// Package main provides oni, the operator CLI for the onid sidecar.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "oni",
		Usage:                 "Operate an onid sidecar from the terminal",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewExecCommand(),
			NewHistoryCommand(),
			NewWorkflowCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "oni:", err)
		os.Exit(1)
	}
}

func databaseURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "database-url",
		Usage:    "Workflow store URL (memory:// or file://<dir>)",
		Required: true,
		Sources:  cli.EnvVars("ONID_DATABASE_URL"),
	}
}

func logLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		Value:   "info",
		Sources: cli.EnvVars("ONID_LOG_LEVEL"),
	}
}
