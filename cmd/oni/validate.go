package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/onios/onid/pkg/cmd"
	"github.com/onios/onid/pkg/config"
	"github.com/onios/onid/pkg/log"
	"github.com/onios/onid/pkg/services"
)

var ErrInvalidWorkflows = errors.New("invalid workflows found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate stored workflow graphs and node configs",
		Flags:   []cli.Flag{databaseURLFlag(), logLevelFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("oni").With("action", "validate")

			defaults := config.Default()

			store := cmd.NewPersistence(command.String("database-url"), defaults.LogLimit)
			defer func() {
				_ = store.Close(context.WithoutCancel(ctx))
			}()

			nodeRegistry := cmd.NewNodeRegistry(logger)
			service := services.NewWorkflow(store, nodeRegistry)

			result, err := service.ListWorkflows(ctx, services.ListWorkflowsRequest{
				Limit:     100,
				SortBy:    "created_at",
				SortOrder: "desc",
			})
			if err != nil {
				return fmt.Errorf("failed to fetch workflows: %w", err)
			}

			workflows := result.Workflows

			logger.Info("Validating workflows", "workflows", len(workflows))

			_, _ = fmt.Fprintln(os.Stdout, "Workflow Validation Results:")
			_, _ = fmt.Fprintln(os.Stdout, "============================")

			validWorkflows := 0
			invalidWorkflows := 0
			validNodes := 0
			invalidNodes := 0

			for _, wf := range workflows {
				_, _ = fmt.Fprintf(os.Stdout, "\nWorkflow: %s (%s)\n", wf.Name, wf.ID)

				workflowOK := true

				if err := wf.ValidateGraph(); err != nil {
					_, _ = fmt.Fprintf(os.Stdout, "  ❌ INVALID GRAPH: %v\n", err)

					workflowOK = false
				}

				if len(wf.TriggerNodes()) == 0 {
					_, _ = fmt.Fprintf(os.Stdout, "  ❌ INVALID: no trigger node\n")

					workflowOK = false
				}

				for _, node := range wf.Nodes {
					_, _ = fmt.Fprintf(os.Stdout, "  Node: %s (%s)\n", node.Label, node.Type)

					if err := nodeRegistry.ValidateNodeConfig(string(node.Type), node.Config); err != nil {
						_, _ = fmt.Fprintf(os.Stdout, "    ❌ INVALID: %v\n", err)

						invalidNodes++

						workflowOK = false
					} else {
						_, _ = fmt.Fprintln(os.Stdout, "    ✅ VALID")

						validNodes++
					}
				}

				if workflowOK {
					validWorkflows++
				} else {
					invalidWorkflows++
				}
			}

			_, _ = fmt.Fprintf(os.Stdout, "\nValidation Summary:\n")
			_, _ = fmt.Fprintf(os.Stdout, "  Total workflows: %d\n", validWorkflows+invalidWorkflows)
			_, _ = fmt.Fprintf(os.Stdout, "  Valid workflows: %d\n", validWorkflows)
			_, _ = fmt.Fprintf(os.Stdout, "  Invalid workflows: %d\n", invalidWorkflows)
			_, _ = fmt.Fprintf(os.Stdout, "  Total nodes: %d\n", validNodes+invalidNodes)
			_, _ = fmt.Fprintf(os.Stdout, "  Valid nodes: %d\n", validNodes)
			_, _ = fmt.Fprintf(os.Stdout, "  Invalid nodes: %d\n", invalidNodes)

			if invalidWorkflows > 0 {
				return fmt.Errorf("%w: %d", ErrInvalidWorkflows, invalidWorkflows)
			}

			_, _ = fmt.Fprintln(os.Stdout, "\nAll workflows are valid. ✅")

			return nil
		},
	}
}
