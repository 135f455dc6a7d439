package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/onios/onid/pkg/models"
)

var ErrAPIRequestFailed = errors.New("api request failed")

const historyClientTimeout = 10 * time.Second

func NewHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"h"},
		Usage:   "List recent command runs from a running sidecar",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api",
				Usage:   "Base URL of the sidecar API",
				Value:   "http://127.0.0.1:5173",
				Sources: cli.EnvVars("ONID_API"),
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "How many runs to list",
				Value:   20,
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Only runs with this status (pending, running, resolved, rejected)",
			},
			&cli.StringFlag{
				Name:  "q",
				Usage: "Only runs whose command or path contains this text",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			endpoint, err := url.Parse(command.String("api"))
			if err != nil {
				return fmt.Errorf("bad api url: %w", err)
			}

			endpoint = endpoint.JoinPath("/api/runs")

			query := endpoint.Query()
			query.Set("limit", strconv.Itoa(command.Int("limit")))

			if command.IsSet("status") {
				query.Set("status", command.String("status"))
			}

			if command.IsSet("q") {
				query.Set("q", command.String("q"))
			}

			endpoint.RawQuery = query.Encode()

			runs, err := fetchRuns(ctx, endpoint.String())
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				_, _ = fmt.Fprintln(os.Stdout, "No runs recorded.")

				return nil
			}

			for _, run := range runs {
				printRun(run)
			}

			return nil
		},
	}
}

func fetchRuns(ctx context.Context, endpoint string) ([]*models.CommandRun, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: historyClientTimeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAPIRequestFailed, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return nil, fmt.Errorf("%w: %s: %s", ErrAPIRequestFailed, resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Runs []*models.CommandRun `json:"runs"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode runs: %w", err)
	}

	return payload.Runs, nil
}

func printRun(run *models.CommandRun) {
	line := fmt.Sprintf("%s %s  %-8s %-9s %s",
		statusMark(run.Status),
		run.StartedAt.Local().Format("15:04:05"),
		run.Status,
		run.Source,
		run.Command,
	)

	if run.Status == models.RunStatusRejected && run.Error != "" {
		line += "  (" + run.Error + ")"
	}

	if run.DurationMS > 0 {
		line += fmt.Sprintf("  [%dms]", run.DurationMS)
	}

	_, _ = fmt.Fprintln(os.Stdout, line)
}

func statusMark(status models.RunStatus) string {
	switch status {
	case models.RunStatusResolved:
		return "✅"
	case models.RunStatusRejected:
		return "❌"
	case models.RunStatusRunning:
		return "▶"
	default:
		return "•"
	}
}
