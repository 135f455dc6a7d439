package commands

import (
	"context"

	"github.com/onios/onid/pkg/models"
)

// Handle is what Execute returns to its caller, immediately. It names the
// opened runs and lets the caller await the chain's final settlement without
// ever blocking the dispatch itself.
type Handle struct {
	tracker *Tracker
	runIDs  []string
	chainID string
}

// RunID is the first stage's run id.
func (h *Handle) RunID() string {
	if len(h.runIDs) == 0 {
		return ""
	}

	return h.runIDs[0]
}

// RunIDs returns every stage's run id in chain order.
func (h *Handle) RunIDs() []string {
	out := make([]string, len(h.runIDs))
	copy(out, h.runIDs)

	return out
}

// ChainID is empty for single-stage invocations.
func (h *Handle) ChainID() string {
	return h.chainID
}

// Status reports the chain's live status: the status of the first stage
// that has not resolved, or resolved once every stage has.
func (h *Handle) Status() models.RunStatus {
	for _, id := range h.runIDs {
		run, err := h.tracker.GetRun(id)
		if err != nil {
			return models.RunStatusRejected
		}

		if run.Status != models.RunStatusResolved {
			return run.Status
		}
	}

	return models.RunStatusResolved
}

// Output is the final stage's output, nil until the chain fully resolves.
func (h *Handle) Output() any {
	if len(h.runIDs) == 0 {
		return nil
	}

	return h.tracker.GetOutput(h.runIDs[len(h.runIDs)-1])
}

// Wait blocks until the chain settles and returns its terminal run: the
// last stage when every stage resolved, or the stage that rejected. Stages
// downstream of a failure never settle, so Wait never waits on them.
func (h *Handle) Wait(ctx context.Context) (*models.CommandRun, error) {
	var last *models.CommandRun

	for _, id := range h.runIDs {
		run, err := h.tracker.AwaitRun(ctx, id)
		if err != nil {
			return nil, err
		}

		last = run

		if run.Status == models.RunStatusRejected {
			return run, nil
		}
	}

	return last, nil
}
