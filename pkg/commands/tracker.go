package commands

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/template"
)

const DefaultHistoryLimit = 500

// Tracker owns the run history. Every invocation appends its own records;
// no two invocations touch the same run, so the mutex only guards the maps.
type Tracker struct {
	logger *slog.Logger
	limit  int

	mu    sync.Mutex
	runs  map[string]*models.CommandRun
	order []string
	done  map[string]chan struct{}
}

func NewTracker(limit int, logger *slog.Logger) *Tracker {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	return &Tracker{
		logger: logger.With("module", "command_tracker"),
		limit:  limit,
		runs:   make(map[string]*models.CommandRun),
		done:   make(map[string]chan struct{}),
	}
}

// Open records a freshly created run in pending state.
func (t *Tracker) Open(run *models.CommandRun) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run.Status = models.RunStatusPending
	run.StartedAt = time.Now().UTC()

	t.runs[run.ID] = run
	t.order = append(t.order, run.ID)
	t.done[run.ID] = make(chan struct{})

	t.evictLocked()
}

// MarkRunning transitions a pending run to running.
func (t *Tracker) MarkRunning(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[id]
	if !ok || run.Status != models.RunStatusPending {
		return
	}

	run.Status = models.RunStatusRunning
}

// Resolve settles a run with an output. Settled runs never change again, so
// a second settlement is ignored. Returns a snapshot of the terminal run.
func (t *Tracker) Resolve(id string, output any) *models.CommandRun {
	return t.settle(id, func(run *models.CommandRun) {
		run.Status = models.RunStatusResolved
		run.Output = output
		run.OutputType = models.ClassifyOutput(output)
	})
}

// Reject settles a run with an error string.
func (t *Tracker) Reject(id string, errMsg string) *models.CommandRun {
	return t.settle(id, func(run *models.CommandRun) {
		run.Status = models.RunStatusRejected
		run.Error = errMsg
		run.OutputType = models.OutputTypeError
	})
}

func (t *Tracker) settle(id string, apply func(*models.CommandRun)) *models.CommandRun {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[id]
	if !ok {
		return nil
	}

	if run.Settled() {
		t.logger.Warn("ignoring settlement of a settled run", "run_id", id, "status", run.Status)

		return nil
	}

	apply(run)
	run.DurationMS = time.Since(run.StartedAt).Milliseconds()

	if ch, ok := t.done[id]; ok {
		close(ch)
	}

	return run.Clone()
}

// GetRun returns a snapshot of the run, or ErrRunNotFound.
func (t *Tracker) GetRun(id string) (*models.CommandRun, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	return run.Clone(), nil
}

// GetOutput returns the run's output, nil while it is pending or running.
func (t *Tracker) GetOutput(id string) any {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[id]
	if !ok || run.Status != models.RunStatusResolved {
		return nil
	}

	return run.Output
}

// AwaitRun blocks until the run settles and returns the terminal record.
// A run that already settled returns immediately.
func (t *Tracker) AwaitRun(ctx context.Context, id string) (*models.CommandRun, error) {
	t.mu.Lock()

	run, ok := t.runs[id]
	if !ok {
		t.mu.Unlock()

		return nil, ErrRunNotFound
	}

	if run.Settled() {
		defer t.mu.Unlock()

		return run.Clone(), nil
	}

	ch := t.done[id]
	t.mu.Unlock()

	select {
	case <-ch:
		return t.GetRun(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetHistory returns the newest runs first, up to limit (0 means all).
func (t *Tracker) GetHistory(limit int) []*models.CommandRun {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.order) {
		limit = len(t.order)
	}

	out := make([]*models.CommandRun, 0, limit)

	for i := len(t.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, t.runs[t.order[i]].Clone())
	}

	return out
}

// GetChain returns the stages of a chain ordered by their position.
func (t *Tracker) GetChain(chainID string) []*models.CommandRun {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*models.CommandRun

	for _, id := range t.order {
		run := t.runs[id]
		if run.ChainID == chainID {
			out = append(out, run.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ChainIndex < out[j].ChainIndex
	})

	return out
}

// GetByStatus returns runs in the given status, newest first.
func (t *Tracker) GetByStatus(status models.RunStatus) []*models.CommandRun {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*models.CommandRun

	for i := len(t.order) - 1; i >= 0; i-- {
		run := t.runs[t.order[i]]
		if run.Status == status {
			out = append(out, run.Clone())
		}
	}

	return out
}

// Search matches the query against command paths and stringified outputs,
// newest first.
func (t *Tracker) Search(query string) []*models.CommandRun {
	t.mu.Lock()
	defer t.mu.Unlock()

	needle := strings.ToLower(query)

	var out []*models.CommandRun

	for i := len(t.order) - 1; i >= 0; i-- {
		run := t.runs[t.order[i]]

		if strings.Contains(strings.ToLower(run.Path), needle) ||
			strings.Contains(strings.ToLower(template.Stringify(run.Output)), needle) {
			out = append(out, run.Clone())
		}
	}

	return out
}

// GetStats counts runs by status.
func (t *Tracker) GetStats() models.RunStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := models.RunStats{Total: len(t.order)}

	for _, run := range t.runs {
		switch run.Status {
		case models.RunStatusPending:
			stats.Pending++
		case models.RunStatusRunning:
			stats.Running++
		case models.RunStatusResolved:
			stats.Resolved++
		case models.RunStatusRejected:
			stats.Rejected++
		}
	}

	return stats
}

// evictLocked trims the history back to the limit, oldest first. Runs that
// are still in flight are never evicted.
func (t *Tracker) evictLocked() {
	for len(t.order) > t.limit {
		evicted := false

		for i, id := range t.order {
			if !t.runs[id].Settled() {
				continue
			}

			delete(t.runs, id)
			delete(t.done, id)
			t.order = append(t.order[:i], t.order[i+1:]...)
			evicted = true

			break
		}

		if !evicted {
			return
		}
	}
}
