package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/onios/onid/pkg/eventbus"
	"github.com/onios/onid/pkg/events"
	"github.com/onios/onid/pkg/models"
)

// Handler executes one command invocation. Returning an error rejects the
// run; panics are recovered and treated the same way.
type Handler func(ctx context.Context, args []any) (any, error)

// Registry maps dot paths to handlers and dispatches invocations. Dispatch
// never blocks the caller and never raises: everything that can go wrong
// after Register lands on a rejected CommandRun.
type Registry struct {
	logger  *slog.Logger
	bus     eventbus.EventBus
	tracker *Tracker

	mu       sync.RWMutex
	handlers map[string]Handler
	specs    map[string]*models.CommandSpec
}

func NewRegistry(tracker *Tracker, bus eventbus.EventBus, logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "command_registry"),
		bus:      bus,
		tracker:  tracker,
		handlers: make(map[string]Handler),
		specs:    make(map[string]*models.CommandSpec),
	}
}

// Tracker exposes the run tracker the registry records into.
func (r *Registry) Tracker() *Tracker {
	return r.tracker
}

// Register adds a command under a dot path.
func (r *Registry) Register(path string, handler Handler, spec *models.CommandSpec) error {
	if !ValidPath(path) {
		return fmt.Errorf("%w: bad command path '%s'", ErrInvalidInvocation, path)
	}

	if handler == nil {
		return fmt.Errorf("command '%s': %w", path, ErrNilHandler)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[path]; exists {
		return fmt.Errorf("command '%s' %w", path, ErrAlreadyRegistered)
	}

	if spec == nil {
		spec = &models.CommandSpec{Path: path}
	} else {
		clone := *spec
		clone.Path = path
		spec = &clone
	}

	r.handlers[path] = handler
	r.specs[path] = spec

	return nil
}

// Search returns registered commands whose path or description contains the
// query, sorted by path. An empty query lists everything.
func (r *Registry) Search(query string) []*models.CommandSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(query)

	var out []*models.CommandSpec

	for path, spec := range r.specs {
		if needle == "" ||
			strings.Contains(strings.ToLower(path), needle) ||
			strings.Contains(strings.ToLower(spec.Description), needle) {
			clone := *spec
			out = append(out, &clone)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})

	return out
}

// Commands lists every registration, sorted by path.
func (r *Registry) Commands() []*models.CommandSpec {
	return r.Search("")
}

// Execute parses the raw invocation and dispatches it asynchronously. One
// CommandRun per chain stage is opened before the handle returns; parse
// failures and unknown paths surface as rejected runs, never as panics.
func (r *Registry) Execute(ctx context.Context, raw string, source models.RunSource) *Handle {
	return r.ExecuteAs(ctx, raw, source, "")
}

// ExecuteAs is Execute with the originating run recorded on every stage,
// for invocations issued on behalf of another run.
func (r *Registry) ExecuteAs(ctx context.Context, raw string, source models.RunSource, parentRunID string) *Handle {
	if ctx == nil {
		ctx = context.Background()
	}

	calls, err := Parse(raw)
	if err != nil {
		run := r.openRun(raw, "", source, parentRunID, "", 0, 0)
		r.rejectRun(ctx, run.ID, err.Error())

		return &Handle{tracker: r.tracker, runIDs: []string{run.ID}}
	}

	chainID := ""
	if len(calls) > 1 {
		chainID = "chain-" + uuid.New().String()[:8]
	}

	runIDs := make([]string, 0, len(calls))

	for i, call := range calls {
		run := r.openRun(call.Raw, call.Path, source, parentRunID, chainID, i, len(calls))
		runIDs = append(runIDs, run.ID)
	}

	go r.runChain(ctx, calls, runIDs)

	return &Handle{tracker: r.tracker, runIDs: runIDs, chainID: chainID}
}

func (r *Registry) openRun(raw, path string, source models.RunSource, parentRunID, chainID string, index, total int) *models.CommandRun {
	run := &models.CommandRun{
		ID:          uuid.New().String(),
		Command:     raw,
		Path:        path,
		Source:      source,
		ParentRunID: parentRunID,
	}

	if chainID != "" {
		run.ChainID = chainID
		run.ChainIndex = index
		run.ChainTotal = total
	}

	r.tracker.Open(run)

	return run
}

// runChain drives the stages strictly in order. A failed stage terminates
// the chain; the remaining stages stay pending forever.
func (r *Registry) runChain(ctx context.Context, calls []Call, runIDs []string) {
	var carry any

	for i, call := range calls {
		runID := runIDs[i]

		r.mu.RLock()
		handler, ok := r.handlers[call.Path]
		r.mu.RUnlock()

		if !ok {
			r.rejectRun(ctx, runID, fmt.Sprintf("command '%s' %s", call.Path, ErrNotRegistered))

			return
		}

		r.tracker.MarkRunning(runID)

		args := call.Args
		if i > 0 {
			// The previous stage's output rides in as the implicit last argument.
			args = append(append(make([]any, 0, len(call.Args)+1), call.Args...), carry)
		}

		output, err := invoke(WithRunID(ctx, runID), handler, args)
		if err != nil {
			r.rejectRun(ctx, runID, err.Error())

			return
		}

		settled := r.resolveRun(ctx, runID, output)
		if settled == nil {
			return
		}

		carry = settled.Output
	}
}

func invoke(ctx context.Context, handler Handler, args []any) (output any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	return handler(ctx, args)
}

func (r *Registry) resolveRun(ctx context.Context, runID string, output any) *models.CommandRun {
	settled := r.tracker.Resolve(runID, output)
	if settled == nil {
		return nil
	}

	r.publish(ctx, settled.ID, events.CommandExecuted{
		BaseEvent:  events.NewBaseEvent(events.CommandExecutedEvent, ""),
		RunID:      settled.ID,
		Path:       settled.Path,
		Source:     settled.Source,
		OutputType: settled.OutputType,
		DurationMs: settled.DurationMS,
	})

	return settled
}

func (r *Registry) rejectRun(ctx context.Context, runID string, errMsg string) {
	settled := r.tracker.Reject(runID, errMsg)
	if settled == nil {
		return
	}

	r.logger.WarnContext(ctx, "command rejected",
		"run_id", settled.ID, "path", settled.Path, "error", errMsg)

	r.publish(ctx, settled.ID, events.CommandFailed{
		BaseEvent:  events.NewBaseEvent(events.CommandFailedEvent, ""),
		RunID:      settled.ID,
		Path:       settled.Path,
		Source:     settled.Source,
		Error:      settled.Error,
		DurationMs: settled.DurationMS,
	})
}

func (r *Registry) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.bus == nil {
		return
	}

	if err := r.bus.Publish(ctx, key, event); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish command event",
			"event_type", event.GetType(), "error", err)
	}
}
