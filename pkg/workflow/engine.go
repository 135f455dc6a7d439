// Package workflow implements the graph execution engine. It walks a
// workflow's node graph breadth-first from its trigger nodes, runs each node
// through the node registry, and records every transition in the workflow
// store and on the event bus.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/onios/onid/pkg/commands"
	"github.com/onios/onid/pkg/eventbus"
	"github.com/onios/onid/pkg/events"
	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/persistence"
	"github.com/onios/onid/pkg/registry"
)

var (
	// ErrWorkflowBusy is returned when an execution for the same workflow is
	// already in flight. The engine is the single writer of a workflow's node
	// runtime state.
	ErrWorkflowBusy = errors.New("execution already in flight")

	// ErrNoTriggerNode is returned for workflows without a trigger node.
	ErrNoTriggerNode = errors.New("has no trigger node")

	// ErrNotRunning is returned by Abort when nothing is in flight.
	ErrNotRunning = errors.New("has no execution in flight")
)

// Result summarizes one finished execution. Success is true iff every node
// reached by the walk resolved.
type Result struct {
	Success bool                   `json:"success"`
	Status  models.ExecutionStatus `json:"status"`
	Error   string                 `json:"error,omitempty"`
}

// Engine executes workflows. One engine serves every workflow in the store;
// per-workflow single-flight keeps concurrent executions of the same graph
// out of each other's runtime state.
type Engine struct {
	store      persistence.WorkflowStore
	commands   *commands.Registry
	registry   *registry.Registry
	bus        eventbus.EventBus
	logger     *slog.Logger
	tracer     trace.Tracer
	sequential bool

	mu       sync.Mutex
	inFlight map[string]*execution

	listenerMu  sync.Mutex
	listenerSig string
	subscribed  []events.EventType
	cron        *cron.Cron
}

// Option configures an Engine.
type Option func(*Engine)

// WithSequentialFanOut makes sibling nodes run one at a time instead of
// being issued together and awaited.
func WithSequentialFanOut() Option {
	return func(e *Engine) {
		e.sequential = true
	}
}

// WithTracer attaches an OpenTelemetry tracer for execution and node spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func NewEngine(
	store persistence.WorkflowStore,
	cmds *commands.Registry,
	nodeRegistry *registry.Registry,
	bus eventbus.EventBus,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:    store,
		commands: cmds,
		registry: nodeRegistry,
		bus:      bus,
		logger:   logger.With("module", "workflow_engine"),
		tracer:   noop.NewTracerProvider().Tracer("workflow_engine"),
		inFlight: make(map[string]*execution),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute runs a workflow fired manually. It blocks until the graph is
// exhausted and returns the outcome. Node failures land on the Result, not
// on the error return; a non-nil error means the execution never started.
func (e *Engine) Execute(ctx context.Context, workflowID string) (*Result, error) {
	return e.ExecuteWithTrigger(ctx, workflowID, models.TriggerTypeManual, nil)
}

// ExecuteWithTrigger runs a workflow with the firing kind and payload seeded
// into its trigger nodes. Event and schedule listeners enter here.
func (e *Engine) ExecuteWithTrigger(ctx context.Context, workflowID string, kind models.TriggerType, data map[string]any) (*Result, error) {
	exec := newExecution(ctx, e, workflowID, kind, data)

	if !e.admit(workflowID, exec) {
		return nil, fmt.Errorf("workflow '%s': %w", workflowID, ErrWorkflowBusy)
	}

	defer e.release(workflowID)

	workflow, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow '%s': %w", workflowID, err)
	}

	if len(workflow.TriggerNodes()) == 0 {
		return nil, fmt.Errorf("workflow '%s' %w", workflowID, ErrNoTriggerNode)
	}

	return exec.run(workflow)
}

// Abort cancels the in-flight execution of a workflow. Running and
// not-yet-started nodes end idle, never rejected, and the execution returns
// with status aborted.
func (e *Engine) Abort(workflowID string) error {
	e.mu.Lock()
	exec := e.inFlight[workflowID]
	e.mu.Unlock()

	if exec == nil {
		return fmt.Errorf("workflow '%s' %w", workflowID, ErrNotRunning)
	}

	exec.abort()

	return nil
}

func (e *Engine) admit(workflowID string, exec *execution) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inFlight[workflowID]; busy {
		return false
	}

	e.inFlight[workflowID] = exec

	return true
}

func (e *Engine) release(workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.inFlight, workflowID)
}

// generateExecutionID generates a unique execution ID.
func generateExecutionID() string {
	return fmt.Sprintf("exec-%s", uuid.New().String()[:8])
}
