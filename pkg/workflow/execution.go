package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/onios/onid/pkg/eventbus"
	"github.com/onios/onid/pkg/events"
	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/otelhelper"
	"github.com/onios/onid/pkg/protocol"
)

// execution is one walk of one workflow's graph. It owns the node runtime
// state of its workflow for as long as it runs.
type execution struct {
	id     string
	engine *Engine
	logger *slog.Logger

	workflow    *models.Workflow
	triggerKind models.TriggerType
	triggerData map[string]any

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	settled      map[string]models.NodeStatus
	outputs      map[string]*protocol.NodeOutput
	executed     int
	skipped      int
	failedNodeID string
	failureError string
}

func newExecution(ctx context.Context, engine *Engine, workflowID string, kind models.TriggerType, data map[string]any) *execution {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)
	id := generateExecutionID()

	return &execution{
		id:          id,
		engine:      engine,
		logger:      engine.logger.With("workflow_id", workflowID, "execution_id", id),
		triggerKind: kind,
		triggerData: data,
		ctx:         ctx,
		cancel:      cancel,
		settled:     make(map[string]models.NodeStatus),
		outputs:     make(map[string]*protocol.NodeOutput),
	}
}

// abort cancels the execution context. Nodes in flight observe the
// cancellation and settle back to idle.
func (x *execution) abort() {
	x.cancel()
}

func (x *execution) run(workflow *models.Workflow) (*Result, error) {
	defer x.cancel()

	x.workflow = workflow
	started := time.Now()

	ctx, span := otelhelper.StartSpan(x.ctx, x.engine.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.ExecutionIDKey, x.id),
		attribute.String(otelhelper.TriggerKindKey, string(x.triggerKind)),
	)
	defer span.End()

	x.logger.InfoContext(ctx, "starting workflow execution",
		"workflow_name", workflow.Name, "trigger_kind", x.triggerKind)

	if err := x.engine.store.ResetNodeStates(ctx, workflow.ID); err != nil {
		return nil, err
	}

	workflow.ResetRuntime()

	x.log(ctx, &models.ExecutionLogEntry{
		Level:   models.LogLevelInfo,
		Message: "execution started",
	})

	x.publish(ctx, events.WorkflowExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.WorkflowExecutionStartedEvent, workflow.ID),
		ExecutionID:  x.id,
		WorkflowName: workflow.Name,
		TriggerKind:  string(x.triggerKind),
		TriggerData:  x.triggerData,
	})

	x.walk(ctx)

	return x.complete(ctx, span, time.Since(started)), nil
}

// walk runs the graph in waves. A wave holds every node whose required
// upstream edges have all settled; its members are issued together and
// awaited before the next wave is computed.
func (x *execution) walk(ctx context.Context) {
	reachable := x.reachableFromTriggers()
	required := x.requiredEdges(reachable)

	wave := x.workflow.TriggerNodes()

	for len(wave) > 0 && x.ctx.Err() == nil {
		x.runWave(ctx, wave)
		wave = x.nextWave(ctx, reachable, required)
	}
}

func (x *execution) runWave(ctx context.Context, wave []*models.WorkflowNode) {
	if x.engine.sequential || len(wave) == 1 {
		for _, node := range wave {
			x.runNode(ctx, node)
		}

		return
	}

	var wg sync.WaitGroup

	for _, node := range wave {
		wg.Add(1)

		go func(node *models.WorkflowNode) {
			defer wg.Done()
			x.runNode(ctx, node)
		}(node)
	}

	wg.Wait()
}

// nextWave collects the nodes ready to run. Ready nodes without a single
// supplying edge are marked skipped on the spot, and skipping repeats until
// it stops uncovering further ready nodes.
func (x *execution) nextWave(ctx context.Context, reachable map[string]bool, required map[string][]*models.Connection) []*models.WorkflowNode {
	var wave []*models.WorkflowNode

	picked := make(map[string]bool)

	for {
		progressed := false

		for _, node := range x.workflow.Nodes {
			if node.IsTrigger() || !reachable[node.ID] || picked[node.ID] || x.isSettled(node.ID) {
				continue
			}

			edges := required[node.ID]
			if !x.allSettled(edges) {
				continue
			}

			if x.anySupplies(edges) {
				wave = append(wave, node)
				picked[node.ID] = true

				continue
			}

			x.markSkipped(ctx, node)

			progressed = true
		}

		if !progressed {
			return wave
		}
	}
}

func (x *execution) runNode(ctx context.Context, wfNode *models.WorkflowNode) {
	started := time.Now()
	logger := x.logger.With("node_id", wfNode.ID, "node_type", wfNode.Type)

	nodeCtx, span := otelhelper.StartSpan(ctx, x.engine.tracer, "workflow.node",
		attribute.String(otelhelper.NodeIDKey, wfNode.ID),
		attribute.String(otelhelper.NodeTypeKey, string(wfNode.Type)),
		attribute.String(otelhelper.ExecutionIDKey, x.id),
	)
	defer span.End()

	input := x.inputFor(wfNode)

	node, err := x.engine.registry.CreateNode(nodeCtx, string(wfNode.Type), wfNode.ID, wfNode.Config)
	if err != nil {
		logger.ErrorContext(nodeCtx, "failed to create node", "error", err)
		otelhelper.SetError(span, err)
		x.reject(nodeCtx, wfNode, nil, err, time.Since(started))

		return
	}

	x.start(nodeCtx, wfNode, input)
	logger.InfoContext(nodeCtx, "node started")

	out, err := node.Execute(nodeCtx, protocol.NodeInput{
		WorkflowID:  x.workflow.ID,
		ExecutionID: x.id,
		Input:       input,
		TriggerData: x.triggerData,
		Env:         x.env(wfNode),
	})

	switch {
	case err != nil && x.ctx.Err() != nil:
		// Cancelled, not failed. The node goes back to idle.
		logger.WarnContext(nodeCtx, "node aborted")
		x.markAborted(nodeCtx, wfNode)
	case err != nil:
		logger.ErrorContext(nodeCtx, "node rejected", "error", err)
		otelhelper.SetError(span, err)
		x.reject(nodeCtx, wfNode, out, err, time.Since(started))
	default:
		logger.InfoContext(nodeCtx, "node resolved", "duration_ms", time.Since(started).Milliseconds())
		x.resolve(nodeCtx, wfNode, out, time.Since(started))
	}
}

func (x *execution) start(ctx context.Context, wfNode *models.WorkflowNode, input any) {
	status := models.NodeStatusRunning
	x.patch(ctx, wfNode.ID, &models.NodePatch{Status: &status, Input: &input})

	x.log(ctx, &models.ExecutionLogEntry{
		NodeID:    wfNode.ID,
		NodeLabel: wfNode.Label,
		Level:     models.LogLevelInfo,
		Message:   "node started",
		Input:     input,
	})

	x.publish(ctx, events.NodeStarted{
		BaseEvent:   events.NewBaseEvent(events.NodeStartedEvent, x.workflow.ID),
		ExecutionID: x.id,
		NodeID:      wfNode.ID,
		NodeType:    wfNode.Type,
		Input:       input,
	})
}

func (x *execution) resolve(ctx context.Context, wfNode *models.WorkflowNode, out *protocol.NodeOutput, duration time.Duration) {
	if out == nil {
		out = &protocol.NodeOutput{}
	}

	status := models.NodeStatusResolved
	patch := &models.NodePatch{Status: &status, Output: &out.Value}

	if out.RunID != "" {
		patch.RunID = &out.RunID
	}

	x.patch(ctx, wfNode.ID, patch)
	x.settle(wfNode.ID, models.NodeStatusResolved, out)

	x.log(ctx, &models.ExecutionLogEntry{
		NodeID:    wfNode.ID,
		NodeLabel: wfNode.Label,
		Level:     models.LogLevelInfo,
		Message:   "node resolved",
		Output:    out.Value,
	})

	x.publish(ctx, events.NodeFinished{
		BaseEvent:   events.NewBaseEvent(events.NodeFinishedEvent, x.workflow.ID),
		ExecutionID: x.id,
		NodeID:      wfNode.ID,
		NodeType:    wfNode.Type,
		Output:      out.Value,
		Branch:      out.Branch,
		DurationMs:  duration.Milliseconds(),
	})
}

func (x *execution) reject(ctx context.Context, wfNode *models.WorkflowNode, out *protocol.NodeOutput, err error, duration time.Duration) {
	status := models.NodeStatusRejected
	msg := err.Error()
	patch := &models.NodePatch{Status: &status, Error: &msg}

	// A failed node may still reference the run behind it.
	if out != nil && out.RunID != "" {
		patch.RunID = &out.RunID
	}

	x.patch(ctx, wfNode.ID, patch)
	x.settle(wfNode.ID, models.NodeStatusRejected, nil)

	x.mu.Lock()
	if x.failedNodeID == "" {
		x.failedNodeID = wfNode.ID
		x.failureError = msg
	}
	x.mu.Unlock()

	x.log(ctx, &models.ExecutionLogEntry{
		NodeID:    wfNode.ID,
		NodeLabel: wfNode.Label,
		Level:     models.LogLevelError,
		Message:   "node rejected",
		Error:     msg,
	})

	x.publish(ctx, events.NodeFailed{
		BaseEvent:   events.NewBaseEvent(events.NodeFailedEvent, x.workflow.ID),
		ExecutionID: x.id,
		NodeID:      wfNode.ID,
		NodeType:    wfNode.Type,
		Error:       msg,
		DurationMs:  duration.Milliseconds(),
	})
}

// markAborted returns a node that was running when the execution was
// cancelled to idle, so it is indistinguishable from one that never ran.
func (x *execution) markAborted(ctx context.Context, wfNode *models.WorkflowNode) {
	ctx = context.WithoutCancel(ctx)

	status := models.NodeStatusIdle
	x.patch(ctx, wfNode.ID, &models.NodePatch{Status: &status})
	x.settle(wfNode.ID, models.NodeStatusIdle, nil)

	x.log(ctx, &models.ExecutionLogEntry{
		NodeID:    wfNode.ID,
		NodeLabel: wfNode.Label,
		Level:     models.LogLevelWarn,
		Message:   "node aborted",
	})
}

func (x *execution) markSkipped(ctx context.Context, wfNode *models.WorkflowNode) {
	x.mu.Lock()
	x.settled[wfNode.ID] = models.NodeStatusIdle
	x.skipped++
	x.mu.Unlock()

	x.logger.InfoContext(ctx, "node skipped", "node_id", wfNode.ID)

	x.log(ctx, &models.ExecutionLogEntry{
		NodeID:    wfNode.ID,
		NodeLabel: wfNode.Label,
		Level:     models.LogLevelInfo,
		Message:   "node skipped",
	})
}

func (x *execution) complete(ctx context.Context, span trace.Span, duration time.Duration) *Result {
	ctx = context.WithoutCancel(ctx)

	x.mu.Lock()
	executed := x.executed
	skipped := x.skipped
	failedNodeID := x.failedNodeID
	failureError := x.failureError
	x.mu.Unlock()

	durationMs := duration.Milliseconds()

	switch {
	case x.ctx.Err() != nil:
		x.setLastRun(ctx, models.ExecutionStatusAborted)

		x.log(ctx, &models.ExecutionLogEntry{
			Level:   models.LogLevelWarn,
			Message: "execution aborted",
		})

		x.publish(ctx, events.WorkflowExecutionAborted{
			BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionAbortedEvent, x.workflow.ID),
			ExecutionID: x.id,
			DurationMs:  durationMs,
		})

		x.logger.WarnContext(ctx, "workflow execution aborted", "duration_ms", durationMs)

		return &Result{Success: false, Status: models.ExecutionStatusAborted}

	case failedNodeID != "":
		x.setLastRun(ctx, models.ExecutionStatusFailed)
		otelhelper.SetError(span, errors.New(failureError))

		x.log(ctx, &models.ExecutionLogEntry{
			NodeID:  failedNodeID,
			Level:   models.LogLevelError,
			Message: "execution failed",
			Error:   failureError,
		})

		x.publish(ctx, events.WorkflowExecutionFailed{
			BaseEvent:     events.NewBaseEvent(events.WorkflowExecutionFailedEvent, x.workflow.ID),
			ExecutionID:   x.id,
			DurationMs:    durationMs,
			NodesExecuted: executed,
			FailedNodeID:  failedNodeID,
			Error:         failureError,
		})

		x.logger.ErrorContext(ctx, "workflow execution failed",
			"failed_node_id", failedNodeID, "error", failureError, "duration_ms", durationMs)

		return &Result{Success: false, Status: models.ExecutionStatusFailed, Error: failureError}

	default:
		x.setLastRun(ctx, models.ExecutionStatusCompleted)

		x.log(ctx, &models.ExecutionLogEntry{
			Level:   models.LogLevelInfo,
			Message: "execution completed",
		})

		x.publish(ctx, events.WorkflowExecutionCompleted{
			BaseEvent:     events.NewBaseEvent(events.WorkflowExecutionCompletedEvent, x.workflow.ID),
			ExecutionID:   x.id,
			DurationMs:    durationMs,
			NodesExecuted: executed,
			NodesSkipped:  skipped,
		})

		x.logger.InfoContext(ctx, "workflow execution completed",
			"nodes_executed", executed, "nodes_skipped", skipped, "duration_ms", durationMs)

		return &Result{Success: true, Status: models.ExecutionStatusCompleted}
	}
}

// Graph bookkeeping

func (x *execution) settle(nodeID string, status models.NodeStatus, out *protocol.NodeOutput) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.settled[nodeID] = status

	if out != nil {
		x.outputs[nodeID] = out
	}

	if status == models.NodeStatusResolved || status == models.NodeStatusRejected {
		x.executed++
	}
}

func (x *execution) isSettled(nodeID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	_, ok := x.settled[nodeID]

	return ok
}

func (x *execution) allSettled(edges []*models.Connection) bool {
	for _, edge := range edges {
		if !x.isSettled(edge.From) {
			return false
		}
	}

	return true
}

func (x *execution) anySupplies(edges []*models.Connection) bool {
	for _, edge := range edges {
		if x.supplies(edge) {
			return true
		}
	}

	return false
}

// supplies reports whether the edge hands its target an input: the source
// resolved and, on labeled edges, the label matches the branch the source
// chose. Unlabeled edges follow any resolved source.
func (x *execution) supplies(edge *models.Connection) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.settled[edge.From] != models.NodeStatusResolved {
		return false
	}

	if edge.Label == "" {
		return true
	}

	out := x.outputs[edge.From]

	return out != nil && out.Branch == edge.Label
}

// inputFor is the output of the first supplying edge in connection order.
func (x *execution) inputFor(wfNode *models.WorkflowNode) any {
	if wfNode.IsTrigger() {
		return nil
	}

	for _, edge := range x.workflow.IncomingConnections(wfNode.ID) {
		if !x.supplies(edge) {
			continue
		}

		x.mu.Lock()
		out := x.outputs[edge.From]
		x.mu.Unlock()

		return out.Value
	}

	return nil
}

func (x *execution) reachableFromTriggers() map[string]bool {
	return x.closure("")
}

// requiredEdges maps each reachable node to the incoming edges that gate its
// readiness. An edge whose source reaches the node only through the node
// itself is a cycle back edge; waiting on it would deadlock the loop, so it
// never gates.
func (x *execution) requiredEdges(reachable map[string]bool) map[string][]*models.Connection {
	required := make(map[string][]*models.Connection, len(x.workflow.Nodes))

	for _, node := range x.workflow.Nodes {
		if node.IsTrigger() || !reachable[node.ID] {
			continue
		}

		upstream := x.closure(node.ID)

		var edges []*models.Connection

		for _, edge := range x.workflow.IncomingConnections(node.ID) {
			if upstream[edge.From] {
				edges = append(edges, edge)
			}
		}

		required[node.ID] = edges
	}

	return required
}

// closure walks forward from the trigger nodes, optionally treating one node
// as absent.
func (x *execution) closure(without string) map[string]bool {
	seen := make(map[string]bool, len(x.workflow.Nodes))

	var queue []string

	for _, t := range x.workflow.TriggerNodes() {
		if t.ID == without || seen[t.ID] {
			continue
		}

		seen[t.ID] = true
		queue = append(queue, t.ID)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, edge := range x.workflow.OutgoingConnections(id) {
			if edge.To == without || seen[edge.To] {
				continue
			}

			seen[edge.To] = true
			queue = append(queue, edge.To)
		}
	}

	return seen
}

// Store, log and bus plumbing

func (x *execution) env(wfNode *models.WorkflowNode) protocol.NodeEnv {
	env := protocol.NodeEnv{
		Logger: x.logger.With("node_id", wfNode.ID),
	}

	if x.engine.commands != nil {
		env.Commands = x.engine.commands
	}

	if x.engine.bus != nil {
		env.Publisher = x.engine.bus
	}

	nodeID, label := wfNode.ID, wfNode.Label
	env.AppendLog = func(level models.LogLevel, message string) {
		x.log(context.WithoutCancel(x.ctx), &models.ExecutionLogEntry{
			NodeID:    nodeID,
			NodeLabel: label,
			Level:     level,
			Message:   message,
		})
	}

	return env
}

func (x *execution) patch(ctx context.Context, nodeID string, patch *models.NodePatch) {
	if err := x.engine.store.UpdateNode(ctx, x.workflow.ID, nodeID, patch); err != nil {
		x.logger.WarnContext(ctx, "failed to update node state", "node_id", nodeID, "error", err)
	}
}

func (x *execution) log(ctx context.Context, entry *models.ExecutionLogEntry) {
	entry.ExecutionID = x.id

	if err := x.engine.store.AddLog(ctx, x.workflow.ID, entry); err != nil {
		x.logger.WarnContext(ctx, "failed to append execution log", "error", err)
	}
}

func (x *execution) setLastRun(ctx context.Context, status models.ExecutionStatus) {
	if err := x.engine.store.SetLastRunStatus(ctx, x.workflow.ID, status); err != nil {
		x.logger.WarnContext(ctx, "failed to record last run status", "error", err)
	}
}

func (x *execution) publish(ctx context.Context, event eventbus.Event) {
	if x.engine.bus == nil {
		return
	}

	if err := x.engine.bus.Publish(ctx, x.workflow.ID, event); err != nil {
		x.logger.WarnContext(ctx, "failed to publish workflow event",
			"event_type", event.GetType(), "error", err)
	}
}
