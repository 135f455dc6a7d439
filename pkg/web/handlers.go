package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/onios/onid/pkg/commands"
	"github.com/onios/onid/pkg/eventbus"
	"github.com/onios/onid/pkg/events"
	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/services"
	"github.com/onios/onid/pkg/workflow"
)

type APIHandlers struct {
	logger    *slog.Logger
	commands  *commands.Registry
	engine    *workflow.Engine
	workflows *services.Workflow
	bus       eventbus.EventBus
	validator *validator.Validate
	startedAt time.Time
}

func NewAPIHandlers(
	cmds *commands.Registry,
	engine *workflow.Engine,
	workflowService *services.Workflow,
	bus eventbus.EventBus,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		logger:    logger.With("module", "api"),
		commands:  cmds,
		engine:    engine,
		workflows: workflowService,
		bus:       bus,
		validator: validator,
		startedAt: time.Now().UTC(),
	}
}

// RegisterRoutes mounts every API route on the app. The route table lives
// here so the server and the handler tests serve the same surface.
func RegisterRoutes(app fiber.Router, h *APIHandlers) {
	api := app.Group("/api")

	api.Get("/oni/status", h.Status)

	api.Post("/commands/execute", h.ExecuteCommand)
	api.Get("/commands", h.SearchCommands)

	api.Get("/runs", h.GetRuns)
	api.Get("/runs/stats", h.GetRunStats)
	api.Get("/runs/:id", h.GetRun)
	api.Get("/runs/:id/await", h.AwaitRun)
	api.Get("/chains/:id", h.GetChain)

	api.Get("/nodes", h.GetNodeTypes)

	api.Get("/workflows", h.GetWorkflows)
	api.Post("/workflows", h.CreateWorkflow)
	api.Get("/workflows/:id", h.GetWorkflow)
	api.Put("/workflows/:id", h.UpdateWorkflow)
	api.Delete("/workflows/:id", h.DeleteWorkflow)
	api.Get("/workflows/:id/logs", h.GetWorkflowLogs)
	api.Post("/workflows/:id/execute", h.ExecuteWorkflow)
	api.Post("/workflows/:id/abort", h.AbortWorkflow)

	api.Post("/events/:name", h.EmitEvent)
}

// Status is the launcher's poll target: the shell waits for a 2xx here
// before it opens its window.
func (h *APIHandlers) Status(c fiber.Ctx) error {
	storeCheck, storeOK := h.workflows.HealthCheck(c.Context())
	stats := h.commands.Tracker().GetStats()

	status := "healthy"
	httpStatus := http.StatusOK

	if !storeOK {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"service": "onid",
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"counts": fiber.Map{
			"commands":     len(h.commands.Commands()),
			"runs":         stats.Total,
			"runs_running": stats.Running,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) ExecuteCommand(c fiber.Ctx) error {
	var req ExecuteCommandRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	source := models.RunSourceHuman
	if req.Source != "" {
		source = models.RunSource(req.Source)
	}

	// The dispatch outlives this request.
	handle := h.commands.Execute(context.WithoutCancel(c.Context()), req.Command, source)

	return c.Status(fiber.StatusAccepted).JSON(ExecuteCommandResponse{
		RunID:   handle.RunID(),
		RunIDs:  handle.RunIDs(),
		ChainID: handle.ChainID(),
		Status:  handle.Status(),
	})
}

func (h *APIHandlers) SearchCommands(c fiber.Ctx) error {
	specs := h.commands.Search(c.Query("q"))

	return c.JSON(fiber.Map{
		"commands": specs,
		"count":    len(specs),
	})
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	tracker := h.commands.Tracker()

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			return badRequest(c, "Invalid limit: "+limitStr)
		}

		limit = parsed
	}

	var runs []*models.CommandRun

	switch {
	case c.Query("q") != "":
		runs = tracker.Search(c.Query("q"))
	case c.Query("status") != "":
		status := models.RunStatus(c.Query("status"))
		switch status {
		case models.RunStatusPending, models.RunStatusRunning,
			models.RunStatusResolved, models.RunStatusRejected:
		default:
			return badRequest(c, "Invalid status: "+c.Query("status"))
		}

		runs = tracker.GetByStatus(status)
	default:
		runs = tracker.GetHistory(limit)
	}

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return c.JSON(fiber.Map{
		"runs":  runs,
		"count": len(runs),
	})
}

func (h *APIHandlers) GetRunStats(c fiber.Ctx) error {
	return c.JSON(h.commands.Tracker().GetStats())
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.commands.Tracker().GetRun(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

// AwaitRun blocks until the run settles, the optional timeout_ms elapses,
// or the client goes away.
func (h *APIHandlers) AwaitRun(c fiber.Ctx) error {
	ctx := c.Context()

	if timeoutStr := c.Query("timeout_ms"); timeoutStr != "" {
		ms, err := strconv.Atoi(timeoutStr)
		if err != nil || ms <= 0 {
			return badRequest(c, "Invalid timeout_ms: "+timeoutStr)
		}

		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}

	run, err := h.commands.Tracker().AwaitRun(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return requestTimeout(c, "run did not settle in time")
		}

		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetChain(c fiber.Ctx) error {
	chainID := c.Params("id")

	runs := h.commands.Tracker().GetChain(chainID)
	if len(runs) == 0 {
		return notFound(c, "chain not found")
	}

	return c.JSON(fiber.Map{
		"chain_id": chainID,
		"runs":     runs,
		"count":    len(runs),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req, err := h.parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflows.ListWorkflows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

func (h *APIHandlers) parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	if enabledStr := c.Query("enabled"); enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return nil, err
		}

		req.Enabled = &enabled
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	wf, err := h.workflows.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(wf)
}

// GetNodeTypes serves the editor's palette: every registered node type
// with its config schema.
func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	catalog := h.workflows.NodeCatalog()

	return c.JSON(fiber.Map{
		"nodes": catalog,
		"count": len(catalog),
	})
}

// CreateWorkflow stores the posted workflow. Saving resets node runtime
// state, so a workflow arrives idle.
func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var wf models.Workflow
	if err := c.Bind().JSON(&wf); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.workflows.Create(c.Context(), &wf)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdateWorkflow replaces the workflow document under the path ID.
func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var wf models.Workflow
	if err := c.Bind().JSON(&wf); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.workflows.Update(c.Context(), id, &wf)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflows.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetWorkflowLogs(c fiber.Ctx) error {
	id := c.Params("id")

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			return badRequest(c, "Invalid limit: "+limitStr)
		}

		limit = parsed
	}

	entries, err := h.workflows.Logs(c.Context(), id, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflow_id": id,
		"logs":        entries,
		"count":       len(entries),
	})
}

// ExecuteWorkflow runs the workflow to completion and returns its outcome.
// The request context carries the abort signal: a dropped connection
// cancels the execution the way Abort does.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := h.engine.ExecuteWithTrigger(c.Context(), id, models.TriggerTypeManual, req.TriggerData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) AbortWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.engine.Abort(id); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"workflow_id": id,
		"status":      "aborting",
	})
}

// EmitEvent publishes a user-named event; enabled workflows with a matching
// event trigger fire off it.
func (h *APIHandlers) EmitEvent(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Event name is required")
	}

	var payload any

	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			return badRequest(c, "Invalid JSON payload")
		}
	}

	event := events.Custom{
		BaseEvent: events.NewBaseEvent(events.CustomEventType(name), ""),
		Name:      name,
		Payload:   payload,
	}

	if err := h.bus.Publish(context.WithoutCancel(c.Context()), name, event); err != nil {
		h.logger.Error("Failed to publish custom event", "event", name, "error", err)

		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"event":  string(events.CustomEventType(name)),
		"status": "accepted",
	})
}
