package webhook

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxflow/voxflow/pkg/dispatch"
	"github.com/voxflow/voxflow/pkg/engine"
	"github.com/voxflow/voxflow/pkg/graph"
	"github.com/voxflow/voxflow/pkg/metrics"
	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/persistence"
	"github.com/voxflow/voxflow/pkg/tracing"
	"github.com/voxflow/voxflow/pkg/voice"
)

// Provider form fields on voice callbacks.
const (
	fieldCallSid      = "CallSid"
	fieldFrom         = "From"
	fieldTo           = "To"
	fieldDigits       = "Digits"
	fieldRecordingURL = "RecordingUrl"
	fieldCallStatus   = "CallStatus"
)

// cachedGraph is one compiled flow snapshot, invalidated by UpdatedAt.
type cachedGraph struct {
	updatedAt time.Time
	graph     *graph.Graph
}

// Handlers serves the provider-facing voice webhook surface. Every handler
// answers with a valid instruction document; a caller never hears a raw
// HTTP error.
type Handlers struct {
	engine      *engine.Manager
	dispatcher  *dispatch.Dispatcher
	persistence persistence.Persistence
	signature   *SignatureValidator
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	baseURL     string

	mu     sync.RWMutex
	graphs map[string]*cachedGraph
}

func NewHandlers(
	manager *engine.Manager,
	dispatcher *dispatch.Dispatcher,
	p persistence.Persistence,
	signature *SignatureValidator,
	m *metrics.Metrics,
	logger *slog.Logger,
	baseURL string,
) *Handlers {
	return &Handlers{
		engine:      manager,
		dispatcher:  dispatcher,
		persistence: p,
		signature:   signature,
		metrics:     m,
		logger:      logger.With("module", "webhook"),
		tracer:      otel.Tracer("voxflow.webhook"),
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		graphs:      make(map[string]*cachedGraph),
	}
}

// Register mounts the voice webhook routes.
func (h *Handlers) Register(app *fiber.App) {
	v := app.Group("/voice")
	v.Post("/:workflowId", h.StartCall)
	v.Post("/:workflowId/gather/:nodeId", h.GatherResult)
	v.Post("/:workflowId/recording/:nodeId", h.RecordingResult)
	v.Post("/:workflowId/status", h.CallStatus)
}

// StartCall handles the provider's initial webhook for an inbound call and
// runs the flow's first turn.
func (h *Handlers) StartCall(c fiber.Ctx) error {
	if !h.verify(c) {
		return h.reject(c, "start")
	}

	callID := c.FormValue(fieldCallSid)
	if callID == "" {
		h.metrics.WebhookRequest("start", "400")

		return c.Status(fiber.StatusBadRequest).SendString("missing CallSid")
	}

	ctx := c.Context()
	workflowID := c.Params("workflowId")

	unlock, err := h.engine.LockCall(ctx, callID)
	if err != nil {
		return h.respondError(c, "start", err)
	}
	defer unlock()

	state, err := h.engine.StartExecution(ctx, workflowID, callID, c.FormValue(fieldFrom), c.FormValue(fieldTo))
	if err != nil {
		if persistence.IsWorkflowNotFound(err) || persistence.IsWorkflowNotActive(err) {
			h.logger.WarnContext(ctx, "call for non-callable workflow",
				"workflow_id", workflowID, "call_id", callID, "error", err)

			return h.respondXML(c, "start", voice.New().Say(dispatch.ApologyText).Hangup())
		}

		return h.respondError(c, "start", err)
	}

	g, err := h.graphFor(ctx, workflowID)
	if err != nil {
		return h.respondError(c, "start", err)
	}

	turnCtx, span := tracing.StartSpan(ctx, h.tracer, "webhook turn",
		attribute.String("webhook.route", "start"),
		attribute.String("workflow.id", workflowID),
		attribute.String("call.id", callID))
	resp := h.dispatcher.Run(turnCtx, g, state, g.Entry(), dispatch.TurnInput{})
	span.End()

	return h.respondXML(c, "start", resp)
}

// GatherResult resumes a turn with the digits the caller pressed. An empty
// Digits field means the gather window elapsed silent.
func (h *Handlers) GatherResult(c fiber.Ctx) error {
	return h.resume(c, "gather", dispatch.TurnInput{
		Digits:   c.FormValue(fieldDigits),
		HasInput: true,
	})
}

// RecordingResult resumes a turn with the recording reference.
func (h *Handlers) RecordingResult(c fiber.Ctx) error {
	return h.resume(c, "recording", dispatch.TurnInput{
		RecordingURL: c.FormValue(fieldRecordingURL),
		HasInput:     true,
	})
}

// CallStatus handles the provider's call status callbacks. A terminal status
// for a still-live execution means the caller hung up mid-flow.
func (h *Handlers) CallStatus(c fiber.Ctx) error {
	if !h.verify(c) {
		return h.reject(c, "status")
	}

	callID := c.FormValue(fieldCallSid)
	if callID == "" {
		h.metrics.WebhookRequest("status", "400")

		return c.Status(fiber.StatusBadRequest).SendString("missing CallSid")
	}

	ctx := c.Context()
	status := c.FormValue(fieldCallStatus)

	switch status {
	case "completed", "failed", "busy", "no-answer", "canceled":
		if err := h.engine.StopExecution(ctx, callID, models.EndReasonAbandoned); err != nil {
			h.logger.ErrorContext(ctx, "failed to stop abandoned call",
				"call_id", callID, "call_status", status, "error", err)
		}
	}

	h.metrics.WebhookRequest("status", "204")

	return c.SendStatus(fiber.StatusNoContent)
}

// resume runs one webhook turn at the node the action URL points at. A call
// whose execution already ended is acknowledged with a hangup so the
// provider stops retrying.
func (h *Handlers) resume(c fiber.Ctx, route string, input dispatch.TurnInput) error {
	if !h.verify(c) {
		return h.reject(c, route)
	}

	callID := c.FormValue(fieldCallSid)
	if callID == "" {
		h.metrics.WebhookRequest(route, "400")

		return c.Status(fiber.StatusBadRequest).SendString("missing CallSid")
	}

	ctx := c.Context()

	unlock, err := h.engine.LockCall(ctx, callID)
	if err != nil {
		return h.respondError(c, route, err)
	}
	defer unlock()

	state, err := h.engine.Execution(ctx, callID)
	if err != nil {
		if engine.IsExecutionNotFound(err) {
			return h.respondXML(c, route, voice.New().Hangup())
		}

		return h.respondError(c, route, err)
	}

	g, err := h.graphFor(ctx, c.Params("workflowId"))
	if err != nil {
		return h.respondError(c, route, err)
	}

	turnCtx, span := tracing.StartSpan(ctx, h.tracer, "webhook turn",
		attribute.String("webhook.route", route),
		attribute.String("workflow.id", state.WorkflowID),
		attribute.String("call.id", callID))
	resp := h.dispatcher.Run(turnCtx, g, state, c.Params("nodeId"), input)
	span.End()

	return h.respondXML(c, route, resp)
}

// graphFor returns the compiled graph of a workflow, recompiling only when
// the stored document changed.
func (h *Handlers) graphFor(ctx context.Context, workflowID string) (*graph.Graph, error) {
	workflow, err := h.persistence.WorkflowRepository().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	cached, ok := h.graphs[workflowID]
	h.mu.RUnlock()

	if ok && cached.updatedAt.Equal(workflow.UpdatedAt) {
		return cached.graph, nil
	}

	g, err := graph.Compile(workflow)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.graphs[workflowID] = &cachedGraph{updatedAt: workflow.UpdatedAt, graph: g}
	h.mu.Unlock()

	return g, nil
}

// verify checks the provider signature on the request.
func (h *Handlers) verify(c fiber.Ctx) bool {
	if !h.signature.Enabled() {
		return true
	}

	form := make(url.Values)
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		form.Add(string(key), string(value))
	})

	callbackURL := h.baseURL + c.OriginalURL()

	return h.signature.Validate(callbackURL, form, c.Get(SignatureHeader))
}

func (h *Handlers) reject(c fiber.Ctx, route string) error {
	h.metrics.WebhookRequest(route, "403")
	h.logger.Warn("rejected webhook with bad signature", "route", route, "path", c.Path())

	return c.SendStatus(fiber.StatusForbidden)
}

// respondXML writes the instruction document. Serialization failure still
// produces a spoken apology, never a broken body.
func (h *Handlers) respondXML(c fiber.Ctx, route string, resp *voice.Response) error {
	body, err := resp.Render()
	if err != nil {
		h.logger.Error("failed to render instruction document", "route", route, "error", err)

		body, _ = voice.New().Say(dispatch.ApologyText).Hangup().Render()
	}

	h.metrics.WebhookRequest(route, "200")
	c.Set(fiber.HeaderContentType, "text/xml; charset=utf-8")

	return c.Send(body)
}

// respondError covers infrastructure failures before the dispatcher could
// run; the caller still hears a controlled goodbye.
func (h *Handlers) respondError(c fiber.Ctx, route string, err error) error {
	h.logger.Error("webhook turn failed", "route", route, "error", err)
	h.metrics.WebhookRequest(route, "500")
	c.Set(fiber.HeaderContentType, "text/xml; charset=utf-8")

	body, _ := voice.New().Say(dispatch.ApologyText).Hangup().Render()

	return c.Status(fiber.StatusInternalServerError).Send(body)
}
