package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxflow/voxflow/pkg/eventbus"
	"github.com/voxflow/voxflow/pkg/events"
	"github.com/voxflow/voxflow/pkg/graph"
	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/persistence"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Workflow manages the call flow document lifecycle: draft edits, static
// validation and the draft-to-active transition that makes a flow callable.
type Workflow struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service. The publisher may be nil when
// prompt pre-rendering is not wanted.
func NewWorkflow(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: p,
		publisher:   publisher,
		logger:      logger.With("module", "services"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List retrieves all workflows that are not deleted.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().Workflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create adds a new workflow as a draft. Drafts may be structurally invalid;
// validation gates activation, not editing.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if strings.TrimSpace(workflow.Name) == "" {
		return nil, ErrWorkflowNameRequired
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.Status = models.WorkflowStatusDraft
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.ActivatedAt = nil

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update modifies an existing workflow by its ID. Editing an active workflow
// demotes it back to draft; live calls keep the snapshot they started with
// and the flow must be re-activated to serve new calls.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if existing.Status == models.WorkflowStatusArchived {
		return nil, ErrCannotModifyArchived
	}

	if strings.TrimSpace(workflow.Name) == "" {
		return nil, ErrWorkflowNameRequired
	}

	workflow.ID = workflowID
	workflow.Status = models.WorkflowStatusDraft
	workflow.Owner = existing.Owner
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()
	workflow.ActivatedAt = existing.ActivatedAt

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete soft-removes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if err := w.persistence.WorkflowRepository().Delete(ctx, workflowID); err != nil {
		return err
	}

	return nil
}

// Validate runs static analysis on a stored workflow without changing its
// status. An empty result means the flow would activate.
func (w *Workflow) Validate(ctx context.Context, workflowID string) ([]graph.ValidationError, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return graph.Validate(workflow), nil
}

// Activate transitions a draft to active after static validation passes.
// Activation also requests pre-rendering of every spoken prompt so live
// calls play assets instead of waiting on synthesis.
func (w *Workflow) Activate(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	switch workflow.Status {
	case models.WorkflowStatusActive:
		return nil, ErrAlreadyActive
	case models.WorkflowStatusArchived:
		return nil, ErrCannotModifyArchived
	}

	if len(workflow.Nodes) == 0 {
		return nil, ErrNodesRequired
	}

	if findings := graph.Validate(workflow); len(findings) > 0 {
		return nil, NewValidationError(
			"Activate",
			findings[0].Code,
			fmt.Sprintf("%d validation error(s), first: %s", len(findings), findings[0].Error()),
			ErrWorkflowInvalid,
		)
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusActive
	workflow.UpdatedAt = now
	workflow.ActivatedAt = &now

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to activate workflow: %w", err)
	}

	w.requestAudioGeneration(ctx, workflow)

	return workflow, nil
}

// Archive retires a workflow. Archived flows stop serving new calls; calls
// already in flight finish on their snapshot.
func (w *Workflow) Archive(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return workflow, nil
	}

	workflow.Status = models.WorkflowStatusArchived
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to archive workflow: %w", err)
	}

	return workflow, nil
}

// requestAudioGeneration publishes one event per text-bearing node. Failures
// are logged and swallowed: synthesis is an optimization, activation is not.
func (w *Workflow) requestAudioGeneration(ctx context.Context, workflow *models.Workflow) {
	if w.publisher == nil {
		return
	}

	voice, _ := workflow.Settings["voice"].(string)

	for _, node := range workflow.Nodes {
		text := promptText(node)
		if text == "" || strings.Contains(text, "{") {
			// Prompts with placeholders are rendered per call.
			continue
		}

		event := events.AudioGeneration{
			BaseEvent: events.BaseEvent{
				ID:         uuid.NewString(),
				Type:       events.AudioGenerationEvent,
				Timestamp:  time.Now().UTC(),
				WorkflowID: workflow.ID,
			},
			NodeID: node.ID,
			Text:   text,
			Voice:  voice,
		}

		if err := w.publisher.Publish(ctx, workflow.ID, event); err != nil {
			w.logger.WarnContext(ctx, "failed to request audio generation",
				"workflow_id", workflow.ID, "node_id", node.ID, "error", err)
		}
	}
}

// promptText extracts the spoken text of a node, if it has one.
func promptText(node *models.Node) string {
	key := "text"
	if node.Type == models.NodeTypeEnd {
		key = "farewell_text"
	}

	text, _ := node.Data[key].(string)

	return text
}
