// Package engine manages the lifecycle of in-flight call executions: live
// state, safety limits, durable logging and lifecycle events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/voxflow/voxflow/pkg/eventbus"
	"github.com/voxflow/voxflow/pkg/events"
	"github.com/voxflow/voxflow/pkg/metrics"
	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/persistence"
	"github.com/voxflow/voxflow/pkg/statestore"
)

const (
	DefaultExecutionTimeout  = 30 * time.Minute
	DefaultMaxNodeExecutions = 200
	DefaultLoopWindow        = 10
	DefaultLoopNodeThreshold = 5
	DefaultMaxLoopIterations = 50
	DefaultSweepSchedule     = "@every 1m"
)

// Config bounds every execution. Zero values take the defaults above.
type Config struct {
	ExecutionTimeout  time.Duration
	MaxNodeExecutions int
	LoopWindow        int
	LoopNodeThreshold int
	MaxLoopIterations int
	SweepSchedule     string
}

func (c Config) withDefaults() Config {
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = DefaultExecutionTimeout
	}

	if c.MaxNodeExecutions <= 0 {
		c.MaxNodeExecutions = DefaultMaxNodeExecutions
	}

	if c.LoopWindow <= 0 {
		c.LoopWindow = DefaultLoopWindow
	}

	if c.LoopNodeThreshold <= 0 {
		c.LoopNodeThreshold = DefaultLoopNodeThreshold
	}

	if c.MaxLoopIterations <= 0 {
		c.MaxLoopIterations = DefaultMaxLoopIterations
	}

	if c.SweepSchedule == "" {
		c.SweepSchedule = DefaultSweepSchedule
	}

	return c
}

// Manager owns the live execution table and enforces the safety limits.
//
// Locking contract: state-mutating operations (StartExecution, TrackVisit,
// SetVariable, GetVariable, EndExecution) assume the caller holds the
// per-call lock obtained from LockCall for the whole webhook turn.
// StopExecution and the stale sweep acquire the lock themselves; they are
// their own turn.
type Manager struct {
	store       statestore.Store
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	config      Config
	cron        *cron.Cron
}

func NewManager(
	store statestore.Store,
	p persistence.Persistence,
	publisher eventbus.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	config Config,
) *Manager {
	return &Manager{
		store:       store,
		persistence: p,
		publisher:   publisher,
		metrics:     m,
		logger:      logger.With("module", "engine"),
		config:      config.withDefaults(),
	}
}

// LockCall acquires the per-call lock that serializes all work for one call.
func (m *Manager) LockCall(ctx context.Context, callID string) (statestore.UnlockFunc, error) {
	return m.store.Lock(ctx, callID)
}

// StartExecution creates the live state and durable running log for a call's
// first webhook. A duplicate start for an already-live call returns the
// existing state, so provider retries are harmless.
func (m *Manager) StartExecution(ctx context.Context, workflowID, callID, caller, callee string) (*models.ExecutionState, error) {
	workflow, err := m.persistence.WorkflowRepository().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusActive {
		return nil, persistence.NewWorkflowError("StartExecution", workflowID, persistence.ErrWorkflowNotActive)
	}

	existing, err := m.store.Get(ctx, callID)
	if err == nil {
		return existing, nil
	}

	if !errors.Is(err, statestore.ErrNotFound) {
		return nil, fmt.Errorf("failed to check live state for call %s: %w", callID, err)
	}

	state := models.NewExecutionState(callID, workflowID, caller, callee)

	if err := m.store.Put(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to store live state for call %s: %w", callID, err)
	}

	log := &models.ExecutionLog{
		CallID:     callID,
		WorkflowID: workflowID,
		Caller:     caller,
		Callee:     callee,
		Status:     models.ExecutionStatusRunning,
		StartedAt:  state.StartedAt,
	}
	if err := m.persistence.ExecutionLogRepository().Save(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to create execution log for call %s: %w", callID, err)
	}

	m.metrics.ExecutionStarted()

	m.publish(ctx, callID, events.ExecutionStarted{
		BaseEvent: m.baseEvent(events.ExecutionStartedEvent, workflowID, callID),
		Caller:    caller,
		Callee:    callee,
	})

	m.logger.InfoContext(ctx, "execution started",
		"call_id", callID, "workflow_id", workflowID, "caller", caller)

	return state, nil
}

// TrackVisit records a node visit after running the safety checks in order:
// wall-clock timeout, total node execution budget, then loop detection. A
// refused visit returns a LimitError; the caller ends the execution with the
// carried reason.
func (m *Manager) TrackVisit(ctx context.Context, callID, nodeID string, nodeType models.NodeType, input string) (*models.ExecutionState, error) {
	state, err := m.liveState(ctx, callID)
	if err != nil {
		return nil, err
	}

	if time.Since(state.StartedAt) > m.config.ExecutionTimeout {
		return nil, &LimitError{CallID: callID, Reason: models.EndReasonTimeout}
	}

	state.NodeExecutionCount++
	if state.NodeExecutionCount > m.config.MaxNodeExecutions {
		return nil, &LimitError{CallID: callID, Reason: models.EndReasonMaxNodes}
	}

	if m.countRecentVisits(state, nodeID) >= m.config.LoopNodeThreshold {
		state.LoopIterations++
		if state.LoopIterations > m.config.MaxLoopIterations {
			return nil, &LimitError{CallID: callID, Reason: models.EndReasonLoopDetected}
		}
	}

	state.CurrentNodeID = nodeID
	state.VisitedNodes = append(state.VisitedNodes, models.NodeVisit{
		NodeID:    nodeID,
		Type:      nodeType,
		Timestamp: time.Now().UTC(),
		Input:     input,
	})

	if err := m.store.Put(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to store live state for call %s: %w", callID, err)
	}

	return state, nil
}

// countRecentVisits counts how often nodeID appears in the last LoopWindow
// visits.
func (m *Manager) countRecentVisits(state *models.ExecutionState, nodeID string) int {
	count := 0
	window := m.config.LoopWindow

	for i := len(state.VisitedNodes) - 1; i >= 0 && window > 0; i, window = i-1, window-1 {
		if state.VisitedNodes[i].NodeID == nodeID {
			count++
		}
	}

	return count
}

// SetVariable writes a variable on the live state, last write wins.
func (m *Manager) SetVariable(ctx context.Context, callID, key string, value any) error {
	state, err := m.liveState(ctx, callID)
	if err != nil {
		return err
	}

	state.Variables[key] = value

	if err := m.store.Put(ctx, state); err != nil {
		return fmt.Errorf("failed to store live state for call %s: %w", callID, err)
	}

	return nil
}

// GetVariable reads a variable from the live state.
func (m *Manager) GetVariable(ctx context.Context, callID, key string) (any, error) {
	state, err := m.liveState(ctx, callID)
	if err != nil {
		return nil, err
	}

	value, ok := state.Variables[key]
	if !ok {
		return nil, fmt.Errorf("variable %q not set for call %s", key, callID)
	}

	return value, nil
}

// RecordInputFailure bumps the retry counter for an input node and remembers
// why the last attempt failed, so the next reprompt matches. Returns the
// attempt count so far.
func (m *Manager) RecordInputFailure(ctx context.Context, callID, nodeID string, reason models.FailureReason) (int, error) {
	state, err := m.liveState(ctx, callID)
	if err != nil {
		return 0, err
	}

	state.AttemptsByNode[nodeID]++
	state.LastFailureByNode[nodeID] = reason

	if err := m.store.Put(ctx, state); err != nil {
		return 0, fmt.Errorf("failed to store live state for call %s: %w", callID, err)
	}

	return state.AttemptsByNode[nodeID], nil
}

// ResetInputAttempts clears retry bookkeeping after a successful match.
func (m *Manager) ResetInputAttempts(ctx context.Context, callID, nodeID string) error {
	state, err := m.liveState(ctx, callID)
	if err != nil {
		return err
	}

	delete(state.AttemptsByNode, nodeID)
	delete(state.LastFailureByNode, nodeID)

	if err := m.store.Put(ctx, state); err != nil {
		return fmt.Errorf("failed to store live state for call %s: %w", callID, err)
	}

	return nil
}

// EndExecution finalizes the durable log, removes the live state and emits
// lifecycle events. Ending an already-ended call is a no-op. Downstream
// notifications are best effort and never fail the call.
func (m *Manager) EndExecution(ctx context.Context, callID string, reason models.EndReason, cause error) error {
	state, err := m.store.Get(ctx, callID)
	if err != nil {
		if errors.Is(err, statestore.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("failed to load live state for call %s: %w", callID, err)
	}

	endedAt := time.Now().UTC()
	log := &models.ExecutionLog{
		CallID:     state.CallID,
		WorkflowID: state.WorkflowID,
		Caller:     state.Caller,
		Callee:     state.Callee,
		Status:     reason.Status(),
		Reason:     reason,
		StartedAt:  state.StartedAt,
		EndedAt:    &endedAt,
		DurationMs: endedAt.Sub(state.StartedAt).Milliseconds(),
		Visits:     state.VisitedNodes,
		Variables:  state.Variables,
	}

	if cause != nil {
		log.Error = cause.Error()
	}

	if existing, err := m.persistence.ExecutionLogRepository().ByCallID(ctx, callID); err == nil {
		log.ID = existing.ID
	}

	if err := m.persistence.ExecutionLogRepository().Save(ctx, log); err != nil {
		m.logger.ErrorContext(ctx, "failed to finalize execution log",
			"call_id", callID, "error", err)
	}

	if err := m.store.Delete(ctx, callID); err != nil && !errors.Is(err, statestore.ErrNotFound) {
		return fmt.Errorf("failed to remove live state for call %s: %w", callID, err)
	}

	m.metrics.ExecutionEnded(string(reason))
	m.publishEnd(ctx, state, reason, cause, endedAt)

	m.logger.InfoContext(ctx, "execution ended",
		"call_id", callID, "workflow_id", state.WorkflowID,
		"reason", reason, "duration_ms", log.DurationMs)

	return nil
}

// StopExecution force-ends a call from outside a webhook turn. It takes the
// per-call lock itself, so it cannot race an active turn.
func (m *Manager) StopExecution(ctx context.Context, callID string, reason models.EndReason) error {
	unlock, err := m.store.Lock(ctx, callID)
	if err != nil {
		return fmt.Errorf("failed to lock call %s: %w", callID, err)
	}
	defer unlock()

	return m.EndExecution(ctx, callID, reason, nil)
}

// ActiveExecutions lists the live states of all in-flight calls.
func (m *Manager) ActiveExecutions(ctx context.Context) ([]*models.ExecutionState, error) {
	return m.store.List(ctx)
}

// Execution returns the live state for one call.
func (m *Manager) Execution(ctx context.Context, callID string) (*models.ExecutionState, error) {
	return m.liveState(ctx, callID)
}

// StartSweeper schedules the background sweep that force-ends executions
// older than the wall-clock timeout.
func (m *Manager) StartSweeper(ctx context.Context) error {
	if m.cron != nil {
		return nil
	}

	m.cron = cron.New()

	_, err := m.cron.AddFunc(m.config.SweepSchedule, func() {
		m.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	m.cron.Start()

	return nil
}

// StopSweeper stops the background sweep, waiting for a running pass.
func (m *Manager) StopSweeper() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
		m.cron = nil
	}
}

// Sweep force-ends every execution older than the timeout. Each candidate is
// re-checked under its lock, so a call that just ended or is mid-turn is
// left alone.
func (m *Manager) Sweep(ctx context.Context) {
	states, err := m.store.List(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "sweep failed to list executions", "error", err)

		return
	}

	for _, candidate := range states {
		if time.Since(candidate.StartedAt) <= m.config.ExecutionTimeout {
			continue
		}

		m.sweepOne(ctx, candidate.CallID)
	}
}

func (m *Manager) sweepOne(ctx context.Context, callID string) {
	lockCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	unlock, err := m.store.Lock(lockCtx, callID)
	if err != nil {
		m.logger.WarnContext(ctx, "sweep could not lock call", "call_id", callID, "error", err)

		return
	}
	defer unlock()

	state, err := m.store.Get(ctx, callID)
	if err != nil {
		return
	}

	if time.Since(state.StartedAt) <= m.config.ExecutionTimeout {
		return
	}

	if err := m.EndExecution(ctx, callID, models.EndReasonTimeout, nil); err != nil {
		m.logger.ErrorContext(ctx, "sweep failed to end execution", "call_id", callID, "error", err)
	}
}

func (m *Manager) liveState(ctx context.Context, callID string) (*models.ExecutionState, error) {
	state, err := m.store.Get(ctx, callID)
	if err != nil {
		if errors.Is(err, statestore.ErrNotFound) {
			return nil, fmt.Errorf("call %s: %w", callID, ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to load live state for call %s: %w", callID, err)
	}

	return state, nil
}

func (m *Manager) baseEvent(eventType events.EventType, workflowID, callID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		CallID:     callID,
	}
}

func (m *Manager) publish(ctx context.Context, key string, event eventbus.Event) {
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := m.publisher.Publish(publishCtx, key, event); err != nil {
		m.logger.WarnContext(ctx, "failed to publish event",
			"event_type", event.GetType(), "key", key, "error", err)
	}
}

func (m *Manager) publishEnd(ctx context.Context, state *models.ExecutionState, reason models.EndReason, cause error, endedAt time.Time) {
	duration := endedAt.Sub(state.StartedAt)

	switch reason {
	case models.EndReasonCompleted:
		m.publish(ctx, state.CallID, events.ExecutionCompleted{
			BaseEvent:  m.baseEvent(events.ExecutionCompletedEvent, state.WorkflowID, state.CallID),
			Duration:   duration,
			NodesRun:   state.NodeExecutionCount,
			LastNodeID: state.CurrentNodeID,
		})
	case models.EndReasonTimeout:
		m.publish(ctx, state.CallID, events.ExecutionTimeout{
			BaseEvent: m.baseEvent(events.ExecutionTimeoutEvent, state.WorkflowID, state.CallID),
			Duration:  duration,
		})
	case models.EndReasonStopped:
		m.publish(ctx, state.CallID, events.ExecutionStopped{
			BaseEvent: m.baseEvent(events.ExecutionStoppedEvent, state.WorkflowID, state.CallID),
		})
	default:
		failed := events.ExecutionFailed{
			BaseEvent: m.baseEvent(events.ExecutionFailedEvent, state.WorkflowID, state.CallID),
			Reason:    reason,
			Duration:  duration,
		}
		if cause != nil {
			failed.Error = cause.Error()
		}

		m.publish(ctx, state.CallID, failed)
	}

	lead := events.LeadCaptured{
		BaseEvent:  m.baseEvent(events.LeadCapturedEvent, state.WorkflowID, state.CallID),
		Caller:     state.Caller,
		LastInputs: state.LastInputs(3),
	}
	if url, ok := state.Variables["recording_url"].(string); ok {
		lead.RecordingURL = url
	}

	m.publish(ctx, state.CallID, lead)
}
