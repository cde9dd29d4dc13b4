package services

import (
	"context"
	"fmt"

	"github.com/voxflow/voxflow/pkg/engine"
	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/persistence"
)

// Execution exposes the operational view of call executions: what is live
// right now, the durable history, and the operator stop switch.
type Execution struct {
	engine      *engine.Manager
	persistence persistence.Persistence
}

// NewExecution creates a new execution service.
func NewExecution(manager *engine.Manager, p persistence.Persistence) *Execution {
	return &Execution{
		engine:      manager,
		persistence: p,
	}
}

// Active lists the executions currently holding live state.
func (e *Execution) Active(ctx context.Context) ([]*models.ExecutionState, error) {
	states, err := e.engine.ActiveExecutions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active executions: %w", err)
	}

	return states, nil
}

// Fetch returns the durable record of a call, merged with live state when
// the call is still in flight.
func (e *Execution) Fetch(ctx context.Context, callID string) (*models.ExecutionLog, error) {
	log, err := e.persistence.ExecutionLogRepository().ByCallID(ctx, callID)
	if err != nil {
		return nil, err
	}

	state, err := e.engine.Execution(ctx, callID)
	if err != nil {
		if engine.IsExecutionNotFound(err) {
			return log, nil
		}

		return nil, err
	}

	// The running row lags the live state, so prefer the live view.
	log.Visits = state.VisitedNodes
	log.Variables = state.Variables

	return log, nil
}

// Stop force-ends a live execution. The caller hears nothing further; the
// next provider webhook for the call is acknowledged with a hangup.
func (e *Execution) Stop(ctx context.Context, callID string) error {
	if _, err := e.engine.Execution(ctx, callID); err != nil {
		if engine.IsExecutionNotFound(err) {
			return ErrNotRunning
		}

		return err
	}

	return e.engine.StopExecution(ctx, callID, models.EndReasonStopped)
}

// Logs queries the durable execution history.
func (e *Execution) Logs(ctx context.Context, opts persistence.ListExecutionLogsOptions) ([]*models.ExecutionLog, error) {
	logs, err := e.persistence.ExecutionLogRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}

	return logs, nil
}
