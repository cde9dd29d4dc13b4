// Package persistence provides the durable storage abstraction for call flow
// documents and execution logs.
package persistence

import (
	"context"
	"time"

	"github.com/voxflow/voxflow/pkg/models"
)

// ListExecutionLogsOptions filters the analytics query surface.
type ListExecutionLogsOptions struct {
	WorkflowID string
	From       time.Time
	To         time.Time
	Limit      int
}

// WorkflowRepository stores call flow documents, versioned by edit.
type WorkflowRepository interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionLogRepository stores the durable mirror of execution lifecycles.
// Save is an upsert: the running row is created at call start and finalized
// at call end.
type ExecutionLogRepository interface {
	Save(ctx context.Context, log *models.ExecutionLog) error
	ByCallID(ctx context.Context, callID string) (*models.ExecutionLog, error)
	List(ctx context.Context, opts ListExecutionLogsOptions) ([]*models.ExecutionLog, error)
	Running(ctx context.Context) ([]*models.ExecutionLog, error)
}

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionLogRepository() ExecutionLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
