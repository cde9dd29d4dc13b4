// Package file provides file-based persistence for call flows and execution
// logs. It is meant for local development and tests; production deployments
// use the postgresql implementation.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/voxflow/voxflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface on the file
// system, one JSON document per record.
type Persistence struct {
	root             string
	workflowRepo     *WorkflowRepository
	executionLogRepo *ExecutionLogRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:             cleanRoot,
		workflowRepo:     NewWorkflowRepository(cleanRoot),
		executionLogRepo: NewExecutionLogRepository(cleanRoot),
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return p.executionLogRepo
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file persistence there is none.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
