// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates no workflow exists for the identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionLogNotFound indicates no execution log exists for the call.
	ErrExecutionLogNotFound = errors.New("execution log not found")

	// ErrWorkflowNotActive indicates the workflow exists but is not callable.
	ErrWorkflowNotActive = errors.New("workflow is not active")
)

// WorkflowError wraps workflow storage errors with operation context.
type WorkflowError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

// ExecutionLogError wraps execution log storage errors with call context.
type ExecutionLogError struct {
	Op     string
	CallID string
	Err    error
}

func (e *ExecutionLogError) Error() string {
	return fmt.Sprintf("%s operation failed for call %s: %v", e.Op, e.CallID, e.Err)
}

func (e *ExecutionLogError) Unwrap() error {
	return e.Err
}

func (e *ExecutionLogError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionLogError creates an execution log error with context.
func NewExecutionLogError(op, callID string, err error) *ExecutionLogError {
	return &ExecutionLogError{Op: op, CallID: callID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionLogNotFound checks if an error indicates a missing execution log.
func IsExecutionLogNotFound(err error) bool {
	return errors.Is(err, ErrExecutionLogNotFound)
}

// IsWorkflowNotActive checks if an error indicates a non-callable workflow.
func IsWorkflowNotActive(err error) bool {
	return errors.Is(err, ErrWorkflowNotActive)
}
