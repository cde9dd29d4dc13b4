package models

import "time"

// ExecutionStatus is the durable lifecycle status of one call's traversal.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusTimeout   ExecutionStatus = "timeout"
	ExecutionStatusAbandoned ExecutionStatus = "abandoned"
)

// EndReason records why an execution ended.
type EndReason string

const (
	EndReasonCompleted    EndReason = "completed"
	EndReasonTimeout      EndReason = "timeout"
	EndReasonMaxNodes     EndReason = "max_nodes"
	EndReasonLoopDetected EndReason = "loop_detected"
	EndReasonError        EndReason = "error"
	EndReasonStopped      EndReason = "stopped"
	EndReasonAbandoned    EndReason = "abandoned"
)

// Status maps an end reason onto the durable log status.
func (r EndReason) Status() ExecutionStatus {
	switch r {
	case EndReasonCompleted:
		return ExecutionStatusCompleted
	case EndReasonTimeout:
		return ExecutionStatusTimeout
	case EndReasonAbandoned:
		return ExecutionStatusAbandoned
	default:
		return ExecutionStatusFailed
	}
}

// FailureReason records the outcome of the most recent visit to an input
// node, so the next retry plays the matching reprompt.
type FailureReason string

const (
	FailureReasonMatched FailureReason = "matched"
	FailureReasonInvalid FailureReason = "invalid"
	FailureReasonTimeout FailureReason = "timeout"
)

// NodeVisit is one entry in the append-only visit log.
type NodeVisit struct {
	NodeID    string    `json:"node_id"`
	Type      NodeType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Input     string    `json:"input,omitempty"`
}

// ExecutionState is the live, in-memory state of one in-flight call. It is
// owned exclusively by the execution manager and mutated only under the
// per-call lock; webhooks for the same call never touch it concurrently.
type ExecutionState struct {
	CallID             string                   `json:"call_id"`
	WorkflowID         string                   `json:"workflow_id"`
	Caller             string                   `json:"caller"`
	Callee             string                   `json:"callee"`
	StartedAt          time.Time                `json:"started_at"`
	CurrentNodeID      string                   `json:"current_node_id"`
	VisitedNodes       []NodeVisit              `json:"visited_nodes"`
	Variables          map[string]any           `json:"variables"`
	AttemptsByNode     map[string]int           `json:"attempts_by_node"`
	LastFailureByNode  map[string]FailureReason `json:"last_failure_by_node"`
	LoopIterations     int                      `json:"loop_iterations"`
	NodeExecutionCount int                      `json:"node_execution_count"`
}

// NewExecutionState creates the state for a call's first webhook.
func NewExecutionState(callID, workflowID, caller, callee string) *ExecutionState {
	return &ExecutionState{
		CallID:            callID,
		WorkflowID:        workflowID,
		Caller:            caller,
		Callee:            callee,
		StartedAt:         time.Now().UTC(),
		Variables:         make(map[string]any),
		AttemptsByNode:    make(map[string]int),
		LastFailureByNode: make(map[string]FailureReason),
	}
}

// LastInputs returns the most recent n non-empty caller inputs, oldest first.
func (s *ExecutionState) LastInputs(n int) []string {
	inputs := make([]string, 0, n)

	for i := len(s.VisitedNodes) - 1; i >= 0 && len(inputs) < n; i-- {
		if s.VisitedNodes[i].Input != "" {
			inputs = append(inputs, s.VisitedNodes[i].Input)
		}
	}

	for i, j := 0, len(inputs)-1; i < j; i, j = i+1, j-1 {
		inputs[i], inputs[j] = inputs[j], inputs[i]
	}

	return inputs
}

// ExecutionLog is the durable mirror of an execution's lifecycle. It survives
// process restarts and is the source of truth for analytics; ExecutionState
// is a performance-oriented cache of the same facts.
type ExecutionLog struct {
	ID         string          `json:"id"`
	CallID     string          `json:"call_id"     validate:"required"`
	WorkflowID string          `json:"workflow_id" validate:"required"`
	Caller     string          `json:"caller"`
	Callee     string          `json:"callee"`
	Status     ExecutionStatus `json:"status"`
	Reason     EndReason       `json:"reason,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Visits     []NodeVisit     `json:"visits"`
	Variables  map[string]any  `json:"variables,omitempty"`
}
