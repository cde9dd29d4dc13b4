// Package models defines the core domain models for call flow execution.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a call flow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, may be invalid, not callable
	WorkflowStatusActive   WorkflowStatus = "active"   // Validated, serving live calls
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical, not callable
)

// Workflow represents a call flow graph: typed nodes connected by directed,
// optionally handle-qualified edges. A workflow is edited as a draft and is
// immutable from the engine's point of view once active; an edit produces a
// new snapshot, never a mid-call mutation.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Status      WorkflowStatus `json:"status"      validate:"required"`
	Nodes       []*Node        `json:"nodes"`
	Edges       []*Edge        `json:"edges"`
	Settings    map[string]any `json:"settings,omitempty"`
	Owner       string         `json:"owner"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ActivatedAt *time.Time     `json:"activated_at,omitempty"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}
