// Package web provides HTTP request and response types for the call flow API.
package web

import "github.com/voxflow/voxflow/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new call
// flow. Flows are created as drafts; nodes and edges may be incomplete.
type CreateWorkflowRequest struct {
	Name        string         `json:"name"               validate:"required,min=3"`
	Description string         `json:"description"`
	Nodes       []*models.Node `json:"nodes"`
	Edges       []*models.Edge `json:"edges"`
	Settings    map[string]any `json:"settings,omitempty"`
	Owner       string         `json:"owner"`
}

// UpdateWorkflowRequest represents the request body for updating an existing
// call flow. All fields are optional to support partial updates; omitting
// nodes or edges keeps the stored graph.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	Nodes       []*models.Node `json:"nodes,omitempty"`
	Edges       []*models.Edge `json:"edges,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
}

// ValidationResponse reports the findings of a dry-run validation.
type ValidationResponse struct {
	Valid  bool  `json:"valid"`
	Errors []any `json:"errors"`
}
