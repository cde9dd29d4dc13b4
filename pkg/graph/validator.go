package graph

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/voxflow/voxflow/pkg/models"
)

// Validation error codes surfaced to flow authors.
const (
	CodeDuplicateNodeID       = "DUPLICATE_NODE_ID"
	CodeMissingNodeID         = "MISSING_NODE_ID"
	CodeBrokenEdge            = "BROKEN_EDGE"
	CodeOrphanNode            = "ORPHAN_NODE"
	CodeUnreachableNode       = "UNREACHABLE_NODE"
	CodeNoEnd                 = "NO_END"
	CodeCycleDetected         = "CYCLE_DETECTED"
	CodeDuplicateSourceHandle = "DUPLICATE_SOURCE_HANDLE"
	CodeInvalidNodeData       = "INVALID_NODE_DATA"
	CodeInvalidNodeConfig     = "INVALID_NODE_CONFIG"
)

// Bounds for input node configuration.
const (
	minInputTimeoutSec = 1
	maxInputTimeoutSec = 60
	minInputAttempts   = 1
	maxInputAttempts   = 10
)

// ValidationError is one author-facing finding from static analysis.
type ValidationError struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Code, e.NodeID, e.Message)
	}

	if e.EdgeID != "" {
		return fmt.Sprintf("%s: edge %s: %s", e.Code, e.EdgeID, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validate statically analyzes a workflow graph. It is pure: the same
// immutable graph always yields the same error set. Validation runs at
// authoring and activation time, never on the live call path.
func Validate(workflow *models.Workflow) []ValidationError {
	var errs []ValidationError

	// Identity checks are fatal: without unique ids the remaining analysis
	// would report nonsense.
	seen := make(map[string]bool, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if node.ID == "" {
			errs = append(errs, ValidationError{Code: CodeMissingNodeID, Message: "node has no id"})

			continue
		}

		if seen[node.ID] {
			errs = append(errs, ValidationError{Code: CodeDuplicateNodeID, NodeID: node.ID, Message: "duplicate node id"})
		}

		seen[node.ID] = true
	}

	if len(errs) > 0 {
		return errs
	}

	incoming := make(map[string]int, len(workflow.Nodes))
	for id := range seen {
		incoming[id] = 0
	}

	adjacency := make(map[string][]string)

	for _, edge := range workflow.Edges {
		if !seen[edge.Source] || !seen[edge.Target] {
			errs = append(errs, ValidationError{
				Code:    CodeBrokenEdge,
				EdgeID:  edge.ID,
				Message: fmt.Sprintf("edge references unknown node (%s -> %s)", edge.Source, edge.Target),
			})

			continue
		}

		incoming[edge.Target]++

		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
	}

	// Entry selection: first zero-incoming node in authoring order; any
	// further zero-incoming node is disconnected from the flow's start.
	entry := ""

	for _, node := range workflow.Nodes {
		if incoming[node.ID] != 0 {
			continue
		}

		if entry == "" {
			entry = node.ID

			continue
		}

		errs = append(errs, ValidationError{Code: CodeOrphanNode, NodeID: node.ID, Message: "node has no incoming edge and is not the entry"})
	}

	visited := make(map[string]bool, len(workflow.Nodes))

	if entry != "" {
		reach(entry, adjacency, visited)
	}

	endReachable := false

	for _, node := range workflow.Nodes {
		if !visited[node.ID] {
			if node.ID != entry && incoming[node.ID] > 0 {
				errs = append(errs, ValidationError{Code: CodeUnreachableNode, NodeID: node.ID, Message: "node is not reachable from the entry"})
			}

			continue
		}

		if node.Type == models.NodeTypeEnd {
			endReachable = true
		}
	}

	if !endReachable {
		errs = append(errs, ValidationError{Code: CodeNoEnd, Message: "no end node is reachable from the entry"})
	}

	errs = append(errs, detectCycles(workflow, adjacency)...)
	errs = append(errs, checkNodeSemantics(workflow)...)

	return errs
}

func reach(id string, adjacency map[string][]string, visited map[string]bool) {
	if visited[id] {
		return
	}

	visited[id] = true

	for _, next := range adjacency[id] {
		reach(next, adjacency, visited)
	}
}

// detectCycles runs DFS with a recursion stack; a back-edge is a structural
// cycle and is always rejected. Runtime loop tolerance for repeat/retry
// redirection is a separate, bounded mechanism in the execution manager.
func detectCycles(workflow *models.Workflow, adjacency map[string][]string) []ValidationError {
	const (
		colorWhite = 0
		colorGray  = 1
		colorBlack = 2
	)

	color := make(map[string]int, len(workflow.Nodes))

	var errs []ValidationError

	var visit func(id string)

	visit = func(id string) {
		color[id] = colorGray

		for _, next := range adjacency[id] {
			switch color[next] {
			case colorWhite:
				visit(next)
			case colorGray:
				errs = append(errs, ValidationError{
					Code:    CodeCycleDetected,
					NodeID:  next,
					Message: fmt.Sprintf("cycle detected through edge %s -> %s", id, next),
				})
			}
		}

		color[id] = colorBlack
	}

	for _, node := range workflow.Nodes {
		if color[node.ID] == colorWhite {
			visit(node.ID)
		}
	}

	return errs
}

func checkNodeSemantics(workflow *models.Workflow) []ValidationError {
	var errs []ValidationError

	for _, node := range workflow.Nodes {
		// Schema precheck keeps malformed data bags out of the typed checks.
		if schemaErr := checkNodeSchema(node); schemaErr != nil {
			errs = append(errs, *schemaErr)

			continue
		}

		handles := make(map[string]bool)

		for _, edge := range workflow.Edges {
			if edge.Source != node.ID || edge.SourceHandle == "" {
				continue
			}

			if handles[edge.SourceHandle] {
				errs = append(errs, ValidationError{
					Code:    CodeDuplicateSourceHandle,
					NodeID:  node.ID,
					Message: fmt.Sprintf("duplicate outgoing handle %q", edge.SourceHandle),
				})
			}

			handles[edge.SourceHandle] = true
		}

		switch node.Type {
		case models.NodeTypeInput:
			errs = append(errs, checkInputNode(node)...)
		case models.NodeTypeConditional:
			if !handles["true"] || !handles["false"] {
				errs = append(errs, ValidationError{
					Code:    CodeInvalidNodeConfig,
					NodeID:  node.ID,
					Message: "conditional node needs both a true and a false outgoing edge",
				})
			}
		case models.NodeTypeAudio:
			errs = append(errs, checkAudioNode(node)...)
		}
	}

	return errs
}

func checkInputNode(node *models.Node) []ValidationError {
	var errs []ValidationError

	payload, err := decodePayload(node)
	if err != nil {
		return []ValidationError{{Code: CodeInvalidNodeData, NodeID: node.ID, Message: err.Error()}}
	}

	data := payload.(*models.InputData)

	if data.Text == "" && data.AudioURL == "" {
		errs = append(errs, ValidationError{Code: CodeInvalidNodeConfig, NodeID: node.ID, Message: "input node needs a prompt (text or audio_url)"})
	}

	if data.TimeoutSec < minInputTimeoutSec || data.TimeoutSec > maxInputTimeoutSec {
		errs = append(errs, ValidationError{
			Code:    CodeInvalidNodeConfig,
			NodeID:  node.ID,
			Message: fmt.Sprintf("input timeout must be between %d and %d seconds", minInputTimeoutSec, maxInputTimeoutSec),
		})
	}

	if data.MaxAttempts < minInputAttempts || data.MaxAttempts > maxInputAttempts {
		errs = append(errs, ValidationError{
			Code:    CodeInvalidNodeConfig,
			NodeID:  node.ID,
			Message: fmt.Sprintf("input max_attempts must be between %d and %d", minInputAttempts, maxInputAttempts),
		})
	}

	return errs
}

func checkAudioNode(node *models.Node) []ValidationError {
	payload, err := decodePayload(node)
	if err != nil {
		return []ValidationError{{Code: CodeInvalidNodeData, NodeID: node.ID, Message: err.Error()}}
	}

	data := payload.(*models.AudioData)

	switch data.Mode {
	case models.PromptModeFile:
		if data.AudioURL == "" {
			return []ValidationError{{Code: CodeInvalidNodeConfig, NodeID: node.ID, Message: "audio node in file mode needs audio_url"}}
		}
	default:
		// Text is the default mode.
		if data.Text == "" && data.AudioURL == "" {
			return []ValidationError{{Code: CodeInvalidNodeConfig, NodeID: node.ID, Message: "audio node in text mode needs non-empty text"}}
		}
	}

	return nil
}

func checkNodeSchema(node *models.Node) *ValidationError {
	schema, ok := nodeDataSchemas[node.Type]
	if !ok {
		return nil
	}

	data := node.Data
	if data == nil {
		data = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return &ValidationError{Code: CodeInvalidNodeData, NodeID: node.ID, Message: err.Error()}
	}

	if !result.Valid() {
		msg := "node data does not match the schema"
		if len(result.Errors()) > 0 {
			msg = result.Errors()[0].String()
		}

		return &ValidationError{Code: CodeInvalidNodeData, NodeID: node.ID, Message: msg}
	}

	return nil
}
