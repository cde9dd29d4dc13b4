// Package graph compiles a workflow into an execution-ready index and
// statically validates it before activation.
package graph

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/voxflow/voxflow/pkg/models"
)

// CompiledNode pairs a node with its decoded, type-specific payload. The
// dispatcher switches over Payload's concrete type; the raw data bag never
// leaves this package.
type CompiledNode struct {
	ID      string
	Type    models.NodeType
	Payload any
}

// Graph is the immutable, execution-ready form of a workflow. It is built
// once per workflow snapshot and shared read-only between calls.
type Graph struct {
	WorkflowID string
	nodes      map[string]*CompiledNode
	outgoing   map[string][]*models.Edge
	entryID    string
}

// Compile indexes the workflow and decodes every node's data bag into its
// typed payload. Compile trusts an already-validated graph; it fails only on
// structurally undecodable data.
func Compile(workflow *models.Workflow) (*Graph, error) {
	g := &Graph{
		WorkflowID: workflow.ID,
		nodes:      make(map[string]*CompiledNode, len(workflow.Nodes)),
		outgoing:   make(map[string][]*models.Edge),
	}

	incoming := make(map[string]int, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		payload, err := decodePayload(node)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.ID, err)
		}

		g.nodes[node.ID] = &CompiledNode{ID: node.ID, Type: node.Type, Payload: payload}
		incoming[node.ID] = 0
	}

	for _, edge := range workflow.Edges {
		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge)
		incoming[edge.Target]++
	}

	for _, node := range workflow.Nodes {
		if incoming[node.ID] == 0 {
			g.entryID = node.ID

			break
		}
	}

	return g, nil
}

// Entry returns the entry node id (first node with no incoming edge).
func (g *Graph) Entry() string {
	return g.entryID
}

// Node returns the compiled node with the given id, or nil.
func (g *Graph) Node(id string) *CompiledNode {
	return g.nodes[id]
}

// Outgoing returns all edges leaving the node, in authoring order.
func (g *Graph) Outgoing(nodeID string) []*models.Edge {
	return g.outgoing[nodeID]
}

// EdgeByHandle returns the outgoing edge whose source handle matches, or nil.
func (g *Graph) EdgeByHandle(nodeID, handle string) *models.Edge {
	for _, edge := range g.outgoing[nodeID] {
		if edge.SourceHandle == handle {
			return edge
		}
	}

	return nil
}

// DefaultEdge returns the first unqualified outgoing edge, falling back to
// the first outgoing edge of any kind. Nil when the node is a sink.
func (g *Graph) DefaultEdge(nodeID string) *models.Edge {
	edges := g.outgoing[nodeID]

	for _, edge := range edges {
		if edge.SourceHandle == "" {
			return edge
		}
	}

	if len(edges) > 0 {
		return edges[0]
	}

	return nil
}

// decodePayload translates the raw data bag into the node type's payload
// struct. Unknown node types keep a nil payload; the dispatcher's fallback
// arm owns them.
func decodePayload(node *models.Node) (any, error) {
	target := payloadFor(node.Type)
	if target == nil {
		return nil, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("building decoder: %w", err)
	}

	if err := decoder.Decode(node.Data); err != nil {
		return nil, fmt.Errorf("decoding %s data: %w", node.Type, err)
	}

	return target, nil
}

func payloadFor(t models.NodeType) any {
	switch t {
	case models.NodeTypeGreeting:
		return &models.GreetingData{}
	case models.NodeTypeAudio:
		return &models.AudioData{}
	case models.NodeTypeInput:
		return &models.InputData{}
	case models.NodeTypeTransfer:
		return &models.TransferData{}
	case models.NodeTypeVoicemail:
		return &models.VoicemailData{}
	case models.NodeTypeRepeat:
		return &models.RepeatData{}
	case models.NodeTypeQueue:
		return &models.QueueData{}
	case models.NodeTypeConditional:
		return &models.ConditionalData{}
	case models.NodeTypeSetVariable:
		return &models.SetVariableData{}
	case models.NodeTypeAPICall:
		return &models.APICallData{}
	case models.NodeTypeSms:
		return &models.SmsData{}
	case models.NodeTypeAIAssistant:
		return &models.AIAssistantData{}
	case models.NodeTypeEnd:
		return &models.EndData{}
	default:
		return nil
	}
}
