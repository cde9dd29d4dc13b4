package models

// NodeType identifies the execution semantics of a node. The set is closed:
// the dispatcher has one handler per type plus a single unknown-type fallback.
type NodeType string

const (
	NodeTypeGreeting    NodeType = "greeting"
	NodeTypeAudio       NodeType = "audio"
	NodeTypeInput       NodeType = "input"
	NodeTypeTransfer    NodeType = "transfer"
	NodeTypeVoicemail   NodeType = "voicemail"
	NodeTypeRepeat      NodeType = "repeat"
	NodeTypeQueue       NodeType = "queue"
	NodeTypeConditional NodeType = "conditional"
	NodeTypeSetVariable NodeType = "set_variable"
	NodeTypeAPICall     NodeType = "api_call"
	NodeTypeSms         NodeType = "sms"
	NodeTypeAIAssistant NodeType = "ai_assistant"
	NodeTypeEnd         NodeType = "end"
)

// KnownNodeTypes lists every node type the dispatcher understands.
var KnownNodeTypes = []NodeType{
	NodeTypeGreeting,
	NodeTypeAudio,
	NodeTypeInput,
	NodeTypeTransfer,
	NodeTypeVoicemail,
	NodeTypeRepeat,
	NodeTypeQueue,
	NodeTypeConditional,
	NodeTypeSetVariable,
	NodeTypeAPICall,
	NodeTypeSms,
	NodeTypeAIAssistant,
	NodeTypeEnd,
}

// Known reports whether the type is part of the closed node-type set.
func (t NodeType) Known() bool {
	for _, k := range KnownNodeTypes {
		if t == k {
			return true
		}
	}

	return false
}

// Node is the wire representation of one step in a call flow. Data is
// node-type-specific and is translated into a typed payload at graph compile
// time; the raw bag never reaches the dispatcher.
type Node struct {
	ID        string         `json:"id"   validate:"required"`
	Type      NodeType       `json:"type" validate:"required"`
	Data      map[string]any `json:"data"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Edge is a directed transition between two nodes. SourceHandle qualifies
// the outcome taken out of the source node ("true"/"false" for conditionals,
// a digit for input nodes, "success"/"error" for API calls); an empty handle
// is the unqualified default path.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}
