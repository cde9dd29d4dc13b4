// Package events defines event types for call execution lifecycle
// notifications.
package events

import (
	"time"

	"github.com/voxflow/voxflow/pkg/models"
)

type EventType string

// Kafka topic.
const Topic = "voxflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionTimeoutEvent   EventType = "execution.timeout"
	ExecutionStoppedEvent   EventType = "execution.stopped"

	// Downstream side effects.
	LeadCapturedEvent    EventType = "lead.captured"
	AudioGenerationEvent EventType = "audio.generation"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	CallID     string         `json:"call_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type ExecutionStarted struct {
	BaseEvent

	Caller string `json:"caller"`
	Callee string `json:"callee"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	Duration   time.Duration `json:"duration"`
	NodesRun   int           `json:"nodes_run"`
	LastNodeID string        `json:"last_node_id,omitempty"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	Reason   models.EndReason `json:"reason"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionTimeout struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e ExecutionTimeout) GetType() EventType {
	return ExecutionTimeoutEvent
}

type ExecutionStopped struct {
	BaseEvent

	StoppedBy string `json:"stopped_by,omitempty"`
}

func (e ExecutionStopped) GetType() EventType {
	return ExecutionStoppedEvent
}

// LeadCaptured carries the caller summary derived from a finished call.
type LeadCaptured struct {
	BaseEvent

	Caller       string   `json:"caller"`
	LastInputs   []string `json:"last_inputs,omitempty"`
	RecordingURL string   `json:"recording_url,omitempty"`
}

func (e LeadCaptured) GetType() EventType {
	return LeadCapturedEvent
}

// AudioGeneration requests pre-rendering of a prompt into an audio asset.
type AudioGeneration struct {
	BaseEvent

	NodeID string `json:"node_id"`
	Text   string `json:"text"`
	Voice  string `json:"voice,omitempty"`
}

func (e AudioGeneration) GetType() EventType {
	return AudioGenerationEvent
}
