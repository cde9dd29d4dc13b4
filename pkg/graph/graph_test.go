package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxflow/voxflow/pkg/models"
)

func TestCompile_TypedPayloads(t *testing.T) {
	wf := &models.Workflow{
		ID: "wf-1",
		Nodes: []*models.Node{
			{ID: "greet", Type: models.NodeTypeGreeting, Data: map[string]any{"text": "Welcome to support"}},
			{ID: "menu", Type: models.NodeTypeInput, Data: map[string]any{
				"text":         "Press 1 for sales",
				"num_digits":   1,
				"timeout":      5,
				"max_attempts": 3,
				"routes":       map[string]any{"1": "finish"},
			}},
			{ID: "finish", Type: models.NodeTypeEnd, Data: map[string]any{"farewell_text": "Bye"}},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "greet", Target: "menu"},
			{ID: "e2", Source: "menu", Target: "finish", SourceHandle: "1"},
		},
	}

	g, err := Compile(wf)
	require.NoError(t, err)

	assert.Equal(t, "greet", g.Entry())

	greeting, ok := g.Node("greet").Payload.(*models.GreetingData)
	require.True(t, ok)
	assert.Equal(t, "Welcome to support", greeting.Text)

	input, ok := g.Node("menu").Payload.(*models.InputData)
	require.True(t, ok)
	assert.Equal(t, 1, input.NumDigits)
	assert.Equal(t, 3, input.MaxAttempts)
	assert.Equal(t, "finish", input.Routes["1"])
}

func TestCompile_EdgeLookups(t *testing.T) {
	wf := &models.Workflow{
		ID: "wf-2",
		Nodes: []*models.Node{
			{ID: "cond", Type: models.NodeTypeConditional, Data: map[string]any{"variable": "x", "operator": "exists"}},
			{ID: "yes", Type: models.NodeTypeEnd},
			{ID: "no", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "cond", Target: "yes", SourceHandle: "true"},
			{ID: "e2", Source: "cond", Target: "no", SourceHandle: "false"},
		},
	}

	g, err := Compile(wf)
	require.NoError(t, err)

	require.NotNil(t, g.EdgeByHandle("cond", "true"))
	assert.Equal(t, "yes", g.EdgeByHandle("cond", "true").Target)
	assert.Nil(t, g.EdgeByHandle("cond", "timeout"))

	// No unqualified edge: DefaultEdge falls back to the first edge.
	assert.Equal(t, "e1", g.DefaultEdge("cond").ID)
	assert.Nil(t, g.DefaultEdge("yes"))
}

func TestCompile_UnknownTypeKeepsNilPayload(t *testing.T) {
	wf := &models.Workflow{
		ID: "wf-3",
		Nodes: []*models.Node{
			{ID: "mystery", Type: "hologram", Data: map[string]any{"x": 1}},
		},
	}

	g, err := Compile(wf)
	require.NoError(t, err)
	assert.Nil(t, g.Node("mystery").Payload)
}

func TestCompile_WeaklyTypedNumbers(t *testing.T) {
	// JSON decoding hands the compiler float64 values for integer fields.
	wf := &models.Workflow{
		ID: "wf-4",
		Nodes: []*models.Node{
			{ID: "menu", Type: models.NodeTypeInput, Data: map[string]any{
				"text": "Press 1", "timeout": float64(5), "max_attempts": float64(3),
			}},
		},
	}

	g, err := Compile(wf)
	require.NoError(t, err)

	input := g.Node("menu").Payload.(*models.InputData)
	assert.Equal(t, 5, input.TimeoutSec)
	assert.Equal(t, 3, input.MaxAttempts)
}
