package dispatch_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxflow/voxflow/pkg/channels/gochannel"
	"github.com/voxflow/voxflow/pkg/dispatch"
	"github.com/voxflow/voxflow/pkg/engine"
	"github.com/voxflow/voxflow/pkg/eventbus"
	"github.com/voxflow/voxflow/pkg/graph"
	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/persistence"
	"github.com/voxflow/voxflow/pkg/persistence/file"
	"github.com/voxflow/voxflow/pkg/statestore/memory"
	"github.com/voxflow/voxflow/pkg/voice"
)

const testBaseURL = "https://voice.example.com"

type fixture struct {
	dispatcher *dispatch.Dispatcher
	manager    *engine.Manager
	p          persistence.Persistence
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	p := file.NewPersistence(t.TempDir())

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	manager := engine.NewManager(store, p, bus, nil, logger, engine.Config{})
	dispatcher := dispatch.NewDispatcher(manager, nil, logger, testBaseURL)

	return &fixture{dispatcher: dispatcher, manager: manager, p: p}
}

// start saves the workflow as active, compiles it and begins an execution.
func (f *fixture) start(t *testing.T, workflow *models.Workflow, callID string) (*graph.Graph, *models.ExecutionState) {
	t.Helper()

	ctx := context.Background()
	workflow.Status = models.WorkflowStatusActive
	require.NoError(t, f.p.WorkflowRepository().Save(ctx, workflow))

	g, err := graph.Compile(workflow)
	require.NoError(t, err)

	state, err := f.manager.StartExecution(ctx, workflow.ID, callID, "+15550001111", "+15559998888")
	require.NoError(t, err)

	return g, state
}

func render(t *testing.T, resp *voice.Response) string {
	t.Helper()

	body, err := resp.Render()
	require.NoError(t, err)

	return string(body)
}

// menuWorkflow is the canonical flow: greeting into a one-digit menu where
// "1" transfers, "2" takes voicemail and exhausted retries fall through to
// the farewell.
func menuWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:   "wf-menu",
		Name: "Menu Flow",
		Nodes: []*models.Node{
			{ID: "hello", Type: models.NodeTypeGreeting, Data: map[string]any{"text": "Welcome."}},
			{ID: "menu", Type: models.NodeTypeInput, Data: map[string]any{
				"text":           "Press 1 for sales, 2 to leave a message.",
				"num_digits":     1,
				"timeout":        5,
				"max_attempts":   3,
				"invalid_prompt": "That was not a valid choice.",
				"timeout_prompt": "I did not hear anything.",
			}},
			{ID: "sales", Type: models.NodeTypeTransfer, Data: map[string]any{"destination": "+15557770000"}},
			{ID: "vm", Type: models.NodeTypeVoicemail, Data: map[string]any{"text": "Leave a message."}},
			{ID: "bye", Type: models.NodeTypeEnd, Data: map[string]any{"farewell_text": "Goodbye."}},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "hello", Target: "menu"},
			{ID: "e2", Source: "menu", Target: "sales", SourceHandle: "1"},
			{ID: "e3", Source: "menu", Target: "vm", SourceHandle: "2"},
			{ID: "e4", Source: "menu", Target: "bye", SourceHandle: "no_match"},
		},
	}
}

func TestRun_GreetingIntoGather(t *testing.T) {
	f := newFixture(t)
	g, state := f.start(t, menuWorkflow(), "CA-1")
	ctx := context.Background()

	resp := f.dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})
	body := render(t, resp)

	assert.Contains(t, body, "Welcome.")
	assert.Contains(t, body, "<Gather")
	assert.Contains(t, body, "Press 1 for sales")
	assert.Contains(t, body, testBaseURL+"/voice/wf-menu/gather/menu")

	// The turn deferred; the execution is still live, parked on the menu.
	live, err := f.manager.Execution(ctx, "CA-1")
	require.NoError(t, err)
	assert.Equal(t, "menu", live.CurrentNodeID)
}

func TestRun_DigitRoutesToTransfer(t *testing.T) {
	f := newFixture(t)
	g, state := f.start(t, menuWorkflow(), "CA-1")
	ctx := context.Background()

	f.dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})

	state, err := f.manager.Execution(ctx, "CA-1")
	require.NoError(t, err)

	resp := f.dispatcher.Run(ctx, g, state, "menu", dispatch.TurnInput{Digits: "1", HasInput: true})
	body := render(t, resp)

	assert.Contains(t, body, "<Dial")
	assert.Contains(t, body, "+15557770000")

	// Transfer hands the call off; the execution is finalized.
	_, err = f.manager.Execution(ctx, "CA-1")
	assert.True(t, engine.IsExecutionNotFound(err))

	log, err := f.p.ExecutionLogRepository().ByCallID(ctx, "CA-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, log.Status)
}

func TestRun_InvalidDigitsRepromptThenFallback(t *testing.T) {
	f := newFixture(t)
	g, state := f.start(t, menuWorkflow(), "CA-1")
	ctx := context.Background()

	f.dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})

	// Two unmapped digits produce two distinct reprompts.
	for i := range 2 {
		state, err := f.manager.Execution(ctx, "CA-1")
		require.NoError(t, err)

		resp := f.dispatcher.Run(ctx, g, state, "menu", dispatch.TurnInput{Digits: "9", HasInput: true})
		body := render(t, resp)

		assert.Contains(t, body, "That was not a valid choice.", "attempt %d should reprompt", i+1)
		assert.Contains(t, body, "<Gather")
	}

	// The third failure exhausts maxAttempts and follows the no_match edge.
	state, err := f.manager.Execution(ctx, "CA-1")
	require.NoError(t, err)

	resp := f.dispatcher.Run(ctx, g, state, "menu", dispatch.TurnInput{Digits: "9", HasInput: true})
	body := render(t, resp)

	assert.Contains(t, body, "Goodbye.")
	assert.Contains(t, body, "<Hangup")
	assert.NotContains(t, body, "<Gather")

	log, err := f.p.ExecutionLogRepository().ByCallID(ctx, "CA-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, log.Status)
}

func TestRun_SilenceUsesTimeoutPromptThenFallback(t *testing.T) {
	f := newFixture(t)
	g, state := f.start(t, menuWorkflow(), "CA-1")
	ctx := context.Background()

	f.dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})

	state, err := f.manager.Execution(ctx, "CA-1")
	require.NoError(t, err)

	// Empty digits on the gather callback means the window elapsed silent.
	resp := f.dispatcher.Run(ctx, g, state, "menu", dispatch.TurnInput{HasInput: true})
	body := render(t, resp)

	assert.Contains(t, body, "I did not hear anything.")
	assert.Contains(t, body, "<Gather")
}

func TestRun_TimeoutEdgeWinsOverRetry(t *testing.T) {
	workflow := menuWorkflow()
	workflow.Edges = append(workflow.Edges, &models.Edge{
		ID: "e5", Source: "menu", Target: "bye", SourceHandle: "timeout",
	})

	f := newFixture(t)
	g, state := f.start(t, workflow, "CA-1")
	ctx := context.Background()

	f.dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})

	state, err := f.manager.Execution(ctx, "CA-1")
	require.NoError(t, err)

	resp := f.dispatcher.Run(ctx, g, state, "menu", dispatch.TurnInput{HasInput: true})
	body := render(t, resp)

	assert.Contains(t, body, "Goodbye.")
	assert.NotContains(t, body, "<Gather")
}

func TestRun_LegacyRouteTable(t *testing.T) {
	workflow := menuWorkflow()
	// "3" has no edge; the routes table carries it to voicemail.
	workflow.Nodes[1].Data["routes"] = map[string]any{"3": "vm"}

	f := newFixture(t)
	g, state := f.start(t, workflow, "CA-1")
	ctx := context.Background()

	f.dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})

	state, err := f.manager.Execution(ctx, "CA-1")
	require.NoError(t, err)

	resp := f.dispatcher.Run(ctx, g, state, "menu", dispatch.TurnInput{Digits: "3", HasInput: true})
	body := render(t, resp)

	assert.Contains(t, body, "Leave a message.")
	assert.Contains(t, body, "<Record")
	assert.Contains(t, body, testBaseURL+"/voice/wf-menu/recording/vm")
}

func TestRun_EdgeHandleWinsOverRouteTable(t *testing.T) {
	workflow := menuWorkflow()
	// "1" has both an edge handle (sales) and a routes entry (vm); the edge
	// is the primary routing.
	workflow.Nodes[1].Data["routes"] = map[string]any{"1": "vm"}

	f := newFixture(t)
	g, state := f.start(t, workflow, "CA-1")
	ctx := context.Background()

	f.dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})

	state, err := f.manager.Execution(ctx, "CA-1")
	require.NoError(t, err)

	resp := f.dispatcher.Run(ctx, g, state, "menu", dispatch.TurnInput{Digits: "1", HasInput: true})
	body := render(t, resp)

	assert.Contains(t, body, "<Dial")
	assert.Contains(t, body, "+15557770000")
	assert.NotContains(t, body, "<Record")
}

func TestRun_VoicemailRecordingResumes(t *testing.T) {
	f := newFixture(t)
	g, state := f.start(t, menuWorkflow(), "CA-1")
	ctx := context.Background()

	f.dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})

	state, err := f.manager.Execution(ctx, "CA-1")
	require.NoError(t, err)
	f.dispatcher.Run(ctx, g, state, "menu", dispatch.TurnInput{Digits: "2", HasInput: true})

	state, err = f.manager.Execution(ctx, "CA-1")
	require.NoError(t, err)
	require.Equal(t, "vm", state.CurrentNodeID)

	// Recording callback: the reference is stored and the flow moves on.
	// The voicemail node has no outgoing edge, so the call ends cleanly.
	resp := f.dispatcher.Run(ctx, g, state, "vm", dispatch.TurnInput{
		RecordingURL: "https://api.example.com/rec/123", HasInput: true,
	})
	body := render(t, resp)
	assert.Contains(t, body, "<Hangup")

	log, err := f.p.ExecutionLogRepository().ByCallID(ctx, "CA-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, log.Status)
	assert.Equal(t, "https://api.example.com/rec/123", log.Variables["recording_url"])
}

func TestRun_ConditionalAndSetVariable(t *testing.T) {
	workflow := &models.Workflow{
		ID:   "wf-cond",
		Name: "Conditional Flow",
		Nodes: []*models.Node{
			{ID: "set", Type: models.NodeTypeSetVariable, Data: map[string]any{"name": "tier", "value": "premium"}},
			{ID: "check", Type: models.NodeTypeConditional, Data: map[string]any{
				"variable": "tier", "operator": "equals", "value": "premium",
			}},
			{ID: "vip", Type: models.NodeTypeEnd, Data: map[string]any{"farewell_text": "Welcome back, valued caller."}},
			{ID: "std", Type: models.NodeTypeEnd, Data: map[string]any{"farewell_text": "Thanks for calling."}},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "set", Target: "check"},
			{ID: "e2", Source: "check", Target: "vip", SourceHandle: "true"},
			{ID: "e3", Source: "check", Target: "std", SourceHandle: "false"},
		},
	}

	f := newFixture(t)
	g, state := f.start(t, workflow, "CA-1")
	ctx := context.Background()

	resp := f.dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})
	body := render(t, resp)

	assert.Contains(t, body, "Welcome back, valued caller.")
	assert.NotContains(t, body, "Thanks for calling.")
}

func TestRun_APICallSuccessAndErrorEdges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		_, _ = w.Write([]byte(`{"balance": 42}`))
	}))
	defer server.Close()

	makeWorkflow := func(path string) *models.Workflow {
		return &models.Workflow{
			ID:   "wf-api",
			Name: "API Flow",
			Nodes: []*models.Node{
				{ID: "call", Type: models.NodeTypeAPICall, Data: map[string]any{
					"url": server.URL + path, "method": "GET", "response_variable": "account",
				}},
				{ID: "ok", Type: models.NodeTypeEnd, Data: map[string]any{"farewell_text": "All good."}},
				{ID: "oops", Type: models.NodeTypeEnd, Data: map[string]any{"farewell_text": "Please try later."}},
			},
			Edges: []*models.Edge{
				{ID: "e1", Source: "call", Target: "ok", SourceHandle: "success"},
				{ID: "e2", Source: "call", Target: "oops", SourceHandle: "error"},
			},
		}
	}

	t.Run("success edge", func(t *testing.T) {
		f := newFixture(t)
		g, state := f.start(t, makeWorkflow("/ok"), "CA-1")

		resp := f.dispatcher.Run(context.Background(), g, state, g.Entry(), dispatch.TurnInput{})
		assert.Contains(t, render(t, resp), "All good.")

		log, err := f.p.ExecutionLogRepository().ByCallID(context.Background(), "CA-1")
		require.NoError(t, err)
		assert.Contains(t, log.Variables["account"], "balance")
	})

	t.Run("http error follows error edge", func(t *testing.T) {
		f := newFixture(t)
		g, state := f.start(t, makeWorkflow("/fail"), "CA-2")

		resp := f.dispatcher.Run(context.Background(), g, state, g.Entry(), dispatch.TurnInput{})
		assert.Contains(t, render(t, resp), "Please try later.")
	})
}

func TestRun_APICallNetworkFailureFollowsErrorEdge(t *testing.T) {
	workflow := &models.Workflow{
		ID:   "wf-api-down",
		Name: "API Down Flow",
		Nodes: []*models.Node{
			{ID: "call", Type: models.NodeTypeAPICall, Data: map[string]any{
				"url": "http://127.0.0.1:1/unreachable", "method": "GET",
			}},
			{ID: "oops", Type: models.NodeTypeEnd, Data: map[string]any{"farewell_text": "Please try later."}},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "call", Target: "oops", SourceHandle: "error"},
		},
	}

	f := newFixture(t)
	g, state := f.start(t, workflow, "CA-1")

	resp := f.dispatcher.Run(context.Background(), g, state, g.Entry(), dispatch.TurnInput{})
	assert.Contains(t, render(t, resp), "Please try later.")
}

func TestRun_TransferWithoutDestinationDegrades(t *testing.T) {
	workflow := &models.Workflow{
		ID:    "wf-transfer",
		Name:  "Broken Transfer",
		Nodes: []*models.Node{{ID: "t", Type: models.NodeTypeTransfer, Data: map[string]any{}}},
	}

	f := newFixture(t)
	g, state := f.start(t, workflow, "CA-1")

	resp := f.dispatcher.Run(context.Background(), g, state, g.Entry(), dispatch.TurnInput{})
	body := render(t, resp)

	assert.Contains(t, body, dispatch.ApologyText)
	assert.Contains(t, body, "<Hangup")
	assert.NotContains(t, body, "<Dial")
}

func TestRun_AIAssistantHandoffIsTerminal(t *testing.T) {
	workflow := &models.Workflow{
		ID:   "wf-assistant",
		Name: "Assistant Handoff",
		Nodes: []*models.Node{{ID: "ai", Type: models.NodeTypeAIAssistant, Data: map[string]any{
			"assistant_url": "https://assistant.example.com/session?caller={caller}",
			"greeting":      "Connecting you to our assistant.",
		}}},
	}

	f := newFixture(t)
	g, state := f.start(t, workflow, "CA-1")
	ctx := context.Background()

	resp := f.dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})
	body := render(t, resp)

	assert.Contains(t, body, "Connecting you to our assistant.")
	assert.Contains(t, body, "<Redirect")
	assert.Contains(t, body, "caller=+15550001111")

	// The assistant owns the call from here.
	_, err := f.manager.Execution(ctx, "CA-1")
	assert.True(t, engine.IsExecutionNotFound(err))

	log, err := f.p.ExecutionLogRepository().ByCallID(ctx, "CA-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, log.Status)
}

func TestRun_AIAssistantWithoutEndpointDegrades(t *testing.T) {
	workflow := &models.Workflow{
		ID:    "wf-assistant",
		Name:  "Assistant Handoff",
		Nodes: []*models.Node{{ID: "ai", Type: models.NodeTypeAIAssistant, Data: map[string]any{}}},
	}

	f := newFixture(t)
	g, state := f.start(t, workflow, "CA-1")

	resp := f.dispatcher.Run(context.Background(), g, state, g.Entry(), dispatch.TurnInput{})
	body := render(t, resp)

	assert.Contains(t, body, dispatch.ApologyText)
	assert.Contains(t, body, "<Hangup")
	assert.NotContains(t, body, "<Redirect")
}

func TestRun_UnknownNodeTypeApologizes(t *testing.T) {
	workflow := &models.Workflow{
		ID:    "wf-unknown",
		Name:  "Unknown Node",
		Nodes: []*models.Node{{ID: "x", Type: "teleport", Data: map[string]any{}}},
	}

	f := newFixture(t)
	g, state := f.start(t, workflow, "CA-1")
	ctx := context.Background()

	resp := f.dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})
	body := render(t, resp)

	assert.Contains(t, body, dispatch.ApologyText)
	assert.Contains(t, body, "<Hangup")

	log, err := f.p.ExecutionLogRepository().ByCallID(ctx, "CA-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, log.Status)
	assert.Equal(t, models.EndReasonError, log.Reason)
}

func TestRun_SubstitutionInPrompts(t *testing.T) {
	workflow := &models.Workflow{
		ID:   "wf-subst",
		Name: "Substitution Flow",
		Nodes: []*models.Node{
			{ID: "set", Type: models.NodeTypeSetVariable, Data: map[string]any{"name": "agent", "value": "Maria"}},
			{ID: "bye", Type: models.NodeTypeEnd, Data: map[string]any{
				"farewell_text": "Thanks {caller}, {agent} will call you back.",
			}},
		},
		Edges: []*models.Edge{{ID: "e1", Source: "set", Target: "bye"}},
	}

	f := newFixture(t)
	g, state := f.start(t, workflow, "CA-1")

	resp := f.dispatcher.Run(context.Background(), g, state, g.Entry(), dispatch.TurnInput{})
	body := render(t, resp)

	assert.Contains(t, body, "Thanks +15550001111, Maria will call you back.")
}

func TestRun_EndNodeSurveySms(t *testing.T) {
	workflow := &models.Workflow{
		ID:   "wf-survey",
		Name: "Survey Flow",
		Nodes: []*models.Node{
			{ID: "bye", Type: models.NodeTypeEnd, Data: map[string]any{
				"farewell_text":      "Goodbye.",
				"survey_sms_message": "How did we do? Reply 1-5.",
			}},
		},
	}

	f := newFixture(t)
	g, state := f.start(t, workflow, "CA-1")

	resp := f.dispatcher.Run(context.Background(), g, state, g.Entry(), dispatch.TurnInput{})
	body := render(t, resp)

	assert.Contains(t, body, "Goodbye.")
	assert.Contains(t, body, "How did we do? Reply 1-5.")
	assert.Contains(t, body, "+15550001111")
	assert.Contains(t, body, "<Hangup")
}

func TestRun_RepeatReplaysLastPrompt(t *testing.T) {
	workflow := menuWorkflow()
	workflow.Nodes = append(workflow.Nodes, &models.Node{
		ID: "again", Type: models.NodeTypeRepeat, Data: map[string]any{"max_repeats": 2},
	})
	workflow.Edges = append(workflow.Edges, &models.Edge{
		ID: "e6", Source: "menu", Target: "again", SourceHandle: "0",
	})

	f := newFixture(t)
	g, state := f.start(t, workflow, "CA-1")
	ctx := context.Background()

	f.dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})

	state, err := f.manager.Execution(ctx, "CA-1")
	require.NoError(t, err)

	// Pressing 0 repeats the menu prompt and re-opens the gather.
	resp := f.dispatcher.Run(ctx, g, state, "menu", dispatch.TurnInput{Digits: "0", HasInput: true})
	body := render(t, resp)

	assert.Contains(t, body, "Press 1 for sales")
	assert.Contains(t, body, "<Gather")
}

func TestRun_SafetyLimitEndsWithApology(t *testing.T) {
	// A flow whose input node redirects to a repeat node that bounces right
	// back would loop forever without the runtime budget.
	f := newFixture(t)

	store := memory.NewStore()
	p := f.p

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	manager := engine.NewManager(store, p, bus, nil, logger, engine.Config{MaxNodeExecutions: 4})
	dispatcher := dispatch.NewDispatcher(manager, nil, logger, testBaseURL)

	workflow := &models.Workflow{
		ID:   "wf-loop",
		Name: "Loop Flow",
		Nodes: []*models.Node{
			{ID: "a", Type: models.NodeTypeSetVariable, Data: map[string]any{"name": "x", "value": "1"}},
			{ID: "b", Type: models.NodeTypeSetVariable, Data: map[string]any{"name": "y", "value": "2"}},
			{ID: "c", Type: models.NodeTypeSetVariable, Data: map[string]any{"name": "z", "value": "3"}},
			{ID: "d", Type: models.NodeTypeSetVariable, Data: map[string]any{"name": "w", "value": "4"}},
			{ID: "e", Type: models.NodeTypeSetVariable, Data: map[string]any{"name": "v", "value": "5"}},
			{ID: "bye", Type: models.NodeTypeEnd, Data: map[string]any{}},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "c"},
			{ID: "e3", Source: "c", Target: "d"},
			{ID: "e4", Source: "d", Target: "e"},
			{ID: "e5", Source: "e", Target: "bye"},
		},
		Status: models.WorkflowStatusActive,
	}

	ctx := context.Background()
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	g, err := graph.Compile(workflow)
	require.NoError(t, err)

	state, err := manager.StartExecution(ctx, workflow.ID, "CA-loop", "", "")
	require.NoError(t, err)

	// Five auto-advancing nodes against a budget of four.
	resp := dispatcher.Run(ctx, g, state, g.Entry(), dispatch.TurnInput{})
	body := render(t, resp)

	assert.Contains(t, body, dispatch.ApologyText)
	assert.Contains(t, body, "<Hangup")

	log, err := p.ExecutionLogRepository().ByCallID(ctx, "CA-loop")
	require.NoError(t, err)
	assert.Equal(t, models.EndReasonMaxNodes, log.Reason)
}

func TestRun_ResumeAfterEndIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	g, state := f.start(t, menuWorkflow(), "CA-1")
	ctx := context.Background()

	require.NoError(t, f.manager.EndExecution(ctx, "CA-1", models.EndReasonAbandoned, nil))

	resp := f.dispatcher.Run(ctx, g, state, "menu", dispatch.TurnInput{Digits: "1", HasInput: true})
	body := render(t, resp)

	assert.Contains(t, body, "<Hangup")
	assert.NotContains(t, body, "<Dial")
}
