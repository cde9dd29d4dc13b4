package engine_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxflow/voxflow/pkg/channels/gochannel"
	"github.com/voxflow/voxflow/pkg/engine"
	"github.com/voxflow/voxflow/pkg/eventbus"
	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/persistence"
	"github.com/voxflow/voxflow/pkg/persistence/file"
	"github.com/voxflow/voxflow/pkg/statestore/memory"
)

func newTestManager(t *testing.T, config engine.Config) (*engine.Manager, persistence.Persistence, string) {
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
	manager := engine.NewManager(store, p, bus, nil, logger, config)

	workflow := &models.Workflow{
		ID:     "wf-1",
		Name:   "Support Line",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.Node{
			{ID: "greeting", Type: models.NodeTypeGreeting, Data: map[string]any{"text": "hi"}},
			{ID: "bye", Type: models.NodeTypeEnd, Data: map[string]any{}},
		},
		Edges: []*models.Edge{{ID: "e1", Source: "greeting", Target: "bye"}},
	}
	require.NoError(t, p.WorkflowRepository().Save(context.Background(), workflow))

	return manager, p, workflow.ID
}

func TestManager_StartExecution(t *testing.T) {
	manager, p, workflowID := newTestManager(t, engine.Config{})
	ctx := context.Background()

	state, err := manager.StartExecution(ctx, workflowID, "CA-1", "+15550001111", "+15559998888")
	require.NoError(t, err)
	assert.Equal(t, "CA-1", state.CallID)
	assert.Equal(t, workflowID, state.WorkflowID)
	assert.False(t, state.StartedAt.IsZero())

	// Durable running log exists from the first webhook on
	log, err := p.ExecutionLogRepository().ByCallID(ctx, "CA-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, log.Status)
	assert.Equal(t, "+15550001111", log.Caller)

	// A provider retry of the start webhook returns the existing state
	again, err := manager.StartExecution(ctx, workflowID, "CA-1", "+15550001111", "+15559998888")
	require.NoError(t, err)
	assert.Equal(t, state.StartedAt, again.StartedAt)
}

func TestManager_StartExecution_WorkflowNotActive(t *testing.T) {
	manager, p, _ := newTestManager(t, engine.Config{})
	ctx := context.Background()

	draft := &models.Workflow{ID: "wf-draft", Name: "Draft Flow", Status: models.WorkflowStatusDraft}
	require.NoError(t, p.WorkflowRepository().Save(ctx, draft))

	_, err := manager.StartExecution(ctx, "wf-draft", "CA-2", "", "")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotActive(err))

	_, err = manager.StartExecution(ctx, "wf-missing", "CA-3", "", "")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestManager_TrackVisit(t *testing.T) {
	manager, _, workflowID := newTestManager(t, engine.Config{})
	ctx := context.Background()

	_, err := manager.StartExecution(ctx, workflowID, "CA-1", "", "")
	require.NoError(t, err)

	state, err := manager.TrackVisit(ctx, "CA-1", "greeting", models.NodeTypeGreeting, "")
	require.NoError(t, err)
	assert.Equal(t, "greeting", state.CurrentNodeID)
	require.Len(t, state.VisitedNodes, 1)

	state, err = manager.TrackVisit(ctx, "CA-1", "menu", models.NodeTypeInput, "1")
	require.NoError(t, err)
	assert.Equal(t, "menu", state.CurrentNodeID)
	require.Len(t, state.VisitedNodes, 2)
	assert.Equal(t, "1", state.VisitedNodes[1].Input)
	assert.Equal(t, 2, state.NodeExecutionCount)

	_, err = manager.TrackVisit(ctx, "CA-missing", "greeting", models.NodeTypeGreeting, "")
	assert.True(t, engine.IsExecutionNotFound(err))
}

func TestManager_TrackVisit_Timeout(t *testing.T) {
	manager, _, workflowID := newTestManager(t, engine.Config{ExecutionTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	_, err := manager.StartExecution(ctx, workflowID, "CA-1", "", "")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	_, err = manager.TrackVisit(ctx, "CA-1", "greeting", models.NodeTypeGreeting, "")
	require.Error(t, err)

	reason, ok := engine.IsLimitExceeded(err)
	require.True(t, ok)
	assert.Equal(t, models.EndReasonTimeout, reason)
}

func TestManager_TrackVisit_MaxNodes(t *testing.T) {
	manager, _, workflowID := newTestManager(t, engine.Config{MaxNodeExecutions: 5, LoopNodeThreshold: 100})
	ctx := context.Background()

	_, err := manager.StartExecution(ctx, workflowID, "CA-1", "", "")
	require.NoError(t, err)

	for i := range 5 {
		_, err = manager.TrackVisit(ctx, "CA-1", "greeting", models.NodeTypeGreeting, "")
		require.NoError(t, err, "visit %d should be allowed", i+1)
	}

	_, err = manager.TrackVisit(ctx, "CA-1", "greeting", models.NodeTypeGreeting, "")
	require.Error(t, err)

	reason, ok := engine.IsLimitExceeded(err)
	require.True(t, ok)
	assert.Equal(t, models.EndReasonMaxNodes, reason)
}

func TestManager_TrackVisit_LoopDetection(t *testing.T) {
	manager, _, workflowID := newTestManager(t, engine.Config{MaxLoopIterations: 3})
	ctx := context.Background()

	_, err := manager.StartExecution(ctx, workflowID, "CA-1", "", "")
	require.NoError(t, err)

	// The node enters the loop window after 5 occurrences in the last 10
	// visits; every further visit bumps the loop counter until the cap.
	for i := range 8 {
		_, err = manager.TrackVisit(ctx, "CA-1", "menu", models.NodeTypeInput, "")
		require.NoError(t, err, "visit %d should be allowed", i+1)
	}

	state, err := manager.Execution(ctx, "CA-1")
	require.NoError(t, err)
	assert.Equal(t, 3, state.LoopIterations)

	_, err = manager.TrackVisit(ctx, "CA-1", "menu", models.NodeTypeInput, "")
	require.Error(t, err)

	reason, ok := engine.IsLimitExceeded(err)
	require.True(t, ok)
	assert.Equal(t, models.EndReasonLoopDetected, reason)
}

func TestManager_TrackVisit_LoopDetection_DefaultLimits(t *testing.T) {
	manager, _, workflowID := newTestManager(t, engine.Config{})
	ctx := context.Background()

	_, err := manager.StartExecution(ctx, workflowID, "CA-1", "", "")
	require.NoError(t, err)

	// With defaults the 56th consecutive visit to one node is the first one
	// past 50 loop iterations.
	for i := range 55 {
		_, err = manager.TrackVisit(ctx, "CA-1", "menu", models.NodeTypeInput, "")
		require.NoError(t, err, "visit %d should be allowed", i+1)
	}

	_, err = manager.TrackVisit(ctx, "CA-1", "menu", models.NodeTypeInput, "")
	require.Error(t, err)

	reason, ok := engine.IsLimitExceeded(err)
	require.True(t, ok)
	assert.Equal(t, models.EndReasonLoopDetected, reason)
}

func TestManager_TrackVisit_AlternatingNodesNoLoop(t *testing.T) {
	manager, _, workflowID := newTestManager(t, engine.Config{MaxLoopIterations: 3})
	ctx := context.Background()

	_, err := manager.StartExecution(ctx, workflowID, "CA-1", "", "")
	require.NoError(t, err)

	// Bouncing between many nodes never reaches 5 occurrences in the window.
	nodes := []string{"a", "b", "c"}
	for i := range 30 {
		_, err = manager.TrackVisit(ctx, "CA-1", nodes[i%3], models.NodeTypeAudio, "")
		require.NoError(t, err)
	}

	state, err := manager.Execution(ctx, "CA-1")
	require.NoError(t, err)
	assert.Equal(t, 0, state.LoopIterations)
}

func TestManager_Variables(t *testing.T) {
	manager, _, workflowID := newTestManager(t, engine.Config{})
	ctx := context.Background()

	_, err := manager.StartExecution(ctx, workflowID, "CA-1", "", "")
	require.NoError(t, err)

	require.NoError(t, manager.SetVariable(ctx, "CA-1", "tier", "basic"))
	require.NoError(t, manager.SetVariable(ctx, "CA-1", "tier", "premium"))

	value, err := manager.GetVariable(ctx, "CA-1", "tier")
	require.NoError(t, err)
	assert.Equal(t, "premium", value)

	_, err = manager.GetVariable(ctx, "CA-1", "missing")
	assert.Error(t, err)
}

func TestManager_EndExecution(t *testing.T) {
	manager, p, workflowID := newTestManager(t, engine.Config{})
	ctx := context.Background()

	_, err := manager.StartExecution(ctx, workflowID, "CA-1", "+15550001111", "")
	require.NoError(t, err)

	running, err := p.ExecutionLogRepository().ByCallID(ctx, "CA-1")
	require.NoError(t, err)

	_, err = manager.TrackVisit(ctx, "CA-1", "greeting", models.NodeTypeGreeting, "")
	require.NoError(t, err)

	require.NoError(t, manager.EndExecution(ctx, "CA-1", models.EndReasonCompleted, nil))

	// Live state is gone
	_, err = manager.Execution(ctx, "CA-1")
	assert.True(t, engine.IsExecutionNotFound(err))

	// Durable log finalized in place
	log, err := p.ExecutionLogRepository().ByCallID(ctx, "CA-1")
	require.NoError(t, err)
	assert.Equal(t, running.ID, log.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, log.Status)
	assert.Equal(t, models.EndReasonCompleted, log.Reason)
	require.NotNil(t, log.EndedAt)
	require.Len(t, log.Visits, 1)

	// Ending twice is a no-op
	require.NoError(t, manager.EndExecution(ctx, "CA-1", models.EndReasonError, nil))

	log, err = p.ExecutionLogRepository().ByCallID(ctx, "CA-1")
	require.NoError(t, err)
	assert.Equal(t, models.EndReasonCompleted, log.Reason)
}

func TestManager_EndExecution_ReasonStatusMapping(t *testing.T) {
	tests := []struct {
		reason models.EndReason
		status models.ExecutionStatus
	}{
		{models.EndReasonCompleted, models.ExecutionStatusCompleted},
		{models.EndReasonTimeout, models.ExecutionStatusTimeout},
		{models.EndReasonAbandoned, models.ExecutionStatusAbandoned},
		{models.EndReasonMaxNodes, models.ExecutionStatusFailed},
		{models.EndReasonLoopDetected, models.ExecutionStatusFailed},
		{models.EndReasonError, models.ExecutionStatusFailed},
		{models.EndReasonStopped, models.ExecutionStatusFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			manager, p, workflowID := newTestManager(t, engine.Config{})
			ctx := context.Background()

			_, err := manager.StartExecution(ctx, workflowID, "CA-1", "", "")
			require.NoError(t, err)

			require.NoError(t, manager.EndExecution(ctx, "CA-1", tt.reason, nil))

			log, err := p.ExecutionLogRepository().ByCallID(ctx, "CA-1")
			require.NoError(t, err)
			assert.Equal(t, tt.status, log.Status)
		})
	}
}

func TestManager_StopExecution(t *testing.T) {
	manager, p, workflowID := newTestManager(t, engine.Config{})
	ctx := context.Background()

	_, err := manager.StartExecution(ctx, workflowID, "CA-1", "", "")
	require.NoError(t, err)

	require.NoError(t, manager.StopExecution(ctx, "CA-1", models.EndReasonStopped))

	log, err := p.ExecutionLogRepository().ByCallID(ctx, "CA-1")
	require.NoError(t, err)
	assert.Equal(t, models.EndReasonStopped, log.Reason)

	// Stopping an already ended call is fine
	require.NoError(t, manager.StopExecution(ctx, "CA-1", models.EndReasonStopped))
}

func TestManager_ActiveExecutions(t *testing.T) {
	manager, _, workflowID := newTestManager(t, engine.Config{})
	ctx := context.Background()

	for _, callID := range []string{"CA-1", "CA-2", "CA-3"} {
		_, err := manager.StartExecution(ctx, workflowID, callID, "", "")
		require.NoError(t, err)
	}

	require.NoError(t, manager.EndExecution(ctx, "CA-2", models.EndReasonCompleted, nil))

	active, err := manager.ActiveExecutions(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestManager_Sweep(t *testing.T) {
	manager, p, workflowID := newTestManager(t, engine.Config{ExecutionTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	_, err := manager.StartExecution(ctx, workflowID, "CA-stale", "", "")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	_, err = manager.StartExecution(ctx, workflowID, "CA-fresh", "", "")
	require.NoError(t, err)

	manager.Sweep(ctx)

	_, err = manager.Execution(ctx, "CA-stale")
	assert.True(t, engine.IsExecutionNotFound(err))

	_, err = manager.Execution(ctx, "CA-fresh")
	assert.NoError(t, err)

	log, err := p.ExecutionLogRepository().ByCallID(ctx, "CA-stale")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusTimeout, log.Status)
	assert.Equal(t, models.EndReasonTimeout, log.Reason)
}

func TestManager_LockCall_SerializesTurns(t *testing.T) {
	manager, _, workflowID := newTestManager(t, engine.Config{})
	ctx := context.Background()

	_, err := manager.StartExecution(ctx, workflowID, "CA-1", "", "")
	require.NoError(t, err)

	unlock, err := manager.LockCall(ctx, "CA-1")
	require.NoError(t, err)

	blocked := make(chan struct{})

	go func() {
		inner, err := manager.LockCall(ctx, "CA-1")
		assert.NoError(t, err)
		inner()
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("second lock acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}
