package file

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/persistence"
)

func TestNewPersistence(t *testing.T) {
	p := NewPersistence("/tmp/voxflow-test")
	assert.Equal(t, "/tmp/voxflow-test", p.root)

	p = NewPersistence("file:///tmp/voxflow-test")
	assert.Equal(t, "/tmp/voxflow-test", p.root)
}

func TestPersistence_HealthCheck(t *testing.T) {
	p := NewPersistence(t.TempDir())
	assert.NoError(t, p.HealthCheck(t.Context()))

	p = NewPersistence(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, p.HealthCheck(t.Context()))
}

func testWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:     id,
		Name:   "Support Line",
		Status: models.WorkflowStatusDraft,
		Nodes: []*models.Node{
			{ID: "hello", Type: models.NodeTypeGreeting, Data: map[string]any{"text": "Welcome."}},
			{ID: "bye", Type: models.NodeTypeEnd, Data: map[string]any{"farewell_text": "Goodbye."}},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "hello", Target: "bye"},
		},
	}
}

func TestWorkflowRepository_SaveAndFetch(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()

	wf := testWorkflow("wf-1")
	require.NoError(t, repo.Save(t.Context(), wf))

	assert.FileExists(t, filepath.Join(p.root, "workflows", "wf-1.json"))
	assert.False(t, wf.CreatedAt.IsZero())
	assert.False(t, wf.UpdatedAt.IsZero())

	got, err := repo.WorkflowByID(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Support Line", got.Name)
	assert.Len(t, got.Nodes, 2)
	assert.Len(t, got.Edges, 1)
}

func TestWorkflowRepository_SaveGeneratesID(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()

	wf := testWorkflow("")
	require.NoError(t, repo.Save(t.Context(), wf))
	assert.NotEmpty(t, wf.ID)
}

func TestWorkflowRepository_FetchUnknown(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.WorkflowRepository().WorkflowByID(t.Context(), "nope")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_SoftDelete(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()

	require.NoError(t, repo.Save(t.Context(), testWorkflow("wf-1")))
	require.NoError(t, repo.Delete(t.Context(), "wf-1"))

	// The file stays on disk for log resolution but the record is gone from
	// the repository's point of view.
	assert.FileExists(t, filepath.Join(p.root, "workflows", "wf-1.json"))

	_, err := repo.WorkflowByID(t.Context(), "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = repo.Delete(t.Context(), "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	all, err := repo.Workflows(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWorkflowRepository_ListNewestFirst(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()

	older := testWorkflow("wf-old")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Save(t.Context(), older))

	require.NoError(t, repo.Save(t.Context(), testWorkflow("wf-new")))

	all, err := repo.Workflows(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "wf-new", all[0].ID)
	assert.Equal(t, "wf-old", all[1].ID)
}

func testLog(callID, workflowID string, startedAt time.Time) *models.ExecutionLog {
	return &models.ExecutionLog{
		CallID:     callID,
		WorkflowID: workflowID,
		Caller:     "+15550001111",
		StartedAt:  startedAt,
	}
}

func TestExecutionLogRepository_SaveAndFetch(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.ExecutionLogRepository()

	log := testLog("CA-1", "wf-1", time.Now().UTC())
	require.NoError(t, repo.Save(t.Context(), log))
	assert.NotEmpty(t, log.ID)
	assert.Equal(t, models.ExecutionStatusRunning, log.Status)

	got, err := repo.ByCallID(t.Context(), "CA-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, "+15550001111", got.Caller)
}

func TestExecutionLogRepository_SaveRewritesInPlace(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.ExecutionLogRepository()

	log := testLog("CA-1", "wf-1", time.Now().UTC())
	require.NoError(t, repo.Save(t.Context(), log))

	ended := time.Now().UTC()
	log.Status = models.ExecutionStatusCompleted
	log.Reason = models.EndReasonCompleted
	log.EndedAt = &ended
	require.NoError(t, repo.Save(t.Context(), log))

	got, err := repo.ByCallID(t.Context(), "CA-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, got.Status)
	require.NotNil(t, got.EndedAt)

	running, err := repo.Running(t.Context())
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestExecutionLogRepository_FetchUnknown(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.ExecutionLogRepository().ByCallID(t.Context(), "CA-missing")
	assert.True(t, persistence.IsExecutionLogNotFound(err))
}

func TestExecutionLogRepository_ListFilters(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.ExecutionLogRepository()

	now := time.Now().UTC()
	require.NoError(t, repo.Save(t.Context(), testLog("CA-1", "wf-1", now.Add(-2*time.Hour))))
	require.NoError(t, repo.Save(t.Context(), testLog("CA-2", "wf-1", now.Add(-time.Hour))))
	require.NoError(t, repo.Save(t.Context(), testLog("CA-3", "wf-2", now)))

	byWorkflow, err := repo.List(t.Context(), persistence.ListExecutionLogsOptions{WorkflowID: "wf-1"})
	require.NoError(t, err)
	require.Len(t, byWorkflow, 2)
	assert.Equal(t, "CA-2", byWorkflow[0].CallID)

	recent, err := repo.List(t.Context(), persistence.ListExecutionLogsOptions{From: now.Add(-90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, recent, 2)

	limited, err := repo.List(t.Context(), persistence.ListExecutionLogsOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "CA-3", limited[0].CallID)
}

func TestExecutionLogRepository_ListEmptyDir(t *testing.T) {
	p := NewPersistence(t.TempDir())

	logs, err := p.ExecutionLogRepository().List(t.Context(), persistence.ListExecutionLogsOptions{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}
