package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/persistence"
)

// ExecutionLogRepository stores one JSON file per call under
// <root>/execution_logs/<call_id>.json. Logs are keyed by call id so the
// row created at call start is rewritten in place when the call ends.
type ExecutionLogRepository struct {
	root string
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(root string) *ExecutionLogRepository {
	return &ExecutionLogRepository{root: root}
}

func (r *ExecutionLogRepository) Save(_ context.Context, log *models.ExecutionLog) error {
	dir := path.Join(r.root, "execution_logs")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create execution_logs directory: %w", err)
	}

	if log.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution log ID: %w", err)
		}

		log.ID = id.String()
	}

	if log.Status == "" {
		log.Status = models.ExecutionStatusRunning
	}

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return persistence.NewExecutionLogError("Save", log.CallID, err)
	}

	return os.WriteFile(path.Join(dir, log.CallID+".json"), data, 0600)
}

func (r *ExecutionLogRepository) ByCallID(_ context.Context, callID string) (*models.ExecutionLog, error) {
	filePath := filepath.Clean(path.Join(r.root, "execution_logs", callID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionLogError("ByCallID", callID, persistence.ErrExecutionLogNotFound)
		}

		return nil, fmt.Errorf("failed to fetch execution log %s: %w", callID, err)
	}

	var log models.ExecutionLog

	err = json.Unmarshal(body, &log)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution log %s: %w", callID, err)
	}

	return &log, nil
}

func (r *ExecutionLogRepository) List(ctx context.Context, opts persistence.ListExecutionLogsOptions) ([]*models.ExecutionLog, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	logs := make([]*models.ExecutionLog, 0, len(all))

	for _, log := range all {
		if opts.WorkflowID != "" && log.WorkflowID != opts.WorkflowID {
			continue
		}

		if !opts.From.IsZero() && log.StartedAt.Before(opts.From) {
			continue
		}

		if !opts.To.IsZero() && !log.StartedAt.Before(opts.To) {
			continue
		}

		logs = append(logs, log)
	}

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].StartedAt.After(logs[j].StartedAt)
	})

	if opts.Limit > 0 && len(logs) > opts.Limit {
		logs = logs[:opts.Limit]
	}

	return logs, nil
}

func (r *ExecutionLogRepository) Running(ctx context.Context) ([]*models.ExecutionLog, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	logs := make([]*models.ExecutionLog, 0)

	for _, log := range all {
		if log.Status == models.ExecutionStatusRunning {
			logs = append(logs, log)
		}
	}

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].StartedAt.Before(logs[j].StartedAt)
	})

	return logs, nil
}

func (r *ExecutionLogRepository) loadAll(ctx context.Context) ([]*models.ExecutionLog, error) {
	root := os.DirFS(path.Join(r.root, "execution_logs"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution log files: %w", err)
	}

	logs := make([]*models.ExecutionLog, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		callID := file[:len(file)-5] // trim .json

		log, err := r.ByCallID(ctx, callID)
		if err != nil {
			return nil, err
		}

		logs = append(logs, log)
	}

	return logs, nil
}
