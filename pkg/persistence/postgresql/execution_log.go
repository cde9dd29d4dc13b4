package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/persistence"
)

// ExecutionLogRepository stores the durable mirror of execution lifecycles.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(db *sql.DB, logger *slog.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db, logger: logger}
}

const executionLogColumns = `
	id
  , call_id
  , workflow_id
  , caller
  , callee
  , status
  , reason
  , error
  , started_at
  , ended_at
  , duration_ms
  , visits
  , variables
`

// Save upserts the log row keyed by call_id, so the row created at call start
// is finalized in place at call end.
func (r *ExecutionLogRepository) Save(ctx context.Context, log *models.ExecutionLog) error {
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

	visits := log.Visits
	if visits == nil {
		visits = []models.NodeVisit{}
	}

	visitsJSON, err := json.Marshal(visits)
	if err != nil {
		return fmt.Errorf("failed to marshal visits: %w", err)
	}

	variables := log.Variables
	if variables == nil {
		variables = map[string]any{}
	}

	variablesJSON, err := json.Marshal(variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	query := `
		INSERT INTO execution_logs (
			id, call_id, workflow_id, caller, callee, status, reason, error,
			started_at, ended_at, duration_ms, visits, variables
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (call_id) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			error = EXCLUDED.error,
			ended_at = EXCLUDED.ended_at,
			duration_ms = EXCLUDED.duration_ms,
			visits = EXCLUDED.visits,
			variables = EXCLUDED.variables
	`

	_, err = r.db.ExecContext(ctx, query,
		log.ID,
		log.CallID,
		log.WorkflowID,
		log.Caller,
		log.Callee,
		log.Status,
		log.Reason,
		log.Error,
		log.StartedAt,
		log.EndedAt,
		log.DurationMs,
		visitsJSON,
		variablesJSON,
	)
	if err != nil {
		return persistence.NewExecutionLogError("Save", log.CallID, err)
	}

	return nil
}

func (r *ExecutionLogRepository) ByCallID(ctx context.Context, callID string) (*models.ExecutionLog, error) {
	query := `SELECT ` + executionLogColumns + ` FROM execution_logs WHERE call_id = $1`

	log, err := scanExecutionLog(r.db.QueryRowContext(ctx, query, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionLogError("ByCallID", callID, persistence.ErrExecutionLogNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution log: %w", err)
	}

	return log, nil
}

func (r *ExecutionLogRepository) List(ctx context.Context, opts persistence.ListExecutionLogsOptions) ([]*models.ExecutionLog, error) {
	query := `SELECT ` + executionLogColumns + ` FROM execution_logs WHERE 1=1`
	args := make([]any, 0, 4)

	if opts.WorkflowID != "" {
		args = append(args, opts.WorkflowID)
		query += " AND workflow_id = $" + strconv.Itoa(len(args))
	}

	if !opts.From.IsZero() {
		args = append(args, opts.From)
		query += " AND started_at >= $" + strconv.Itoa(len(args))
	}

	if !opts.To.IsZero() {
		args = append(args, opts.To)
		query += " AND started_at < $" + strconv.Itoa(len(args))
	}

	query += " ORDER BY started_at DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	return r.queryLogs(ctx, query, args...)
}

// Running returns logs still marked running, used to detect executions
// orphaned by a restart.
func (r *ExecutionLogRepository) Running(ctx context.Context) ([]*models.ExecutionLog, error) {
	query := `SELECT ` + executionLogColumns + `
		FROM execution_logs
		WHERE status = $1
		ORDER BY started_at ASC`

	return r.queryLogs(ctx, query, models.ExecutionStatusRunning)
}

func (r *ExecutionLogRepository) queryLogs(ctx context.Context, query string, args ...any) ([]*models.ExecutionLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	logs := make([]*models.ExecutionLog, 0)

	for rows.Next() {
		log, err := scanExecutionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return logs, nil
}

func scanExecutionLog(row rowScanner) (*models.ExecutionLog, error) {
	var (
		log           models.ExecutionLog
		visitsJSON    []byte
		variablesJSON []byte
	)

	err := row.Scan(
		&log.ID,
		&log.CallID,
		&log.WorkflowID,
		&log.Caller,
		&log.Callee,
		&log.Status,
		&log.Reason,
		&log.Error,
		&log.StartedAt,
		&log.EndedAt,
		&log.DurationMs,
		&visitsJSON,
		&variablesJSON,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(visitsJSON, &log.Visits); err != nil {
		return nil, fmt.Errorf("failed to unmarshal visits: %w", err)
	}

	if err := json.Unmarshal(variablesJSON, &log.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	return &log, nil
}
