package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
	"github.com/lueurxax/fact-evaluator/internal/core/ports"
)

// RunJob records progress and results of one run in its evaluation_runs row.
type RunJob struct {
	db    *DB
	runID string
}

var (
	_ ports.JobTracker    = (*RunJob)(nil)
	_ ports.ResultSink    = (*RunJob)(nil)
	_ ports.CancelChecker = (*RunJob)(nil)
)

// Job binds a tracker to runID.
func (db *DB) Job(runID string) *RunJob {
	return &RunJob{db: db, runID: runID}
}

// SetTotal stores the number of documents the run will scroll.
func (j *RunJob) SetTotal(ctx context.Context, total int) error {
	return j.exec(ctx, "set total", `
		UPDATE evaluation_runs SET total = $2, updated_at = now() WHERE id = $1
	`, safeIntToInt32(total))
}

// UpdateProgress stores the processed document count and current step.
func (j *RunJob) UpdateProgress(ctx context.Context, value int, step string) error {
	return j.exec(ctx, "update progress", `
		UPDATE evaluation_runs SET progress = $2, step = $3, updated_at = now() WHERE id = $1
	`, safeIntToInt32(value), step)
}

// Complete marks a running run completed. A run canceled meanwhile keeps
// its canceled status.
func (j *RunJob) Complete(ctx context.Context) error {
	return j.exec(ctx, "complete run", `
		UPDATE evaluation_runs
		SET status = CASE WHEN status = $3 THEN $2 ELSE status END,
			finished_at = now(),
			updated_at = now()
		WHERE id = $1
	`, RunStatusCompleted, RunStatusRunning)
}

// AddError appends message to the run's error list.
func (j *RunJob) AddError(ctx context.Context, message string) error {
	return j.exec(ctx, "add run error", `
		UPDATE evaluation_runs SET errors = array_append(errors, $2), updated_at = now() WHERE id = $1
	`, SanitizeUTF8(message))
}

// UpdateStatus sets the run status. Terminal statuses stamp finished_at.
func (j *RunJob) UpdateStatus(ctx context.Context, status string) error {
	return j.exec(ctx, "update run status", `
		UPDATE evaluation_runs
		SET status = $2,
			finished_at = CASE WHEN $2 IN ($3, $4, $5) THEN now() ELSE finished_at END,
			updated_at = now()
		WHERE id = $1
	`, status, RunStatusCompleted, RunStatusFailed, RunStatusCanceled)
}

// SaveResult replaces the stored result.
func (j *RunJob) SaveResult(ctx context.Context, result domain.EvaluationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	return j.exec(ctx, "save result", `
		UPDATE evaluation_runs SET results = $2, updated_at = now() WHERE id = $1
	`, data)
}

// IsCanceled reports whether the run was canceled.
func (j *RunJob) IsCanceled(ctx context.Context) (bool, error) {
	var status string

	if err := j.db.Pool.QueryRow(ctx, `SELECT status FROM evaluation_runs WHERE id = $1`, toUUID(j.runID)).Scan(&status); err != nil {
		return false, fmt.Errorf("read run status: %w", err)
	}

	return status == RunStatusCanceled, nil
}

func (j *RunJob) exec(ctx context.Context, op, sql string, args ...interface{}) error {
	tag, err := j.db.Pool.Exec(ctx, sql, append([]interface{}{toUUID(j.runID)}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: run %s: %w", op, j.runID, apperrors.ErrNotFound)
	}

	return nil
}
