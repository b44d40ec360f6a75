package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
	"github.com/lueurxax/fact-evaluator/internal/core/ports"
)

var _ ports.RunRepository = (*DB)(nil)

// runColumns is the column order scanRun expects.
var runColumns = []string{
	"id", "name", "eval_type", "query", "true_fact", "true_fact_value", "pred_fact",
	"pred_fact_value", "doc_path", "average", "add_individual_results", "scroll_size",
	"entity_scoring", "status", "created_at",
}

// RunSummary is the tracker view of a run.
type RunSummary struct {
	Run      domain.EvaluationRun
	Step     string
	Progress int
	Total    int
	Errors   []string
	Result   *domain.EvaluationResult
}

// EnqueueRun stores run as queued and returns its ID. A run without an ID
// gets a fresh UUID.
func (db *DB) EnqueueRun(ctx context.Context, run domain.EvaluationRun) (string, error) {
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}

	uid := toUUID(id)
	if !uid.Valid {
		return "", fmt.Errorf("%w: run id %q is not a UUID", apperrors.ErrInvalidInput, id)
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO evaluation_runs (
			id, name, eval_type, query, true_fact, true_fact_value, pred_fact,
			pred_fact_value, doc_path, average, add_individual_results, scroll_size,
			entity_scoring, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, uid, run.Name, string(run.Type), run.Query, run.TrueFact, run.TrueFactValue, run.PredFact,
		run.PredFactValue, run.DocPath, string(run.Average), run.AddIndividualResults,
		safeIntToInt32(run.ScrollSize), string(run.EntityScoring), RunStatusQueued)
	if err != nil {
		return "", fmt.Errorf("enqueue run: %w", err)
	}

	return id, nil
}

// ClaimNextRun marks the oldest queued run as running and returns it.
// Concurrent workers never claim the same run.
func (db *DB) ClaimNextRun(ctx context.Context) (*domain.EvaluationRun, error) {
	row := db.Pool.QueryRow(ctx, `
		WITH picked AS (
			SELECT id
			FROM evaluation_runs
			WHERE status = $1
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE evaluation_runs er
		SET status = $2,
			started_at = now(),
			updated_at = now()
		FROM picked
		WHERE er.id = picked.id
		RETURNING `+columnList("er"), RunStatusQueued, RunStatusRunning)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates no queued run available
		}

		return nil, fmt.Errorf("claim next run: %w", err)
	}

	return run, nil
}

// ClaimRun marks the queued run id as running. A run in any other status is
// left untouched.
func (db *DB) ClaimRun(ctx context.Context, id string) (*domain.EvaluationRun, error) {
	row := db.Pool.QueryRow(ctx, `
		UPDATE evaluation_runs
		SET status = $2,
			started_at = now(),
			updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+columnList(""), toUUID(id), RunStatusRunning, RunStatusQueued)

	run, err := scanRun(row)
	if err == nil {
		return run, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim run: %w", err)
	}

	current, err := db.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	return nil, fmt.Errorf("%w: run %s is %s, not %s", apperrors.ErrInvalidInput, id, current.Status, RunStatusQueued)
}

// GetRun returns the run with the given ID.
func (db *DB) GetRun(ctx context.Context, id string) (*domain.EvaluationRun, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+columnList("")+` FROM evaluation_runs WHERE id = $1`, toUUID(id))

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, apperrors.ErrNotFound)
		}

		return nil, fmt.Errorf("get run: %w", err)
	}

	return run, nil
}

// GetRunSummary returns the run together with its tracker fields and the
// last persisted result.
func (db *DB) GetRunSummary(ctx context.Context, id string) (*RunSummary, error) {
	var (
		s       RunSummary
		results []byte
	)

	run, err := scanRun(db.Pool.QueryRow(ctx, `SELECT `+columnList("")+`, step, progress, total, errors, results
		FROM evaluation_runs WHERE id = $1`, toUUID(id)), &s.Step, &s.Progress, &s.Total, &s.Errors, &results)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, apperrors.ErrNotFound)
		}

		return nil, fmt.Errorf("get run summary: %w", err)
	}

	s.Run = *run

	if len(results) > 0 {
		var res domain.EvaluationResult
		if err := json.Unmarshal(results, &res); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}

		s.Result = &res
	}

	return &s, nil
}

// CancelRun marks a queued or running run as canceled. A running run stops
// at its next batch boundary.
func (db *DB) CancelRun(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE evaluation_runs
		SET status = $2,
			finished_at = CASE WHEN status = $3 THEN now() ELSE finished_at END,
			updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)
	`, toUUID(id), RunStatusCanceled, RunStatusQueued, RunStatusRunning)
	if err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s is not queued or running: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

// RequeueStaleRuns puts runs left running by a dead worker back in the
// queue. A run is stale when it has not reported progress since before.
func (db *DB) RequeueStaleRuns(ctx context.Context, before time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE evaluation_runs
		SET status = $1,
			step = '',
			progress = 0,
			errors = '{}',
			started_at = NULL,
			updated_at = now()
		WHERE status = $2 AND updated_at < $3
	`, RunStatusQueued, RunStatusRunning, before)
	if err != nil {
		return 0, fmt.Errorf("requeue stale runs: %w", err)
	}

	return tag.RowsAffected(), nil
}

// columnList renders runColumns, qualified with alias when set.
func columnList(alias string) string {
	if alias == "" {
		return strings.Join(runColumns, ", ")
	}

	cols := make([]string, len(runColumns))
	for i, c := range runColumns {
		cols[i] = alias + "." + c
	}

	return strings.Join(cols, ", ")
}

func scanRun(row pgx.Row, extra ...interface{}) (*domain.EvaluationRun, error) {
	var (
		run        domain.EvaluationRun
		id         pgtype.UUID
		evalType   string
		average    string
		scoring    string
		scrollSize int32
		createdAt  pgtype.Timestamptz
	)

	dest := append([]interface{}{
		&id, &run.Name, &evalType, &run.Query, &run.TrueFact, &run.TrueFactValue, &run.PredFact,
		&run.PredFactValue, &run.DocPath, &average, &run.AddIndividualResults, &scrollSize,
		&scoring, &run.Status, &createdAt,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	run.ID = fromUUID(id)
	run.Type = domain.EvaluationType(evalType)
	run.Average = domain.Average(average)
	run.EntityScoring = domain.EntityScoring(scoring)
	run.ScrollSize = int(scrollSize)
	run.CreatedAt = fromTimestamptz(createdAt)

	return &run, nil
}
