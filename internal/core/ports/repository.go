// Package ports provides domain-centric interfaces for external dependencies.
// These interfaces follow the ports and adapters (hexagonal) architecture pattern,
// allowing the evaluation engine to remain independent of the corpus store,
// the job tracker and the result store.
package ports

import (
	"context"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
)

// ScrollRequest describes one corpus scroll.
type ScrollRequest struct {
	Query     string
	Fields    []string
	BatchSize int
}

// Scroller yields consecutive batches of a scroll. Next returns io.EOF once
// the corpus is exhausted.
type Scroller interface {
	Next(ctx context.Context) ([]domain.Document, error)
}

// CorpusReader is the paginated document store.
type CorpusReader interface {
	Count(ctx context.Context, query string) (int, error)
	Scroll(ctx context.Context, req ScrollRequest) (Scroller, error)
}

// FactCatalog lists the distinct values of a fact name within a query.
type FactCatalog interface {
	FactValues(ctx context.Context, query, factName string) ([]string, error)
}

// JobTracker receives progress for a single run. The engine only writes to it.
type JobTracker interface {
	SetTotal(ctx context.Context, total int) error
	UpdateProgress(ctx context.Context, value int, step string) error
	Complete(ctx context.Context) error
	AddError(ctx context.Context, message string) error
	UpdateStatus(ctx context.Context, status string) error
}

// CancelChecker reports whether the run has been canceled externally.
type CancelChecker interface {
	IsCanceled(ctx context.Context) (bool, error)
}

// ResultSink persists the evaluation result of a run.
type ResultSink interface {
	SaveResult(ctx context.Context, result domain.EvaluationResult) error
}

// RunRepository stores queued evaluation runs. ClaimNextRun returns nil, nil
// when no run is queued. ClaimRun claims one specific run and fails with
// ErrInvalidInput unless that run is still queued.
type RunRepository interface {
	EnqueueRun(ctx context.Context, run domain.EvaluationRun) (string, error)
	ClaimNextRun(ctx context.Context) (*domain.EvaluationRun, error)
	ClaimRun(ctx context.Context, id string) (*domain.EvaluationRun, error)
	GetRun(ctx context.Context, id string) (*domain.EvaluationRun, error)
}
