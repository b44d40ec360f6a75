package evaluator

import (
	"context"
	"fmt"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
)

// docErrorHandler returns nil to skip a failed document or an error to abort.
type docErrorHandler func(doc domain.Document, err error) error

// strategy is the per-run evaluation logic behind one EvaluationType.
type strategy interface {
	// init validates the run against the corpus and fixes the class list.
	init(ctx context.Context) error
	classes() []string
	fields() []string
	needsMemoryCheck() bool
	begin(mode Mode)
	processBatch(ctx context.Context, docs []domain.Document) error
	// snapshot is the running result persisted after a batch.
	snapshot() domain.EvaluationResult
	finalize() (domain.EvaluationResult, error)
}

type strategyFactory func(e *Engine, run domain.EvaluationRun, onError docErrorHandler) (strategy, error)

// strategies maps each evaluation type to its implementation. It is
// resolved once per run during INIT.
var strategies = map[domain.EvaluationType]strategyFactory{
	domain.EvaluationBinary:     newBinaryStrategy,
	domain.EvaluationMultilabel: newMultilabelStrategy,
	domain.EvaluationEntity:     newEntityStrategy,
}

// SupportedTypes lists the evaluation types the engine can run.
func SupportedTypes() []domain.EvaluationType {
	return []domain.EvaluationType{domain.EvaluationBinary, domain.EvaluationMultilabel, domain.EvaluationEntity}
}

// ValidateType fails with ErrUnknownEvaluationType for types the engine
// cannot run.
func ValidateType(t domain.EvaluationType) error {
	_, err := lookupStrategy(t)

	return err
}

func lookupStrategy(t domain.EvaluationType) (strategyFactory, error) {
	factory, ok := strategies[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownEvaluationType, t)
	}

	return factory, nil
}

// requireFact fails with ErrFactNotFound when factName has no values in the
// queried corpus, or when want is set and not among them.
func requireFact(ctx context.Context, e *Engine, query, factName, want string) ([]string, error) {
	values, err := e.catalog.FactValues(ctx, query, factName)
	if err != nil {
		return nil, fmt.Errorf("list values of %q: %w", factName, err)
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrFactNotFound, factName)
	}

	if want == "" {
		return values, nil
	}

	for _, v := range values {
		if v == want {
			return values, nil
		}
	}

	return nil, fmt.Errorf("%w: %q has no value %q", apperrors.ErrFactNotFound, factName, want)
}
