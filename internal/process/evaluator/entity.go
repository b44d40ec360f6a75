package evaluator

import (
	"context"
	"fmt"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
	"github.com/lueurxax/fact-evaluator/internal/process/entity"
	"github.com/lueurxax/fact-evaluator/internal/process/scoring"
)

// entityStrategy counts entity outcomes exactly across batches and keeps
// the misclassification ledger, which is trimmed and persisted only once
// the run is finalized.
type entityStrategy struct {
	engine     *Engine
	run        domain.EvaluationRun
	onError    docErrorHandler
	classifier *entity.Classifier
	ledger     *entity.Ledger

	counters scoring.Counters
	docs     int
}

func newEntityStrategy(e *Engine, run domain.EvaluationRun, onError docErrorHandler) (strategy, error) {
	c, err := entity.NewClassifier(e.extractor, entity.Options{
		TrueFact: run.TrueFact,
		PredFact: run.PredFact,
		DocPath:  run.DocPath,
		Scoring:  run.EntityScoring,
		FoldCase: e.opts.EntityFoldCase,
	})
	if err != nil {
		return nil, err
	}

	return &entityStrategy{
		engine:     e,
		run:        run,
		onError:    onError,
		classifier: c,
		ledger:     entity.NewLedger(e.opts.LedgerMaxKeys),
	}, nil
}

func (s *entityStrategy) init(ctx context.Context) error {
	if _, err := requireFact(ctx, s.engine, s.run.Query, s.run.TrueFact, ""); err != nil {
		return err
	}

	_, err := requireFact(ctx, s.engine, s.run.Query, s.run.PredFact, "")

	return err
}

func (s *entityStrategy) classes() []string { return entity.Classes() }

func (s *entityStrategy) fields() []string {
	return []string{s.engine.extractor.FactsField(), s.run.DocPath}
}

func (s *entityStrategy) needsMemoryCheck() bool { return false }

func (s *entityStrategy) begin(Mode) {}

func (s *entityStrategy) processBatch(ctx context.Context, docs []domain.Document) error {
	outcomes, err := s.classifier.EvaluateBatch(ctx, docs, s.engine.opts.Parallelism)
	if err != nil {
		return err
	}

	for i, o := range outcomes {
		if o.Err != nil {
			if herr := s.onError(docs[i], o.Err); herr != nil {
				return herr
			}

			continue
		}

		s.counters.Add(o.Result.Counters)
		s.ledger.RecordAll(o.Result.Observations)
		s.docs++
	}

	return nil
}

func (s *entityStrategy) snapshot() domain.EvaluationResult {
	b := s.counters.Bundle()

	return domain.EvaluationResult{
		ScoreBundle:    b,
		Classes:        entity.Classes(),
		DocumentCount:  s.docs,
		TrueClassCount: classCount(s.counters.TP+s.counters.FN, s.counters.TN+s.counters.FP),
		PredClassCount: classCount(s.counters.TP+s.counters.FP, s.counters.TN+s.counters.FN),
		TP:             s.counters.TP,
		TN:             s.counters.TN,
		FP:             s.counters.FP,
		FN:             s.counters.FN,
	}
}

// classCount reports how many of ENT and O occurred on one side.
func classCount(entities, outside int) int {
	n := 0
	if entities > 0 {
		n++
	}

	if outside > 0 {
		n++
	}

	return n
}

func (s *entityStrategy) finalize() (domain.EvaluationResult, error) {
	if s.docs == 0 || s.counters.Total() == 0 {
		return domain.EvaluationResult{}, fmt.Errorf("%w: no sentences to evaluate at %q", apperrors.ErrInsufficientData, s.run.DocPath)
	}

	res := s.snapshot()
	res.Misclassified = s.ledger.Report(s.engine.opts.LedgerTopN)

	return res, nil
}
