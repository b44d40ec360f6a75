package evaluator

import (
	"context"
	"fmt"
	"sort"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
	"github.com/lueurxax/fact-evaluator/internal/process/scoring"
)

// labeler turns a document into its true and predicted label sets. skip is
// set for documents that carry neither.
type labeler func(doc domain.Document) (truth, pred []string, skip bool, err error)

// labelStrategy scores binary and multilabel runs.
type labelStrategy struct {
	engine  *Engine
	run     domain.EvaluationRun
	onError docErrorHandler
	multi   bool

	classList []string
	opts      scoring.Options
	label     labeler
	mode      Mode

	allTrue  [][]string
	allPred  [][]string
	agg      *scoring.Aggregator
	counters scoring.Counters

	observed  map[string]bool
	trueSeen  map[string]struct{}
	predSeen  map[string]struct{}
	scored    int
	emptyDocs int
}

func newBinaryStrategy(e *Engine, run domain.EvaluationRun, onError docErrorHandler) (strategy, error) {
	s := newLabelStrategy(e, run, onError, false)
	if s.opts.Average == "" {
		s.opts.Average = domain.AverageBinary
	}

	s.label = s.binaryLabels

	return s, nil
}

func newMultilabelStrategy(e *Engine, run domain.EvaluationRun, onError docErrorHandler) (strategy, error) {
	s := newLabelStrategy(e, run, onError, true)
	if s.opts.Average == "" {
		s.opts.Average = domain.AverageMicro
	}

	s.label = s.multilabelLabels

	return s, nil
}

func newLabelStrategy(e *Engine, run domain.EvaluationRun, onError docErrorHandler, multi bool) *labelStrategy {
	return &labelStrategy{
		engine:  e,
		run:     run,
		onError: onError,
		multi:   multi,
		opts: scoring.Options{
			Average:             run.Average,
			PerClass:            run.AddIndividualResults,
			MaxConfusionClasses: e.opts.MaxConfusionClasses,
		},
		observed: make(map[string]bool),
		trueSeen: make(map[string]struct{}),
		predSeen: make(map[string]struct{}),
	}
}

func (s *labelStrategy) init(ctx context.Context) error {
	if !s.multi {
		if _, err := requireFact(ctx, s.engine, s.run.Query, s.run.TrueFact, s.run.TrueFactValue); err != nil {
			return err
		}

		if _, err := requireFact(ctx, s.engine, s.run.Query, s.run.PredFact, s.run.PredFactValue); err != nil {
			return err
		}

		s.classList = []string{domain.NegativeLabel, domain.PositiveLabel}

		return scoring.ValidateAverage(s.opts.Average, len(s.classList))
	}

	trueValues, err := requireFact(ctx, s.engine, s.run.Query, s.run.TrueFact, "")
	if err != nil {
		return err
	}

	predValues, err := requireFact(ctx, s.engine, s.run.Query, s.run.PredFact, "")
	if err != nil {
		return err
	}

	s.classList = classUniverse(trueValues, predValues)

	return scoring.ValidateAverage(s.opts.Average, len(s.classList))
}

// classUniverse is the sorted union of both value lists followed by the
// two synthetic classes.
func classUniverse(trueValues, predValues []string) []string {
	set := make(map[string]struct{}, len(trueValues)+len(predValues))

	for _, v := range trueValues {
		set[v] = struct{}{}
	}

	for _, v := range predValues {
		set[v] = struct{}{}
	}

	delete(set, domain.MissingTrueLabel)
	delete(set, domain.MissingPredLabel)

	out := make([]string, 0, len(set)+2)
	for v := range set {
		out = append(out, v)
	}

	sort.Strings(out)

	return append(out, domain.MissingTrueLabel, domain.MissingPredLabel)
}

func (s *labelStrategy) classes() []string { return s.classList }

func (s *labelStrategy) fields() []string { return []string{s.engine.extractor.FactsField()} }

func (s *labelStrategy) needsMemoryCheck() bool { return true }

func (s *labelStrategy) begin(mode Mode) {
	s.mode = mode
	if mode == ModeScoreAfterScroll {
		s.agg = scoring.NewAggregator()
	}
}

func (s *labelStrategy) binaryLabels(doc domain.Document) ([]string, []string, bool, error) {
	t, err := s.engine.extractor.HasValue(doc, s.run.TrueFact, s.run.TrueFactValue)
	if err != nil {
		return nil, nil, false, err
	}

	p, err := s.engine.extractor.HasValue(doc, s.run.PredFact, s.run.PredFactValue)
	if err != nil {
		return nil, nil, false, err
	}

	return []string{binaryLabel(t)}, []string{binaryLabel(p)}, false, nil
}

func binaryLabel(positive bool) string {
	if positive {
		return domain.PositiveLabel
	}

	return domain.NegativeLabel
}

// multilabelLabels injects MISSING_TRUE_LABEL or MISSING_PRED_LABEL when one
// side is empty, and skips documents where both are.
func (s *labelStrategy) multilabelLabels(doc domain.Document) ([]string, []string, bool, error) {
	t, err := s.engine.extractor.Labels(doc, s.run.TrueFact)
	if err != nil {
		return nil, nil, false, err
	}

	p, err := s.engine.extractor.Labels(doc, s.run.PredFact)
	if err != nil {
		return nil, nil, false, err
	}

	t, p = dedupe(t), dedupe(p)

	switch {
	case len(t) == 0 && len(p) == 0:
		return nil, nil, true, nil
	case len(t) == 0:
		t = []string{domain.MissingTrueLabel}
	case len(p) == 0:
		p = []string{domain.MissingPredLabel}
	}

	return t, p, false, nil
}

func dedupe(values []string) []string {
	if len(values) < 2 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	out := values[:0:0]

	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}

		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}

func (s *labelStrategy) processBatch(_ context.Context, docs []domain.Document) error {
	batchTrue := make([][]string, 0, len(docs))
	batchPred := make([][]string, 0, len(docs))

	for _, doc := range docs {
		t, p, skip, err := s.label(doc)
		if err != nil {
			if herr := s.onError(doc, err); herr != nil {
				return herr
			}

			continue
		}

		if skip {
			s.emptyDocs++

			continue
		}

		s.observe(t, p)
		batchTrue = append(batchTrue, t)
		batchPred = append(batchPred, p)
	}

	if len(batchTrue) == 0 {
		return nil
	}

	s.scored += len(batchTrue)
	s.counters.Add(scoring.CountOutcomes(batchTrue, batchPred, s.classList))

	if s.mode == ModeWholeCorpus {
		s.allTrue = append(s.allTrue, batchTrue...)
		s.allPred = append(s.allPred, batchPred...)

		return nil
	}

	bundle, err := scoring.Score(batchTrue, batchPred, s.classList, s.opts)
	if err != nil {
		return fmt.Errorf("score batch: %w", err)
	}

	s.agg.Update(bundle)

	return nil
}

func (s *labelStrategy) observe(t, p []string) {
	for _, v := range t {
		s.observed[v] = true
		s.trueSeen[v] = struct{}{}
	}

	for _, v := range p {
		s.observed[v] = true
		s.predSeen[v] = struct{}{}
	}
}

func (s *labelStrategy) snapshot() domain.EvaluationResult {
	if s.agg == nil || s.agg.Batches() == 0 {
		return s.result(domain.ScoreBundle{ConfusionMatrix: [][]int{}}, false)
	}

	return s.result(s.agg.Result(), s.agg.Imprecise())
}

func (s *labelStrategy) finalize() (domain.EvaluationResult, error) {
	if s.scored == 0 {
		return domain.EvaluationResult{}, fmt.Errorf("%w: no documents carried %q or %q",
			apperrors.ErrInsufficientData, s.run.TrueFact, s.run.PredFact)
	}

	if s.multi && len(s.observed) < 2 {
		return domain.EvaluationResult{}, fmt.Errorf("%w: %d class observed", apperrors.ErrInsufficientData, len(s.observed))
	}

	if s.mode != ModeWholeCorpus {
		return s.snapshot(), nil
	}

	bundle, err := scoring.Score(s.allTrue, s.allPred, s.classList, s.opts)
	if err != nil {
		return domain.EvaluationResult{}, fmt.Errorf("score corpus: %w", err)
	}

	return s.result(bundle, false), nil
}

// result builds the persisted view. Synthetic classes that never occurred
// are stripped here only, so the internal class order never changes.
func (s *labelStrategy) result(bundle domain.ScoreBundle, imprecise bool) domain.EvaluationResult {
	classes := s.classList

	if s.multi {
		bundle, classes = scoring.StripUnobservedSynthetic(bundle, s.classList, s.observed)
	}

	return domain.EvaluationResult{
		ScoreBundle:      bundle,
		Classes:          classes,
		DocumentCount:    s.scored,
		DocumentsSkipped: s.emptyDocs,
		TrueClassCount:   len(s.trueSeen),
		PredClassCount:   len(s.predSeen),
		TP:               s.counters.TP,
		TN:               s.counters.TN,
		FP:               s.counters.FP,
		FN:               s.counters.FN,
		ScoresImprecise:  imprecise,
	}
}
