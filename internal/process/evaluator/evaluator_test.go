package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
	"github.com/lueurxax/fact-evaluator/internal/core/ports/mocks"
	"github.com/lueurxax/fact-evaluator/internal/platform/memory"
)

const (
	testTrueFact = "TOPIC"
	testPredFact = "TOPIC_PRED"
	testDocPath  = "text"
	testDelta    = 1e-9
)

type fakeMemory struct {
	enough bool
	err    error
	calls  int
}

func (f *fakeMemory) Check(_ context.Context, _, _ int, _ domain.EvaluationType) (memory.Decision, error) {
	f.calls++
	if f.err != nil {
		return memory.Decision{RequiredGB: 1}, f.err
	}

	return memory.Decision{RequiredGB: 1, AvailableGB: 4, BufferGB: 1, Enough: f.enough}, nil
}

type fixture struct {
	corpus  *mocks.Corpus
	tracker *mocks.JobTracker
	sink    *mocks.ResultSink
	cancel  *mocks.CancelChecker
	memory  *fakeMemory
}

func newFixture(docs ...domain.Document) *fixture {
	return &fixture{
		corpus:  mocks.NewCorpus(docs...),
		tracker: mocks.NewJobTracker(),
		sink:    mocks.NewResultSink(),
		cancel:  mocks.NewCancelChecker(),
		memory:  &fakeMemory{enough: true},
	}
}

func (f *fixture) run(t *testing.T, opts Options, run domain.EvaluationRun) (Report, error) {
	t.Helper()

	e := New(f.corpus, f.corpus, f.memory, opts, nil)

	return e.Run(context.Background(), run, Job{Tracker: f.tracker, Sink: f.sink, Cancel: f.cancel})
}

func labelFact(name, value string) map[string]interface{} {
	return map[string]interface{}{"fact": name, "str_val": value}
}

func spanFact(name, value, spans string) map[string]interface{} {
	return map[string]interface{}{
		"fact":       name,
		"str_val":    value,
		"doc_path":   testDocPath,
		"spans":      spans,
		"sent_index": 0.0,
	}
}

func doc(id string, facts ...map[string]interface{}) domain.Document {
	list := make([]interface{}, len(facts))
	for i, f := range facts {
		list[i] = f
	}

	return domain.Document{ID: id, Source: map[string]interface{}{domain.DefaultFactsField: list}}
}

func binaryDocs() []domain.Document {
	return []domain.Document{
		doc("1", labelFact(testTrueFact, "sports"), labelFact(testPredFact, "sports")),
		doc("2", labelFact(testTrueFact, "economy"), labelFact(testPredFact, "economy")),
		doc("3", labelFact(testTrueFact, "sports"), labelFact(testPredFact, "economy")),
		doc("4"),
	}
}

func binaryRun() domain.EvaluationRun {
	return domain.EvaluationRun{
		ID:            "run-1",
		Type:          domain.EvaluationBinary,
		TrueFact:      testTrueFact,
		TrueFactValue: "sports",
		PredFact:      testPredFact,
		PredFactValue: "sports",
		ScrollSize:    2,
	}
}

func (f *fixture) withTopicValues() *fixture {
	f.corpus.SetFactValues(testTrueFact, "economy", "sports")
	f.corpus.SetFactValues(testPredFact, "economy", "sports")

	return f
}

func TestRunBinaryWholeCorpus(t *testing.T) {
	f := newFixture(binaryDocs()...).withTopicValues()

	rep, err := f.run(t, Options{}, binaryRun())
	require.NoError(t, err)

	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, ModeWholeCorpus, rep.Mode)
	assert.Equal(t, 2, rep.Batches)

	res, ok := f.sink.Last()
	require.True(t, ok)
	assert.Equal(t, 1, f.sink.Count(), "whole-corpus mode persists only the final result")

	assert.Equal(t, [][]int{{2, 0}, {1, 1}}, res.ConfusionMatrix)
	assert.InDelta(t, 1.0, res.Precision, testDelta)
	assert.InDelta(t, 0.5, res.Recall, testDelta)
	assert.InDelta(t, 0.75, res.Accuracy, testDelta)
	assert.Equal(t, []string{"0", "1"}, res.Classes)
	assert.Equal(t, 4, res.DocumentCount)
	assert.Equal(t, 1, res.TP)
	assert.Equal(t, 1, res.FN)
	assert.False(t, res.ScoresImprecise)
	assert.False(t, res.ScoreAfterScroll)

	assert.True(t, f.tracker.Completed())
	assert.Equal(t, 4, f.tracker.Total())
	assert.Empty(t, f.tracker.Errors())
	assert.Empty(t, f.tracker.Statuses())
}

func TestRunBinaryScoreAfterScroll(t *testing.T) {
	f := newFixture(binaryDocs()...).withTopicValues()
	f.memory.enough = false

	rep, err := f.run(t, Options{}, binaryRun())
	require.NoError(t, err)

	assert.Equal(t, ModeScoreAfterScroll, rep.Mode)
	assert.Equal(t, 3, f.sink.Count(), "one result per batch plus the final one")

	res, _ := f.sink.Last()
	assert.Equal(t, [][]int{{2, 0}, {1, 1}}, res.ConfusionMatrix)
	assert.True(t, res.ScoreAfterScroll)
	// batch 1: p=1 r=1; batch 2: p=NaN r=0
	assert.InDelta(t, 1.0, res.Precision, testDelta)
	assert.InDelta(t, 0.5, res.Recall, testDelta)
	assert.True(t, res.ScoresImprecise, "binary average over two batches")
}

func TestRunMemoryErrorFallsBack(t *testing.T) {
	f := newFixture(binaryDocs()...).withTopicValues()
	f.memory.err = apperrors.ErrMemoryEstimation

	rep, err := f.run(t, Options{}, binaryRun())
	require.NoError(t, err)

	assert.Equal(t, ModeScoreAfterScroll, rep.Mode)
	assert.Equal(t, StateDone, rep.State)
}

func multilabelDocs() []domain.Document {
	return []domain.Document{
		doc("1", labelFact(testTrueFact, "A"), labelFact(testPredFact, "A"), labelFact(testPredFact, "B")),
		doc("2", labelFact(testTrueFact, "B"), labelFact(testTrueFact, "C"), labelFact(testPredFact, "B")),
	}
}

func multilabelRun() domain.EvaluationRun {
	return domain.EvaluationRun{
		ID:                   "run-2",
		Type:                 domain.EvaluationMultilabel,
		TrueFact:             testTrueFact,
		PredFact:             testPredFact,
		AddIndividualResults: true,
		ScrollSize:           1,
	}
}

func TestRunMultilabelStripsUnusedSyntheticClasses(t *testing.T) {
	f := newFixture(multilabelDocs()...)
	f.corpus.SetFactValues(testTrueFact, "A", "B", "C")
	f.corpus.SetFactValues(testPredFact, "A", "B")

	_, err := f.run(t, Options{}, multilabelRun())
	require.NoError(t, err)

	res, _ := f.sink.Last()
	assert.Equal(t, []string{"A", "B", "C"}, res.Classes)
	assert.Len(t, res.ConfusionMatrix, 3)
	assert.InDelta(t, 0.0, res.PerClass["C"].Recall, testDelta)
	assert.InDelta(t, 1.0, res.PerClass["A"].Precision, testDelta)
	assert.NotContains(t, res.PerClass, domain.MissingTrueLabel)
	assert.Equal(t, 3, res.TrueClassCount)
	assert.Equal(t, 2, res.PredClassCount)
}

func TestRunMultilabelSyntheticInjection(t *testing.T) {
	docs := []domain.Document{
		doc("1", labelFact(testTrueFact, "A"), labelFact(testPredFact, "A")),
		doc("2", labelFact(testPredFact, "B")),
		doc("3", labelFact(testTrueFact, "B")),
		doc("4"),
	}
	f := newFixture(docs...)
	f.corpus.SetFactValues(testTrueFact, "A", "B")
	f.corpus.SetFactValues(testPredFact, "A", "B")

	_, err := f.run(t, Options{}, multilabelRun())
	require.NoError(t, err)

	res, _ := f.sink.Last()
	assert.Equal(t, []string{"A", "B", domain.MissingTrueLabel, domain.MissingPredLabel}, res.Classes)
	assert.Equal(t, 3, res.DocumentCount)
	assert.Equal(t, 1, res.DocumentsSkipped)
	// doc 2: true MISSING_TRUE, pred B; doc 3: true B, pred MISSING_PRED
	assert.Equal(t, 1, res.ConfusionMatrix[2][1])
	assert.Equal(t, 1, res.ConfusionMatrix[1][3])
}

func TestRunConfusionMatrixSameInBothModes(t *testing.T) {
	whole := newFixture(multilabelDocs()...)
	whole.corpus.SetFactValues(testTrueFact, "A", "B", "C")
	whole.corpus.SetFactValues(testPredFact, "A", "B")

	_, err := whole.run(t, Options{}, multilabelRun())
	require.NoError(t, err)

	batched := newFixture(multilabelDocs()...)
	batched.corpus.SetFactValues(testTrueFact, "A", "B", "C")
	batched.corpus.SetFactValues(testPredFact, "A", "B")
	batched.memory.enough = false

	_, err = batched.run(t, Options{}, multilabelRun())
	require.NoError(t, err)

	a, _ := whole.sink.Last()
	b, _ := batched.sink.Last()
	assert.Equal(t, a.ConfusionMatrix, b.ConfusionMatrix)
	assert.Equal(t, a.TP, b.TP)
	assert.Equal(t, a.FN, b.FN)
}

func TestRunMultilabelInsufficientData(t *testing.T) {
	f := newFixture(
		doc("1", labelFact(testTrueFact, "A"), labelFact(testPredFact, "A")),
		doc("2", labelFact(testTrueFact, "A"), labelFact(testPredFact, "A")),
	)
	f.corpus.SetFactValues(testTrueFact, "A")
	f.corpus.SetFactValues(testPredFact, "A")

	rep, err := f.run(t, Options{}, multilabelRun())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientData))
	assert.Equal(t, StateFailed, rep.State)
}

func TestRunFailsFastOnMissingFact(t *testing.T) {
	f := newFixture(binaryDocs()...)
	f.corpus.SetFactValues(testTrueFact, "sports")

	rep, err := f.run(t, Options{}, binaryRun())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrFactNotFound))

	assert.Equal(t, StateFailed, rep.State)
	assert.Equal(t, 0, f.corpus.ScrollCalls())
	assert.Equal(t, 0, f.memory.calls)
	assert.Equal(t, []string{domain.RunStatusFailed}, f.tracker.Statuses())
	require.Len(t, f.tracker.Errors(), 1)
}

func TestRunFailsOnMissingFactValue(t *testing.T) {
	f := newFixture(binaryDocs()...).withTopicValues()

	run := binaryRun()
	run.PredFactValue = "weather"

	_, err := f.run(t, Options{}, run)
	assert.True(t, errors.Is(err, apperrors.ErrFactNotFound))
}

func TestRunUnknownType(t *testing.T) {
	f := newFixture()

	run := binaryRun()
	run.Type = "regression"

	rep, err := f.run(t, Options{}, run)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownEvaluationType))
	assert.Equal(t, StateFailed, rep.State)
}

func TestRunInvalidAverage(t *testing.T) {
	f := newFixture(binaryDocs()...).withTopicValues()

	run := binaryRun()
	run.Average = domain.AverageSamples

	_, err := f.run(t, Options{}, run)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

// shutdownChecker cancels the run context on its nth call, the way a worker
// shutdown aborts an in-flight database query.
type shutdownChecker struct {
	stop  context.CancelFunc
	after int
	calls int
}

func (c *shutdownChecker) IsCanceled(ctx context.Context) (bool, error) {
	c.calls++
	if c.calls >= c.after {
		c.stop()

		return false, ctx.Err()
	}

	return false, nil
}

func TestRunInterruptedByShutdownLeavesRunRunning(t *testing.T) {
	f := newFixture(binaryDocs()...).withTopicValues()
	f.memory.enough = false

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	e := New(f.corpus, f.corpus, f.memory, Options{}, nil)
	rep, err := e.Run(ctx, binaryRun(), Job{Tracker: f.tracker, Sink: f.sink, Cancel: &shutdownChecker{stop: stop, after: 2}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	assert.Equal(t, StateInterrupted, rep.State)
	assert.Empty(t, f.tracker.Statuses(), "an interrupted run must not be marked failed")
	assert.Empty(t, f.tracker.Errors())
	assert.False(t, f.tracker.Completed())
}

func TestRunCanceledBetweenBatches(t *testing.T) {
	f := newFixture(binaryDocs()...).withTopicValues()
	f.memory.enough = false
	f.cancel.CancelAfter(2)

	rep, err := f.run(t, Options{}, binaryRun())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrRunCanceled))

	assert.Equal(t, StateCanceled, rep.State)
	assert.Equal(t, 1, rep.Batches)
	assert.Equal(t, 1, f.sink.Count(), "the first batch result stays final")
	assert.Empty(t, f.tracker.Statuses())
	assert.Empty(t, f.tracker.Errors())
	assert.False(t, f.tracker.Completed())
}

func malformedDocs() []domain.Document {
	bad := doc("bad", map[string]interface{}{"str_val": "sports"})

	return append(binaryDocs(), bad)
}

func TestRunMalformedDocumentAborts(t *testing.T) {
	f := newFixture(malformedDocs()...).withTopicValues()

	rep, err := f.run(t, Options{ErrorMaxLen: 40}, binaryRun())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMissingField))
	assert.Equal(t, StateFailed, rep.State)

	msgs := f.tracker.Errors()
	require.Len(t, msgs, 1)
	assert.Equal(t, 40, utf8.RuneCountInString(msgs[0]))
	assert.True(t, strings.HasPrefix(err.Error(), msgs[0]))
}

func TestRunMalformedDocumentSkipped(t *testing.T) {
	f := newFixture(malformedDocs()...).withTopicValues()

	rep, err := f.run(t, Options{SkipMalformed: true}, binaryRun())
	require.NoError(t, err)
	assert.Equal(t, StateDone, rep.State)

	res, _ := f.sink.Last()
	assert.Equal(t, 4, res.DocumentCount)
	assert.Equal(t, 1, res.DocumentsSkipped)

	msgs := f.tracker.Errors()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "skipped 1 malformed")
	assert.True(t, f.tracker.Completed())
}

func TestRunRecoversPanic(t *testing.T) {
	f := newFixture(binaryDocs()...).withTopicValues()
	f.corpus.CountFn = func(context.Context, string) (int, error) {
		panic("store exploded")
	}

	rep, err := f.run(t, Options{}, binaryRun())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store exploded")
	assert.Equal(t, StateFailed, rep.State)
	assert.Equal(t, []string{domain.RunStatusFailed}, f.tracker.Statuses())
}

func TestRunEntity(t *testing.T) {
	d := doc("1",
		spanFact(testTrueFact, "John Smith", "[[0,10]]"),
		spanFact(testPredFact, "John", "[[0,4]]"),
	)
	d.Source[testDocPath] = "John Smith lives here"

	empty := doc("2")
	empty.Source[testDocPath] = "Nothing"

	f := newFixture(d, empty)
	f.corpus.SetFactValues(testTrueFact, "John Smith")
	f.corpus.SetFactValues(testPredFact, "John")

	run := domain.EvaluationRun{
		ID:            "run-3",
		Type:          domain.EvaluationEntity,
		TrueFact:      testTrueFact,
		PredFact:      testPredFact,
		DocPath:       testDocPath,
		EntityScoring: domain.EntityScoringToken,
		ScrollSize:    1,
	}

	rep, err := f.run(t, Options{Parallelism: 2}, run)
	require.NoError(t, err)

	assert.Equal(t, ModeIncremental, rep.Mode)
	assert.Equal(t, 0, f.memory.calls)
	assert.Equal(t, 3, f.sink.Count())

	res, _ := f.sink.Last()
	// John TP, Smith FN, lives TN, here TN, Nothing TN
	assert.Equal(t, 1, res.TP)
	assert.Equal(t, 1, res.FN)
	assert.Equal(t, 3, res.TN)
	assert.Equal(t, 0, res.FP)
	assert.InDelta(t, 1.0, res.Precision, testDelta)
	assert.InDelta(t, 0.5, res.Recall, testDelta)
	assert.False(t, res.ScoresImprecise)
	assert.Equal(t, []string{"O", "ENT"}, res.Classes)

	require.NotNil(t, res.Misclassified)
	assert.Equal(t, []domain.OverlapCount{{True: "John Smith", Pred: "John", Count: 1}}, res.Misclassified.Substrings)
}

func TestRunEntityPersistsLedgerOnlyAtEnd(t *testing.T) {
	d := doc("1",
		spanFact(testTrueFact, "Anna", "[[0,4]]"),
		spanFact(testPredFact, "Ann", "[[0,3]]"),
	)
	d.Source[testDocPath] = "Anna sings"

	f := newFixture(d, d)
	f.corpus.SetFactValues(testTrueFact, "Anna")
	f.corpus.SetFactValues(testPredFact, "Ann")

	var partial []*domain.LedgerReport

	f.sink.SaveResultFn = func(_ context.Context, res domain.EvaluationResult) error {
		partial = append(partial, res.Misclassified)

		return nil
	}

	_, err := f.run(t, Options{}, domain.EvaluationRun{
		Type:          domain.EvaluationEntity,
		TrueFact:      testTrueFact,
		PredFact:      testPredFact,
		DocPath:       testDocPath,
		EntityScoring: domain.EntityScoringValue,
		ScrollSize:    1,
	})
	require.NoError(t, err)

	require.Len(t, partial, 3)
	assert.Nil(t, partial[0])
	assert.Nil(t, partial[1])
	require.NotNil(t, partial[2])
	assert.Equal(t, 2, partial[2].Substrings[0].Count)
}

func TestRunRequiresTrackerAndSink(t *testing.T) {
	e := New(mocks.NewCorpus(), mocks.NewCorpus(), nil, Options{}, nil)

	rep, err := e.Run(context.Background(), binaryRun(), Job{})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, StateFailed, rep.State)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "Tõ", truncate("Tõnu", 2))
}

func TestSupportedTypesValidate(t *testing.T) {
	types := SupportedTypes()
	assert.Equal(t, []domain.EvaluationType{
		domain.EvaluationBinary, domain.EvaluationMultilabel, domain.EvaluationEntity,
	}, types)

	for _, typ := range types {
		assert.NoError(t, ValidateType(typ), typ)
	}

	assert.ErrorIs(t, ValidateType("regression"), apperrors.ErrUnknownEvaluationType)
}
