package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
)

const testDelta = 1e-9

var binaryClasses = []string{domain.NegativeLabel, domain.PositiveLabel}

func binaryLabels(values ...int) [][]string {
	out := make([][]string, len(values))

	for i, v := range values {
		if v == 1 {
			out[i] = []string{domain.PositiveLabel}
		} else {
			out[i] = []string{domain.NegativeLabel}
		}
	}

	return out
}

func multilabelClasses(values ...string) []string {
	return append(values, domain.MissingTrueLabel, domain.MissingPredLabel)
}

func TestScoreBinary(t *testing.T) {
	got, err := Score(binaryLabels(1, 0, 1, 0), binaryLabels(1, 0, 0, 0), binaryClasses, Options{Average: domain.AverageBinary})
	require.NoError(t, err)

	assert.Equal(t, [][]int{{2, 0}, {1, 1}}, got.ConfusionMatrix)
	assert.InDelta(t, 1.0, got.Precision, testDelta)
	assert.InDelta(t, 0.5, got.Recall, testDelta)
	assert.InDelta(t, 0.75, got.Accuracy, testDelta)
	assert.InDelta(t, 2.0/3.0, got.F1, testDelta)
}

func TestScoreBinaryAverages(t *testing.T) {
	// TN=2 FP=0 FN=1 TP=1
	trueLabels := binaryLabels(1, 0, 1, 0)
	predLabels := binaryLabels(1, 0, 0, 0)

	tests := []struct {
		name          string
		average       domain.Average
		wantPrecision float64
		wantRecall    float64
	}{
		{name: "micro equals accuracy", average: domain.AverageMicro, wantPrecision: 0.75, wantRecall: 0.75},
		{name: "macro", average: domain.AverageMacro, wantPrecision: (2.0/3.0 + 1.0) / 2, wantRecall: (1.0 + 0.5) / 2},
		{name: "weighted", average: domain.AverageWeighted, wantPrecision: (2*(2.0/3.0) + 2*1.0) / 4, wantRecall: (2*1.0 + 2*0.5) / 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Score(trueLabels, predLabels, binaryClasses, Options{Average: tt.average})
			require.NoError(t, err)
			assert.InDelta(t, tt.wantPrecision, got.Precision, testDelta)
			assert.InDelta(t, tt.wantRecall, got.Recall, testDelta)
		})
	}
}

func TestScoreNaNSentinel(t *testing.T) {
	t.Run("binary all negative", func(t *testing.T) {
		got, err := Score(binaryLabels(0, 0, 0), binaryLabels(0, 0, 0), binaryClasses, Options{Average: domain.AverageBinary})
		require.NoError(t, err)
		assert.Equal(t, domain.NaNMarker, got.Precision)
		assert.Equal(t, domain.NaNMarker, got.Recall)
		assert.Equal(t, domain.NaNMarker, got.F1)
		assert.InDelta(t, 1.0, got.Accuracy, testDelta)
	})

	t.Run("multilabel empty rows", func(t *testing.T) {
		classes := multilabelClasses("A", "B")
		got, err := Score([][]string{{}, {"Z"}}, [][]string{{}, {}}, classes, Options{Average: domain.AverageMicro})
		require.NoError(t, err)
		assert.Equal(t, domain.NaNMarker, got.Precision)
		assert.Equal(t, domain.NaNMarker, got.Recall)
		assert.Equal(t, domain.NaNMarker, got.F1)
		assert.InDelta(t, 1.0, got.Accuracy, testDelta)
	})
}

func TestScoreMultilabelPerClass(t *testing.T) {
	classes := multilabelClasses("A", "B", "C")
	trueLabels := [][]string{{"A"}, {"B", "C"}}
	predLabels := [][]string{{"A", "B"}, {"B"}}

	got, err := Score(trueLabels, predLabels, classes, Options{Average: domain.AverageMicro, PerClass: true})
	require.NoError(t, err)

	assert.InDelta(t, 0.0, got.PerClass["C"].Recall, testDelta)
	assert.InDelta(t, 1.0, got.PerClass["A"].Precision, testDelta)
	assert.InDelta(t, 0.5, got.PerClass["B"].Precision, testDelta)
	assert.Equal(t, [][]int{{1, 0}, {0, 1}}, got.PerClass["A"].ConfusionMatrix)

	// tp: A, B; fp: B on doc 1; fn: C on doc 2.
	assert.InDelta(t, 2.0/3.0, got.Precision, testDelta)
	assert.InDelta(t, 2.0/3.0, got.Recall, testDelta)
	assert.InDelta(t, 0.0, got.Accuracy, testDelta)

	require.Len(t, got.ConfusionMatrix, len(classes))
	assert.Equal(t, 1, got.ConfusionMatrix[0][0])
	assert.Equal(t, 1, got.ConfusionMatrix[1][1])
}

func TestScoreMultilabelDropsUnusedSyntheticColumns(t *testing.T) {
	classes := multilabelClasses("A", "B")
	trueLabels := [][]string{{"A"}, {"B"}}
	predLabels := [][]string{{"A"}, {"A"}}

	got, err := Score(trueLabels, predLabels, classes, Options{Average: domain.AverageMacro})
	require.NoError(t, err)

	// Only A and B are averaged: A p=1/2 r=1, B p=0 r=0.
	assert.InDelta(t, 0.25, got.Precision, testDelta)
	assert.InDelta(t, 0.5, got.Recall, testDelta)
}

func TestScoreMultilabelSamplesAverage(t *testing.T) {
	classes := multilabelClasses("A", "B", "C")
	trueLabels := [][]string{{"A", "B"}, {"C"}}
	predLabels := [][]string{{"A"}, {"C", "B"}}

	got, err := Score(trueLabels, predLabels, classes, Options{Average: domain.AverageSamples})
	require.NoError(t, err)

	assert.InDelta(t, (1.0+0.5)/2, got.Precision, testDelta)
	assert.InDelta(t, (0.5+1.0)/2, got.Recall, testDelta)
	assert.InDelta(t, (2.0/3.0+2.0/3.0)/2, got.F1, testDelta)
}

func TestScoreSkipsLargeConfusionMatrix(t *testing.T) {
	classes := multilabelClasses("A", "B", "C")

	got, err := Score([][]string{{"A"}}, [][]string{{"A"}}, classes, Options{Average: domain.AverageMicro, MaxConfusionClasses: 3})
	require.NoError(t, err)
	assert.NotNil(t, got.ConfusionMatrix)
	assert.Empty(t, got.ConfusionMatrix)
}

func TestScoreValidation(t *testing.T) {
	tests := []struct {
		name    string
		truth   [][]string
		pred    [][]string
		classes []string
		average domain.Average
		want    error
	}{
		{name: "length mismatch", truth: [][]string{{"1"}}, pred: nil, classes: binaryClasses, average: domain.AverageBinary, want: apperrors.ErrInvalidInput},
		{name: "no documents", classes: binaryClasses, average: domain.AverageBinary, want: apperrors.ErrInvalidInput},
		{name: "single class", truth: [][]string{{"A"}}, pred: [][]string{{"A"}}, classes: []string{"A"}, average: domain.AverageMicro, want: apperrors.ErrInsufficientData},
		{name: "samples on binary", truth: [][]string{{"1"}}, pred: [][]string{{"1"}}, classes: binaryClasses, average: domain.AverageSamples, want: apperrors.ErrInvalidInput},
		{name: "binary on multilabel", truth: [][]string{{"A"}}, pred: [][]string{{"A"}}, classes: multilabelClasses("A"), average: domain.AverageBinary, want: apperrors.ErrInvalidInput},
		{name: "unknown average", truth: [][]string{{"1"}}, pred: [][]string{{"1"}}, classes: binaryClasses, average: "median", want: apperrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Score(tt.truth, tt.pred, tt.classes, Options{Average: tt.average})
			require.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestConfusionMatrixAdditivity(t *testing.T) {
	classes := multilabelClasses("A", "B", "C")
	trueLabels := [][]string{{"A"}, {"B"}, {"C"}, {"A", "C"}, {"B"}, {domain.MissingTrueLabel}}
	predLabels := [][]string{{"A"}, {"C"}, {"C"}, {"C"}, {domain.MissingPredLabel}, {"B"}}
	opts := Options{Average: domain.AverageMicro}

	whole, err := Score(trueLabels, predLabels, classes, opts)
	require.NoError(t, err)

	agg := NewAggregator()

	for _, bounds := range [][2]int{{0, 2}, {2, 3}, {3, 6}} {
		batch, err := Score(trueLabels[bounds[0]:bounds[1]], predLabels[bounds[0]:bounds[1]], classes, opts)
		require.NoError(t, err)
		agg.Update(batch)
	}

	assert.Equal(t, whole.ConfusionMatrix, agg.Result().ConfusionMatrix)
}

func TestCountOutcomes(t *testing.T) {
	got := CountOutcomes(binaryLabels(1, 0, 1, 0), binaryLabels(1, 0, 0, 0), binaryClasses)
	assert.Equal(t, Counters{TP: 1, TN: 2, FP: 0, FN: 1}, got)

	classes := multilabelClasses("A", "B")
	got = CountOutcomes([][]string{{"A"}}, [][]string{{"B"}}, classes)
	assert.Equal(t, Counters{TP: 0, TN: 2, FP: 1, FN: 1}, got)
}
