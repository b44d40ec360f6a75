// Package scoring computes precision, recall, F1, accuracy and confusion
// matrices for binary and multilabel evaluations, and merges per-batch
// results into a running score.
//
// Binary scoring treats a document as positive when its label set contains
// the second class. Multilabel scoring binarizes label sets into indicator
// rows over a fixed class ordering; the confusion matrix is built from the
// first set class of each row and is skipped above MaxConfusionClasses.
package scoring

import (
	"fmt"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
)

// DefaultMaxConfusionClasses bounds the multilabel confusion matrix size.
const DefaultMaxConfusionClasses = 70

const binaryClassCount = 2

// Options controls a scoring call.
type Options struct {
	Average             domain.Average
	PerClass            bool
	MaxConfusionClasses int
}

func (o Options) maxConfusionClasses() int {
	if o.MaxConfusionClasses <= 0 {
		return DefaultMaxConfusionClasses
	}

	return o.MaxConfusionClasses
}

// ValidateAverage reports whether average is usable for the given class count.
func ValidateAverage(average domain.Average, classCount int) error {
	switch average {
	case domain.AverageMicro, domain.AverageMacro, domain.AverageWeighted:
		return nil
	case domain.AverageBinary:
		if classCount == binaryClassCount {
			return nil
		}

		return fmt.Errorf("%w: average %q requires exactly two classes", apperrors.ErrInvalidInput, average)
	case domain.AverageSamples:
		if classCount > binaryClassCount {
			return nil
		}

		return fmt.Errorf("%w: average %q requires multilabel classes", apperrors.ErrInvalidInput, average)
	default:
		return fmt.Errorf("%w: unknown average %q", apperrors.ErrInvalidInput, average)
	}
}

// Score computes the metric set for aligned per-document label sets.
func Score(trueLabels, predLabels [][]string, classes []string, opts Options) (domain.ScoreBundle, error) {
	if len(trueLabels) != len(predLabels) {
		return domain.ScoreBundle{}, fmt.Errorf("%w: %d true rows vs %d predicted rows",
			apperrors.ErrInvalidInput, len(trueLabels), len(predLabels))
	}

	if len(trueLabels) == 0 {
		return domain.ScoreBundle{}, fmt.Errorf("%w: no documents to score", apperrors.ErrInvalidInput)
	}

	if len(classes) < binaryClassCount {
		return domain.ScoreBundle{}, fmt.Errorf("%w: %d classes", apperrors.ErrInsufficientData, len(classes))
	}

	if err := ValidateAverage(opts.Average, len(classes)); err != nil {
		return domain.ScoreBundle{}, err
	}

	if len(classes) == binaryClassCount {
		yt := positives(trueLabels, classes[1])
		yp := positives(predLabels, classes[1])

		return scoreBinary(yt, yp, opts.Average), nil
	}

	yt := Binarize(trueLabels, classes)
	yp := Binarize(predLabels, classes)

	return scoreMultilabel(yt, yp, classes, opts), nil
}

// Binarize converts label sets into indicator rows over classes. Labels not
// in classes are ignored.
func Binarize(labels [][]string, classes []string) [][]bool {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	out := make([][]bool, len(labels))

	for i, set := range labels {
		row := make([]bool, len(classes))

		for _, l := range set {
			if j, ok := index[l]; ok {
				row[j] = true
			}
		}

		out[i] = row
	}

	return out
}

func positives(labels [][]string, positive string) []bool {
	out := make([]bool, len(labels))

	for i, set := range labels {
		for _, l := range set {
			if l == positive {
				out[i] = true
				break
			}
		}
	}

	return out
}

func scoreBinary(yt, yp []bool, average domain.Average) domain.ScoreBundle {
	c := countBinary(yt, yp)
	b := c.Bundle()

	if c.TP+c.FN == 0 && c.TP+c.FP == 0 {
		return b
	}

	pos := classCounts{tp: c.TP, fp: c.FP, fn: c.FN}
	neg := classCounts{tp: c.TN, fp: c.FN, fn: c.FP}

	switch average {
	case domain.AverageBinary:
		b.Precision, b.Recall, b.F1 = pos.precision(), pos.recall(), pos.f1()
	default:
		b.Precision, b.Recall, b.F1 = averaged([]classCounts{neg, pos}, average)
	}

	return b
}

func countBinary(yt, yp []bool) Counters {
	var c Counters

	for i := range yt {
		switch {
		case yt[i] && yp[i]:
			c.TP++
		case !yt[i] && yp[i]:
			c.FP++
		case yt[i] && !yp[i]:
			c.FN++
		default:
			c.TN++
		}
	}

	return c
}

func scoreMultilabel(yt, yp [][]bool, classes []string, opts Options) domain.ScoreBundle {
	b := domain.ScoreBundle{
		Accuracy:        subsetAccuracy(yt, yp),
		ConfusionMatrix: [][]int{},
	}

	if len(classes) <= opts.maxConfusionClasses() {
		b.ConfusionMatrix = argmaxConfusion(yt, yp, len(classes))
	}

	if allZero(yt) && allZero(yp) {
		b.Precision, b.Recall, b.F1 = domain.NaNMarker, domain.NaNMarker, domain.NaNMarker
	} else {
		keep := keptColumns(yt, yp, classes)

		if opts.Average == domain.AverageSamples {
			b.Precision, b.Recall, b.F1 = samplesAverage(yt, yp, keep)
		} else {
			b.Precision, b.Recall, b.F1 = averaged(columnCounts(yt, yp, keep), opts.Average)
		}
	}

	if opts.PerClass {
		b.PerClass = make(map[string]domain.ScoreBundle, len(classes))

		for j, class := range classes {
			b.PerClass[class] = scoreBinary(column(yt, j), column(yp, j), domain.AverageBinary)
		}
	}

	return b
}

// keptColumns drops synthetic classes that never occur on either side.
func keptColumns(yt, yp [][]bool, classes []string) []int {
	keep := make([]int, 0, len(classes))

	for j, class := range classes {
		if domain.IsSynthetic(class) && !anySet(yt, j) && !anySet(yp, j) {
			continue
		}

		keep = append(keep, j)
	}

	return keep
}

func columnCounts(yt, yp [][]bool, keep []int) []classCounts {
	out := make([]classCounts, len(keep))

	for k, j := range keep {
		for i := range yt {
			switch {
			case yt[i][j] && yp[i][j]:
				out[k].tp++
			case !yt[i][j] && yp[i][j]:
				out[k].fp++
			case yt[i][j] && !yp[i][j]:
				out[k].fn++
			}
		}
	}

	return out
}

// argmaxConfusion counts (first true class, first predicted class) pairs.
// Rows without any set class fall into class 0.
func argmaxConfusion(yt, yp [][]bool, n int) [][]int {
	m := make([][]int, n)
	for i := range m {
		m[i] = make([]int, n)
	}

	for i := range yt {
		m[argmax(yt[i])][argmax(yp[i])]++
	}

	return m
}

func argmax(row []bool) int {
	for j, v := range row {
		if v {
			return j
		}
	}

	return 0
}

func subsetAccuracy(yt, yp [][]bool) float64 {
	matched := 0

	for i := range yt {
		same := true

		for j := range yt[i] {
			if yt[i][j] != yp[i][j] {
				same = false
				break
			}
		}

		if same {
			matched++
		}
	}

	return ratio(matched, len(yt))
}

func samplesAverage(yt, yp [][]bool, keep []int) (float64, float64, float64) {
	var p, r, f float64

	for i := range yt {
		inter, nt, np := 0, 0, 0

		for _, j := range keep {
			if yt[i][j] {
				nt++
			}

			if yp[i][j] {
				np++
			}

			if yt[i][j] && yp[i][j] {
				inter++
			}
		}

		p += ratio(inter, np)
		r += ratio(inter, nt)
		f += ratio(2*inter, nt+np)
	}

	n := float64(len(yt))

	return p / n, r / n, f / n
}

func column(m [][]bool, j int) []bool {
	out := make([]bool, len(m))
	for i := range m {
		out[i] = m[i][j]
	}

	return out
}

func anySet(m [][]bool, j int) bool {
	for i := range m {
		if m[i][j] {
			return true
		}
	}

	return false
}

func allZero(m [][]bool) bool {
	for i := range m {
		for _, v := range m[i] {
			if v {
				return false
			}
		}
	}

	return true
}

// CountOutcomes returns the outcome counts summed over every class column.
// For two classes only the positive column is counted.
func CountOutcomes(trueLabels, predLabels [][]string, classes []string) Counters {
	if len(classes) == binaryClassCount {
		return countBinary(positives(trueLabels, classes[1]), positives(predLabels, classes[1]))
	}

	yt := Binarize(trueLabels, classes)
	yp := Binarize(predLabels, classes)

	var total Counters

	for j := range classes {
		total.Add(countBinary(column(yt, j), column(yp, j)))
	}

	return total
}
