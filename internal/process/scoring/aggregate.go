package scoring

import "github.com/lueurxax/fact-evaluator/internal/core/domain"

// Merge folds a batch bundle into the running bundle. Confusion matrices are
// summed. Scalars take the pairwise mean of the running and batch value, not
// a size-weighted mean; a NaN-marker batch value leaves the running value
// unchanged and a NaN-marker running value is replaced. When first is set
// the batch is adopted as is.
func Merge(running, batch domain.ScoreBundle, first bool) domain.ScoreBundle {
	if first {
		return batch.Clone()
	}

	out := running.Clone()
	out.Precision = mergeScalar(running.Precision, batch.Precision)
	out.Recall = mergeScalar(running.Recall, batch.Recall)
	out.F1 = mergeScalar(running.F1, batch.F1)
	out.Accuracy = mergeScalar(running.Accuracy, batch.Accuracy)
	out.ConfusionMatrix = addMatrix(out.ConfusionMatrix, batch.ConfusionMatrix)

	if len(batch.PerClass) > 0 && out.PerClass == nil {
		out.PerClass = make(map[string]domain.ScoreBundle, len(batch.PerClass))
	}

	for class, b := range batch.PerClass {
		r, ok := out.PerClass[class]
		out.PerClass[class] = Merge(r, b, !ok)
	}

	return out
}

func mergeScalar(running, batch float64) float64 {
	switch {
	case batch == domain.NaNMarker:
		return running
	case running == domain.NaNMarker:
		return batch
	default:
		return (running + batch) / 2
	}
}

// addMatrix adds b into a element-wise. An empty side yields the other.
func addMatrix(a, b [][]int) [][]int {
	if len(b) == 0 {
		return a
	}

	if len(a) == 0 {
		return domain.CloneMatrix(b)
	}

	for i := range a {
		if i >= len(b) {
			break
		}

		for j := range a[i] {
			if j >= len(b[i]) {
				break
			}

			a[i][j] += b[i][j]
		}
	}

	return a
}

// Aggregator keeps the running score of a score-after-scroll evaluation.
type Aggregator struct {
	running domain.ScoreBundle
	batches int
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Update merges one scored batch.
func (a *Aggregator) Update(batch domain.ScoreBundle) {
	a.running = Merge(a.running, batch, a.batches == 0)
	a.batches++
}

// Result returns a copy of the running score.
func (a *Aggregator) Result() domain.ScoreBundle {
	return a.running.Clone()
}

// Batches returns the number of merged batches.
func (a *Aggregator) Batches() int {
	return a.batches
}

// Imprecise reports whether the running scalars are an approximation. Any
// pairwise mean over two or more batches can differ from a whole-corpus
// computation, even for equal-sized micro-averaged batches, because the
// per-batch ratios have different denominators.
func (a *Aggregator) Imprecise() bool {
	return a.batches >= 2
}

// StripUnobservedSynthetic removes synthetic classes that never occurred from
// the class list, the confusion matrix and the per-class map. The input
// bundle is not modified.
func StripUnobservedSynthetic(b domain.ScoreBundle, classes []string, observed map[string]bool) (domain.ScoreBundle, []string) {
	out := b.Clone()

	drop := make(map[int]bool)

	for i, c := range classes {
		if domain.IsSynthetic(c) && !observed[c] {
			drop[i] = true
			delete(out.PerClass, c)
		}
	}

	if len(drop) == 0 {
		return out, append([]string(nil), classes...)
	}

	kept := make([]string, 0, len(classes)-len(drop))

	for i, c := range classes {
		if !drop[i] {
			kept = append(kept, c)
		}
	}

	if len(out.ConfusionMatrix) == len(classes) {
		m := make([][]int, 0, len(kept))

		for i, row := range out.ConfusionMatrix {
			if drop[i] {
				continue
			}

			r := make([]int, 0, len(kept))

			for j, v := range row {
				if !drop[j] {
					r = append(r, v)
				}
			}

			m = append(m, r)
		}

		out.ConfusionMatrix = m
	}

	return out, kept
}
