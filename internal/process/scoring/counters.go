package scoring

import "github.com/lueurxax/fact-evaluator/internal/core/domain"

// Counters holds the four outcome counts of a two-class comparison.
type Counters struct {
	TP int `json:"tp"`
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
}

// Add accumulates o into c.
func (c *Counters) Add(o Counters) {
	c.TP += o.TP
	c.TN += o.TN
	c.FP += o.FP
	c.FN += o.FN
}

// Total returns the number of counted outcomes.
func (c Counters) Total() int {
	return c.TP + c.TN + c.FP + c.FN
}

// Precision returns TP/(TP+FP), or the NaN marker when nothing was predicted positive.
func (c Counters) Precision() float64 {
	return sentinelRatio(c.TP, c.TP+c.FP)
}

// Recall returns TP/(TP+FN), or the NaN marker when nothing was truly positive.
func (c Counters) Recall() float64 {
	return sentinelRatio(c.TP, c.TP+c.FN)
}

// Accuracy returns (TP+TN)/total, or the NaN marker when nothing was counted.
func (c Counters) Accuracy() float64 {
	return sentinelRatio(c.TP+c.TN, c.Total())
}

// Matrix returns the 2x2 confusion matrix [[TN, FP], [FN, TP]].
func (c Counters) Matrix() [][]int {
	return [][]int{{c.TN, c.FP}, {c.FN, c.TP}}
}

// Bundle derives the score bundle from the counters.
func (c Counters) Bundle() domain.ScoreBundle {
	p, r := c.Precision(), c.Recall()

	return domain.ScoreBundle{
		Precision:       p,
		Recall:          r,
		F1:              F1(p, r),
		Accuracy:        c.Accuracy(),
		ConfusionMatrix: c.Matrix(),
	}
}

// F1 is the harmonic mean of precision and recall. It is the NaN marker when
// either input is the marker or both are zero.
func F1(precision, recall float64) float64 {
	if precision == domain.NaNMarker || recall == domain.NaNMarker || precision+recall == 0 {
		return domain.NaNMarker
	}

	return 2 * precision * recall / (precision + recall)
}

// classCounts are the one-vs-rest counts of a single class.
type classCounts struct {
	tp int
	fp int
	fn int
}

func (c classCounts) precision() float64 { return ratio(c.tp, c.tp+c.fp) }
func (c classCounts) recall() float64    { return ratio(c.tp, c.tp+c.fn) }
func (c classCounts) f1() float64        { return ratio(2*c.tp, 2*c.tp+c.fp+c.fn) }
func (c classCounts) support() int       { return c.tp + c.fn }

// averaged combines per-class counts. Undefined per-class ratios count as zero.
func averaged(counts []classCounts, average domain.Average) (float64, float64, float64) {
	if len(counts) == 0 {
		return 0, 0, 0
	}

	switch average {
	case domain.AverageMicro:
		var sum classCounts

		for _, c := range counts {
			sum.tp += c.tp
			sum.fp += c.fp
			sum.fn += c.fn
		}

		return sum.precision(), sum.recall(), sum.f1()
	case domain.AverageWeighted:
		var p, r, f float64

		total := 0

		for _, c := range counts {
			s := float64(c.support())
			p += s * c.precision()
			r += s * c.recall()
			f += s * c.f1()
			total += c.support()
		}

		if total == 0 {
			return 0, 0, 0
		}

		return p / float64(total), r / float64(total), f / float64(total)
	default:
		var p, r, f float64

		for _, c := range counts {
			p += c.precision()
			r += c.recall()
			f += c.f1()
		}

		n := float64(len(counts))

		return p / n, r / n, f / n
	}
}

func ratio(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}

	return float64(numerator) / float64(denominator)
}

func sentinelRatio(numerator, denominator int) float64 {
	if denominator == 0 {
		return domain.NaNMarker
	}

	return float64(numerator) / float64(denominator)
}
