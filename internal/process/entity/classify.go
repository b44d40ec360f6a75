package entity

import (
	"sort"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
)

// Category is the outcome assigned to a span or span pair.
type Category int

// Span outcomes. Every true and predicted span of a sentence lands in
// exactly one of them.
const (
	Exact Category = iota
	Subset
	Superset
	Partial
	FalseNegative
	FalsePositive
)

var categoryNames = [...]string{"exact", "subset", "superset", "partial", "false_negative", "false_positive"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}

	return "unknown"
}

// Match is one classification event. True is unset for FalsePositive and
// Pred is unset for FalseNegative.
type Match struct {
	Category Category
	True     domain.Span
	Pred     domain.Span
}

// HasTrue reports whether the match consumed a true span.
func (m Match) HasTrue() bool {
	return m.Category != FalsePositive
}

// HasPred reports whether the match consumed a predicted span.
func (m Match) HasPred() bool {
	return m.Category != FalseNegative
}

// Classify pairs the true and predicted spans of one sentence. Exact
// matches are consumed first. Each remaining predicted span is then paired
// with the first unconsumed true span it overlaps, as subset, superset or
// partial. Leftovers become false negatives and false positives. Input order
// does not affect the result.
func Classify(trueSpans, predSpans []domain.Span) []Match {
	ts := sortedSpans(trueSpans)
	ps := sortedSpans(predSpans)

	trueUsed := make([]bool, len(ts))
	predUsed := make([]bool, len(ps))
	out := make([]Match, 0, len(ts)+len(ps))

	for i, p := range ps {
		for j, t := range ts {
			if trueUsed[j] || t != p {
				continue
			}

			trueUsed[j], predUsed[i] = true, true
			out = append(out, Match{Category: Exact, True: t, Pred: p})

			break
		}
	}

	for i, p := range ps {
		if predUsed[i] {
			continue
		}

		for j, t := range ts {
			if trueUsed[j] || !t.Overlaps(p) {
				continue
			}

			trueUsed[j], predUsed[i] = true, true
			out = append(out, Match{Category: overlapCategory(t, p), True: t, Pred: p})

			break
		}
	}

	for j, t := range ts {
		if !trueUsed[j] {
			out = append(out, Match{Category: FalseNegative, True: t})
		}
	}

	for i, p := range ps {
		if !predUsed[i] {
			out = append(out, Match{Category: FalsePositive, Pred: p})
		}
	}

	return out
}

func overlapCategory(t, p domain.Span) Category {
	switch {
	case t.Contains(p):
		return Subset
	case p.Contains(t):
		return Superset
	default:
		return Partial
	}
}

func sortedSpans(spans []domain.Span) []domain.Span {
	out := append([]domain.Span(nil), spans...)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}

		return out[i].End < out[j].End
	})

	return out
}
