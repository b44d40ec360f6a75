package entity

import (
	"sort"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
)

// DefaultTopN is the number of entries kept per ledger category in a report.
const DefaultTopN = 1000

// Observation is a ledger-worthy misclassification with the span texts
// resolved. Exact matches are never observations.
type Observation struct {
	Category Category
	True     string
	Pred     string
}

type pair struct {
	true string
	pred string
}

// Ledger counts misclassified entity values for a whole run. It is not safe
// for concurrent use; callers record observations in document order.
type Ledger struct {
	maxKeys int

	substrings     map[pair]int
	superstrings   map[pair]int
	partial        map[pair]int
	falseNegatives map[string]int
	falsePositives map[string]int
}

// NewLedger creates a ledger. With maxKeys > 0 each category stops admitting
// new keys once it holds maxKeys entries; existing keys keep counting.
func NewLedger(maxKeys int) *Ledger {
	return &Ledger{
		maxKeys:        maxKeys,
		substrings:     make(map[pair]int),
		superstrings:   make(map[pair]int),
		partial:        make(map[pair]int),
		falseNegatives: make(map[string]int),
		falsePositives: make(map[string]int),
	}
}

// Record adds one observation.
func (l *Ledger) Record(o Observation) {
	switch o.Category {
	case Subset:
		bumpKey(l.substrings, pair{o.True, o.Pred}, l.maxKeys)
	case Superset:
		bumpKey(l.superstrings, pair{o.True, o.Pred}, l.maxKeys)
	case Partial:
		bumpKey(l.partial, pair{o.True, o.Pred}, l.maxKeys)
	case FalseNegative:
		bumpKey(l.falseNegatives, o.True, l.maxKeys)
	case FalsePositive:
		bumpKey(l.falsePositives, o.Pred, l.maxKeys)
	}
}

// RecordAll adds observations in order.
func (l *Ledger) RecordAll(obs []Observation) {
	for _, o := range obs {
		l.Record(o)
	}
}

// Size returns the number of distinct keys across all categories.
func (l *Ledger) Size() int {
	return len(l.substrings) + len(l.superstrings) + len(l.partial) +
		len(l.falseNegatives) + len(l.falsePositives)
}

// Report returns the topN most frequent entries per category, ordered by
// count descending and then by key. topN <= 0 selects DefaultTopN.
func (l *Ledger) Report(topN int) *domain.LedgerReport {
	if topN <= 0 {
		topN = DefaultTopN
	}

	return &domain.LedgerReport{
		Substrings:     topPairs(l.substrings, topN),
		Superstrings:   topPairs(l.superstrings, topN),
		Partial:        topPairs(l.partial, topN),
		FalseNegatives: topValues(l.falseNegatives, topN),
		FalsePositives: topValues(l.falsePositives, topN),
	}
}

func bumpKey[K comparable](m map[K]int, key K, maxKeys int) {
	if _, ok := m[key]; !ok && maxKeys > 0 && len(m) >= maxKeys {
		return
	}

	m[key]++
}

func topPairs(m map[pair]int, n int) []domain.OverlapCount {
	out := make([]domain.OverlapCount, 0, len(m))
	for k, c := range m {
		out = append(out, domain.OverlapCount{True: k.true, Pred: k.pred, Count: c})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}

		if out[i].True != out[j].True {
			return out[i].True < out[j].True
		}

		return out[i].Pred < out[j].Pred
	})

	if len(out) > n {
		out = out[:n]
	}

	return out
}

func topValues(m map[string]int, n int) []domain.ValueCount {
	out := make([]domain.ValueCount, 0, len(m))
	for k, c := range m {
		out = append(out, domain.ValueCount{Value: k, Count: c})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}

		return out[i].Value < out[j].Value
	})

	if len(out) > n {
		out = out[:n]
	}

	return out
}
