package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
)

func TestLedgerReportOrdering(t *testing.T) {
	l := NewLedger(0)

	l.RecordAll([]Observation{
		{Category: FalsePositive, Pred: "b"},
		{Category: FalsePositive, Pred: "a"},
		{Category: FalsePositive, Pred: "c"},
		{Category: FalsePositive, Pred: "c"},
		{Category: Partial, True: "New York", Pred: "York City"},
		{Category: Superset, True: "Bob", Pred: "Bob Dylan"},
		{Category: FalseNegative, True: "Tartu"},
	})

	report := l.Report(2)

	assert.Equal(t, []domain.ValueCount{{Value: "c", Count: 2}, {Value: "a", Count: 1}}, report.FalsePositives)
	assert.Equal(t, []domain.OverlapCount{{True: "New York", Pred: "York City", Count: 1}}, report.Partial)
	assert.Equal(t, []domain.OverlapCount{{True: "Bob", Pred: "Bob Dylan", Count: 1}}, report.Superstrings)
	assert.Equal(t, []domain.ValueCount{{Value: "Tartu", Count: 1}}, report.FalseNegatives)
	assert.Empty(t, report.Substrings)
	assert.Equal(t, 6, l.Size(), "report must not trim the ledger itself")
}

func TestLedgerMaxKeys(t *testing.T) {
	l := NewLedger(2)

	for _, v := range []string{"a", "b", "c", "a", "c", "b"} {
		l.Record(Observation{Category: FalseNegative, True: v})
	}

	report := l.Report(0)
	assert.Equal(t, []domain.ValueCount{{Value: "a", Count: 2}, {Value: "b", Count: 2}}, report.FalseNegatives)
}

func TestLedgerIgnoresExact(t *testing.T) {
	l := NewLedger(0)
	l.Record(Observation{Category: Exact, True: "x", Pred: "x"})

	assert.Equal(t, 0, l.Size())
}
