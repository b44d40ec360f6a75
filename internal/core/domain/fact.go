package domain

import (
	"encoding/json"
	"fmt"
)

// Fact is a single annotation on a document after extraction. A fact that
// carried several spans in the corpus is split into one Fact per span.
type Fact struct {
	Name          string
	Value         string
	Span          Span
	SentenceIndex int
	DocPath       string
}

// Span is a half-open [Start, End) rune range.
type Span struct {
	Start int
	End   int
}

// Contains reports whether s fully covers o.
func (s Span) Contains(o Span) bool {
	return s.Start <= o.Start && o.End <= s.End
}

// Overlaps reports whether s and o share at least one position.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// MarshalJSON encodes the span as a two-element array.
func (s Span) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{s.Start, s.End})
}

// UnmarshalJSON decodes a two-element array.
func (s *Span) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode span: %w", err)
	}

	if len(pair) != 2 {
		return fmt.Errorf("span must have 2 elements, got %d", len(pair))
	}

	s.Start, s.End = pair[0], pair[1]

	return nil
}
