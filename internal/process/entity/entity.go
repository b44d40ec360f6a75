// Package entity evaluates span-based entity predictions against true spans.
//
// Every sentence of the configured text field is scored either per
// whitespace token (an ENT/O label comparison) or per value (intersection of
// true and predicted span texts). Independently, each sentence's spans are
// classified as exact, subset, superset, partial, false negative or false
// positive, and non-exact outcomes feed the misclassification ledger.
package entity

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
	"github.com/lueurxax/fact-evaluator/internal/process/extract"
	"github.com/lueurxax/fact-evaluator/internal/process/scoring"
)

// Token labels.
const (
	LabelOutside = "O"
	LabelEntity  = "ENT"
)

// Classes returns the class list reported for entity evaluations, in
// confusion matrix order.
func Classes() []string {
	return []string{LabelOutside, LabelEntity}
}

const (
	sentenceSeparator  = "\n"
	fieldSentenceIndex = "sent_index"
)

// Options configures a Classifier.
type Options struct {
	TrueFact string
	PredFact string
	DocPath  string
	Scoring  domain.EntityScoring
	// FoldCase compares span texts case-insensitively in value scoring and
	// ledger keys.
	FoldCase bool
}

// Classifier scores the entity annotations of documents.
type Classifier struct {
	extractor *extract.Extractor
	opts      Options
}

// NewClassifier validates opts and returns a Classifier.
func NewClassifier(x *extract.Extractor, opts Options) (*Classifier, error) {
	if opts.TrueFact == "" || opts.PredFact == "" {
		return nil, fmt.Errorf("%w: true and predicted fact names are required", apperrors.ErrInvalidInput)
	}

	if opts.DocPath == "" {
		return nil, fmt.Errorf("%w: doc_path is required for entity evaluation", apperrors.ErrInvalidInput)
	}

	switch opts.Scoring {
	case "":
		opts.Scoring = domain.EntityScoringToken
	case domain.EntityScoringToken, domain.EntityScoringValue:
	default:
		return nil, fmt.Errorf("%w: unknown entity scoring %q", apperrors.ErrInvalidInput, opts.Scoring)
	}

	return &Classifier{extractor: x, opts: opts}, nil
}

// DocResult is the outcome of one document.
type DocResult struct {
	Counters     scoring.Counters
	Observations []Observation
	Sentences    int
}

// EvaluateDocument scores every sentence of doc.
func (c *Classifier) EvaluateDocument(doc domain.Document) (DocResult, error) {
	trueFacts, err := c.extractor.Facts(doc, c.opts.TrueFact, c.opts.DocPath)
	if err != nil {
		return DocResult{}, err
	}

	predFacts, err := c.extractor.Facts(doc, c.opts.PredFact, c.opts.DocPath)
	if err != nil {
		return DocResult{}, err
	}

	text, ok := doc.Text(c.opts.DocPath)
	if !ok {
		if len(trueFacts) == 0 && len(predFacts) == 0 {
			return DocResult{}, nil
		}

		return DocResult{}, &extract.FieldError{
			DocID:   doc.ID,
			DocPath: c.opts.DocPath,
			Field:   c.opts.DocPath,
			Kind:    apperrors.ErrMissingField,
		}
	}

	sentences := splitSentences(text)

	if err := checkSentenceIndexes(doc, c.opts.DocPath, len(sentences), trueFacts, predFacts); err != nil {
		return DocResult{}, err
	}

	// A Caser is stateful, so each document gets its own.
	var fold func(string) string
	if c.opts.FoldCase {
		fold = cases.Fold().String
	}

	var res DocResult

	for i, line := range sentences {
		s := newSentence(line, trueFacts[i], predFacts[i], fold)
		matches := Classify(s.trueSpans, s.predSpans)

		if c.opts.Scoring == domain.EntityScoringValue {
			res.Counters.Add(s.valueCounts(matches))
		} else {
			res.Counters.Add(CountTokens(line, s.trueSpans, s.predSpans))
		}

		for _, m := range matches {
			if m.Category == Exact {
				continue
			}

			o := Observation{Category: m.Category}
			if m.HasTrue() {
				o.True = s.text(m.True, s.trueValues)
			}

			if m.HasPred() {
				o.Pred = s.text(m.Pred, s.predValues)
			}

			res.Observations = append(res.Observations, o)
		}
	}

	res.Sentences = len(sentences)

	return res, nil
}

// sentence holds one sentence's spans and the fact value recorded for each.
type sentence struct {
	runes      []rune
	trueSpans  []domain.Span
	predSpans  []domain.Span
	trueValues map[domain.Span]string
	predValues map[domain.Span]string
	fold       func(string) string
}

func newSentence(text string, trueFacts, predFacts []domain.Fact, fold func(string) string) sentence {
	s := sentence{runes: []rune(text), fold: fold}
	s.trueSpans, s.trueValues = spansAndValues(trueFacts)
	s.predSpans, s.predValues = spansAndValues(predFacts)

	return s
}

func spansAndValues(facts []domain.Fact) ([]domain.Span, map[domain.Span]string) {
	spans := make([]domain.Span, len(facts))
	values := make(map[domain.Span]string, len(facts))

	for i, f := range facts {
		spans[i] = f.Span
		if _, ok := values[f.Span]; !ok {
			values[f.Span] = f.Value
		}
	}

	return spans, values
}

// text returns the covered sentence text of sp, or the fact value when the
// span falls outside the stored text.
func (s sentence) text(sp domain.Span, values map[domain.Span]string) string {
	t := spanText(s.runes, sp)
	if t == "" {
		t = values[sp]
	}

	return normalize(t, s.fold)
}

// valueCounts counts one sentence by fact value: TP is the size of the
// intersection of the distinct true and predicted values, FP and FN are the
// unmatched spans, and a sentence without spans is one TN.
func (s sentence) valueCounts(matches []Match) scoring.Counters {
	var c scoring.Counters

	if len(s.trueSpans) == 0 && len(s.predSpans) == 0 {
		c.TN = 1

		return c
	}

	trueSet := valueSet(s.trueValues, s.fold)
	for v := range valueSet(s.predValues, s.fold) {
		if _, ok := trueSet[v]; ok {
			c.TP++
		}
	}

	for _, m := range matches {
		switch m.Category {
		case FalseNegative:
			c.FN++
		case FalsePositive:
			c.FP++
		}
	}

	return c
}

func valueSet(values map[domain.Span]string, fold func(string) string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[normalize(v, fold)] = struct{}{}
	}

	return out
}

// DocOutcome pairs a document result with its extraction error.
type DocOutcome struct {
	Result DocResult
	Err    error
}

// EvaluateBatch evaluates docs with up to parallelism goroutines. Outcomes
// are returned in document order so merging them is deterministic. The
// returned error is only set when ctx is canceled.
func (c *Classifier) EvaluateBatch(ctx context.Context, docs []domain.Document, parallelism int) ([]DocOutcome, error) {
	out := make([]DocOutcome, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}

	for i := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res, err := c.EvaluateDocument(docs[i])
			out[i] = DocOutcome{Result: res, Err: err}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// CountTokens labels each whitespace token of text ENT or O on both
// sides and counts the label agreements. A token is ENT when a span covers
// it entirely.
func CountTokens(text string, trueSpans, predSpans []domain.Span) scoring.Counters {
	var c scoring.Counters

	for _, tok := range Tokenize(text) {
		t := coveredBy(tok, trueSpans)
		p := coveredBy(tok, predSpans)

		switch {
		case t && p:
			c.TP++
		case !t && p:
			c.FP++
		case t && !p:
			c.FN++
		default:
			c.TN++
		}
	}

	return c
}

// Tokenize returns the rune spans of the whitespace-separated tokens of s.
func Tokenize(s string) []domain.Span {
	var (
		out   []domain.Span
		start = -1
		pos   int
	)

	for _, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, domain.Span{Start: start, End: pos})
				start = -1
			}
		} else if start < 0 {
			start = pos
		}

		pos++
	}

	if start >= 0 {
		out = append(out, domain.Span{Start: start, End: pos})
	}

	return out
}

func coveredBy(tok domain.Span, spans []domain.Span) bool {
	for _, s := range spans {
		if s.Contains(tok) {
			return true
		}
	}

	return false
}

// splitSentences splits text on newlines. Empty text has no sentences.
func splitSentences(text string) []string {
	if text == "" {
		return nil
	}

	return strings.Split(text, sentenceSeparator)
}

// checkSentenceIndexes rejects facts that point past the last sentence.
func checkSentenceIndexes(doc domain.Document, path string, n int, factMaps ...map[int][]domain.Fact) error {
	for _, m := range factMaps {
		for idx := range m {
			if idx >= n {
				return &extract.FieldError{
					DocID:   doc.ID,
					DocPath: path,
					Field:   fieldSentenceIndex,
					Kind:    apperrors.ErrMalformedAnnotation,
					Cause:   fmt.Errorf("sentence %d of %d", idx, n),
				}
			}
		}
	}

	return nil
}

// spanText returns the runes covered by s, clamped to the sentence.
func spanText(runes []rune, s domain.Span) string {
	start, end := clamp(s.Start, len(runes)), clamp(s.End, len(runes))
	if end <= start {
		return ""
	}

	return string(runes[start:end])
}

func clamp(v, hi int) int {
	switch {
	case v < 0:
		return 0
	case v > hi:
		return hi
	default:
		return v
	}
}

func normalize(s string, fold func(string) string) string {
	if fold == nil {
		return s
	}

	return fold(s)
}
