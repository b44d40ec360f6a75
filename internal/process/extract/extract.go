// Package extract pulls typed annotations ("facts") out of raw corpus
// documents and turns them into label sets or per-sentence span lists.
package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
)

// Annotation object keys.
const (
	keyFact          = "fact"
	keyValue         = "str_val"
	keySpans         = "spans"
	keyDocPath       = "doc_path"
	keySentenceIndex = "sent_index"
)

// FieldError reports a problem with one annotation of one document.
// It unwraps to ErrMissingField or ErrMalformedAnnotation.
type FieldError struct {
	DocID   string
	DocPath string
	Field   string
	Kind    error
	Cause   error
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("%v: document %q, doc_path %q, field %q", e.Kind, e.DocID, e.DocPath, e.Field)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *FieldError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Cause}
}

// Extractor reads facts from the configured facts field.
type Extractor struct {
	factsField string
}

// New creates an extractor. An empty field name selects domain.DefaultFactsField.
func New(factsField string) *Extractor {
	if factsField == "" {
		factsField = domain.DefaultFactsField
	}

	return &Extractor{factsField: factsField}
}

// FactsField returns the document field the extractor reads.
func (x *Extractor) FactsField() string {
	return x.factsField
}

// Labels returns every value of factName on the document, in annotation order.
func (x *Extractor) Labels(doc domain.Document, factName string) ([]string, error) {
	raw, err := x.rawFacts(doc)
	if err != nil {
		return nil, err
	}

	var labels []string

	for _, obj := range raw {
		name, ok := stringField(obj, keyFact)
		if !ok {
			return nil, missing(doc, obj, keyFact)
		}

		if name != factName {
			continue
		}

		value, ok := stringField(obj, keyValue)
		if !ok {
			return nil, missing(doc, obj, keyValue)
		}

		labels = append(labels, value)
	}

	return labels, nil
}

// HasValue reports whether the document carries factName with the given
// value. An empty value matches any value of the fact.
func (x *Extractor) HasValue(doc domain.Document, factName, value string) (bool, error) {
	labels, err := x.Labels(doc, factName)
	if err != nil {
		return false, err
	}

	for _, l := range labels {
		if value == "" || l == value {
			return true, nil
		}
	}

	return false, nil
}

// Facts returns the single-span facts named factName whose doc_path equals
// docPath, grouped by sentence index. A fact carrying N spans yields N facts.
func (x *Extractor) Facts(doc domain.Document, factName, docPath string) (map[int][]domain.Fact, error) {
	raw, err := x.rawFacts(doc)
	if err != nil {
		return nil, err
	}

	out := make(map[int][]domain.Fact)

	for _, obj := range raw {
		name, ok := stringField(obj, keyFact)
		if !ok {
			return nil, missing(doc, obj, keyFact)
		}

		if name != factName {
			continue
		}

		path, ok := stringField(obj, keyDocPath)
		if !ok {
			return nil, missing(doc, obj, keyDocPath)
		}

		if path != docPath {
			continue
		}

		facts, err := splitFact(doc, obj, name, path)
		if err != nil {
			return nil, err
		}

		for _, f := range facts {
			out[f.SentenceIndex] = append(out[f.SentenceIndex], f)
		}
	}

	return out, nil
}

// Spans is Facts projected to bare spans.
func (x *Extractor) Spans(doc domain.Document, factName, docPath string) (map[int][]domain.Span, error) {
	facts, err := x.Facts(doc, factName, docPath)
	if err != nil {
		return nil, err
	}

	out := make(map[int][]domain.Span, len(facts))

	for idx, list := range facts {
		spans := make([]domain.Span, len(list))
		for i, f := range list {
			spans[i] = f.Span
		}

		out[idx] = spans
	}

	return out, nil
}

func (x *Extractor) rawFacts(doc domain.Document) ([]map[string]interface{}, error) {
	raw, err := doc.RawFacts(x.factsField)
	if err != nil {
		return nil, &FieldError{
			DocID: doc.ID,
			Field: x.factsField,
			Kind:  apperrors.ErrMalformedAnnotation,
			Cause: err,
		}
	}

	return raw, nil
}

func splitFact(doc domain.Document, obj map[string]interface{}, name, path string) ([]domain.Fact, error) {
	value, ok := stringField(obj, keyValue)
	if !ok {
		return nil, missing(doc, obj, keyValue)
	}

	rawSent, ok := obj[keySentenceIndex]
	if !ok || rawSent == nil {
		return nil, missing(doc, obj, keySentenceIndex)
	}

	sentence, err := intValue(rawSent)
	if err != nil {
		return nil, malformed(doc, path, keySentenceIndex, err)
	}

	if sentence < 0 {
		return nil, malformed(doc, path, keySentenceIndex, fmt.Errorf("negative sentence index %d", sentence))
	}

	rawSpans, ok := obj[keySpans]
	if !ok || rawSpans == nil {
		return nil, missing(doc, obj, keySpans)
	}

	spans, err := decodeSpans(rawSpans)
	if err != nil {
		return nil, malformed(doc, path, keySpans, err)
	}

	facts := make([]domain.Fact, 0, len(spans))
	for _, s := range spans {
		facts = append(facts, domain.Fact{
			Name:          name,
			Value:         value,
			Span:          s,
			SentenceIndex: sentence,
			DocPath:       path,
		})
	}

	return facts, nil
}

// decodeSpans accepts the stored JSON string form ("[[0,4],[6,9]]") as well
// as an already decoded array.
func decodeSpans(v interface{}) ([]domain.Span, error) {
	var data []byte

	switch t := v.(type) {
	case string:
		data = []byte(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("re-encode spans: %w", err)
		}

		data = b
	}

	var spans []domain.Span
	if err := json.Unmarshal(data, &spans); err != nil {
		return nil, err
	}

	for _, s := range spans {
		if s.Start < 0 || s.End < s.Start {
			return nil, fmt.Errorf("invalid span [%d,%d]", s.Start, s.End)
		}
	}

	return spans, nil
}

func stringField(obj map[string]interface{}, key string) (string, bool) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", false
	}

	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

func intValue(v interface{}) (int, error) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("non-integer value %v", t)
		}

		return int(t), nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func missing(doc domain.Document, obj map[string]interface{}, field string) error {
	path, _ := stringField(obj, keyDocPath)

	return &FieldError{
		DocID:   doc.ID,
		DocPath: path,
		Field:   field,
		Kind:    apperrors.ErrMissingField,
	}
}

func malformed(doc domain.Document, path, field string, cause error) error {
	return &FieldError{
		DocID:   doc.ID,
		DocPath: path,
		Field:   field,
		Kind:    apperrors.ErrMalformedAnnotation,
		Cause:   cause,
	}
}
