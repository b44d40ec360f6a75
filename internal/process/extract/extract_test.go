package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
)

const (
	testFactName = "PER"
	testDocPath  = "text"
)

func fact(name, value, spans string, sent interface{}) map[string]interface{} {
	obj := map[string]interface{}{
		keyFact:    name,
		keyValue:   value,
		keyDocPath: testDocPath,
		keySpans:   spans,
	}
	if sent != nil {
		obj[keySentenceIndex] = sent
	}

	return obj
}

func docWithFacts(facts ...map[string]interface{}) domain.Document {
	list := make([]interface{}, len(facts))
	for i, f := range facts {
		list[i] = f
	}

	return domain.Document{
		ID: "doc-1",
		Source: map[string]interface{}{
			domain.DefaultFactsField: list,
			testDocPath:              "John Smith lives here",
		},
	}
}

func TestLabels(t *testing.T) {
	doc := docWithFacts(
		fact(testFactName, "John", "[[0,4]]", 0.0),
		fact("ORG", "ACME", "[[0,4]]", 0.0),
		fact(testFactName, "Smith", "[[5,10]]", 0.0),
	)

	labels, err := New("").Labels(doc, testFactName)
	require.NoError(t, err)
	require.Equal(t, []string{"John", "Smith"}, labels)

	labels, err = New("").Labels(doc, "LOC")
	require.NoError(t, err)
	require.Empty(t, labels)
}

func TestLabelsFromEncodedString(t *testing.T) {
	doc := domain.Document{
		ID: "doc-2",
		Source: map[string]interface{}{
			domain.DefaultFactsField: `[{"fact":"TOPIC","str_val":"sports","spans":"[[0,0]]","doc_path":"text","sent_index":0}]`,
		},
	}

	labels, err := New("").Labels(doc, "TOPIC")
	require.NoError(t, err)
	require.Equal(t, []string{"sports"}, labels)
}

func TestHasValue(t *testing.T) {
	doc := docWithFacts(fact("TOPIC", "sports", "[[0,0]]", 0.0))
	x := New("")

	tests := []struct {
		name  string
		fact  string
		value string
		want  bool
	}{
		{name: "exact value", fact: "TOPIC", value: "sports", want: true},
		{name: "other value", fact: "TOPIC", value: "politics", want: false},
		{name: "any value", fact: "TOPIC", value: "", want: true},
		{name: "absent fact", fact: "LANG", value: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := x.HasValue(doc, tt.fact, tt.value)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSpansSplitsMultiSpanFacts(t *testing.T) {
	x := New("")

	combined, err := x.Facts(docWithFacts(fact(testFactName, "X", "[[1,3],[5,7]]", 0.0)), testFactName, testDocPath)
	require.NoError(t, err)

	separate, err := x.Facts(docWithFacts(
		fact(testFactName, "X", "[[1,3]]", 0.0),
		fact(testFactName, "X", "[[5,7]]", 0.0),
	), testFactName, testDocPath)
	require.NoError(t, err)

	require.Len(t, combined[0], 2)
	require.Equal(t, separate, combined)
}

func TestSpansGroupsBySentence(t *testing.T) {
	doc := docWithFacts(
		fact(testFactName, "A", "[[0,1]]", 0.0),
		fact(testFactName, "B", "[[2,3]]", 2.0),
		fact(testFactName, "C", "[[4,5]]", "2"),
	)

	spans, err := New("").Spans(doc, testFactName, testDocPath)
	require.NoError(t, err)
	require.Equal(t, map[int][]domain.Span{
		0: {{Start: 0, End: 1}},
		2: {{Start: 2, End: 3}, {Start: 4, End: 5}},
	}, spans)
}

func TestSpansIgnoresOtherDocPaths(t *testing.T) {
	other := fact(testFactName, "A", "[[0,1]]", 0.0)
	other[keyDocPath] = "title"

	spans, err := New("").Spans(docWithFacts(other), testFactName, testDocPath)
	require.NoError(t, err)
	require.Empty(t, spans)
}

func TestExtractionErrors(t *testing.T) {
	noValue := fact(testFactName, "", "[[0,1]]", 0.0)
	delete(noValue, keyValue)

	noPath := fact(testFactName, "A", "[[0,1]]", 0.0)
	delete(noPath, keyDocPath)

	tests := []struct {
		name    string
		doc     domain.Document
		want    error
		field   string
		docPath string
	}{
		{
			name:    "missing sentence index",
			doc:     docWithFacts(fact(testFactName, "A", "[[0,1]]", nil)),
			want:    apperrors.ErrMissingField,
			field:   keySentenceIndex,
			docPath: testDocPath,
		},
		{
			name:    "missing value",
			doc:     docWithFacts(noValue),
			want:    apperrors.ErrMissingField,
			field:   keyValue,
			docPath: testDocPath,
		},
		{
			name:  "missing doc path",
			doc:   docWithFacts(noPath),
			want:  apperrors.ErrMissingField,
			field: keyDocPath,
		},
		{
			name:    "malformed span json",
			doc:     docWithFacts(fact(testFactName, "A", "[[0,1", 0.0)),
			want:    apperrors.ErrMalformedAnnotation,
			field:   keySpans,
			docPath: testDocPath,
		},
		{
			name:    "negative sentence index",
			doc:     docWithFacts(fact(testFactName, "A", "[[0,1]]", -1.0)),
			want:    apperrors.ErrMalformedAnnotation,
			field:   keySentenceIndex,
			docPath: testDocPath,
		},
		{
			name:    "inverted span",
			doc:     docWithFacts(fact(testFactName, "A", "[[5,1]]", 0.0)),
			want:    apperrors.ErrMalformedAnnotation,
			field:   keySpans,
			docPath: testDocPath,
		},
		{
			name: "malformed facts field",
			doc: domain.Document{ID: "bad", Source: map[string]interface{}{
				domain.DefaultFactsField: "{not json",
			}},
			want:  apperrors.ErrMalformedAnnotation,
			field: domain.DefaultFactsField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("").Spans(tt.doc, testFactName, testDocPath)
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.want), "got %v", err)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			require.Equal(t, tt.field, fe.Field)
			require.Equal(t, tt.docPath, fe.DocPath)
		})
	}
}
