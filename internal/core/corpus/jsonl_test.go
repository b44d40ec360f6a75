package corpus

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
	"github.com/lueurxax/fact-evaluator/internal/core/ports"
)

const fixture = `{"id":"a","lang":"et","texta_facts":[{"fact":"TOPIC","str_val":"sports"}]}

{"lang":"en","texta_facts":"[{\"fact\":\"TOPIC\",\"str_val\":\"economy\"},{\"fact\":\"PER\",\"str_val\":\"Anna\"}]"}
{"id":"c","lang":"et","texta_facts":[{"fact":"TOPIC","str_val":"sports"}]}
{"id":"d","lang":"et","texta_facts":"not json"}
`

func load(t *testing.T) *Store {
	t.Helper()

	s, err := Load(strings.NewReader(fixture), "")
	require.NoError(t, err)

	return s
}

func collect(t *testing.T, sc ports.Scroller) [][]string {
	t.Helper()

	var pages [][]string

	for {
		docs, err := sc.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return pages
		}

		require.NoError(t, err)

		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}

		pages = append(pages, ids)
	}
}

func TestLoadAssignsLineIDs(t *testing.T) {
	s := load(t)

	assert.Equal(t, 4, s.Len())

	sc, err := s.Scroll(context.Background(), ports.ScrollRequest{BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "line-3", "c", "d"}}, collect(t, sc))
}

func TestLoadRejectsBadLine(t *testing.T) {
	_, err := Load(strings.NewReader("{\"id\":\"a\"}\n{oops\n"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "line 2")
}

func TestScrollBatchesAndQuery(t *testing.T) {
	s := load(t)

	tests := []struct {
		name  string
		query string
		size  int
		want  [][]string
	}{
		{name: "match all", query: "*:*", size: 3, want: [][]string{{"a", "line-3", "c"}, {"d"}}},
		{name: "field filter", query: "lang:et", size: 2, want: [][]string{{"a", "c"}, {"d"}}},
		{name: "quoted value", query: `lang:"en"`, size: 2, want: [][]string{{"line-3"}}},
		{name: "no match", query: "lang:fi", size: 2, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := s.Scroll(context.Background(), ports.ScrollRequest{Query: tt.query, BatchSize: tt.size})
			require.NoError(t, err)
			assert.Equal(t, tt.want, collect(t, sc))

			n, err := s.Count(context.Background(), tt.query)
			require.NoError(t, err)

			total := 0
			for _, p := range tt.want {
				total += len(p)
			}

			assert.Equal(t, total, n)
		})
	}
}

func TestScrollValidation(t *testing.T) {
	s := load(t)

	_, err := s.Scroll(context.Background(), ports.ScrollRequest{BatchSize: 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.Scroll(context.Background(), ports.ScrollRequest{Query: "nofield", BatchSize: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestFactValues(t *testing.T) {
	s := load(t)

	values, err := s.FactValues(context.Background(), "", "TOPIC")
	require.NoError(t, err)
	assert.Equal(t, []string{"economy", "sports"}, values)

	values, err = s.FactValues(context.Background(), "lang:et", "TOPIC")
	require.NoError(t, err)
	assert.Equal(t, []string{"sports"}, values)

	values, err = s.FactValues(context.Background(), "", "ORG")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	s, err := Open(path, "texta_facts")
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	_, err = Open(filepath.Join(t.TempDir(), "missing.jsonl"), "")
	assert.Error(t, err)
}
