package solr

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
	"github.com/lueurxax/fact-evaluator/internal/core/ports"
)

const (
	defaultFactKeysField = "texta_fact_keys"
	factKeySeparator     = ":"
)

// Corpus serves the evaluator's corpus ports from a Solr collection.
type Corpus struct {
	client        *Client
	factKeysField string
	sort          string
}

var (
	_ ports.CorpusReader = (*Corpus)(nil)
	_ ports.FactCatalog  = (*Corpus)(nil)
)

// NewCorpus adapts client using the field names in cfg.
func NewCorpus(client *Client, cfg Config) *Corpus {
	keys := cfg.FactKeysField
	if keys == "" {
		keys = defaultFactKeysField
	}

	return &Corpus{
		client:        client,
		factKeysField: keys,
		sort:          cursorSort(cfg.SortField),
	}
}

// cursorSort builds a sort that always ends on the unique key, which cursor
// paging requires.
func cursorSort(field string) string {
	if field == "" || field == fieldID {
		return fieldID + " asc"
	}

	return field + " asc," + fieldID + " asc"
}

// Count returns how many documents match query.
func (c *Corpus) Count(ctx context.Context, query string) (int, error) {
	resp, err := c.client.search(ctx, "count", query, WithRows(0))
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}

	return resp.Response.NumFound, nil
}

// Scroll opens a cursorMark scroll over query.
func (c *Corpus) Scroll(_ context.Context, req ports.ScrollRequest) (ports.Scroller, error) {
	if !c.client.Enabled() {
		return nil, ErrClientDisabled
	}

	if req.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", apperrors.ErrInvalidInput)
	}

	return &cursor{
		corpus: c,
		query:  req.Query,
		fields: withID(req.Fields),
		size:   req.BatchSize,
		mark:   cursorStart,
	}, nil
}

func withID(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}

	for _, f := range fields {
		if f == fieldID {
			return fields
		}
	}

	return append([]string{fieldID}, fields...)
}

// FactValues facets the fact keys field on "NAME:" and returns the distinct
// values, sorted.
func (c *Corpus) FactValues(ctx context.Context, query, factName string) ([]string, error) {
	prefix := factName + factKeySeparator

	resp, err := c.client.search(ctx, "facet", query, WithRows(0), WithFacetPrefix(c.factKeysField, prefix))
	if err != nil {
		return nil, fmt.Errorf("facet %q: %w", factName, err)
	}

	terms := resp.FacetCounts.Terms(c.factKeysField)
	values := make([]string, 0, len(terms))

	for term, count := range terms {
		if count <= 0 || !strings.HasPrefix(term, prefix) {
			continue
		}

		values = append(values, strings.TrimPrefix(term, prefix))
	}

	sort.Strings(values)

	return values, nil
}

// cursor pages through a query. It is not safe for concurrent use.
type cursor struct {
	corpus *Corpus
	query  string
	fields []string
	size   int
	mark   string
	done   bool
}

// Next returns the next page, or io.EOF once Solr stops advancing the cursor.
func (s *cursor) Next(ctx context.Context) ([]domain.Document, error) {
	if s.done {
		return nil, io.EOF
	}

	opts := []SearchOption{
		WithRows(s.size),
		WithSort(s.corpus.sort),
		WithCursorMark(s.mark),
	}
	if len(s.fields) > 0 {
		opts = append(opts, WithFields(s.fields...))
	}

	resp, err := s.corpus.client.search(ctx, "scroll", s.query, opts...)
	if err != nil {
		return nil, fmt.Errorf("scroll page: %w", err)
	}

	if resp.NextCursorMark == "" || resp.NextCursorMark == s.mark {
		s.done = true
	}

	s.mark = resp.NextCursorMark

	if len(resp.Response.Docs) == 0 {
		s.done = true

		return nil, io.EOF
	}

	docs := make([]domain.Document, len(resp.Response.Docs))
	for i, d := range resp.Response.Docs {
		docs[i] = domain.Document{ID: d.ID(), Source: d}
	}

	return docs, nil
}
