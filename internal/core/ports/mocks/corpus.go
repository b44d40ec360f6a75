package mocks

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	"github.com/lueurxax/fact-evaluator/internal/core/ports"
)

// Corpus is a thread-safe in-memory implementation of ports.CorpusReader and
// ports.FactCatalog. Queries are ignored; every document matches.
type Corpus struct {
	mu          sync.RWMutex
	docs        []domain.Document
	factValues  map[string][]string
	scrollCalls int

	// CountFn allows overriding Count behavior.
	CountFn func(ctx context.Context, query string) (int, error)

	// NextFn allows overriding the batch returned by each scroll page.
	// page starts at zero.
	NextFn func(ctx context.Context, page int) ([]domain.Document, error)

	// FactValuesFn allows overriding FactValues behavior.
	FactValuesFn func(ctx context.Context, query, factName string) ([]string, error)
}

// NewCorpus creates a corpus holding docs.
func NewCorpus(docs ...domain.Document) *Corpus {
	return &Corpus{
		docs:       docs,
		factValues: make(map[string][]string),
	}
}

// Add appends documents.
func (c *Corpus) Add(docs ...domain.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs = append(c.docs, docs...)
}

// SetFactValues sets the values FactValues returns for factName.
func (c *Corpus) SetFactValues(factName string, values ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.factValues[factName] = values
}

// ScrollCalls returns how many scrolls were opened.
func (c *Corpus) ScrollCalls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.scrollCalls
}

// Count returns the number of stored documents.
func (c *Corpus) Count(ctx context.Context, query string) (int, error) {
	if c.CountFn != nil {
		return c.CountFn(ctx, query)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.docs), nil
}

// Scroll opens a scroll over a snapshot of the stored documents.
func (c *Corpus) Scroll(_ context.Context, req ports.ScrollRequest) (ports.Scroller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scrollCalls++

	size := req.BatchSize
	if size <= 0 {
		size = len(c.docs)
	}

	return &scroller{
		docs:   append([]domain.Document(nil), c.docs...),
		size:   size,
		nextFn: c.NextFn,
	}, nil
}

// FactValues returns the configured values of factName, sorted.
func (c *Corpus) FactValues(ctx context.Context, query, factName string) ([]string, error) {
	if c.FactValuesFn != nil {
		return c.FactValuesFn(ctx, query, factName)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	values := append([]string(nil), c.factValues[factName]...)
	sort.Strings(values)

	return values, nil
}

type scroller struct {
	docs   []domain.Document
	size   int
	offset int
	page   int
	nextFn func(ctx context.Context, page int) ([]domain.Document, error)
}

func (s *scroller) Next(ctx context.Context) ([]domain.Document, error) {
	if s.nextFn != nil {
		page := s.page
		s.page++

		return s.nextFn(ctx, page)
	}

	if s.offset >= len(s.docs) || s.size == 0 {
		return nil, io.EOF
	}

	end := s.offset + s.size
	if end > len(s.docs) {
		end = len(s.docs)
	}

	batch := s.docs[s.offset:end]
	s.offset = end

	return batch, nil
}
