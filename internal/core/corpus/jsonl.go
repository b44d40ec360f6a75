// Package corpus provides an in-memory corpus loaded from JSON Lines, one
// document per line. It backs the offline evaluation tool and fixtures.
package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
	"github.com/lueurxax/fact-evaluator/internal/core/ports"
)

const (
	maxLineSize = 16 * 1024 * 1024
	fieldID     = "id"
	matchAll    = "*:*"
	keyFact     = "fact"
	keyValue    = "str_val"
)

// Store is a read-only corpus held in memory.
type Store struct {
	docs       []domain.Document
	factsField string
}

var (
	_ ports.CorpusReader = (*Store)(nil)
	_ ports.FactCatalog  = (*Store)(nil)
)

// Open loads the JSONL file at path.
func Open(path, factsField string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	return Load(f, factsField)
}

// Load reads one JSON object per line. Blank lines are ignored; a document
// without an id gets "line-N".
func Load(r io.Reader, factsField string) (*Store, error) {
	if factsField == "" {
		factsField = domain.DefaultFactsField
	}

	s := &Store{factsField: factsField}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for sc.Scan() {
		line++

		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}

		var src map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &src); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", apperrors.ErrInvalidInput, line, err)
		}

		id, _ := src[fieldID].(string)
		if id == "" {
			id = "line-" + strconv.Itoa(line)
		}

		s.docs = append(s.docs, domain.Document{ID: id, Source: src})
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	return s, nil
}

// Len returns the number of loaded documents.
func (s *Store) Len() int {
	return len(s.docs)
}

// Count returns how many documents match query.
func (s *Store) Count(_ context.Context, query string) (int, error) {
	match, err := parseQuery(query)
	if err != nil {
		return 0, err
	}

	n := 0

	for _, d := range s.docs {
		if match(d) {
			n++
		}
	}

	return n, nil
}

// Scroll pages through the matching documents in file order.
func (s *Store) Scroll(_ context.Context, req ports.ScrollRequest) (ports.Scroller, error) {
	if req.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", apperrors.ErrInvalidInput)
	}

	match, err := parseQuery(req.Query)
	if err != nil {
		return nil, err
	}

	return &scroller{docs: s.docs, match: match, size: req.BatchSize}, nil
}

// FactValues returns the distinct values of factName among matching
// documents, sorted. Documents whose facts cannot be decoded are ignored.
func (s *Store) FactValues(_ context.Context, query, factName string) ([]string, error) {
	match, err := parseQuery(query)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})

	for _, d := range s.docs {
		if !match(d) {
			continue
		}

		facts, err := d.RawFacts(s.factsField)
		if err != nil {
			continue
		}

		for _, f := range facts {
			if name, _ := f[keyFact].(string); name != factName {
				continue
			}

			if v, ok := f[keyValue].(string); ok {
				seen[v] = struct{}{}
			}
		}
	}

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}

	sort.Strings(values)

	return values, nil
}

type matcher func(domain.Document) bool

// parseQuery understands match-all ("" or "*:*") and a single exact
// "field:value" term.
func parseQuery(query string) (matcher, error) {
	query = strings.TrimSpace(query)
	if query == "" || query == matchAll {
		return func(domain.Document) bool { return true }, nil
	}

	field, value, ok := strings.Cut(query, ":")
	if !ok || field == "" {
		return nil, fmt.Errorf("%w: unsupported query %q", apperrors.ErrInvalidInput, query)
	}

	value = strings.Trim(value, `"`)

	return func(d domain.Document) bool {
		text, ok := d.Text(field)

		return ok && text == value
	}, nil
}

type scroller struct {
	docs   []domain.Document
	match  matcher
	size   int
	offset int
}

func (s *scroller) Next(ctx context.Context) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := make([]domain.Document, 0, s.size)

	for s.offset < len(s.docs) && len(batch) < s.size {
		d := s.docs[s.offset]
		s.offset++

		if s.match(d) {
			batch = append(batch, d)
		}
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}

	return batch, nil
}
