package solr

import "time"

// Config holds configuration for the Solr client.
type Config struct {
	// BaseURL is the Solr collection URL, e.g., "http://solr:8983/solr/corpus".
	BaseURL string
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
	// MaxRPS caps outgoing requests per second. Zero means unlimited.
	MaxRPS float64
	// FactKeysField is a multivalued string field indexing "NAME:value" for
	// every fact on the document. Fact values are faceted from it.
	FactKeysField string
	// SortField is the unique field cursor paging sorts on.
	SortField string
}

// SearchResponse represents the Solr search response.
type SearchResponse struct {
	Response       ResponseBody `json:"response"`
	FacetCounts    *FacetCounts `json:"facet_counts,omitempty"`
	NextCursorMark string       `json:"nextCursorMark,omitempty"` //nolint:tagliatelle // Solr API field name
}

// ResponseBody contains the main response data.
type ResponseBody struct {
	NumFound int        `json:"numFound"` //nolint:tagliatelle // Solr API field name
	Start    int        `json:"start"`
	Docs     []Document `json:"docs"`
}

// FacetCounts contains facet results. Each field maps to a flat
// [term, count, term, count, ...] list.
type FacetCounts struct {
	FacetFields map[string][]interface{} `json:"facet_fields,omitempty"`
}

// Document is a raw Solr document. Corpus documents have no fixed schema
// beyond the id field.
type Document map[string]interface{}

// ID returns the document's id field.
func (d Document) ID() string {
	s, _ := d[fieldID].(string)

	return s
}

// Terms decodes a facet field into term -> count.
func (f *FacetCounts) Terms(field string) map[string]int {
	if f == nil {
		return nil
	}

	raw := f.FacetFields[field]
	out := make(map[string]int, len(raw)/2)

	for i := 0; i+1 < len(raw); i += 2 {
		term, ok := raw[i].(string)
		if !ok {
			continue
		}

		count, ok := raw[i+1].(float64)
		if !ok {
			continue
		}

		out[term] = int(count)
	}

	return out
}
