// Package solr provides a client for the Solr collection that holds the
// annotated corpus, and adapts it to the evaluator's corpus ports.
//
// The Client is used for:
//   - Counting the documents a query matches
//   - Deep paging through a query with cursorMark
//   - Faceting fact values for run validation
//
// The client handles JSON decoding, error handling, rate limiting and retries.
package solr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lueurxax/fact-evaluator/internal/platform/observability"
)

const (
	defaultTimeout      = 30 * time.Second
	healthCheckTimeout  = 5 * time.Second
	selectPath          = "/select"
	pingPath            = "/admin/ping"
	contentTypeForm     = "application/x-www-form-urlencoded"
	headerContentType   = "Content-Type"
	maxResponseBodySize = 64 * 1024 * 1024 // 64MB, one scroll page of annotated documents
	errBodyReadLimit    = 1024
	errStatusBodyFmt    = "%w: status %d, body: %s"
	errStatusFmt        = "%w: status %d"
	maxURILength        = 4096
	fieldID             = "id"
	matchAll            = "*:*"
	cursorStart         = "*"
)

// Client provides methods to interact with a SolrCloud collection.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	enabled    bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// New creates a new Solr client with the given configuration.
func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limit := rate.Inf
	if cfg.MaxRPS > 0 {
		limit = rate.Limit(cfg.MaxRPS)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		enabled: cfg.BaseURL != "", // Enabled if BaseURL is configured
		limiter: rate.NewLimiter(limit, 1),
		retry:   DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Enabled returns whether the client is enabled.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Ping checks if Solr is reachable and the collection exists.
func (c *Client) Ping(ctx context.Context) error {
	if !c.enabled {
		return ErrClientDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pingPath, nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(errStatusFmt, ErrServerError, resp.StatusCode)
	}

	return nil
}

// Search executes a search query. Transient failures are retried.
// Uses GET for short queries, POST for long queries to avoid URI length limits.
func (c *Client) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	return c.search(ctx, "search", query, opts...)
}

func (c *Client) search(ctx context.Context, operation, query string, opts ...SearchOption) (*SearchResponse, error) {
	if !c.enabled {
		return nil, ErrClientDisabled
	}

	if strings.TrimSpace(query) == "" {
		query = matchAll
	}

	params := &searchParams{q: query}

	for _, opt := range opts {
		opt(params)
	}

	start := time.Now()

	var resp *SearchResponse

	err := withRetry(ctx, c.retry, func() error {
		var err error

		resp, err = c.doSearch(ctx, params)

		return err
	})

	observability.CorpusRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.CorpusRequestErrors.WithLabelValues(operation).Inc()

		return nil, err
	}

	return resp, nil
}

func (c *Client) doSearch(ctx context.Context, params *searchParams) (*SearchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := c.newSearchRequest(ctx, params.values())
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var result SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	return &result, nil
}

// newSearchRequest sends the query string as a form body once it would
// exceed maxURILength, which Solr rejects with 414.
func (c *Client) newSearchRequest(ctx context.Context, values url.Values) (*http.Request, error) {
	encoded := values.Encode()
	endpoint := c.baseURL + selectPath

	if len(endpoint)+1+len(encoded) <= maxURILength {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+encoded, nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
	if err != nil {
		return nil, err
	}

	req.Header.Set(headerContentType, contentTypeForm)

	return req, nil
}

func statusError(resp *http.Response) error {
	kind := ErrServerError
	if resp.StatusCode == http.StatusBadRequest {
		kind = ErrBadRequest
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, errBodyReadLimit))
	if readErr != nil || len(body) == 0 {
		return fmt.Errorf(errStatusFmt, kind, resp.StatusCode)
	}

	return fmt.Errorf(errStatusBodyFmt, kind, resp.StatusCode, strings.TrimSpace(string(body)))
}

// searchParams is one /select request.
type searchParams struct {
	q           string
	fields      []string
	rows        int
	sort        string
	cursorMark  string
	facetField  string
	facetPrefix string
}

// SearchOption configures a search query.
type SearchOption func(*searchParams)

// WithFields limits the stored fields returned per document.
func WithFields(fields ...string) SearchOption {
	return func(p *searchParams) { p.fields = append(p.fields, fields...) }
}

// WithRows sets the page size. Zero returns only numFound.
func WithRows(rows int) SearchOption {
	return func(p *searchParams) { p.rows = rows }
}

// WithSort sets the sort clause.
func WithSort(sort string) SearchOption {
	return func(p *searchParams) { p.sort = sort }
}

// WithCursorMark enables deep paging from the given cursor. The sort must
// include the collection's unique key.
func WithCursorMark(mark string) SearchOption {
	return func(p *searchParams) { p.cursorMark = mark }
}

// WithFacetPrefix facets on field, keeping only terms starting with prefix.
func WithFacetPrefix(field, prefix string) SearchOption {
	return func(p *searchParams) {
		p.facetField = field
		p.facetPrefix = prefix
	}
}

func (p *searchParams) values() url.Values {
	v := url.Values{
		"q":    {p.q},
		"rows": {strconv.Itoa(p.rows)},
		"wt":   {"json"},
	}

	if len(p.fields) > 0 {
		v.Set("fl", strings.Join(p.fields, ","))
	}

	if p.sort != "" {
		v.Set("sort", p.sort)
	}

	if p.cursorMark != "" {
		v.Set("cursorMark", p.cursorMark)
	}

	if p.facetField == "" {
		return v
	}

	v.Set("facet", "true")
	v.Set("facet.field", p.facetField)
	v.Set("facet.limit", "-1")
	v.Set("facet.mincount", "1")

	if p.facetPrefix != "" {
		v.Set("facet.prefix", p.facetPrefix)
	}

	return v
}
