// Package search queries the Serper web search API for evidence snippets.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/urdufact-go/internal/config"
	"github.com/raphaelgruber/urdufact-go/internal/cost"
	"github.com/raphaelgruber/urdufact-go/internal/metrics"
)

const (
	// DefaultEndpoint is the Serper search endpoint.
	DefaultEndpoint = "https://google.serper.dev/search"

	// ToolName identifies Serper calls in the search ledger.
	ToolName = cost.SerperTool
)

// ErrNoAPIKey is returned when the client is built without an API key.
var ErrNoAPIKey = errors.New("serper API key required")

// Result is one organic search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// CreditRecorder receives the credits spent by each search.
type CreditRecorder interface {
	RecordSearch(ctx context.Context, tool string, credits int64) error
}

// Client implements Searcher against the Serper API.
type Client struct {
	apiKey   string
	endpoint string
	num      int
	country  string
	language string
	client   *http.Client
	credits  CreditRecorder
	metrics  *metrics.Collector
	logger   *slog.Logger
}

var _ Searcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithCreditRecorder records spent credits.
func WithCreditRecorder(r CreditRecorder) Option {
	return func(cl *Client) { cl.credits = r }
}

// WithMetrics records search timings.
func WithMetrics(m *metrics.Collector) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a Serper client from search configuration.
func NewClient(cfg config.SearchConfig, opts ...Option) (*Client, error) {
	if cfg.SerperAPIKey == "" {
		return nil, ErrNoAPIKey
	}
	c := &Client{
		apiKey:   cfg.SerperAPIKey,
		endpoint: cfg.SerperURL,
		num:      cfg.Results,
		country:  cfg.Country,
		language: cfg.Language,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default(),
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.num <= 0 {
		c.num = 5
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type serperRequest struct {
	Q   string `json:"q"`
	GL  string `json:"gl,omitempty"`
	HL  string `json:"hl,omitempty"`
	Num int    `json:"num,omitempty"`
}

type serperResponse struct {
	Organic []Result `json:"organic"`
	// Older responses omit credits; each call costs one.
	Credits *int64 `json:"credits"`
}

// Search returns the organic results for query.
func (c *Client) Search(ctx context.Context, query string) (_ []Result, err error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.Observe(metrics.OpSearch, time.Since(start), err)
		}
	}()

	body, err := json.Marshal(serperRequest{Q: query, GL: c.country, HL: c.language, Num: c.num})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var sr serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	credits := int64(1)
	if sr.Credits != nil {
		credits = *sr.Credits
	}
	if c.credits != nil {
		if err := c.credits.RecordSearch(ctx, ToolName, credits); err != nil {
			c.logger.Warn("record search credits", "error", err)
		}
	}

	c.logger.Debug("search", "query", query, "results", len(sr.Organic), "credits", credits)
	return sr.Organic, nil
}

// APIError is a non-200 response from Serper.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("serper API error (status %d): %s", e.StatusCode, e.Body)
}

// Fatal reports whether retrying cannot help.
func (e *APIError) Fatal() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
