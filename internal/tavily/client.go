// Package tavily implements the Tavily API client and the key-rotating
// wrapper that drives it through the key pool.
package tavily

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/searchbridge/searchbridge/internal/search"
)

// DefaultBaseURL is the Tavily API origin.
const DefaultBaseURL = "https://api.tavily.com"

const (
	searchPath  = "/search"
	extractPath = "/extract"

	defaultTimeout = 30 * time.Second
)

// ExtractRequest is a tavily_extract invocation: page content extraction
// for a list of URLs.
type ExtractRequest struct {
	URLs         []string
	ExtractDepth string // "basic" or "advanced"; empty takes the API default
	IncludeImage bool
}

// API is the per-key Tavily surface. The rotating client supplies a fresh
// key for every attempt, so the key travels as an argument rather than
// client state.
type API interface {
	// Search runs a web search with the given key and returns the raw body.
	Search(ctx context.Context, apiKey string, q search.Query) ([]byte, error)

	// Extract fetches page content for the given URLs and returns the raw body.
	Extract(ctx context.Context, apiKey string, req ExtractRequest) ([]byte, error)
}

// Options tunes the HTTP client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Client is the concrete Tavily HTTP client.
type Client struct {
	http    *http.Client
	baseURL string
}

var _ API = (*Client)(nil)

// New creates a Tavily client.
func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout, Transport: opts.Transport},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Search runs a web search. Extra parameters pass through to the request
// body unchanged.
func (c *Client) Search(ctx context.Context, apiKey string, q search.Query) ([]byte, error) {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "query", q.Query)
	if q.Count > 0 {
		body, _ = sjson.SetBytes(body, "max_results", q.Count)
	}
	for key, value := range q.Extra {
		if key == "query" || key == "max_results" {
			continue
		}
		if value == nil {
			continue
		}
		body, _ = sjson.SetBytes(body, key, value)
	}

	return c.post(ctx, apiKey, searchPath, body)
}

// Extract fetches page content for the given URLs.
func (c *Client) Extract(ctx context.Context, apiKey string, req ExtractRequest) ([]byte, error) {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "urls", req.URLs)
	if req.ExtractDepth != "" {
		body, _ = sjson.SetBytes(body, "extract_depth", req.ExtractDepth)
	}
	if req.IncludeImage {
		body, _ = sjson.SetBytes(body, "include_images", true)
	}

	return c.post(ctx, apiKey, extractPath, body)
}

func (c *Client) post(ctx context.Context, apiKey, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tavily: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", search.ErrTransient, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", search.ErrTransient, err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("provider", "tavily").
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("upstream search call")

	return classify(resp, raw)
}

// classify maps the response to the upstream error taxonomy. Tavily signals
// credit exhaustion with 432 (and historically 402).
func classify(resp *http.Response, raw []byte) ([]byte, error) {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", search.ErrInvalidKey, resp.StatusCode)

	case resp.StatusCode == 432 || resp.StatusCode == http.StatusPaymentRequired:
		return nil, fmt.Errorf("%w: status %d", search.ErrQuotaExceeded, resp.StatusCode)

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &search.RateLimitedError{}

	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", search.ErrTransient, resp.StatusCode)

	default:
		return nil, &search.UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(raw)}
	}
}

func upstreamMessage(raw []byte) string {
	if msg := gjson.GetBytes(raw, "detail.error").Str; msg != "" {
		return msg
	}
	if msg := gjson.GetBytes(raw, "message").Str; msg != "" {
		return msg
	}
	return strings.TrimSpace(string(raw))
}
