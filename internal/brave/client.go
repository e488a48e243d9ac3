// Package brave implements the Brave Search API client: request marshaling,
// subscription-token auth, and error classification into the shared upstream
// taxonomy.
package brave

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/searchbridge/searchbridge/internal/search"
)

// DefaultBaseURL is the Brave Search API origin.
const DefaultBaseURL = "https://api.search.brave.com"

const (
	webSearchPath = "/res/v1/web/search"

	defaultTimeout = 20 * time.Second

	defaultCount = 10
	maxCount     = 20
	maxOffset    = 9
)

// Options tunes the HTTP client.
type Options struct {
	// BaseURL overrides the API origin, mainly for tests.
	BaseURL string

	// Timeout bounds each request. Zero selects the 20s default.
	Timeout time.Duration

	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
}

// Client calls the Brave Search API with one subscription token.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

var _ search.Client = (*Client)(nil)

// New creates a Brave client. The API key must be non-empty; configuration
// validation rejects an empty key before this is reached.
func New(apiKey string, opts Options) *Client {
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
		apiKey:  apiKey,
	}
}

// WebSearch runs a web search and normalizes the response.
func (c *Client) WebSearch(ctx context.Context, q search.Query) ([]search.Result, error) {
	body, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return search.NormalizeWeb(body), nil
}

// LocalSearch runs a local search. Brave's places endpoint is a separate
// subscription tier, so local queries go through the web endpoint and the
// local normalizer absorbs either shape.
func (c *Client) LocalSearch(ctx context.Context, q search.Query) ([]search.Result, error) {
	body, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return search.NormalizeLocal(body), nil
}

// fetch performs one search request and classifies the response.
func (c *Client) fetch(ctx context.Context, q search.Query) ([]byte, error) {
	reqURL := c.buildURL(q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("brave: build request: %w", err)
	}
	req.Header.Set("X-Subscription-Token", c.apiKey)
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

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", search.ErrTransient, err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("provider", "brave").
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("upstream search call")

	return classify(resp, raw)
}

// classify maps the HTTP response to the upstream error taxonomy. A 2xx with
// a non-JSON body is wrapped so the normalizer still sees valid JSON.
func classify(resp *http.Response, raw []byte) ([]byte, error) {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if !gjson.ValidBytes(raw) {
			wrapped, err := sjson.SetBytes([]byte(`{}`), "message", string(raw))
			if err != nil {
				return []byte(`{}`), nil
			}
			return wrapped, nil
		}
		return raw, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", search.ErrInvalidKey, resp.StatusCode)

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &search.RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}

	default:
		return nil, &search.UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(raw)}
	}
}

// parseRetryAfter reads the delay-seconds form of Retry-After. The HTTP-date
// form and garbage both yield zero (no hint).
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func upstreamMessage(raw []byte) string {
	if msg := gjson.GetBytes(raw, "message").Str; msg != "" {
		return msg
	}
	if msg := gjson.GetBytes(raw, "error.detail").Str; msg != "" {
		return msg
	}
	return strings.TrimSpace(string(raw))
}

// buildURL marshals the query into the canonical search URL. Count and
// offset are clamped to the API's documented ranges; extra parameters pass
// through with arrays joined by commas and empty values omitted.
func (c *Client) buildURL(q search.Query) string {
	params := url.Values{}
	params.Set("q", q.Query)
	params.Set("count", strconv.Itoa(clamp(q.Count, 1, maxCount, defaultCount)))
	params.Set("offset", strconv.Itoa(clamp(q.Offset, 0, maxOffset, 0)))

	for _, key := range sortedKeys(q.Extra) {
		if key == "q" || key == "count" || key == "offset" {
			continue
		}
		if v, ok := encodeExtra(q.Extra[key]); ok {
			params.Set(key, v)
		}
	}

	return c.baseURL + webSearchPath + "?" + params.Encode()
}

// encodeExtra renders a pass-through parameter value. ok is false for
// values that must be omitted (nil, blank strings, empty slices).
func encodeExtra(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		trimmed := strings.TrimSpace(val)
		return trimmed, trimmed != ""
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		// JSON numbers decode as float64; render integers without a dot.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case []string:
		if len(val) == 0 {
			return "", false
		}
		return strings.Join(val, ","), true
	case []any:
		parts := lo.FilterMap(val, func(item any, _ int) (string, bool) {
			return encodeExtra(item)
		})
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, ","), true
	default:
		return fmt.Sprintf("%v", val), true
	}
}

func sortedKeys(m map[string]any) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

// clamp forces v into [lower, upper], substituting def when v is unset (zero).
func clamp(v, lower, upper, def int) int {
	if v == 0 {
		v = def
	}
	if v < lower {
		return lower
	}
	if v > upper {
		return upper
	}
	return v
}
