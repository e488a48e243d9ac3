// Package credits fetches remote credit state for upstream keys.
//
// The client talks to the provider's usage endpoint and classifies failures
// into the shared upstream taxonomy. Only transient transport failures are
// retried; auth rejections and explicit quota responses fail fast.
package credits

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
	"github.com/tidwall/gjson"

	"github.com/searchbridge/searchbridge/internal/search"
)

// DefaultBaseURL is the Tavily API root.
const DefaultBaseURL = "https://api.tavily.com"

// Snapshot is a read-only view of a key's remote credit state.
type Snapshot struct {
	// Remaining is the computed usable credit count. None means the
	// provider reported no limit (treated as unlimited by the pool).
	Remaining mo.Option[int]

	// Per-key breakdown.
	KeyUsage mo.Option[int]
	KeyLimit mo.Option[int]

	// Account breakdown (plan allowance plus pay-as-you-go).
	PlanUsage  mo.Option[int]
	PlanLimit  mo.Option[int]
	PaygoUsage mo.Option[int]
	PaygoLimit mo.Option[int]
}

// Options bounds a credit fetch.
type Options struct {
	// Timeout bounds each HTTP attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// RetryDelay is the wait between retries.
	RetryDelay time.Duration
}

// Client fetches credit snapshots from the provider usage endpoint.
type Client struct {
	baseURL string
	opts    Options
}

// NewClient creates a credits Client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts Options) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Client{baseURL: baseURL, opts: opts}
}

// Fetch retrieves the current credit snapshot for apiKey.
// Fails with search.ErrInvalidKey on 401/403, search.ErrQuotaExceeded on an
// explicit quota response, and search.ErrTransient otherwise.
func (c *Client) Fetch(ctx context.Context, apiKey string) (Snapshot, error) {
	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: c.opts.Timeout}
	client.RetryMax = c.opts.MaxRetries
	client.RetryWaitMin = c.opts.RetryDelay
	client.RetryWaitMax = c.opts.RetryDelay
	client.Logger = &retryLogger{log: log.Logger}
	client.CheckRetry = checkRetry

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/usage", nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("credits: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", search.ErrTransient, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read body: %w", search.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Snapshot{}, fmt.Errorf("%w: usage endpoint returned %d", search.ErrInvalidKey, resp.StatusCode)
	case isQuotaStatus(resp.StatusCode):
		return Snapshot{}, fmt.Errorf("%w: usage endpoint returned %d", search.ErrQuotaExceeded, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Snapshot{}, fmt.Errorf("%w: usage endpoint returned %d", search.ErrTransient, resp.StatusCode)
	}

	return parseSnapshot(body), nil
}

// isQuotaStatus reports an explicit out-of-credits response.
// Tavily signals plan exhaustion with 432.
func isQuotaStatus(status int) bool {
	return status == 432 || status == http.StatusPaymentRequired
}

// checkRetry retries only transient transport failures and 5xx responses.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	return resp.StatusCode >= 500, nil
}

// parseSnapshot extracts the usage breakdown from the response body.
func parseSnapshot(body []byte) Snapshot {
	snap := Snapshot{
		KeyUsage:   intField(body, "key.usage"),
		KeyLimit:   intField(body, "key.limit"),
		PlanUsage:  intField(body, "account.plan_usage"),
		PlanLimit:  intField(body, "account.plan_limit"),
		PaygoUsage: intField(body, "account.paygo_usage"),
		PaygoLimit: intField(body, "account.paygo_limit"),
	}
	snap.Remaining = computeRemaining(snap)
	return snap
}

// computeRemaining derives usable credits, preferring the per-key limit and
// falling back to the account allowance (plan plus paygo).
func computeRemaining(s Snapshot) mo.Option[int] {
	if limit, ok := s.KeyLimit.Get(); ok {
		return mo.Some(limit - s.KeyUsage.OrElse(0))
	}

	planLimit, planOK := s.PlanLimit.Get()
	if !planOK {
		return mo.None[int]()
	}

	remaining := planLimit - s.PlanUsage.OrElse(0)
	if paygoLimit, ok := s.PaygoLimit.Get(); ok {
		remaining += paygoLimit - s.PaygoUsage.OrElse(0)
	}
	return mo.Some(remaining)
}

func intField(body []byte, path string) mo.Option[int] {
	v := gjson.GetBytes(body, path)
	if !v.Exists() || v.Type != gjson.Number {
		return mo.None[int]()
	}
	return mo.Some(int(v.Int()))
}

// retryLogger adapts zerolog to the retryablehttp.LeveledLogger interface.
type retryLogger struct {
	log zerolog.Logger
}

func (l *retryLogger) Error(msg string, kv ...any) { l.emit(l.log.Error(), msg, kv) }
func (l *retryLogger) Warn(msg string, kv ...any)  { l.emit(l.log.Warn(), msg, kv) }
func (l *retryLogger) Info(msg string, kv ...any)  { l.emit(l.log.Debug(), msg, kv) }
func (l *retryLogger) Debug(msg string, kv ...any) { l.emit(l.log.Debug(), msg, kv) }

func (l *retryLogger) emit(event *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		// The retry client passes request URLs here; keys never appear.
		event = event.Interface(key, kv[i+1])
	}
	event.Msg("credits: " + msg)
}
