package search

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LoggingClient decorates a Client with request-scoped debug logging.
// The inner client's error taxonomy passes through untouched.
type LoggingClient struct {
	inner    Client
	provider string
}

// WithLogging wraps a client so calls are logged under the given provider tag.
func WithLogging(provider string, inner Client) *LoggingClient {
	return &LoggingClient{inner: inner, provider: provider}
}

// WebSearch logs and delegates.
func (c *LoggingClient) WebSearch(ctx context.Context, q Query) ([]Result, error) {
	return c.observe(ctx, "web", q, func() ([]Result, error) {
		return c.inner.WebSearch(ctx, q)
	})
}

// LocalSearch logs and delegates.
func (c *LoggingClient) LocalSearch(ctx context.Context, q Query) ([]Result, error) {
	return c.observe(ctx, "local", q, func() ([]Result, error) {
		return c.inner.LocalSearch(ctx, q)
	})
}

func (c *LoggingClient) observe(ctx context.Context, kind string, q Query, call func() ([]Result, error)) ([]Result, error) {
	start := time.Now()
	results, err := call()

	event := zerolog.Ctx(ctx).Debug().
		Str("provider", c.provider).
		Str("kind", kind).
		Int("count", q.Count).
		Dur("elapsed", time.Since(start))

	if err != nil {
		event.Err(err).Msg("upstream search failed")
		return nil, err
	}

	event.Int("results", len(results)).Msg("upstream search ok")
	return results, nil
}
