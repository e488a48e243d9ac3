package tavily

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchbridge/searchbridge/internal/keypool"
	"github.com/searchbridge/searchbridge/internal/reqctx"
	"github.com/searchbridge/searchbridge/internal/search"
)

// KeySource is the slice of the key pool the rotating client needs.
type KeySource interface {
	Select(ctx context.Context) (keypool.Selected, error)
	MarkInvalid(ctx context.Context, id string) error
	MarkCooldown(ctx context.Context, id string, until time.Time) error
}

// RotatingConfig tunes the attempt loop.
type RotatingConfig struct {
	// MaxRetries is the budget of transient and quota failures per request.
	MaxRetries int

	// FixedCooldown is applied when the provider reports quota exhaustion
	// or rate-limits without a retry hint.
	FixedCooldown time.Duration
}

func (c RotatingConfig) withDefaults() RotatingConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.FixedCooldown <= 0 {
		c.FixedCooldown = time.Minute
	}
	return c
}

// RotatingClient drives the Tavily API through the key pool: each request
// selects an eligible key and rotates away from keys the provider rejects.
// Invalid-key swaps do not consume the retry budget; only transient and
// quota failures do, so one poisoned record cannot exhaust a request.
type RotatingClient struct {
	api  API
	keys KeySource
	cfg  RotatingConfig
	now  func() time.Time
}

var _ search.Client = (*RotatingClient)(nil)

// NewRotatingClient wraps the API with key rotation.
func NewRotatingClient(api API, keys KeySource, cfg RotatingConfig) *RotatingClient {
	return &RotatingClient{
		api:  api,
		keys: keys,
		cfg:  cfg.withDefaults(),
		now:  time.Now,
	}
}

// WebSearch runs a web search under key rotation.
func (r *RotatingClient) WebSearch(ctx context.Context, q search.Query) ([]search.Result, error) {
	var results []search.Result
	err := r.do(ctx, func(apiKey string) error {
		body, err := r.api.Search(ctx, apiKey, q)
		if err != nil {
			return err
		}
		results = search.NormalizeTavily(body)
		return nil
	})
	return results, err
}

// LocalSearch delegates to web search; Tavily has no places endpoint.
func (r *RotatingClient) LocalSearch(ctx context.Context, q search.Query) ([]search.Result, error) {
	return r.WebSearch(ctx, q)
}

// Extract fetches page content under key rotation and returns the raw body.
func (r *RotatingClient) Extract(ctx context.Context, req ExtractRequest) ([]byte, error) {
	var body []byte
	err := r.do(ctx, func(apiKey string) error {
		var err error
		body, err = r.api.Extract(ctx, apiKey, req)
		return err
	})
	return body, err
}

// do runs the attempt loop: select a key, call, classify, rotate or retry.
func (r *RotatingClient) do(ctx context.Context, call func(apiKey string) error) error {
	logger := zerolog.Ctx(ctx)
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		selected, err := r.keys.Select(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", search.ErrUpstreamUnavailable, err)
		}

		// Transient failures retry with the same key before rotating.
		for {
			err = call(selected.APIKey)
			if err == nil {
				reqctx.RecordUpstreamKey(ctx, selected.ID)
				return nil
			}
			if !errors.Is(err, search.ErrTransient) {
				break
			}
			attempts++
			if attempts > r.cfg.MaxRetries {
				return fmt.Errorf("%w: %w", search.ErrUpstreamUnavailable, err)
			}
			logger.Debug().Str("key_id", selected.ID).Int("attempt", attempts).Msg("transient upstream failure, retrying")
		}

		switch {
		case errors.Is(err, search.ErrInvalidKey):
			logger.Warn().Str("key_id", selected.ID).Msg("upstream rejected key, rotating")
			if markErr := r.keys.MarkInvalid(ctx, selected.ID); markErr != nil {
				logger.Warn().Str("key_id", selected.ID).Err(markErr).Msg("failed to mark key invalid")
			}

		case errors.Is(err, search.ErrQuotaExceeded):
			attempts++
			r.cooldown(ctx, selected.ID, r.cfg.FixedCooldown)

		default:
			if retryAfter, ok := search.IsRateLimited(err); ok {
				attempts++
				if retryAfter <= 0 {
					retryAfter = r.cfg.FixedCooldown
				}
				r.cooldown(ctx, selected.ID, retryAfter)
				break
			}
			// Unclassified upstream errors are not retryable.
			return err
		}

		if attempts > r.cfg.MaxRetries {
			return fmt.Errorf("%w: %w", search.ErrUpstreamUnavailable, err)
		}
	}
}

func (r *RotatingClient) cooldown(ctx context.Context, keyID string, d time.Duration) {
	if err := r.keys.MarkCooldown(ctx, keyID, r.now().Add(d)); err != nil {
		zerolog.Ctx(ctx).Warn().Str("key_id", keyID).Err(err).Msg("failed to mark key cooldown")
	}
}
