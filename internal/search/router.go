package search

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/searchbridge/searchbridge/internal/health"
	"github.com/searchbridge/searchbridge/internal/rategate"
)

// Settings is the routing policy snapshot resolved per tool call.
// Values come from the runtime config holder so hot reload takes effect
// without restarting in-flight routers.
type Settings struct {
	Mode          SourceMode
	Overflow      OverflowMode
	BraveMaxQueue time.Duration
}

// Router executes the routing plan for brave_* tool calls: Brave only,
// Tavily only, both combined, or Brave with Tavily fallback.
// Either client may be nil when the provider has no keys configured.
type Router struct {
	brave    Client
	tavily   Client
	gate     *rategate.Gate
	breaker  *health.Breaker
	settings func() Settings
}

// NewRouter creates a Router. gate paces Brave admissions; breaker
// short-circuits Brave when it is tripping.
func NewRouter(brave, tavily Client, gate *rategate.Gate, breaker *health.Breaker, settings func() Settings) *Router {
	return &Router{
		brave:    brave,
		tavily:   tavily,
		gate:     gate,
		breaker:  breaker,
		settings: settings,
	}
}

// Route runs one search under the configured source mode.
func (r *Router) Route(ctx context.Context, q Query, local bool) ([]Result, error) {
	s := r.settings()

	switch s.Mode {
	case ModeTavilyOnly:
		return r.callTavily(ctx, q, local)
	case ModeBraveOnly:
		return r.callBrave(ctx, q, local, -1)
	case ModeCombined:
		return r.combined(ctx, q, local)
	default:
		return r.bravePrefer(ctx, q, local, s)
	}
}

// bravePrefer tries Brave and falls back to Tavily when Brave
// is unconfigured, tripping, failing, or over its queue-wait budget.
func (r *Router) bravePrefer(ctx context.Context, q Query, local bool, s Settings) ([]Result, error) {
	if r.brave == nil {
		return r.callTavily(ctx, q, local)
	}
	if r.breaker != nil && r.breaker.State() == gobreaker.StateOpen {
		zerolog.Ctx(ctx).Debug().Msg("brave circuit open, routing to tavily")
		return r.callTavily(ctx, q, local)
	}

	maxWait := s.BraveMaxQueue
	if s.Overflow == OverflowQueue {
		maxWait = -1
	}

	results, err := r.callBrave(ctx, q, local, maxWait)
	if err == nil {
		return results, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	var timeout *rategate.TimeoutError
	if errors.As(err, &timeout) && s.Overflow == OverflowError {
		return nil, err
	}

	if r.tavily == nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Err(err).Msg("brave failed, falling back to tavily")
	return r.callTavily(ctx, q, local)
}

// combined queries both providers concurrently and concatenates normalized
// results, Brave first. One side failing is tolerated; the call fails
// only when every configured provider fails.
func (r *Router) combined(ctx context.Context, q Query, local bool) ([]Result, error) {
	if r.brave == nil && r.tavily == nil {
		return nil, ErrNotConfigured
	}
	if r.brave == nil {
		return r.callTavily(ctx, q, local)
	}
	if r.tavily == nil {
		return r.callBrave(ctx, q, local, -1)
	}

	var (
		braveResults, tavilyResults []Result
		braveErr, tavilyErr         error
		done                        = make(chan struct{})
	)

	go func() {
		defer close(done)
		tavilyResults, tavilyErr = r.callTavily(ctx, q, local)
	}()
	braveResults, braveErr = r.callBrave(ctx, q, local, -1)
	<-done

	if braveErr != nil && tavilyErr != nil {
		return nil, errors.Join(braveErr, tavilyErr)
	}
	if braveErr != nil {
		zerolog.Ctx(ctx).Warn().Err(braveErr).Msg("combined: brave side failed")
	}
	if tavilyErr != nil {
		zerolog.Ctx(ctx).Warn().Err(tavilyErr).Msg("combined: tavily side failed")
	}

	return append(braveResults, tavilyResults...), nil
}

// callBrave runs the Brave call behind the rate gate and the circuit
// breaker. maxWait < 0 queues without cap.
func (r *Router) callBrave(ctx context.Context, q Query, local bool, maxWait time.Duration) ([]Result, error) {
	if r.brave == nil {
		return nil, ErrNotConfigured
	}

	var results []Result
	err := r.gate.Run(ctx, maxWait, func(ctx context.Context) error {
		var done func(error)
		if r.breaker != nil {
			var allowErr error
			done, allowErr = r.breaker.Allow()
			if allowErr != nil {
				return allowErr
			}
		}

		var callErr error
		if local {
			results, callErr = r.brave.LocalSearch(ctx, q)
		} else {
			results, callErr = r.brave.WebSearch(ctx, q)
		}
		if done != nil {
			done(callErr)
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Router) callTavily(ctx context.Context, q Query, local bool) ([]Result, error) {
	if r.tavily == nil {
		return nil, ErrNotConfigured
	}
	if local {
		return r.tavily.LocalSearch(ctx, q)
	}
	return r.tavily.WebSearch(ctx, q)
}
