package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchbridge/searchbridge/internal/rategate"
)

// fakeClient counts calls and returns canned results or an error.
type fakeClient struct {
	err     error
	results []Result
	calls   atomic.Int64
}

func (f *fakeClient) WebSearch(_ context.Context, _ Query) ([]Result, error) {
	f.calls.Add(1)
	return f.results, f.err
}

func (f *fakeClient) LocalSearch(ctx context.Context, q Query) ([]Result, error) {
	return f.WebSearch(ctx, q)
}

func fixedSettings(s Settings) func() Settings {
	return func() Settings { return s }
}

func TestRouter_TavilyOnly(t *testing.T) {
	brave := &fakeClient{results: []Result{{Title: "b"}}}
	tavily := &fakeClient{results: []Result{{Title: "t"}}}
	r := NewRouter(brave, tavily, rategate.New("brave", 0), nil,
		fixedSettings(Settings{Mode: ModeTavilyOnly}))

	results, err := r.Route(context.Background(), Query{Query: "q"}, false)

	require.NoError(t, err)
	assert.Equal(t, []Result{{Title: "t"}}, results)
	assert.Zero(t, brave.calls.Load())
}

func TestRouter_BraveOnly(t *testing.T) {
	t.Run("routes to brave", func(t *testing.T) {
		brave := &fakeClient{results: []Result{{Title: "b"}}}
		tavily := &fakeClient{}
		r := NewRouter(brave, tavily, rategate.New("brave", 0), nil,
			fixedSettings(Settings{Mode: ModeBraveOnly}))

		results, err := r.Route(context.Background(), Query{Query: "q"}, false)

		require.NoError(t, err)
		assert.Equal(t, []Result{{Title: "b"}}, results)
		assert.Zero(t, tavily.calls.Load())
	})

	t.Run("surfaces brave error without fallback", func(t *testing.T) {
		brave := &fakeClient{err: ErrTransient}
		tavily := &fakeClient{results: []Result{{Title: "t"}}}
		r := NewRouter(brave, tavily, rategate.New("brave", 0), nil,
			fixedSettings(Settings{Mode: ModeBraveOnly}))

		_, err := r.Route(context.Background(), Query{Query: "q"}, false)

		assert.ErrorIs(t, err, ErrTransient)
		assert.Zero(t, tavily.calls.Load())
	})

	t.Run("not configured", func(t *testing.T) {
		r := NewRouter(nil, &fakeClient{}, rategate.New("brave", 0), nil,
			fixedSettings(Settings{Mode: ModeBraveOnly}))

		_, err := r.Route(context.Background(), Query{Query: "q"}, false)

		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}

func TestRouter_Combined(t *testing.T) {
	t.Run("concatenates brave first", func(t *testing.T) {
		brave := &fakeClient{results: []Result{{Title: "b1"}, {Title: "b2"}}}
		tavily := &fakeClient{results: []Result{{Title: "t1"}}}
		r := NewRouter(brave, tavily, rategate.New("brave", 0), nil,
			fixedSettings(Settings{Mode: ModeCombined}))

		results, err := r.Route(context.Background(), Query{Query: "q"}, false)

		require.NoError(t, err)
		assert.Equal(t, []Result{{Title: "b1"}, {Title: "b2"}, {Title: "t1"}}, results)
	})

	t.Run("tolerates one side failing", func(t *testing.T) {
		brave := &fakeClient{err: ErrTransient}
		tavily := &fakeClient{results: []Result{{Title: "t1"}}}
		r := NewRouter(brave, tavily, rategate.New("brave", 0), nil,
			fixedSettings(Settings{Mode: ModeCombined}))

		results, err := r.Route(context.Background(), Query{Query: "q"}, false)

		require.NoError(t, err)
		assert.Equal(t, []Result{{Title: "t1"}}, results)
	})

	t.Run("fails when both sides fail", func(t *testing.T) {
		brave := &fakeClient{err: ErrTransient}
		tavily := &fakeClient{err: ErrUpstreamUnavailable}
		r := NewRouter(brave, tavily, rategate.New("brave", 0), nil,
			fixedSettings(Settings{Mode: ModeCombined}))

		_, err := r.Route(context.Background(), Query{Query: "q"}, false)

		assert.ErrorIs(t, err, ErrTransient)
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	})
}

func TestRouter_BravePrefer(t *testing.T) {
	t.Run("brave succeeds", func(t *testing.T) {
		brave := &fakeClient{results: []Result{{Title: "b"}}}
		tavily := &fakeClient{results: []Result{{Title: "t"}}}
		r := NewRouter(brave, tavily, rategate.New("brave", 0), nil,
			fixedSettings(Settings{Mode: ModeBravePrefer, Overflow: OverflowFallback}))

		results, err := r.Route(context.Background(), Query{Query: "q"}, false)

		require.NoError(t, err)
		assert.Equal(t, []Result{{Title: "b"}}, results)
		assert.Zero(t, tavily.calls.Load())
	})

	t.Run("falls back on brave failure", func(t *testing.T) {
		brave := &fakeClient{err: &UpstreamError{Status: 500, Message: "boom"}}
		tavily := &fakeClient{results: []Result{{Title: "t"}}}
		r := NewRouter(brave, tavily, rategate.New("brave", 0), nil,
			fixedSettings(Settings{Mode: ModeBravePrefer, Overflow: OverflowFallback}))

		results, err := r.Route(context.Background(), Query{Query: "q"}, false)

		require.NoError(t, err)
		assert.Equal(t, []Result{{Title: "t"}}, results)
	})

	t.Run("falls back when brave unconfigured", func(t *testing.T) {
		tavily := &fakeClient{results: []Result{{Title: "t"}}}
		r := NewRouter(nil, tavily, rategate.New("brave", 0), nil,
			fixedSettings(Settings{Mode: ModeBravePrefer, Overflow: OverflowFallback}))

		results, err := r.Route(context.Background(), Query{Query: "q"}, false)

		require.NoError(t, err)
		assert.Equal(t, []Result{{Title: "t"}}, results)
	})

	// Overflow scenario: gate paced at 1s, budget 10ms; the first call hits
	// Brave, the immediate second call overflows and hits Tavily.
	t.Run("overflow fallback_to_tavily", func(t *testing.T) {
		brave := &fakeClient{results: []Result{{Title: "b"}}}
		tavily := &fakeClient{results: []Result{{Title: "t"}}}
		gate := rategate.New("brave", time.Second)
		r := NewRouter(brave, tavily, gate, nil, fixedSettings(Settings{
			Mode:          ModeBravePrefer,
			Overflow:      OverflowFallback,
			BraveMaxQueue: 10 * time.Millisecond,
		}))

		first, err := r.Route(context.Background(), Query{Query: "q"}, false)
		require.NoError(t, err)
		assert.Equal(t, []Result{{Title: "b"}}, first)

		second, err := r.Route(context.Background(), Query{Query: "q"}, false)
		require.NoError(t, err)
		assert.Equal(t, []Result{{Title: "t"}}, second)
		assert.Equal(t, int64(1), brave.calls.Load())
		assert.Equal(t, int64(1), tavily.calls.Load())
	})

	t.Run("overflow error surfaces gate timeout", func(t *testing.T) {
		brave := &fakeClient{results: []Result{{Title: "b"}}}
		tavily := &fakeClient{results: []Result{{Title: "t"}}}
		gate := rategate.New("brave", time.Second)
		r := NewRouter(brave, tavily, gate, nil, fixedSettings(Settings{
			Mode:          ModeBravePrefer,
			Overflow:      OverflowError,
			BraveMaxQueue: 10 * time.Millisecond,
		}))

		_, err := r.Route(context.Background(), Query{Query: "q"}, false)
		require.NoError(t, err)

		_, err = r.Route(context.Background(), Query{Query: "q"}, false)
		var timeout *rategate.TimeoutError
		require.ErrorAs(t, err, &timeout)
		assert.Zero(t, tavily.calls.Load())
	})

	t.Run("surfaces brave error when tavily unconfigured", func(t *testing.T) {
		brave := &fakeClient{err: ErrTransient}
		r := NewRouter(brave, nil, rategate.New("brave", 0), nil,
			fixedSettings(Settings{Mode: ModeBravePrefer, Overflow: OverflowFallback}))

		_, err := r.Route(context.Background(), Query{Query: "q"}, false)

		assert.ErrorIs(t, err, ErrTransient)
	})
}

func TestLoggingClient_Passthrough(t *testing.T) {
	t.Run("results pass through", func(t *testing.T) {
		inner := &fakeClient{results: []Result{{Title: "x"}}}
		c := WithLogging("brave", inner)

		results, err := c.WebSearch(context.Background(), Query{Query: "q"})

		require.NoError(t, err)
		assert.Equal(t, []Result{{Title: "x"}}, results)
	})

	t.Run("errors pass through untouched", func(t *testing.T) {
		sentinel := errors.New("inner failure")
		inner := &fakeClient{err: sentinel}
		c := WithLogging("brave", inner)

		_, err := c.LocalSearch(context.Background(), Query{Query: "q"})

		assert.ErrorIs(t, err, sentinel)
	})
}
