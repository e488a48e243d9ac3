package tavily_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchbridge/searchbridge/internal/keypool"
	"github.com/searchbridge/searchbridge/internal/reqctx"
	"github.com/searchbridge/searchbridge/internal/search"
	"github.com/searchbridge/searchbridge/internal/tavily"
)

type fakeKeySource struct {
	mu        sync.Mutex
	queue     []keypool.Selected
	invalid   []string
	cooldowns map[string]time.Time
}

func newFakeKeySource(ids ...string) *fakeKeySource {
	s := &fakeKeySource{cooldowns: make(map[string]time.Time)}
	for _, id := range ids {
		s.queue = append(s.queue, keypool.Selected{ID: id, APIKey: "key-" + id})
	}
	return s
}

func (s *fakeKeySource) Select(context.Context) (keypool.Selected, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return keypool.Selected{}, keypool.ErrNoEligibleKeys
	}
	sel := s.queue[0]
	return sel, nil
}

func (s *fakeKeySource) MarkInvalid(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalid = append(s.invalid, id)
	s.drop(id)
	return nil
}

func (s *fakeKeySource) MarkCooldown(_ context.Context, id string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[id] = until
	s.drop(id)
	return nil
}

func (s *fakeKeySource) drop(id string) {
	for i, sel := range s.queue {
		if sel.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

type scriptedAPI struct {
	mu    sync.Mutex
	calls []string // api keys in call order
	fail  func(apiKey string, call int) error
}

func (a *scriptedAPI) Search(_ context.Context, apiKey string, _ search.Query) ([]byte, error) {
	a.mu.Lock()
	a.calls = append(a.calls, apiKey)
	n := len(a.calls)
	a.mu.Unlock()
	if a.fail != nil {
		if err := a.fail(apiKey, n); err != nil {
			return nil, err
		}
	}
	return []byte(`{"results":[{"title":"t","url":"u","content":"c"}]}`), nil
}

func (a *scriptedAPI) Extract(_ context.Context, apiKey string, _ tavily.ExtractRequest) ([]byte, error) {
	a.mu.Lock()
	a.calls = append(a.calls, apiKey)
	a.mu.Unlock()
	return []byte(`{"results":[]}`), nil
}

func (a *scriptedAPI) callKeys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func TestRotatingClient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("success on first key", func(t *testing.T) {
		t.Parallel()

		api := &scriptedAPI{}
		client := tavily.NewRotatingClient(api, newFakeKeySource("k1"), tavily.RotatingConfig{})

		got, err := client.WebSearch(ctx, search.Query{Query: "x"})
		require.NoError(t, err)
		assert.Equal(t, []search.Result{{Title: "t", URL: "u", Description: "c"}}, got)
		assert.Equal(t, []string{"key-k1"}, api.callKeys())
	})

	t.Run("serving key id recorded on context", func(t *testing.T) {
		t.Parallel()

		api := &scriptedAPI{fail: func(apiKey string, _ int) error {
			if apiKey == "key-k1" {
				return search.ErrInvalidKey
			}
			return nil
		}}
		client := tavily.NewRotatingClient(api, newFakeKeySource("k1", "k2"), tavily.RotatingConfig{})

		keyCtx, rec := reqctx.WithUpstreamKey(ctx)
		_, err := client.WebSearch(keyCtx, search.Query{Query: "x"})
		require.NoError(t, err)
		assert.Equal(t, "k2", rec.ID())
	})

	t.Run("invalid key rotates without consuming retries", func(t *testing.T) {
		t.Parallel()

		api := &scriptedAPI{fail: func(apiKey string, _ int) error {
			if apiKey != "key-k3" {
				return search.ErrInvalidKey
			}
			return nil
		}}
		source := newFakeKeySource("k1", "k2", "k3")
		client := tavily.NewRotatingClient(api, source, tavily.RotatingConfig{MaxRetries: 1})

		_, err := client.WebSearch(ctx, search.Query{Query: "x"})
		require.NoError(t, err)
		assert.Equal(t, []string{"key-k1", "key-k2", "key-k3"}, api.callKeys())
		assert.Equal(t, []string{"k1", "k2"}, source.invalid)
	})

	t.Run("transient retries same key", func(t *testing.T) {
		t.Parallel()

		api := &scriptedAPI{fail: func(_ string, call int) error {
			if call < 3 {
				return search.ErrTransient
			}
			return nil
		}}
		client := tavily.NewRotatingClient(api, newFakeKeySource("k1"), tavily.RotatingConfig{MaxRetries: 2})

		_, err := client.WebSearch(ctx, search.Query{Query: "x"})
		require.NoError(t, err)
		assert.Equal(t, []string{"key-k1", "key-k1", "key-k1"}, api.callKeys())
	})

	t.Run("transient budget exhaustion surfaces unavailable", func(t *testing.T) {
		t.Parallel()

		api := &scriptedAPI{fail: func(string, int) error { return search.ErrTransient }}
		client := tavily.NewRotatingClient(api, newFakeKeySource("k1"), tavily.RotatingConfig{MaxRetries: 2})

		_, err := client.WebSearch(ctx, search.Query{Query: "x"})
		assert.ErrorIs(t, err, search.ErrUpstreamUnavailable)
		assert.Len(t, api.callKeys(), 3)
	})

	t.Run("quota exhaustion cools down and rotates", func(t *testing.T) {
		t.Parallel()

		api := &scriptedAPI{fail: func(apiKey string, _ int) error {
			if apiKey == "key-k1" {
				return search.ErrQuotaExceeded
			}
			return nil
		}}
		source := newFakeKeySource("k1", "k2")
		client := tavily.NewRotatingClient(api, source, tavily.RotatingConfig{MaxRetries: 2, FixedCooldown: time.Minute})

		_, err := client.WebSearch(ctx, search.Query{Query: "x"})
		require.NoError(t, err)
		assert.Equal(t, []string{"key-k1", "key-k2"}, api.callKeys())
		assert.Contains(t, source.cooldowns, "k1")
	})

	t.Run("rate limit hint drives cooldown duration", func(t *testing.T) {
		t.Parallel()

		api := &scriptedAPI{fail: func(apiKey string, _ int) error {
			if apiKey == "key-k1" {
				return &search.RateLimitedError{RetryAfter: 90 * time.Second}
			}
			return nil
		}}
		source := newFakeKeySource("k1", "k2")
		client := tavily.NewRotatingClient(api, source, tavily.RotatingConfig{})

		before := time.Now()
		_, err := client.WebSearch(ctx, search.Query{Query: "x"})
		require.NoError(t, err)

		until, ok := source.cooldowns["k1"]
		require.True(t, ok)
		assert.WithinDuration(t, before.Add(90*time.Second), until, 5*time.Second)
	})

	t.Run("no eligible keys surfaces unavailable", func(t *testing.T) {
		t.Parallel()

		client := tavily.NewRotatingClient(&scriptedAPI{}, newFakeKeySource(), tavily.RotatingConfig{})

		_, err := client.WebSearch(ctx, search.Query{Query: "x"})
		assert.ErrorIs(t, err, search.ErrUpstreamUnavailable)
	})

	t.Run("unclassified errors are not retried", func(t *testing.T) {
		t.Parallel()

		api := &scriptedAPI{fail: func(string, int) error {
			return &search.UpstreamError{Status: 422, Message: "bad request"}
		}}
		source := newFakeKeySource("k1", "k2")
		client := tavily.NewRotatingClient(api, source, tavily.RotatingConfig{})

		_, err := client.WebSearch(ctx, search.Query{Query: "x"})
		var ue *search.UpstreamError
		require.ErrorAs(t, err, &ue)
		assert.Len(t, api.callKeys(), 1)
	})

	t.Run("local search delegates to web", func(t *testing.T) {
		t.Parallel()

		api := &scriptedAPI{}
		client := tavily.NewRotatingClient(api, newFakeKeySource("k1"), tavily.RotatingConfig{})

		got, err := client.LocalSearch(ctx, search.Query{Query: "pizza near me"})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}
