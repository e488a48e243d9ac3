package credits

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchbridge/searchbridge/internal/search"
)

func testOptions() Options {
	return Options{
		Timeout:    time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}
}

func TestClient_Fetch(t *testing.T) {
	t.Run("parses key and account breakdown", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tvly-test", r.Header.Get("Authorization"))
			assert.Equal(t, "/usage", r.URL.Path)
			w.Write([]byte(`{
				"key": {"usage": 40, "limit": 100},
				"account": {"plan_usage": 900, "plan_limit": 1000, "paygo_usage": 0, "paygo_limit": 500}
			}`))
		}))
		defer srv.Close()

		snap, err := NewClient(srv.URL, testOptions()).Fetch(context.Background(), "tvly-test")

		require.NoError(t, err)
		assert.Equal(t, 60, snap.Remaining.MustGet())
		assert.Equal(t, 40, snap.KeyUsage.MustGet())
		assert.Equal(t, 100, snap.KeyLimit.MustGet())
		assert.Equal(t, 900, snap.PlanUsage.MustGet())
		assert.Equal(t, 500, snap.PaygoLimit.MustGet())
	})

	t.Run("falls back to account allowance without key limit", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"account": {"plan_usage": 100, "plan_limit": 1000, "paygo_usage": 10, "paygo_limit": 50}}`))
		}))
		defer srv.Close()

		snap, err := NewClient(srv.URL, testOptions()).Fetch(context.Background(), "k")

		require.NoError(t, err)
		assert.Equal(t, 940, snap.Remaining.MustGet())
	})

	t.Run("no limits means unlimited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		snap, err := NewClient(srv.URL, testOptions()).Fetch(context.Background(), "k")

		require.NoError(t, err)
		assert.True(t, snap.Remaining.IsAbsent())
	})
}

func TestClient_Fetch_Classification(t *testing.T) {
	t.Run("401 is invalid key and not retried", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, testOptions()).Fetch(context.Background(), "bad")

		assert.ErrorIs(t, err, search.ErrInvalidKey)
		assert.Equal(t, int64(1), hits.Load())
	})

	t.Run("403 is invalid key", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, testOptions()).Fetch(context.Background(), "bad")

		assert.ErrorIs(t, err, search.ErrInvalidKey)
	})

	t.Run("432 is quota exceeded and not retried", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(432)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, testOptions()).Fetch(context.Background(), "k")

		assert.ErrorIs(t, err, search.ErrQuotaExceeded)
		assert.Equal(t, int64(1), hits.Load())
	})

	t.Run("5xx retries then succeeds", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"key": {"usage": 0, "limit": 10}}`))
		}))
		defer srv.Close()

		snap, err := NewClient(srv.URL, testOptions()).Fetch(context.Background(), "k")

		require.NoError(t, err)
		assert.Equal(t, 10, snap.Remaining.MustGet())
		assert.Equal(t, int64(3), hits.Load())
	})

	t.Run("exhausted retries is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, testOptions()).Fetch(context.Background(), "k")

		assert.ErrorIs(t, err, search.ErrTransient)
	})

	t.Run("connection refused is transient", func(t *testing.T) {
		opts := testOptions()
		opts.MaxRetries = 0
		_, err := NewClient("http://127.0.0.1:1", opts).Fetch(context.Background(), "k")

		assert.ErrorIs(t, err, search.ErrTransient)
	})
}
