package usage_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/searchbridge/searchbridge/internal/reqctx"
	"github.com/searchbridge/searchbridge/internal/usage"
)

type memUsageStore struct {
	mu      sync.Mutex
	rows    []usage.Row
	deletes []time.Time
	failing bool
}

func (s *memUsageStore) InsertUsage(_ context.Context, row usage.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return assert.AnError
	}
	s.rows = append(s.rows, row)
	return nil
}

func (s *memUsageStore) DeleteUsageBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, cutoff)
	return 0, nil
}

func (s *memUsageStore) allRows() []usage.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]usage.Row(nil), s.rows...)
}

func (s *memUsageStore) allDeletes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.deletes...)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestLoggerModes(t *testing.T) {
	t.Parallel()

	entry := usage.Entry{
		Tool:        "brave_web_search",
		Provider:    "brave",
		Query:       "email bob@example.com about the launch",
		Duration:    120 * time.Millisecond,
		ResultCount: 3,
	}

	t.Run("none stores no query metadata", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModeNone, SampleRate: 1})

		logger.Log(context.Background(), entry)
		logger.Wait()

		rows := store.allRows()
		require.Len(t, rows, 1)
		assert.Empty(t, rows[0].QueryHash)
		assert.Empty(t, rows[0].QueryPreview)
		assert.Equal(t, "brave_web_search", rows[0].Tool)
		assert.Equal(t, int64(120), rows[0].DurationMS)
	})

	t.Run("hash stores hash only", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModeHash, SampleRate: 1})

		logger.Log(context.Background(), entry)
		logger.Wait()

		rows := store.allRows()
		require.Len(t, rows, 1)
		assert.Equal(t, sha256Hex(entry.Query), rows[0].QueryHash)
		assert.Empty(t, rows[0].QueryPreview)
	})

	t.Run("preview stores hash and redacted preview", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModePreview, SampleRate: 1})

		logger.Log(context.Background(), entry)
		logger.Wait()

		rows := store.allRows()
		require.Len(t, rows, 1)
		assert.Equal(t, sha256Hex(entry.Query), rows[0].QueryHash)
		assert.Equal(t, "email <email> about the launch", rows[0].QueryPreview)
	})

	t.Run("full stores unclamped redacted text", func(t *testing.T) {
		t.Parallel()

		long := "find " + strings.Repeat("really very long query segment ", 30)
		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModeFull, SampleRate: 1})

		logger.Log(context.Background(), usage.Entry{Tool: "t", Query: long})
		logger.Wait()

		rows := store.allRows()
		require.Len(t, rows, 1)
		assert.Greater(t, len(rows[0].QueryPreview), 200)
	})

	t.Run("hmac hashing when secret set", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModeHash, SampleRate: 1, HashSecret: "pepper"})

		logger.Log(context.Background(), entry)
		logger.Wait()

		mac := hmac.New(sha256.New, []byte("pepper"))
		mac.Write([]byte(entry.Query))
		want := hex.EncodeToString(mac.Sum(nil))

		rows := store.allRows()
		require.Len(t, rows, 1)
		assert.Equal(t, want, rows[0].QueryHash)
	})

	t.Run("error entries record error status and message", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModePreview, SampleRate: 1})

		logger.Log(context.Background(), usage.Entry{Tool: "t", Query: "q", Err: assert.AnError})
		logger.Wait()

		rows := store.allRows()
		require.Len(t, rows, 1)
		assert.Equal(t, "error", rows[0].Status)
		assert.Equal(t, assert.AnError.Error(), rows[0].ErrorMessage)
	})

	t.Run("error messages are redacted", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModePreview, SampleRate: 1})

		err := errors.New("upstream rejected bob@example.com")
		logger.Log(context.Background(), usage.Entry{Tool: "t", Query: "q", Err: err})
		logger.Wait()

		rows := store.allRows()
		require.Len(t, rows, 1)
		assert.Equal(t, "upstream rejected <email>", rows[0].ErrorMessage)
	})

	t.Run("successful entries carry no error message", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModePreview, SampleRate: 1})

		logger.Log(context.Background(), entry)
		logger.Wait()

		rows := store.allRows()
		require.Len(t, rows, 1)
		assert.Empty(t, rows[0].ErrorMessage)
	})

	t.Run("token identity comes from request context", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModePreview, SampleRate: 1})

		ctx := reqctx.With(context.Background(), reqctx.Info{TokenID: "tok-42", TokenPrefix: "mcp_ab12"})
		logger.Log(ctx, entry)
		logger.Wait()

		rows := store.allRows()
		require.Len(t, rows, 1)
		assert.Equal(t, "tok-42", rows[0].TokenID)
		assert.Equal(t, "mcp_ab12", rows[0].TokenPrefix)
	})

	t.Run("upstream key id is stored", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModePreview, SampleRate: 1})

		withKey := entry
		withKey.UpstreamKeyID = "key-7"
		logger.Log(context.Background(), withKey)
		logger.Wait()

		rows := store.allRows()
		require.Len(t, rows, 1)
		assert.Equal(t, "key-7", rows[0].UpstreamKeyID)
	})
}

func TestLoggerSampling(t *testing.T) {
	t.Parallel()

	t.Run("zero rate logs nothing", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModePreview, SampleRate: 0})

		for range 20 {
			logger.Log(context.Background(), usage.Entry{Tool: "t", Query: "q"})
		}
		logger.Wait()
		assert.Empty(t, store.allRows())
	})

	t.Run("negative and above-one rates clamp", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModePreview, SampleRate: 3})
		logger.Log(context.Background(), usage.Entry{Tool: "t", Query: "q"})
		logger.Wait()
		assert.Len(t, store.allRows(), 1)
	})

	t.Run("fraction of logged rows tracks the rate", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{Mode: usage.ModeHash, SampleRate: 0.25})

		// Deterministic uniform source cycling [0, 1).
		i := 0
		logger.SetRandFloat(func() float64 {
			i++
			return float64(i%100) / 100
		})

		const n = 1000
		for range n {
			logger.Log(context.Background(), usage.Entry{Tool: "t", Query: "q"})
		}
		logger.Wait()

		got := float64(len(store.allRows())) / n
		assert.InDelta(t, 0.25, got, 0.02)
	})
}

func TestLoggerCleanup(t *testing.T) {
	t.Parallel()

	t.Run("cleanup runs with configured probability", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{
			Mode:               usage.ModeHash,
			SampleRate:         1,
			RetentionDays:      7,
			CleanupProbability: 1,
		})
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		logger.SetNowFunc(func() time.Time { return now })

		logger.Log(context.Background(), usage.Entry{Tool: "t", Query: "q"})
		logger.Wait()

		deletes := store.allDeletes()
		require.Len(t, deletes, 1)
		assert.Equal(t, now.Add(-7*24*time.Hour), deletes[0])
	})

	t.Run("no retention means no cleanup", func(t *testing.T) {
		t.Parallel()

		store := &memUsageStore{}
		logger := usage.NewLogger(store, usage.Config{
			Mode:               usage.ModeHash,
			SampleRate:         1,
			CleanupProbability: 1,
		})

		logger.Log(context.Background(), usage.Entry{Tool: "t", Query: "q"})
		logger.Wait()
		assert.Empty(t, store.allDeletes())
	})
}

func TestLoggerSwallowsStoreFailures(t *testing.T) {
	t.Parallel()

	store := &memUsageStore{failing: true}
	logger := usage.NewLogger(store, usage.Config{Mode: usage.ModePreview, SampleRate: 1})

	assert.NotPanics(t, func() {
		logger.Log(context.Background(), usage.Entry{Tool: "t", Query: "q"})
		logger.Wait()
	})
}

func TestRedactArgs(t *testing.T) {
	t.Parallel()

	t.Run("sensitive keys replaced", func(t *testing.T) {
		t.Parallel()

		got := usage.RedactArgs(`{"query":"coffee","api_key":"sk-123","count":5}`)
		assert.Equal(t, "<redacted>", gjson.Get(got, "api_key").Str)
		assert.Equal(t, "coffee", gjson.Get(got, "query").Str)
		assert.Equal(t, int64(5), gjson.Get(got, "count").Int())
	})

	t.Run("string values redacted", func(t *testing.T) {
		t.Parallel()

		got := usage.RedactArgs(`{"query":"mail bob@example.com"}`)
		assert.Equal(t, "mail <email>", gjson.Get(got, "query").Str)
	})

	t.Run("invalid json dropped", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, usage.RedactArgs(`not json`))
	})
}
