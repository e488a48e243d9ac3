// Package usage implements the per-invocation usage log: sampled,
// privacy-gated rows written off the request path.
package usage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/searchbridge/searchbridge/internal/reqctx"
)

// Mode controls how much of the query text a row retains.
type Mode string

// Log modes, least to most revealing.
const (
	ModeNone    Mode = "none"
	ModeHash    Mode = "hash"
	ModePreview Mode = "preview"
	ModeFull    Mode = "full"
)

// ParseMode parses a mode string case-insensitively; unknown input selects
// the preview default.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeNone:
		return ModeNone
	case ModeHash:
		return ModeHash
	case ModeFull:
		return ModeFull
	default:
		return ModePreview
	}
}

// Row is one stored usage record.
type Row struct {
	ID           string
	TokenID      string
	TokenPrefix  string
	Tool         string
	Provider     string
	QueryHash    string
	QueryPreview string
	ArgsJSON     string
	Status       string // "ok" or "error"

	// ErrorMessage is the redacted failure message, empty on success.
	ErrorMessage string

	// UpstreamKeyID names the pool key that served the call; empty for
	// providers without key rotation.
	UpstreamKeyID string

	DurationMS  int64
	ResultCount int
	CreatedAt   time.Time
}

// Store persists usage rows.
type Store interface {
	// InsertUsage appends one row.
	InsertUsage(ctx context.Context, row Row) error

	// DeleteUsageBefore removes rows older than cutoff, returning how many.
	DeleteUsageBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Config gates what gets logged.
type Config struct {
	Mode Mode

	// SampleRate in [0,1]; out-of-range input clamps. 1 logs everything.
	SampleRate float64

	// HashSecret switches query hashing from plain SHA-256 to HMAC-SHA256.
	HashSecret string

	// RetentionDays bounds row age; zero disables cleanup.
	RetentionDays int

	// CleanupProbability is the per-log chance of running retention cleanup.
	CleanupProbability float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Mode:               ModePreview,
		SampleRate:         1.0,
		CleanupProbability: 0.001,
	}
}

// Entry is what the handler reports per tool invocation.
type Entry struct {
	Tool          string
	Provider      string
	Query         string
	ArgsJSON      string
	UpstreamKeyID string
	Duration      time.Duration
	ResultCount   int
	Err           error
}

// Logger writes usage rows asynchronously. Failures are swallowed; nothing
// here may affect the response path.
type Logger struct {
	store Store
	cfg   Config

	// randFloat is the sampling source, injectable for tests.
	randFloat func() float64
	now       func() time.Time

	wg sync.WaitGroup
}

// NewLogger creates a usage logger.
func NewLogger(store Store, cfg Config) *Logger {
	if cfg.SampleRate < 0 {
		cfg.SampleRate = 0
	}
	if cfg.SampleRate > 1 {
		cfg.SampleRate = 1
	}
	return &Logger{
		store:     store,
		cfg:       cfg,
		randFloat: rand.Float64,
		now:       time.Now,
	}
}

// Log records one tool invocation, fire-and-forget. The returned goroutine
// detaches from the request context so an aborted request still logs.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if l.store == nil {
		return
	}
	if l.cfg.SampleRate <= 0 {
		return
	}
	if l.cfg.SampleRate < 1 && l.randFloat() >= l.cfg.SampleRate {
		return
	}

	row := l.buildRow(ctx, entry)
	runCleanup := l.cfg.RetentionDays > 0 && l.randFloat() < l.cfg.CleanupProbability
	retention := time.Duration(l.cfg.RetentionDays) * 24 * time.Hour

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Any("panic", r).Msg("usage logger panicked")
			}
		}()

		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.store.InsertUsage(writeCtx, row); err != nil {
			log.Debug().Err(err).Msg("usage row insert failed")
		}

		if runCleanup {
			deleted, err := l.store.DeleteUsageBefore(writeCtx, l.now().Add(-retention))
			if err != nil {
				log.Debug().Err(err).Msg("usage retention cleanup failed")
				return
			}
			if deleted > 0 {
				log.Debug().Int("deleted", deleted).Msg("usage retention cleanup")
			}
		}
	}()
}

// Wait blocks until all in-flight writes finish, used during shutdown.
func (l *Logger) Wait() {
	l.wg.Wait()
}

func (l *Logger) buildRow(ctx context.Context, entry Entry) Row {
	row := Row{
		ID:            uuid.NewString(),
		Tool:          entry.Tool,
		Provider:      entry.Provider,
		Status:        "ok",
		UpstreamKeyID: entry.UpstreamKeyID,
		DurationMS:    entry.Duration.Milliseconds(),
		ResultCount:   entry.ResultCount,
		CreatedAt:     l.now().UTC(),
	}
	if entry.Err != nil {
		row.Status = "error"
		row.ErrorMessage = Redact(entry.Err.Error())
	}
	if info, ok := reqctx.From(ctx); ok {
		row.TokenID = info.TokenID
		row.TokenPrefix = info.TokenPrefix
	}

	if l.cfg.Mode != ModeNone && entry.Query != "" {
		row.QueryHash = l.hashQuery(entry.Query)
		switch l.cfg.Mode {
		case ModePreview:
			row.QueryPreview = clampPreview(Redact(entry.Query))
		case ModeFull:
			row.QueryPreview = Redact(entry.Query)
		}
	}

	if l.cfg.Mode == ModePreview || l.cfg.Mode == ModeFull {
		row.ArgsJSON = redactArgs(entry.ArgsJSON)
	}

	return row
}

func (l *Logger) hashQuery(query string) string {
	if l.cfg.HashSecret != "" {
		mac := hmac.New(sha256.New, []byte(l.cfg.HashSecret))
		mac.Write([]byte(query))
		return hex.EncodeToString(mac.Sum(nil))
	}
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// sensitiveArgKeys are argument names whose values never reach the log.
var sensitiveArgKeys = []string{
	"token", "access_token", "auth", "apikey", "api_key", "key", "password",
}

// redactArgs scrubs sensitive top-level keys and redacts string values in a
// tool-call argument object.
func redactArgs(argsJSON string) string {
	if argsJSON == "" || !gjson.Valid(argsJSON) {
		return ""
	}

	out := argsJSON
	for _, key := range sensitiveArgKeys {
		if gjson.Get(out, key).Exists() {
			out, _ = sjson.Set(out, key, "<redacted>")
		}
	}

	gjson.Parse(out).ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			if redacted := Redact(value.Str); redacted != value.Str {
				out, _ = sjson.Set(out, key.Str, redacted)
			}
		}
		return true
	})

	return out
}
