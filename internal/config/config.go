// Package config provides configuration loading, env overrides, and
// hot-reload for searchbridge.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchbridge/searchbridge/internal/credits"
	"github.com/searchbridge/searchbridge/internal/health"
	"github.com/searchbridge/searchbridge/internal/keypool"
	"github.com/searchbridge/searchbridge/internal/search"
	"github.com/searchbridge/searchbridge/internal/usage"
)

// Defaults.
const (
	DefaultListen       = ":8700"
	DefaultSessionTTLMS = 30 * 60 * 1000
)

// RuntimeConfig is the hot-reload view of the configuration. Components
// that must observe reloads hold this interface instead of a *Config, which
// would go stale after the watcher swaps the pointer.
type RuntimeConfig interface {
	Get() *Config
}

// Config is the complete searchbridge configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Secrets SecretsConfig `yaml:"secrets" toml:"secrets"`
	Tavily  TavilyConfig  `yaml:"tavily" toml:"tavily"`
	Brave   BraveConfig   `yaml:"brave" toml:"brave"`
	Routing RoutingConfig `yaml:"routing" toml:"routing"`
	Usage   UsageConfig   `yaml:"usage" toml:"usage"`
	Health  health.Config `yaml:"health" toml:"health"`
	Lock    LockConfig    `yaml:"lock" toml:"lock"`
	Tokens  []TokenConfig `yaml:"tokens" toml:"tokens"`
}

// ServerConfig defines the HTTP transport settings.
type ServerConfig struct {
	Listen       string `yaml:"listen" toml:"listen"`
	SessionTTLMS int    `yaml:"session_ttl_ms" toml:"session_ttl_ms"`
	EnableHTTP2  bool   `yaml:"enable_http2" toml:"enable_http2"`
}

// GetListen returns the listen address with default fallback.
func (s *ServerConfig) GetListen() string {
	if s.Listen == "" {
		return DefaultListen
	}
	return s.Listen
}

// GetSessionTTL returns the MCP session idle TTL.
func (s *ServerConfig) GetSessionTTL() time.Duration {
	ms := s.SessionTTLMS
	if ms <= 0 {
		ms = DefaultSessionTTLMS
	}
	return time.Duration(ms) * time.Millisecond
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json, console
	Pretty bool   `yaml:"pretty" toml:"pretty"`
}

// ParseLevel converts the configured level to zerolog.Level, defaulting to
// info on unknown input.
func (l *LoggingConfig) ParseLevel() zerolog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SecretsConfig holds key-material secrets.
type SecretsConfig struct {
	// KeyEncryptionSecret is the 32-byte AES-256-GCM key protecting stored
	// upstream API keys. Required whenever tavily keys are configured.
	KeyEncryptionSecret string `yaml:"key_encryption_secret" toml:"key_encryption_secret"`
}

// TavilyConfig defines the Tavily key pool and rotation settings.
type TavilyConfig struct {
	BaseURL           string        `yaml:"base_url" toml:"base_url"`
	Keys              []string      `yaml:"keys" toml:"keys"`
	SelectionStrategy string        `yaml:"selection_strategy" toml:"selection_strategy"`
	MaxRetries        int           `yaml:"max_retries" toml:"max_retries"`
	CooldownMS        int           `yaml:"cooldown_ms" toml:"cooldown_ms"`
	Credits           CreditsConfig `yaml:"credits" toml:"credits"`
}

// IsConfigured reports whether Tavily has any keys. An empty key list
// leaves the provider unconfigured; it is never a load error.
func (t *TavilyConfig) IsConfigured() bool {
	return len(t.Keys) > 0
}

// GetCooldown returns the fixed rotation cooldown.
func (t *TavilyConfig) GetCooldown() time.Duration {
	if t.CooldownMS <= 0 {
		return time.Minute
	}
	return time.Duration(t.CooldownMS) * time.Millisecond
}

// CreditsConfig holds the eight credit-tracking tunables, all in ms except
// the plain integers.
type CreditsConfig struct {
	TTLMS               int `yaml:"ttl_ms" toml:"ttl_ms"`
	StaleGraceMS        int `yaml:"stale_grace_ms" toml:"stale_grace_ms"`
	MinRemaining        int `yaml:"min_remaining" toml:"min_remaining"`
	CooldownMS          int `yaml:"cooldown_ms" toml:"cooldown_ms"`
	RefreshLockMS       int `yaml:"refresh_lock_ms" toml:"refresh_lock_ms"`
	RefreshTimeoutMS    int `yaml:"refresh_timeout_ms" toml:"refresh_timeout_ms"`
	RefreshMaxRetries   int `yaml:"refresh_max_retries" toml:"refresh_max_retries"`
	RefreshRetryDelayMS int `yaml:"refresh_retry_delay_ms" toml:"refresh_retry_delay_ms"`
}

// PoolConfig maps the tunables onto the key pool's config; zero fields keep
// the pool's documented defaults.
func (c *CreditsConfig) PoolConfig() keypool.Config {
	return keypool.Config{
		TTL:               time.Duration(c.TTLMS) * time.Millisecond,
		StaleGrace:        time.Duration(c.StaleGraceMS) * time.Millisecond,
		MinRemaining:      c.MinRemaining,
		Cooldown:          time.Duration(c.CooldownMS) * time.Millisecond,
		RefreshLockTTL:    time.Duration(c.RefreshLockMS) * time.Millisecond,
		RefreshTimeout:    time.Duration(c.RefreshTimeoutMS) * time.Millisecond,
		RefreshMaxRetries: c.RefreshMaxRetries,
		RefreshRetryDelay: time.Duration(c.RefreshRetryDelayMS) * time.Millisecond,
	}
}

// FetchOptions maps the refresh tunables onto the snapshot client options.
func (c *CreditsConfig) FetchOptions() credits.Options {
	return credits.Options{
		Timeout:    time.Duration(c.RefreshTimeoutMS) * time.Millisecond,
		MaxRetries: c.RefreshMaxRetries,
		RetryDelay: time.Duration(c.RefreshRetryDelayMS) * time.Millisecond,
	}
}

// BraveConfig defines the Brave client and rate gate settings.
type BraveConfig struct {
	APIKey        string `yaml:"api_key" toml:"api_key"`
	BaseURL       string `yaml:"base_url" toml:"base_url"`
	HTTPTimeoutMS int    `yaml:"http_timeout_ms" toml:"http_timeout_ms"`
	MaxQPS        int    `yaml:"max_qps" toml:"max_qps"`
	MinIntervalMS int    `yaml:"min_interval_ms" toml:"min_interval_ms"`
	MaxQueueMS    int    `yaml:"max_queue_ms" toml:"max_queue_ms"`
	Overflow      string `yaml:"overflow" toml:"overflow"` // queue, error, fallback_to_tavily
}

// IsConfigured reports whether Brave has a key.
func (b *BraveConfig) IsConfigured() bool {
	return b.APIKey != ""
}

// GetTimeout returns the per-request HTTP timeout.
func (b *BraveConfig) GetTimeout() time.Duration {
	if b.HTTPTimeoutMS <= 0 {
		return 20 * time.Second
	}
	return time.Duration(b.HTTPTimeoutMS) * time.Millisecond
}

// GetMinInterval returns the rate-gate admission spacing. An explicit
// min_interval_ms overrides max_qps; the default is 1 QPS.
func (b *BraveConfig) GetMinInterval() time.Duration {
	if b.MinIntervalMS > 0 {
		return time.Duration(b.MinIntervalMS) * time.Millisecond
	}
	qps := b.MaxQPS
	if qps <= 0 {
		qps = 1
	}
	return time.Second / time.Duration(qps)
}

// GetMaxQueue returns the queue-wait budget for gate admissions.
func (b *BraveConfig) GetMaxQueue() time.Duration {
	if b.MaxQueueMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.MaxQueueMS) * time.Millisecond
}

// RoutingConfig selects the provider plan for brave_* tool calls.
type RoutingConfig struct {
	SourceMode string `yaml:"source_mode" toml:"source_mode"`
}

// GetSourceMode parses the configured mode; unknown input falls back to
// brave_prefer_tavily_fallback.
func (r *RoutingConfig) GetSourceMode() search.SourceMode {
	return search.ParseSourceMode(r.SourceMode, search.DefaultSourceMode)
}

// SearchSettings builds the per-call routing policy snapshot.
func (c *Config) SearchSettings() search.Settings {
	return search.Settings{
		Mode:          c.Routing.GetSourceMode(),
		Overflow:      search.ParseOverflowMode(c.Brave.Overflow),
		BraveMaxQueue: c.Brave.GetMaxQueue(),
	}
}

// UsageConfig gates the usage log.
type UsageConfig struct {
	LogMode            string  `yaml:"log_mode" toml:"log_mode"` // none, hash, preview, full
	SampleRate         string  `yaml:"sample_rate" toml:"sample_rate"`
	HashSecret         string  `yaml:"hash_secret" toml:"hash_secret"`
	RetentionDays      int     `yaml:"retention_days" toml:"retention_days"`
	CleanupProbability float64 `yaml:"cleanup_probability" toml:"cleanup_probability"`
}

// GetSampleRate parses the sample rate. Empty or unparseable input means
// log everything; out-of-range values clamp.
func (u *UsageConfig) GetSampleRate() float64 {
	s := strings.TrimSpace(u.SampleRate)
	if s == "" {
		return 1
	}
	rate, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 1
	}
	if rate <= 0 {
		return 0
	}
	if rate >= 1 {
		return 1
	}
	return rate
}

// LoggerConfig maps the gating settings onto the usage logger config.
func (u *UsageConfig) LoggerConfig() usage.Config {
	cleanup := u.CleanupProbability
	if cleanup <= 0 {
		cleanup = usage.DefaultConfig().CleanupProbability
	}
	return usage.Config{
		Mode:               usage.ParseMode(u.LogMode),
		SampleRate:         u.GetSampleRate(),
		HashSecret:         u.HashSecret,
		RetentionDays:      u.RetentionDays,
		CleanupProbability: cleanup,
	}
}

// Lock modes.
const (
	LockModeMemory   = "memory"
	LockModeEmbedded = "embedded"
	LockModeClient   = "client"
)

// LockConfig selects the refresh-lock backend. Memory serves single-node
// deployments; embedded and client modes use olric for cluster-wide locks.
type LockConfig struct {
	Mode      string   `yaml:"mode" toml:"mode"`
	BindAddr  string   `yaml:"bind_addr" toml:"bind_addr"`
	Peers     []string `yaml:"peers" toml:"peers"`
	Addresses []string `yaml:"addresses" toml:"addresses"`
	DMapName  string   `yaml:"dmap_name" toml:"dmap_name"`
}

// GetMode returns the lock mode with memory default.
func (l *LockConfig) GetMode() string {
	switch l.Mode {
	case LockModeEmbedded, LockModeClient:
		return l.Mode
	default:
		return LockModeMemory
	}
}

// TokenConfig is a pre-provisioned client token. Only the secret hash is
// stored; the raw token never appears in config.
type TokenConfig struct {
	Name       string `yaml:"name" toml:"name"`
	Prefix     string `yaml:"prefix" toml:"prefix"`
	SecretHash string `yaml:"secret_hash" toml:"secret_hash"`

	// AllowedTools is stored on the token verbatim for external tooling.
	AllowedTools string `yaml:"allowed_tools" toml:"allowed_tools"`

	// RateLimit is an advisory requests-per-minute figure, not enforced.
	RateLimit int `yaml:"rate_limit" toml:"rate_limit"`
}

// Default returns a Config with zero values; effective defaults are applied
// by the typed getters.
func Default() *Config {
	return &Config{}
}
