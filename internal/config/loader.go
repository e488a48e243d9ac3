package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies a config file encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatForPath picks the encoding from the file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// Load reads, parses, and env-overrides a config file. ${VAR} references in
// the file body are expanded before parsing; the §6 environment variables
// are applied on top of whatever the file set.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck // read-only handle

	cfg, err := LoadFromReader(file, FormatForPath(path))
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	return cfg, Validate(cfg)
}

// LoadFromReader parses configuration from r without applying env overrides
// or validation.
func LoadFromReader(r io.Reader, format Format) (*Config, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	expanded := os.ExpandEnv(string(content))

	var cfg Config
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("config: parse TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("config: parse YAML: %w", err)
		}
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables alone, for
// deployments that run without a config file.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	ApplyEnv(cfg)
	return cfg, Validate(cfg)
}

// ApplyEnv overlays the environment variables onto cfg. Set variables win
// over file values; unset variables leave the file values alone.
func ApplyEnv(cfg *Config) {
	setString(&cfg.Secrets.KeyEncryptionSecret, "KEY_ENCRYPTION_SECRET")
	setString(&cfg.Tavily.SelectionStrategy, "TAVILY_KEY_SELECTION_STRATEGY")
	setStringList(&cfg.Tavily.Keys, "TAVILY_API_KEYS")

	setInt(&cfg.Tavily.Credits.TTLMS, "CREDITS_TTL_MS")
	setInt(&cfg.Tavily.Credits.StaleGraceMS, "CREDITS_STALE_GRACE_MS")
	setInt(&cfg.Tavily.Credits.MinRemaining, "CREDITS_MIN_REMAINING")
	setInt(&cfg.Tavily.Credits.CooldownMS, "CREDITS_COOLDOWN_MS")
	setInt(&cfg.Tavily.Credits.RefreshLockMS, "CREDITS_REFRESH_LOCK_MS")
	setInt(&cfg.Tavily.Credits.RefreshTimeoutMS, "CREDITS_REFRESH_TIMEOUT_MS")
	setInt(&cfg.Tavily.Credits.RefreshMaxRetries, "CREDITS_REFRESH_MAX_RETRIES")
	setInt(&cfg.Tavily.Credits.RefreshRetryDelayMS, "CREDITS_REFRESH_RETRY_DELAY_MS")

	setInt(&cfg.Tavily.MaxRetries, "MCP_MAX_RETRIES")
	setInt(&cfg.Tavily.CooldownMS, "MCP_COOLDOWN_MS")

	setString(&cfg.Brave.APIKey, "BRAVE_API_KEY")
	setInt(&cfg.Brave.HTTPTimeoutMS, "BRAVE_HTTP_TIMEOUT_MS")
	setInt(&cfg.Brave.MaxQPS, "BRAVE_MAX_QPS")
	setInt(&cfg.Brave.MinIntervalMS, "BRAVE_MIN_INTERVAL_MS")
	setInt(&cfg.Brave.MaxQueueMS, "BRAVE_MAX_QUEUE_MS")
	setString(&cfg.Brave.Overflow, "BRAVE_OVERFLOW")

	setString(&cfg.Usage.LogMode, "BRAVE_USAGE_LOG_MODE")
	setString(&cfg.Usage.SampleRate, "BRAVE_USAGE_SAMPLE_RATE")
	setString(&cfg.Usage.HashSecret, "BRAVE_USAGE_HASH_SECRET")
	setInt(&cfg.Usage.RetentionDays, "BRAVE_USAGE_RETENTION_DAYS")
	setFloat(&cfg.Usage.CleanupProbability, "BRAVE_USAGE_CLEANUP_PROBABILITY")

	setString(&cfg.Routing.SourceMode, "SEARCH_SOURCE_MODE")
	setString(&cfg.Server.Listen, "SEARCHBRIDGE_LISTEN")
	setString(&cfg.Logging.Level, "SEARCHBRIDGE_LOG_LEVEL")
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func setStringList(dst *[]string, name string) {
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	var keys []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			keys = append(keys, part)
		}
	}
	if len(keys) > 0 {
		*dst = keys
	}
}

func setInt(dst *int, name string) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return
	}
	*dst = n
}

func setFloat(dst *float64, name string) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return
	}
	*dst = f
}
