package keypool

import "time"

// Config holds the credit-tracking tunables. Every field maps to a
// CREDITS_* environment variable; zero values are replaced by defaults.
type Config struct {
	// TTL is how long a fetched snapshot stays fresh.
	TTL time.Duration

	// StaleGrace is how long an expired snapshot is still trusted when the
	// refresh lock is held elsewhere.
	StaleGrace time.Duration

	// MinRemaining is the credit floor; keys at or below it cool down.
	MinRemaining int

	// Cooldown is how long an exhausted key is excluded from selection.
	Cooldown time.Duration

	// RefreshLockTTL bounds how long a crashed holder can pin the per-key
	// refresh lock.
	RefreshLockTTL time.Duration

	// RefreshTimeout bounds each snapshot fetch attempt.
	RefreshTimeout time.Duration

	// RefreshMaxRetries is the retry budget for transient fetch failures.
	RefreshMaxRetries int

	// RefreshRetryDelay is the wait between fetch retries.
	RefreshRetryDelay time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		TTL:               60 * time.Second,
		StaleGrace:        5 * time.Minute,
		MinRemaining:      1,
		Cooldown:          5 * time.Minute,
		RefreshLockTTL:    15 * time.Second,
		RefreshTimeout:    5 * time.Second,
		RefreshMaxRetries: 3,
		RefreshRetryDelay: time.Second,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	if c.StaleGrace <= 0 {
		c.StaleGrace = def.StaleGrace
	}
	if c.MinRemaining == 0 {
		c.MinRemaining = def.MinRemaining
	}
	if c.Cooldown <= 0 {
		c.Cooldown = def.Cooldown
	}
	if c.RefreshLockTTL <= 0 {
		c.RefreshLockTTL = def.RefreshLockTTL
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = def.RefreshTimeout
	}
	if c.RefreshMaxRetries <= 0 {
		c.RefreshMaxRetries = def.RefreshMaxRetries
	}
	if c.RefreshRetryDelay <= 0 {
		c.RefreshRetryDelay = def.RefreshRetryDelay
	}
	return c
}
