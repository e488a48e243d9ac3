// Package health provides circuit breaking for upstream search providers.
package health

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the breaker rejects a request.
var ErrCircuitOpen = errors.New("health: circuit open")

// Breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultOpenDuration     = 30 * time.Second
	DefaultHalfOpenProbes   = 1
)

// Config tunes a provider circuit breaker.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int `yaml:"failure_threshold" toml:"failure_threshold"`

	// OpenDurationMS is how long the circuit stays open before probing, in ms.
	OpenDurationMS int `yaml:"open_duration_ms" toml:"open_duration_ms"`

	// HalfOpenProbes is the number of probe requests allowed when half-open.
	HalfOpenProbes int `yaml:"half_open_probes" toml:"half_open_probes"`
}

func (c Config) failureThreshold() uint32 {
	if c.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return uint32(c.FailureThreshold) //nolint:gosec // validated positive above
}

func (c Config) openDuration() time.Duration {
	if c.OpenDurationMS <= 0 {
		return DefaultOpenDuration
	}
	return time.Duration(c.OpenDurationMS) * time.Millisecond
}

func (c Config) halfOpenProbes() uint32 {
	if c.HalfOpenProbes <= 0 {
		return DefaultHalfOpenProbes
	}
	return uint32(c.HalfOpenProbes) //nolint:gosec // validated positive above
}

// Breaker wraps sony/gobreaker TwoStepCircuitBreaker for one provider.
// Context cancellation does not count as a provider failure.
type Breaker struct {
	cb   *gobreaker.TwoStepCircuitBreaker[struct{}]
	name string
}

// NewBreaker creates a Breaker for the named provider.
func NewBreaker(name string, cfg Config, logger *zerolog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.halfOpenProbes(),
		Timeout:     cfg.openDuration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.failureThreshold()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger == nil {
				return
			}
			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Warn()
			}
			event.
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &Breaker{
		cb:   gobreaker.NewTwoStepCircuitBreaker[struct{}](settings),
		name: name,
	}
}

// Allow checks admission. On success the returned done func must be called
// with the request outcome. Returns ErrCircuitOpen when rejected.
func (b *Breaker) Allow() (done func(err error), err error) {
	d, err := b.cb.Allow()
	if err != nil {
		return nil, ErrCircuitOpen
	}
	return d, nil
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name returns the provider name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}
