// Package rategate provides a per-provider FIFO pacer enforcing a minimum
// inter-request interval with bounded queue-wait budgets.
//
// The gate hands out grants in strict arrival order: reservations are taken
// under a mutex against a single-burst token bucket, so scheduled start
// times are monotone in arrival order and consecutive grants are spaced by
// at least the configured interval. A waiter whose scheduled start would
// exceed its wait budget fails immediately, before the wrapped work runs.
package rategate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// TimeoutError is returned when a waiter's scheduled start time would exceed
// its wait budget. The wrapped work is never invoked.
type TimeoutError struct {
	MaxWait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rategate: wait budget %s exceeded", e.MaxWait)
}

// Gate paces admissions to one upstream provider.
// All methods are safe for concurrent use.
type Gate struct {
	limiter     *rate.Limiter
	now         func() time.Time
	name        string
	minInterval time.Duration

	mu          sync.Mutex
	lastGrantAt time.Time
}

// New creates a Gate enforcing minInterval between grants.
// A zero or negative interval disables pacing entirely.
func New(name string, minInterval time.Duration) *Gate {
	g := &Gate{
		name:        name,
		minInterval: minInterval,
		now:         time.Now,
	}
	if minInterval > 0 {
		// Burst 1: exactly one grant per interval, no bursting.
		g.limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return g
}

// Run executes work behind the gate. maxWait bounds the time the caller is
// willing to queue; a negative maxWait queues without cap. On budget
// overflow Run returns *TimeoutError without invoking work. Context
// cancellation while queued returns the reservation and surfaces ctx.Err().
func (g *Gate) Run(ctx context.Context, maxWait time.Duration, work func(context.Context) error) error {
	if g.limiter == nil {
		return work(ctx)
	}

	delay, reservation, err := g.reserve(maxWait)
	if err != nil {
		return err
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			// Cancel returns the unused slot to the bucket. Restoration is
			// full only when no later reservation exists yet; waiters that
			// reserved after this one keep their scheduled starts, so a
			// cancellation leaves at most one interval-sized hole in the
			// grant sequence.
			reservation.Cancel()
			return ctx.Err()
		}
	}

	g.mu.Lock()
	g.lastGrantAt = g.now()
	g.mu.Unlock()

	return work(ctx)
}

// reserve takes the next slot under the mutex. Serializing reservations is
// what makes grant order equal arrival order.
func (g *Gate) reserve(maxWait time.Duration) (time.Duration, *rate.Reservation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	reservation := g.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)

	if maxWait >= 0 && delay > maxWait {
		reservation.CancelAt(now)
		log.Debug().
			Str("gate", g.name).
			Dur("delay", delay).
			Dur("max_wait", maxWait).
			Msg("gate wait budget exceeded")
		return 0, nil, &TimeoutError{MaxWait: maxWait}
	}

	return delay, reservation, nil
}

// LastGrantAt returns the wall-clock instant of the most recent grant.
// Zero when the gate has not granted yet.
func (g *Gate) LastGrantAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastGrantAt
}

// MinInterval returns the configured pacing interval.
func (g *Gate) MinInterval() time.Duration {
	return g.minInterval
}
