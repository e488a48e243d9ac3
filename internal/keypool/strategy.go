package keypool

import (
	"fmt"
)

// Strategy reorders eligible candidates before the pool walks them. It is a
// pure reorder: implementations must not mutate records or drop candidates.
// Strategies are injected through a getter so the active policy can change
// at runtime without rebuilding the pool.
type Strategy interface {
	// Order returns the candidates in preference order.
	Order(keys []Key) []Key

	// Name returns the strategy name for logging and configuration.
	Name() string
}

// Strategy constants for configuration.
const (
	StrategyRoundRobin  = "round_robin"
	StrategyRandom      = "random"
	StrategyMostCredits = "most_credits"
)

// NewStrategy returns the Strategy for the given name.
// An empty name selects round_robin.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case StrategyRoundRobin, "":
		return RoundRobinStrategy{}, nil
	case StrategyRandom:
		return RandomStrategy{}, nil
	case StrategyMostCredits:
		return MostCreditsStrategy{}, nil
	default:
		return nil, fmt.Errorf("keypool: unknown strategy %q", name)
	}
}

// RoundRobinStrategy keeps the store's (lastUsedAt asc, createdAt asc)
// order. Because the pool stamps lastUsedAt on every selection, walking the
// stalest key first yields a rotation across the whole pool.
type RoundRobinStrategy struct{}

// Order returns the keys unchanged.
func (RoundRobinStrategy) Order(keys []Key) []Key {
	return keys
}

// Name returns the strategy name.
func (RoundRobinStrategy) Name() string { return StrategyRoundRobin }
