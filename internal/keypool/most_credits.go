package keypool

import (
	"math"
	"sort"
)

// MostCreditsStrategy prefers keys with the highest cached remaining
// credits, spending the fattest keys first. Keys with no reported limit
// sort ahead of any finite count; ties keep the store's staleness order.
type MostCreditsStrategy struct{}

// Order returns a copy sorted by remaining credits descending.
func (MostCreditsStrategy) Order(keys []Key) []Key {
	out := make([]Key, len(keys))
	copy(out, keys)

	sort.SliceStable(out, func(i, j int) bool {
		return remainingOrUnlimited(out[i]) > remainingOrUnlimited(out[j])
	})
	return out
}

// Name returns the strategy name.
func (MostCreditsStrategy) Name() string { return StrategyMostCredits }

func remainingOrUnlimited(k Key) int {
	if remaining, ok := k.Credits.Remaining.Get(); ok {
		return remaining
	}
	return math.MaxInt
}
