package keypool

import (
	"crypto/rand"
	"math/big"
	"time"
)

// RandomStrategy shuffles the candidates so load spreads without tracking
// shared state across processes.
type RandomStrategy struct{}

// Order returns a shuffled copy of the keys.
func (RandomStrategy) Order(keys []Key) []Key {
	out := make([]Key, len(keys))
	copy(out, keys)
	for i := len(out) - 1; i > 0; i-- {
		j := randIntn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Name returns the strategy name.
func (RandomStrategy) Name() string { return StrategyRandom }

// randIntn returns a non-negative integer in [0, n). If n <= 0 it returns 0.
// It uses crypto/rand and falls back to a time-based source if crypto
// randomness fails.
func randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	maxVal := big.NewInt(int64(n))
	if v, err := rand.Int(rand.Reader, maxVal); err == nil {
		return int(v.Int64())
	}
	return int(time.Now().UnixNano() % int64(n))
}
