package keypool_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchbridge/searchbridge/internal/credits"
	"github.com/searchbridge/searchbridge/internal/keypool"
)

func TestNewStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantName string
		wantErr  bool
	}{
		{name: "round robin", input: "round_robin", wantName: "round_robin"},
		{name: "empty defaults to round robin", input: "", wantName: "round_robin"},
		{name: "random", input: "random", wantName: "random"},
		{name: "most credits", input: "most_credits", wantName: "most_credits"},
		{name: "unknown", input: "weighted", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := keypool.NewStrategy(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, s.Name())
		})
	}
}

func TestRoundRobinStrategyKeepsOrder(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	keys := []keypool.Key{
		activeKey("a", base),
		activeKey("b", base.Add(time.Second)),
		activeKey("c", base.Add(2*time.Second)),
	}

	got := keypool.RoundRobinStrategy{}.Order(keys)

	assert.Equal(t, []string{"a", "b", "c"}, keyIDs(got))
}

func TestMostCreditsStrategy(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	withRemaining := func(id string, remaining mo.Option[int]) keypool.Key {
		k := activeKey(id, base)
		k.Credits = credits.Snapshot{Remaining: remaining}
		return k
	}

	keys := []keypool.Key{
		withRemaining("low", mo.Some(3)),
		withRemaining("unlimited", mo.None[int]()),
		withRemaining("high", mo.Some(900)),
	}

	got := keypool.MostCreditsStrategy{}.Order(keys)

	assert.Equal(t, []string{"unlimited", "high", "low"}, keyIDs(got))
	// Input untouched.
	assert.Equal(t, []string{"low", "unlimited", "high"}, keyIDs(keys))
}

func TestRandomStrategyPreservesSet(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("shuffle is a permutation", prop.ForAll(
		func(n int) bool {
			keys := make([]keypool.Key, n)
			for i := range keys {
				keys[i] = activeKey(string(rune('a'+i)), base.Add(time.Duration(i)*time.Second))
			}
			got := keypool.RandomStrategy{}.Order(keys)
			if len(got) != n {
				return false
			}
			want := keyIDs(keys)
			have := keyIDs(got)
			return len(lo.Intersect(want, have)) == n
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

func keyIDs(keys []keypool.Key) []string {
	return lo.Map(keys, func(k keypool.Key, _ int) string { return k.ID })
}
