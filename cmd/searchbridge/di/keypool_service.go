package di

import (
	"github.com/samber/do/v2"

	"github.com/searchbridge/searchbridge/internal/credits"
	"github.com/searchbridge/searchbridge/internal/keypool"
)

// KeyPoolService holds the tavily key pool. Pool is nil when no tavily
// keys are configured.
type KeyPoolService struct {
	Pool *keypool.Pool
}

// NewKeyPoolService assembles the key pool from the store, the refresh
// locker, the credits client, and the key cipher. The selection strategy is
// read through a closure so hot reload can swap it without restarting.
func NewKeyPoolService(i do.Injector) (*KeyPoolService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	cfg := cfgSvc.Get()

	if !cfg.Tavily.IsConfigured() {
		return &KeyPoolService{}, nil
	}

	storeSvc := do.MustInvoke[*StoreService](i)
	cipherSvc := do.MustInvoke[*CipherService](i)
	lockSvc := do.MustInvoke[*LockService](i)

	fetcher := credits.NewClient(cfg.Tavily.BaseURL, cfg.Tavily.Credits.FetchOptions())

	strategy := func() keypool.Strategy {
		// Reloaded configs are validated, so an error here only happens
		// with the initial config, which was validated too.
		s, err := keypool.NewStrategy(cfgSvc.Get().Tavily.SelectionStrategy)
		if err != nil {
			return keypool.RoundRobinStrategy{}
		}
		return s
	}

	pool := keypool.NewPool("tavily", storeSvc.Store, lockSvc.Locker, fetcher,
		cipherSvc.Cipher, strategy, cfg.Tavily.Credits.PoolConfig())

	return &KeyPoolService{Pool: pool}, nil
}
