package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/searchbridge/searchbridge/internal/config"
	"github.com/searchbridge/searchbridge/internal/lock"
)

const olricStartupTimeout = 15 * time.Second

// LockService holds the refresh-lock backend.
type LockService struct {
	Locker lock.Locker
	olric  *lock.OlricLocker
}

// NewLockService builds the locker selected by config: in-process memory
// for single-node deployments, olric embedded or client for clusters.
func NewLockService(i do.Injector) (*LockService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Get()

	mode := cfg.Lock.GetMode()
	if mode == config.LockModeMemory {
		return &LockService{Locker: lock.NewMemoryLocker()}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), olricStartupTimeout)
	defer cancel()

	locker, err := lock.NewOlricLocker(ctx, lock.OlricConfig{
		Embedded:  mode == config.LockModeEmbedded,
		BindAddr:  cfg.Lock.BindAddr,
		Peers:     cfg.Lock.Peers,
		Addresses: cfg.Lock.Addresses,
		DMapName:  cfg.Lock.DMapName,
	})
	if err != nil {
		return nil, fmt.Errorf("olric locker (%s): %w", mode, err)
	}

	log.Info().Str("mode", mode).Msg("distributed refresh lock ready")
	return &LockService{Locker: locker, olric: locker}, nil
}

// Shutdown implements do.Shutdowner; memory lockers have nothing to close.
func (s *LockService) Shutdown() error {
	if s.olric != nil {
		return s.olric.Close()
	}
	return nil
}
