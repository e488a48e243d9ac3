package di

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/searchbridge/searchbridge/internal/config"
)

// ConfigService owns the loaded configuration and its hot-reload watcher.
// Reads go through an atomic pointer so in-flight requests keep the config
// they started with.
type ConfigService struct {
	current atomic.Pointer[config.Config]
	watcher *config.Watcher
	path    string
}

var _ config.RuntimeConfig = (*ConfigService)(nil)

// Get returns the current configuration.
func (c *ConfigService) Get() *config.Config {
	return c.current.Load()
}

// OnReload registers a callback on the underlying watcher, if any.
func (c *ConfigService) OnReload(cb config.ReloadCallback) {
	if c.watcher != nil {
		c.watcher.OnReload(cb)
	}
}

// StartWatching swaps the config pointer on every successful reload and
// runs the watch loop until ctx is canceled. No-op without a config file.
func (c *ConfigService) StartWatching(ctx context.Context) {
	if c.watcher == nil {
		return
	}

	c.watcher.OnReload(func(newCfg *config.Config) error {
		c.current.Store(newCfg)
		log.Info().Str("path", c.path).Msg("config hot-reloaded")
		return nil
	})

	go func() {
		if err := c.watcher.Watch(ctx); err != nil {
			log.Error().Err(err).Msg("config watcher stopped")
		}
	}()
	log.Info().Str("path", c.path).Msg("config file watcher started")
}

// Shutdown implements do.Shutdowner.
func (c *ConfigService) Shutdown() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// NewConfigService loads configuration from the container's config path, or
// from environment variables when the path is empty.
func NewConfigService(i do.Injector) (*ConfigService, error) {
	path := do.MustInvokeNamed[string](i, ConfigPathKey)

	svc := &ConfigService{path: path}

	if path == "" {
		cfg, err := config.LoadFromEnv()
		if err != nil {
			return nil, fmt.Errorf("load config from env: %w", err)
		}
		svc.current.Store(cfg)
		return svc, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	svc.current.Store(cfg)

	// Hot reload is optional; a watcher failure only disables it.
	watcher, err := config.NewWatcher(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config watcher creation failed, hot reload disabled")
	} else {
		svc.watcher = watcher
	}
	return svc, nil
}
