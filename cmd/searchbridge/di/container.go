// Package di wires searchbridge services into a samber/do v2 container.
package di

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"
)

// ConfigPathKey is the named key for the config file path. Empty means
// configuration comes from environment variables alone.
const ConfigPathKey = "config.path"

// Container wraps the do.Injector with searchbridge registrations.
type Container struct {
	injector *do.RootScope
}

// NewContainer creates the DI container. configPath may be empty. The
// config service is resolved eagerly so a broken config fails fast.
func NewContainer(configPath string) (*Container, error) {
	injector := do.New()
	do.ProvideNamedValue(injector, ConfigPathKey, configPath)
	RegisterSingletons(injector)

	if _, err := do.Invoke[*ConfigService](injector); err != nil {
		return nil, err
	}
	return &Container{injector: injector}, nil
}

// Injector returns the underlying do injector.
func (c *Container) Injector() *do.RootScope {
	return c.injector
}

// Invoke resolves a service from the container.
func Invoke[T any](c *Container) (T, error) {
	return do.Invoke[T](c.injector)
}

// MustInvoke resolves a service or panics. Startup use only.
func MustInvoke[T any](c *Container) T {
	return do.MustInvoke[T](c.injector)
}

// InvokeNamed resolves a named value from the container.
func InvokeNamed[T any](c *Container, name string) (T, error) {
	return do.InvokeNamed[T](c.injector, name)
}

// MustInvokeNamed resolves a named value or panics. Startup use only.
func MustInvokeNamed[T any](c *Container, name string) T {
	return do.MustInvokeNamed[T](c.injector, name)
}

// HealthCheck verifies the service graph resolves. Triggers lazy
// initialization and catches wiring errors early.
func (c *Container) HealthCheck() error {
	if _, err := do.Invoke[*ConfigService](c.injector); err != nil {
		return fmt.Errorf("config service unhealthy: %w", err)
	}
	if _, err := do.Invoke[*ServerService](c.injector); err != nil {
		return fmt.Errorf("server service unhealthy: %w", err)
	}
	return nil
}

// Shutdown stops all services in reverse initialization order.
func (c *Container) Shutdown() error {
	report := c.injector.Shutdown()
	if report != nil && !report.Succeed {
		return fmt.Errorf("shutdown failed: %s", report.Error())
	}
	return nil
}

// ShutdownWithContext is Shutdown bounded by ctx.
func (c *Container) ShutdownWithContext(ctx context.Context) error {
	done := make(chan *do.ShutdownReport, 1)
	go func() {
		done <- c.injector.ShutdownWithContext(ctx)
	}()

	select {
	case report := <-done:
		if report != nil && !report.Succeed {
			return fmt.Errorf("shutdown failed: %s", report.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// RegisterSingletons registers every service provider in dependency order:
// config, logger, store and cipher, locker, key pool, provider clients,
// router, auth, usage, dispatcher, handler, server.
func RegisterSingletons(i do.Injector) {
	do.Provide(i, NewConfigService)
	do.Provide(i, NewLoggerService)
	do.Provide(i, NewStoreService)
	do.Provide(i, NewCipherService)
	do.Provide(i, NewLockService)
	do.Provide(i, NewKeyPoolService)
	do.Provide(i, NewRateGateService)
	do.Provide(i, NewBreakerService)
	do.Provide(i, NewBraveService)
	do.Provide(i, NewTavilyService)
	do.Provide(i, NewRouterService)
	do.Provide(i, NewAuthService)
	do.Provide(i, NewUsageService)
	do.Provide(i, NewDispatcherService)
	do.Provide(i, NewHandlerService)
	do.Provide(i, NewServerService)
}
