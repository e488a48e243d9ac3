package config_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/searchbridge/searchbridge/internal/config"
)

func TestRuntime(t *testing.T) {
	t.Parallel()

	initial := &config.Config{Routing: config.RoutingConfig{SourceMode: "brave_only"}}
	runtime := config.NewRuntime(initial)
	assert.Same(t, initial, runtime.Get())

	updated := &config.Config{Routing: config.RoutingConfig{SourceMode: "combined"}}
	runtime.Store(updated)
	assert.Same(t, updated, runtime.Get())
}

func TestRuntimeConcurrentAccess(t *testing.T) {
	t.Parallel()

	runtime := config.NewRuntime(config.Default())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			runtime.Store(config.Default())
		}()
		go func() {
			defer wg.Done()
			assert.NotNil(t, runtime.Get())
		}()
	}
	wg.Wait()
}
