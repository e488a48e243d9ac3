package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig is a minimal valid configuration for testing.
const validConfig = `
server:
  listen: ":8701"
logging:
  level: info
  format: json
secrets:
  key_encryption_secret: "01234567890123456789012345678901"
tavily:
  keys:
    - tvly-container-test
  selection_strategy: round_robin
brave:
  api_key: brv-container-test
tokens:
  - name: test-client
    prefix: mcp_testtest
    secret_hash: 0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef
`

func createTempConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o600))
	return path
}

func TestNewContainer(t *testing.T) {
	t.Run("creates container with valid config", func(t *testing.T) {
		container, err := NewContainer(createTempConfigFile(t))
		require.NoError(t, err)
		require.NotNil(t, container)
		assert.NotNil(t, container.Injector())

		assert.NoError(t, container.Shutdown())
	})

	t.Run("empty path loads from environment", func(t *testing.T) {
		t.Setenv("SEARCHBRIDGE_LISTEN", ":8702")

		container, err := NewContainer("")
		require.NoError(t, err)

		cfgSvc := MustInvoke[*ConfigService](container)
		assert.Equal(t, ":8702", cfgSvc.Get().Server.GetListen())

		assert.NoError(t, container.Shutdown())
	})

	t.Run("fails fast on missing config file", func(t *testing.T) {
		container, err := NewContainer("/nonexistent/config.yaml")
		assert.Error(t, err)
		assert.Nil(t, container)
	})

	t.Run("fails fast on invalid config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		// Tavily keys without an encryption secret must be rejected.
		require.NoError(t, os.WriteFile(path, []byte("tavily:\n  keys:\n    - tvly-x\n"), 0o600))

		container, err := NewContainer(path)
		assert.Error(t, err)
		assert.Nil(t, container)
	})
}

func TestContainerInvoke(t *testing.T) {
	configPath := createTempConfigFile(t)
	container, err := NewContainer(configPath)
	require.NoError(t, err)
	defer func() { _ = container.Shutdown() }()

	t.Run("Invoke resolves config service", func(t *testing.T) {
		cfgSvc, err := Invoke[*ConfigService](container)
		require.NoError(t, err)
		assert.Equal(t, ":8701", cfgSvc.Get().Server.GetListen())
	})

	t.Run("MustInvoke resolves config service", func(t *testing.T) {
		assert.NotNil(t, MustInvoke[*ConfigService](container).Get())
	})

	t.Run("InvokeNamed resolves config path", func(t *testing.T) {
		path, err := InvokeNamed[string](container, ConfigPathKey)
		require.NoError(t, err)
		assert.Equal(t, configPath, path)
	})

	t.Run("MustInvokeNamed resolves config path", func(t *testing.T) {
		assert.Equal(t, configPath, MustInvokeNamed[string](container, ConfigPathKey))
	})
}

func TestContainerServiceGraph(t *testing.T) {
	container, err := NewContainer(createTempConfigFile(t))
	require.NoError(t, err)
	defer func() { _ = container.Shutdown() }()

	serverSvc, err := Invoke[*ServerService](container)
	require.NoError(t, err)
	require.NotNil(t, serverSvc.Server)
	assert.Equal(t, ":8701", serverSvc.Server.Addr())

	t.Run("both providers are wired", func(t *testing.T) {
		assert.NotNil(t, MustInvoke[*BraveService](container).Client)
		assert.NotNil(t, MustInvoke[*TavilyService](container).Client)
		assert.NotNil(t, MustInvoke[*KeyPoolService](container).Pool)
	})

	t.Run("transport services are wired", func(t *testing.T) {
		assert.NotNil(t, MustInvoke[*DispatcherService](container).Dispatcher)
		handlerSvc := MustInvoke[*HandlerService](container)
		assert.NotNil(t, handlerSvc.Handler)
		assert.NotNil(t, handlerSvc.Sessions)
	})

	t.Run("health check passes", func(t *testing.T) {
		assert.NoError(t, container.HealthCheck())
	})
}

func TestContainerProvidersOptional(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen: \":8703\"\n"), 0o600))

	container, err := NewContainer(path)
	require.NoError(t, err)
	defer func() { _ = container.Shutdown() }()

	assert.Nil(t, MustInvoke[*BraveService](container).Client)
	assert.Nil(t, MustInvoke[*TavilyService](container).Client)
	assert.Nil(t, MustInvoke[*KeyPoolService](container).Pool)

	// The dispatcher still builds; tavily tools report errors at call time.
	assert.NotNil(t, MustInvoke[*DispatcherService](container).Dispatcher)
}

func TestContainerShutdown(t *testing.T) {
	t.Run("shutdown cleans up initialized services", func(t *testing.T) {
		container, err := NewContainer(createTempConfigFile(t))
		require.NoError(t, err)

		_, err = Invoke[*ServerService](container)
		require.NoError(t, err)

		assert.NoError(t, container.Shutdown())
	})

	t.Run("ShutdownWithContext respects timeout", func(t *testing.T) {
		container, err := NewContainer(createTempConfigFile(t))
		require.NoError(t, err)

		_, err = Invoke[*UsageService](container)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, container.ShutdownWithContext(ctx))
	})
}
