package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/searchbridge/searchbridge/cmd/searchbridge/di"
	"github.com/searchbridge/searchbridge/internal/ro"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the searchbridge MCP server",
	Long: `Start the HTTP server that accepts MCP JSON-RPC requests and routes
search calls to the configured providers.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	configPath := cfgFile
	if configPath == "" {
		configPath = findConfigFile()
	}

	container, err := di.NewContainer(configPath)
	if err != nil {
		return err
	}

	serverSvc, err := di.Invoke[*di.ServerService](container)
	if err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("failed to initialize services")
		return err
	}
	server := serverSvc.Server

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	di.MustInvoke[*di.ConfigService](container).StartWatching(ctx)

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan struct{})
	sub := ro.OnShutdown(ctx, func(sig os.Signal) {
		log.Info().Str("signal", sig.String()).Msg("shutting down...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}

		close(done)
	})
	defer sub.Unsubscribe()

	log.Info().Str("listen", server.Addr()).Msg("starting searchbridge")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
		return err
	}

	<-done

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := container.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("container shutdown error")
	}

	log.Info().Msg("server stopped")

	return nil
}

// findConfigFile searches the default locations. An empty result means
// configuration comes from environment variables.
func findConfigFile() string {
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		p := filepath.Join(home, ".config", "searchbridge", defaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
