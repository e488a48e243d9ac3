package main

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/searchbridge/searchbridge/cmd/searchbridge/di"
	"github.com/searchbridge/searchbridge/internal/mcp"
	"github.com/searchbridge/searchbridge/internal/ro"
)

const tokenEnvVar = "TAVILY_BRIDGE_MCP_TOKEN"

var (
	stdioToken      string
	stdioSourceMode string
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over line-delimited stdin/stdout",
	Long: `Serve the MCP JSON-RPC surface over stdio for clients that spawn the
bridge as a subprocess. The client token comes from --token or the
` + tokenEnvVar + ` environment variable.`,
	RunE: runStdio,
}

func init() {
	stdioCmd.Flags().StringVar(&stdioToken, "token", "",
		"client token (falls back to "+tokenEnvVar+")")
	stdioCmd.Flags().StringVar(&stdioSourceMode, "search-source-mode", "",
		"routing mode: tavily_only, brave_only, combined, brave_prefer_tavily_fallback")
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(_ *cobra.Command, _ []string) error {
	token := stdioToken
	if token == "" {
		token = os.Getenv(tokenEnvVar)
	}
	if token == "" {
		return errors.New("no client token: pass --token or set " + tokenEnvVar)
	}

	// The flag rides the env override so file configs pick it up too.
	if stdioSourceMode != "" {
		if err := os.Setenv("SEARCH_SOURCE_MODE", stdioSourceMode); err != nil {
			return err
		}
	}

	configPath := cfgFile
	if configPath == "" {
		configPath = findConfigFile()
	}

	container, err := di.NewContainer(configPath)
	if err != nil {
		return err
	}

	authSvc, err := di.Invoke[*di.AuthService](container)
	if err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("failed to initialize services")
		return err
	}
	dispatcherSvc := di.MustInvoke[*di.DispatcherService](container)
	poolSvc := di.MustInvoke[*di.KeyPoolService](container)

	var preflight mcp.Preflighter
	if poolSvc.Pool != nil {
		preflight = poolSvc.Pool
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := ro.OnShutdown(ctx, func(_ os.Signal) { cancel() })
	defer sub.Unsubscribe()

	transport := mcp.NewStdioTransport(authSvc.Authenticator, dispatcherSvc.Dispatcher, preflight, os.Stdin, os.Stdout)

	log.Info().Msg("serving MCP over stdio")

	if err := transport.Run(ctx, token); err != nil {
		log.Error().Err(err).Msg("stdio transport error")
		return err
	}

	if err := container.Shutdown(); err != nil {
		log.Error().Err(err).Msg("container shutdown error")
	}

	return nil
}
