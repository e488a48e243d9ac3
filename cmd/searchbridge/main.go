// Package main is the entry point for searchbridge.
package main

import (
	"context"
	"os"

	"charm.land/fang/v2"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "config.yaml"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "searchbridge",
	Short: "Multi-provider MCP search bridge",
	Long: `searchbridge exposes web and local search tools over the Model Context
Protocol, fanning requests out to Tavily and Brave with encrypted key
rotation, credit-aware selection, and per-provider request pacing.`,
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (default: ./"+defaultConfigFile+", ~/.config/searchbridge/"+defaultConfigFile+", or environment variables)")
}

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}
