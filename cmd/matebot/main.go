// Package main provides the CLI entry point for the MateBot Telegram bot.
//
// The bot forwards commands typed in Telegram chats to the MateBot core
// service, which keeps balances, transactions and communisms.
//
// # Basic Usage
//
// Start the bot:
//
//	matebot serve --config matebot.yaml
//
// List the commands and their usages:
//
//	matebot commands --offline
//
// Check how a command line is understood:
//
//	matebot parse --offline '/send 1.50 @bob pizza'
//
// # Environment Variables
//
//   - MATEBOT_CONFIG: Path to configuration file (default: matebot.yaml)
//
// Configuration files may reference environment variables as ${NAME}.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "matebot.yaml"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "matebot",
		Short: "MateBot - Telegram frontend for the MateBot core service",
		Long: `MateBot lets a community track drinks, shared expenses and balances
from Telegram chats. Every transaction is kept by the MateBot core service.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildCommandsCmd(),
		buildParseCmd(),
		buildVersionCmd(),
	)

	return rootCmd
}

// resolveConfigPath picks the flag value, then MATEBOT_CONFIG, then the
// default file name.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" && path != defaultConfigPath {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("MATEBOT_CONFIG")); env != "" {
		return env
	}
	return defaultConfigPath
}
