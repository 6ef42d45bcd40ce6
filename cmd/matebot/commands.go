package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that runs the bot.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Long: `Run the Telegram bot.

The bot will:
1. Load configuration from the specified file (or matebot.yaml)
2. Log in to the MateBot core service
3. Register the built-in commands and one command per consumable
4. Publish the command list to Telegram
5. Receive updates by long polling or webhook
6. Serve Prometheus metrics when enabled

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  matebot serve

  # Start with custom config and debug logging
  matebot serve --config /etc/matebot/config.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

// buildCommandsCmd creates the "commands" command that prints every
// registered command with its usages.
func buildCommandsCmd() *cobra.Command {
	var (
		configPath string
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List registered commands and their usages",
		Example: `  # Use the built-in demo ledger
  matebot commands --offline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommands(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(configPath), offline)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use an in-memory demo ledger instead of the core service")

	return cmd
}

// buildParseCmd creates the "parse" command that shows how a command line
// binds to a command's arguments.
func buildParseCmd() *cobra.Command {
	var (
		configPath string
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "parse <command line>",
		Short: "Parse a command line and print the bound arguments",
		Example: `  matebot parse --offline '/send 1.50 @bob pizza'
  matebot parse --offline /communism stop`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.Join(args, " ")
			return runParse(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(configPath), offline, line)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use an in-memory demo ledger instead of the core service")

	return cmd
}

// buildVersionCmd creates the "version" command.
func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "matebot %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
		},
	}
}
