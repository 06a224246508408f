package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/trilhas/internal/bootstrap"
	"github.com/felixgeelhaar/trilhas/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "trilhas",
	Short:         "Administer the trilhas progression engine",
	Long:          "trilhas manages the progression engine: schema migrations, catalog checks, entitlements, account resets, event inspection and the MCP server.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to trilhas.yaml (defaults to ./trilhas.yaml or ~/.trilhas/trilhas.yaml)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config named by --config and installs the logger.
// CLI logs go to stderr so stdout stays clean for command output.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, _ := bootstrap.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openApp loads config and wires the full engine.
func openApp(cmd *cobra.Command) (*bootstrap.App, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return bootstrap.Open(commandContext(cmd), cfg, logger)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "trilhas", Version)
	},
}
