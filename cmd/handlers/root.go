package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tedsan/daily-topic/internal/config"
	"github.com/Tedsan/daily-topic/internal/logger"
)

var (
	cfgFile  string
	logLevel string
)

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "daily-topic",
		Short: "Daily Topic collects shared links, summarizes them by category and posts a digest.",
		Long: `Daily Topic reads the links posted to a chat channel (and optional feeds),
fetches and cleans the articles, sorts them into six fixed categories by
keyword scoring, asks a language model for one summary per category and
posts the digest back to chat.

Examples:
  # Run once and post the digest
  daily-topic run

  # Run without posting and write the digest to a file
  daily-topic run --dry-run --output digest.md

  # Run every morning at 08:00 in the configured timezone
  daily-topic serve --cron "0 8 * * *"`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.daily-topic.yaml or $HOME/.daily-topic.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewExtractURLsCmd())
	rootCmd.AddCommand(NewClassifyCmd())
	rootCmd.AddCommand(NewCategoriesCmd())
	rootCmd.AddCommand(NewStatsCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and configures the logger from it.
// Commands that never reach the chat platform or the model pass strict=false.
func loadConfig(strict bool) (*config.Config, error) {
	load := config.Read
	if strict {
		load = config.Load
	}

	cfg, err := load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger.Configure(logger.Options{
		Level:       level,
		Environment: cfg.App.Environment,
		Output:      os.Stderr,
	})
	return cfg, nil
}
