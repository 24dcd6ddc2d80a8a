package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dsatutor/internal/config"
	"dsatutor/internal/logger"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "dsa-tutor",
	Short: "Chat with an AI tutor for data structures and algorithms",
	Long: `dsa-tutor keeps a set of chat sessions with an AI tutor specialised in
data structures and algorithms. Sessions are stored locally and responses are
streamed to clients over Server-Sent Events.

Quick Start:
  dsa-tutor serve                 # start the HTTP API on :8090
  dsa-tutor sessions              # list stored sessions
  dsa-tutor reset --yes           # delete all stored sessions`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DSA_TUTOR_CONFIG"), "Path to a JSON or YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// loadConfig reads the config and sets up logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger.Init(level)
	return cfg, nil
}
