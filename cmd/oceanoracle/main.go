package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/oceanoracle/internal/config"
	"github.com/rewired-gh/oceanoracle/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "oceanoracle",
	Short: "Ocean Oracle - Argo data cache and regional model service",
	Long: `Ocean Oracle fetches Argo float profiles for configured ocean regions,
caches them on disk, trains temperature and salinity models per region and
serves analyses, predictions and fishing advice over HTTP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (defaults and environment only when empty)")
}

// loadConfig loads, validates and applies the logging configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if configPath != "" {
		logger.Info("Configuration loaded from %s", configPath)
	} else {
		logger.Debug("No configuration file given, using defaults and environment")
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
