// Package cli implements the linkcup command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-linkcup/internal/config"
	"github.com/teslashibe/go-linkcup/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "linkcup",
	Short: "Session gateway for linkCUP accessories",
	Long: `linkcup runs the session state machine for connected linkCUP accessories.

Bridges stream device telemetry over WebSocket; linkcup turns it into thrust,
re-insertion, withdrawal and climax events, periodic activity reports and a
session history.`,
	SilenceUsage: true,
}

// Global flags
var (
	configPath string
	logLevel   string
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.PathFromEnv(), "TOML config file (env LINKCUP_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

// loadConfig loads configuration and sets up logging from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log.Setup(log.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, nil
}
