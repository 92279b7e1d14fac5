package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"swarm-gcs/internal/config"
	"swarm-gcs/internal/logging"
)

var (
	configPath string
	schemaPath string
	logFile    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "swarm-gcs",
	Short: "Drone swarm ground control station",
	Long:  "swarm-gcs runs a ground control station for a simulated drone swarm and replays recorded telemetry.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/simulation.yaml", "Path to simulation configuration YAML")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "schemas/simulation.cue", "Path to CUE schema file (empty skips validation)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write application logs to a rotated file instead of STDOUT")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
}

// loadConfig reads the configuration file, or falls back to the defaults
// plus environment overrides when the file does not exist.
func loadConfig() (*config.SimulationConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := config.Default()
		if err := cfg.ApplyEnv(); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}
	return config.Load(configPath, schemaPath)
}

// newLogger builds the application logger. quiet routes logs away from
// STDOUT when the console owns the terminal.
func newLogger(quiet bool) (*slog.Logger, io.Closer) {
	path := logFile
	if path == "" && quiet {
		path = "swarm-gcs.log"
	}
	if path != "" {
		return logging.NewFile(path, logging.ParseLevel(logLevel))
	}
	return logging.New(logging.ParseLevel(logLevel)), nopCloser{}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func withLogger(ctx context.Context, l *slog.Logger) context.Context {
	slog.SetDefault(l)
	return logging.NewContext(ctx, l)
}
