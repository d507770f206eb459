package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fitbench/fitbench/internal/config"
	"github.com/fitbench/fitbench/internal/pkg/logger"
)

// loadConfig layers explicitly set command flags over defaults, the config
// file and the environment, then validates the result.
func loadConfig(cmd *cobra.Command, applyFlags func(cmd *cobra.Command, cfg *config.Config)) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	stringFlag(cmd, "format", &cfg.Log.Format)
	if applyFlags != nil {
		applyFlags(cmd, cfg)
	}

	cfg.ApplyPreset()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validating flags: %w", err)
	}

	return cfg, logger.New(cfg.Log.Level, cfg.Log.Format), nil
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func stringFlag(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

func intFlag(cmd *cobra.Command, name string, dst *int) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetInt(name)
	}
}

func floatFlag(cmd *cobra.Command, name string, dst *float64) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetFloat64(name)
	}
}

// addTargetFlags registers the flags naming which evaluation run to work on.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("dataset", "ifashion", "dataset (ifashion, polyvore)")
	cmd.Flags().String("mode", "valid", "split (valid, test)")
	cmd.Flags().String("eval-version", "difashion", "evaluated generation run")
	cmd.Flags().String("output-dir", "", "output folder (defaults to the dataset preset)")
	cmd.Flags().String("results-backend", "file", "result store (file, redis)")
	cmd.Flags().String("redis-url", "", "redis URL for the redis result store")
}

func applyTargetFlags(cmd *cobra.Command, cfg *config.Config) {
	stringFlag(cmd, "dataset", &cfg.Dataset)
	stringFlag(cmd, "mode", &cfg.Mode)
	stringFlag(cmd, "eval-version", &cfg.EvalVersion)
	stringFlag(cmd, "output-dir", &cfg.Paths.OutputDir)
	stringFlag(cmd, "results-backend", &cfg.Results.Backend)
	stringFlag(cmd, "redis-url", &cfg.Results.RedisURL)
}
