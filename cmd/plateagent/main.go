// Package main implements the entry point for the plateagent binary.
// plateagent is a camera-side license plate recognition agent that pushes
// detection events to a central collector over WebSocket and executes
// commands received back on the same link.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/fbittq01/vehicle-manage/agent"
	"github.com/fbittq01/vehicle-manage/config"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "plateagent"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Agent failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	if cfg.InsecureSkipVerify {
		slog.Warn("TLS certificate verification disabled, do not use in production")
	}

	controller, err := agent.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	// Cancel on SIGINT/SIGTERM; the controller drains on its way out
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return controller.Run(ctx)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting plate recognition agent",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// initializeConfiguration loads the config file and applies CLI overrides
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Flags win over file and environment
	if cliCfg.CollectorURL != "" {
		cfg.CollectorURL = cliCfg.CollectorURL
	}
	if cliCfg.MetricsPort > 0 {
		cfg.MetricsPort = cliCfg.MetricsPort
	}
	if cliCfg.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = config.Duration(cliCfg.ShutdownTimeout)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Debug("Effective configuration", "config", cfg.String())
	return cfg, nil
}
