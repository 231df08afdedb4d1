package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	CollectorURL    string
	LogLevel        string
	LogFormat       string
	Debug           bool
	MetricsPort     int
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("VEHICLEMANAGE_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: VEHICLEMANAGE_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("VEHICLEMANAGE_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: VEHICLEMANAGE_CONFIG)")

	flag.StringVar(&cfg.CollectorURL, "collector-url",
		getEnv("VEHICLEMANAGE_COLLECTOR_URL", ""),
		"Collector WebSocket URL, overrides config file (env: VEHICLEMANAGE_COLLECTOR_URL)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("VEHICLEMANAGE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: VEHICLEMANAGE_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("VEHICLEMANAGE_LOG_FORMAT", "json"),
		"Log format: json, text (env: VEHICLEMANAGE_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("VEHICLEMANAGE_DEBUG", false),
		"Enable debug mode (env: VEHICLEMANAGE_DEBUG)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("VEHICLEMANAGE_METRICS_PORT", 0),
		"Prometheus metrics port, 0 to disable (env: VEHICLEMANAGE_METRICS_PORT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("VEHICLEMANAGE_SHUTDOWN_TIMEOUT", 5*time.Second),
		"Graceful shutdown timeout (env: VEHICLEMANAGE_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - License Plate Recognition Agent

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run against a local collector
  %s --collector-url=ws://localhost:8080/ws

  # Run with a config file and debug logging
  %s --config=/etc/plateagent/agent.json --log-level=debug --log-format=text

  # Run with environment variables
  export VEHICLEMANAGE_COLLECTOR_URL=wss://collector.example.com/ws
  export VEHICLEMANAGE_LOG_LEVEL=debug
  %s

  # Validate configuration only
  %s --config=/etc/plateagent/agent.json --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
