// Package config loads agent settings from defaults, an optional JSON
// file, and VEHICLEMANAGE_* environment overrides, in that precedence.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fbittq01/vehicle-manage/errors"
)

// EnvPrefix namespaces all environment overrides
const EnvPrefix = "VEHICLEMANAGE_"

// Duration wraps time.Duration to accept "5s"-style strings in JSON
type Duration time.Duration

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON emits the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts either a duration string or nanoseconds
func (d *Duration) UnmarshalJSON(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(time.Duration(val))
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
}

// Config holds all agent settings
type Config struct {
	// Collector link
	CollectorURL       string `json:"collector_url"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`

	// Reconnection
	MaxReconnectAttempts int      `json:"max_reconnect_attempts"`
	ReconnectBaseDelay   Duration `json:"reconnect_base_delay"`
	HandshakeTimeout     Duration `json:"handshake_timeout"`
	WriteTimeout         Duration `json:"write_timeout"`
	PingInterval         Duration `json:"ping_interval"`
	PongWait             Duration `json:"pong_wait"`

	// Producers
	DetectionMinInterval Duration `json:"detection_min_interval"`
	DetectionMaxInterval Duration `json:"detection_max_interval"`
	DetectionRate        float64  `json:"detection_rate"`
	StatusInterval       Duration `json:"status_interval"`

	// Dispatch
	DispatchQueueSize int `json:"dispatch_queue_size"`

	// Lifecycle
	StartDegraded   bool     `json:"start_degraded"`
	ExitOnGiveUp    bool     `json:"exit_on_give_up"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`

	// Device identity
	CameraID   string `json:"camera_id"`
	DeviceName string `json:"device_name"`

	// Observability
	MetricsPort int `json:"metrics_port"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		CollectorURL:         "ws://localhost:8080/ws",
		MaxReconnectAttempts: 10,
		ReconnectBaseDelay:   Duration(5 * time.Second),
		HandshakeTimeout:     Duration(45 * time.Second),
		WriteTimeout:         Duration(10 * time.Second),
		PingInterval:         Duration(20 * time.Second),
		PongWait:             Duration(10 * time.Second),
		DetectionMinInterval: Duration(3 * time.Second),
		DetectionMaxInterval: Duration(8 * time.Second),
		DetectionRate:        0.3,
		StatusInterval:       Duration(30 * time.Second),
		DispatchQueueSize:    100,
		ShutdownTimeout:      Duration(5 * time.Second),
		MetricsPort:          0, // disabled unless set
	}
}

// Load builds the effective configuration: defaults, then the JSON file
// at path (if non-empty), then environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load",
				fmt.Sprintf("read config file %s", path))
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load",
				fmt.Sprintf("parse config file %s", path))
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.CollectorURL, "COLLECTOR_URL")
	setBool(&c.InsecureSkipVerify, "INSECURE_SKIP_VERIFY")
	setInt(&c.MaxReconnectAttempts, "MAX_RECONNECT_ATTEMPTS")
	setDuration(&c.ReconnectBaseDelay, "RECONNECT_BASE_DELAY")
	setDuration(&c.HandshakeTimeout, "HANDSHAKE_TIMEOUT")
	setDuration(&c.WriteTimeout, "WRITE_TIMEOUT")
	setDuration(&c.PingInterval, "PING_INTERVAL")
	setDuration(&c.PongWait, "PONG_WAIT")
	setDuration(&c.DetectionMinInterval, "DETECTION_MIN_INTERVAL")
	setDuration(&c.DetectionMaxInterval, "DETECTION_MAX_INTERVAL")
	setFloat(&c.DetectionRate, "DETECTION_RATE")
	setDuration(&c.StatusInterval, "STATUS_INTERVAL")
	setInt(&c.DispatchQueueSize, "DISPATCH_QUEUE_SIZE")
	setBool(&c.StartDegraded, "START_DEGRADED")
	setBool(&c.ExitOnGiveUp, "EXIT_ON_GIVE_UP")
	setDuration(&c.ShutdownTimeout, "SHUTDOWN_TIMEOUT")
	setString(&c.CameraID, "CAMERA_ID")
	setString(&c.DeviceName, "DEVICE_NAME")
	setInt(&c.MetricsPort, "METRICS_PORT")
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	u, err := url.Parse(c.CollectorURL)
	if err != nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("collector URL %q unparseable", c.CollectorURL))
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("collector URL scheme %q must be ws or wss", u.Scheme))
	}
	if u.Host == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"collector URL missing host")
	}

	if c.MaxReconnectAttempts <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_reconnect_attempts must be positive")
	}
	if c.ReconnectBaseDelay.Std() <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"reconnect_base_delay must be positive")
	}
	if c.DetectionMinInterval.Std() <= 0 ||
		c.DetectionMaxInterval.Std() < c.DetectionMinInterval.Std() {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"detection interval bounds invalid")
	}
	if c.DetectionRate < 0 || c.DetectionRate > 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"detection_rate must be within [0,1]")
	}
	if c.StatusInterval.Std() <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"status_interval must be positive")
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"metrics_port out of range")
	}
	return nil
}

// String renders the effective configuration as indented JSON
func (c *Config) String() string {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("config marshal error: %v", err)
	}
	return string(raw)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = Duration(parsed)
		}
	}
}
