// Package config loads linkcup configuration.
//
// Values are layered: DefaultConfig, then an optional TOML file, then
// LINKCUP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/teslashibe/go-linkcup/pkg/report"
	"github.com/teslashibe/go-linkcup/pkg/session"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Config holds all linkcup configuration.
type Config struct {
	LogLevel  string `toml:"log_level" env:"LINKCUP_LOG_LEVEL"`
	LogFormat string `toml:"log_format" env:"LINKCUP_LOG_FORMAT"`

	Server    ServerConfig    `toml:"server"`
	Engine    session.Config  `toml:"engine"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Report    report.Config   `toml:"report"`
	Store     StoreConfig     `toml:"store"`
	Recording RecordingConfig `toml:"recording"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

type ServerConfig struct {
	Port  int  `toml:"port" env:"LINKCUP_PORT"`
	Debug bool `toml:"debug" env:"LINKCUP_DEBUG"`
}

type GatewayConfig struct {
	// KeyCooldown drops device key presses that follow an accepted one
	// too closely.
	KeyCooldown time.Duration `toml:"key_cooldown" env:"LINKCUP_KEY_COOLDOWN"`
}

type StoreConfig struct {
	// Path to the SQLite database. Empty disables session history.
	Path string `toml:"path" env:"LINKCUP_DB_PATH"`
}

type RecordingConfig struct {
	Enabled bool   `toml:"enabled" env:"LINKCUP_RECORD"`
	Dir     string `toml:"dir" env:"LINKCUP_RECORD_DIR"`
}

type MetricsConfig struct {
	Enabled     bool          `toml:"enabled" env:"LINKCUP_METRICS_ENABLED"`
	Endpoint    string        `toml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string        `toml:"service_name" env:"OTEL_SERVICE_NAME"`
	Interval    time.Duration `toml:"interval" env:"LINKCUP_METRICS_INTERVAL"`
	Insecure    bool          `toml:"insecure" env:"LINKCUP_METRICS_INSECURE"`
}

// DefaultConfig returns config with the stock tuning.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port: 8080,
		},
		Engine: session.DefaultConfig(),
		Gateway: GatewayConfig{
			KeyCooldown: 5 * time.Second,
		},
		Report: report.DefaultConfig(),
		Store: StoreConfig{
			Path: "linkcup.db",
		},
		Recording: RecordingConfig{
			Dir: "recordings",
		},
		Metrics: MetricsConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "linkcup",
			Interval:    30 * time.Second,
			Insecure:    true,
		},
	}
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	if c.Gateway.KeyCooldown < 0 {
		return fmt.Errorf("%w: gateway.key_cooldown must not be negative", ErrInvalid)
	}
	if c.Report.Countdown <= 0 || c.Report.Cooldown <= 0 {
		return fmt.Errorf("%w: report timings must be positive", ErrInvalid)
	}
	if c.Recording.Enabled && c.Recording.Dir == "" {
		return fmt.Errorf("%w: recording.dir is required when recording is enabled", ErrInvalid)
	}
	if c.Metrics.Enabled && c.Metrics.Interval <= 0 {
		return fmt.Errorf("%w: metrics.interval must be positive", ErrInvalid)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("%w: engine: %v", ErrInvalid, err)
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// PathFromEnv returns LINKCUP_CONFIG, or "" when unset.
func PathFromEnv() string {
	return os.Getenv("LINKCUP_CONFIG")
}
