package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration.
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Server basics
	Addr      string `env:"CHAT_ADDR" envDefault:":6969"`
	TokenFile string `env:"CHAT_TOKEN_FILE" envDefault:"./TOKEN"`

	// Abuse mitigation policy
	BanLimit       time.Duration `env:"CHAT_BAN_LIMIT" envDefault:"10m"`
	MessageRate    time.Duration `env:"CHAT_MESSAGE_RATE" envDefault:"1s"`
	SlowlorisLimit time.Duration `env:"CHAT_SLOWLORIS_LIMIT" envDefault:"200ms"`
	StrikeLimit    int           `env:"CHAT_STRIKE_LIMIT" envDefault:"10"`

	// Tick granularity for the slow-connect sweep. Clamped to
	// SlowlorisLimit/4 so expiry fires within one limit of the deadline.
	TickInterval time.Duration `env:"CHAT_TICK_INTERVAL" envDefault:"16ms"`

	// Monitoring
	MetricsAddr     string        `env:"CHAT_METRICS_ADDR" envDefault:":9100"`
	MetricsInterval time.Duration `env:"CHAT_METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	SafeMode  bool   `env:"CHAT_SAFE_MODE" envDefault:"false"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from a .env file and environment variables.
// Priority: ENV vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	// .env is a development convenience; in production the environment
	// is set directly, so a missing file is not an error.
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// The sweep must run at least 4x per SLOWLORIS_LIMIT or expiry can
	// lag a full limit behind the deadline.
	if cfg.TickInterval > cfg.SlowlorisLimit/4 {
		cfg.TickInterval = cfg.SlowlorisLimit / 4
	}

	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("CHAT_ADDR is required")
	}
	if c.TokenFile == "" {
		return fmt.Errorf("CHAT_TOKEN_FILE is required")
	}
	if c.BanLimit <= 0 {
		return fmt.Errorf("CHAT_BAN_LIMIT must be > 0, got %v", c.BanLimit)
	}
	if c.MessageRate <= 0 {
		return fmt.Errorf("CHAT_MESSAGE_RATE must be > 0, got %v", c.MessageRate)
	}
	if c.SlowlorisLimit <= 0 {
		return fmt.Errorf("CHAT_SLOWLORIS_LIMIT must be > 0, got %v", c.SlowlorisLimit)
	}
	if c.StrikeLimit < 1 {
		return fmt.Errorf("CHAT_STRIKE_LIMIT must be >= 1, got %d", c.StrikeLimit)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("CHAT_TICK_INTERVAL must be > 0, got %v", c.TickInterval)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("CHAT_METRICS_INTERVAL must be > 0, got %v", c.MetricsInterval)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig logs the loaded configuration with structured fields.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("addr", c.Addr).
		Str("token_file", c.TokenFile).
		Dur("ban_limit", c.BanLimit).
		Dur("message_rate", c.MessageRate).
		Dur("slowloris_limit", c.SlowlorisLimit).
		Int("strike_limit", c.StrikeLimit).
		Dur("tick_interval", c.TickInterval).
		Str("metrics_addr", c.MetricsAddr).
		Dur("metrics_interval", c.MetricsInterval).
		Bool("safe_mode", c.SafeMode).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Server configuration loaded")
}
