// Package config provides Viper-based configuration loading for the roomcast
// server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// AllowedOrigins is the list of origins permitted to open WebSocket
	// connections. A single "*" entry allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// ShutdownTimeout bounds how long graceful shutdown waits for connections
	// to drain.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RelayConfig holds the room relay protocol settings.
type RelayConfig struct {
	// MaxMessageSize is the per-frame read limit in bytes.
	MaxMessageSize int64 `mapstructure:"max_message_size"`
	// EvictionGracePeriod is how long after a disconnect the participant's
	// room membership is retained to allow a rejoin.
	EvictionGracePeriod time.Duration `mapstructure:"eviction_grace_period"`
	// RateLimitBurst is the number of inbound messages a connection may send
	// in a burst before throttling.
	RateLimitBurst int `mapstructure:"rate_limit_burst"`
	// RateLimitRefillInterval is the window over which the burst allowance
	// refills.
	RateLimitRefillInterval time.Duration `mapstructure:"rate_limit_refill_interval"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Relay   RelayConfig   `mapstructure:"relay"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Validate checks all configuration invariants and reports every violation.
func (c Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	if c.Relay.MaxMessageSize < 1 {
		errs = append(errs, fmt.Sprintf("relay.max_message_size must be >= 1, got %d", c.Relay.MaxMessageSize))
	}
	if c.Relay.EvictionGracePeriod < 0 {
		errs = append(errs, "relay.eviction_grace_period must not be negative")
	}
	if c.Relay.RateLimitBurst < 1 {
		errs = append(errs, fmt.Sprintf("relay.rate_limit_burst must be >= 1, got %d", c.Relay.RateLimitBurst))
	}
	if c.Relay.RateLimitRefillInterval <= 0 {
		errs = append(errs, "relay.rate_limit_refill_interval must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Sprintf("logging.format must be one of [json, console], got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path (optional, pass "" to
// use defaults only), applies ROOMCAST_-prefixed environment variable
// overrides, and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetEnvPrefix("ROOMCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:8080"})
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("relay.max_message_size", 512)
	v.SetDefault("relay.eviction_grace_period", "10s")
	v.SetDefault("relay.rate_limit_burst", 5)
	v.SetDefault("relay.rate_limit_refill_interval", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
