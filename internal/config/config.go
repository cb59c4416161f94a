// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pnl_engine/internal/core"
)

// Config represents the complete configuration structure
type Config struct {
	System    SystemConfig    `yaml:"system"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Analytics core.Settings   `yaml:"analytics"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ServerConfig contains the websocket server settings
type ServerConfig struct {
	ListenAddr          string  `yaml:"listen_addr"`
	SnapshotsPerSecond  float64 `yaml:"snapshots_per_second"`
	BroadcastPoolSize   int     `yaml:"broadcast_pool_size"`
	BroadcastPoolBuffer int     `yaml:"broadcast_pool_buffer"`
}

// StoreConfig selects the settings persistence backend
type StoreConfig struct {
	Type string `yaml:"type"` // "sqlite" or "memory"
	Path string `yaml:"path"` // database file, sqlite only
}

// ValidationError describes one rejected configuration field
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// DefaultConfig returns a runnable configuration
func DefaultConfig() *Config {
	return &Config{
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: true,
		},
		Analytics: core.DefaultSettings(),
		Server: ServerConfig{
			ListenAddr:          ":8080",
			SnapshotsPerSecond:  10,
			BroadcastPoolSize:   4,
			BroadcastPoolBuffer: 256,
		},
		Store: StoreConfig{
			Type: "memory",
		},
	}
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateTelemetryConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateAnalyticsConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateServerConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateStoreConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateTelemetryConfig() error {
	if c.Telemetry.EnableMetrics && (c.Telemetry.MetricsPort < 1 || c.Telemetry.MetricsPort > 65535) {
		return ValidationError{
			Field:   "telemetry.metrics_port",
			Value:   c.Telemetry.MetricsPort,
			Message: "must be a valid TCP port",
		}
	}
	return nil
}

func (c *Config) validateAnalyticsConfig() error {
	switch c.Analytics.PositionMode {
	case core.PositionByOrder, core.PositionByTrade:
		return nil
	default:
		return ValidationError{
			Field:   "analytics.position_mode",
			Value:   string(c.Analytics.PositionMode),
			Message: "must be 'by_order' or 'by_trade'",
		}
	}
}

func (c *Config) validateServerConfig() error {
	if c.Server.ListenAddr == "" {
		return ValidationError{
			Field:   "server.listen_addr",
			Message: "must not be empty",
		}
	}
	if c.Server.SnapshotsPerSecond <= 0 {
		return ValidationError{
			Field:   "server.snapshots_per_second",
			Value:   c.Server.SnapshotsPerSecond,
			Message: "must be positive",
		}
	}
	if c.Server.BroadcastPoolSize < 1 || c.Server.BroadcastPoolSize > 100 {
		return ValidationError{
			Field:   "server.broadcast_pool_size",
			Value:   c.Server.BroadcastPoolSize,
			Message: "must be between 1 and 100",
		}
	}
	if c.Server.BroadcastPoolBuffer < 1 || c.Server.BroadcastPoolBuffer > 10000 {
		return ValidationError{
			Field:   "server.broadcast_pool_buffer",
			Value:   c.Server.BroadcastPoolBuffer,
			Message: "must be between 1 and 10000",
		}
	}
	return nil
}

func (c *Config) validateStoreConfig() error {
	switch c.Store.Type {
	case "memory":
		return nil
	case "sqlite":
		if c.Store.Path == "" {
			return ValidationError{
				Field:   "store.path",
				Message: "required when store.type is 'sqlite'",
			}
		}
		return nil
	default:
		return ValidationError{
			Field:   "store.type",
			Value:   c.Store.Type,
			Message: "must be 'sqlite' or 'memory'",
		}
	}
}

// expandEnvVars expands ${VAR} references in the YAML content
func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
