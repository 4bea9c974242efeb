// Package config loads and validates appcore runtime configuration.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete appcore configuration
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Tasks   TasksConfig   `mapstructure:"tasks"`
	Events  EventsConfig  `mapstructure:"events"`
}

// LoggingConfig controls diagnostic logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Path is the log file path. Empty writes to stderr (default: "")
	Path string `mapstructure:"path"`
}

// TasksConfig controls the task orchestrator
type TasksConfig struct {
	// MaxConcurrent caps how many operations run simultaneously.
	// 0 means unlimited (default: 0)
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// ShutdownGraceMs is how long Close waits for outstanding tasks to
	// observe cancellation before giving up (default: 5000)
	ShutdownGraceMs int `mapstructure:"shutdown_grace_ms"`
}

// EventsConfig controls the event bus
type EventsConfig struct {
	// WarnUnhandled logs a warning when an event is published with no
	// subscribers for its type (default: false)
	WarnUnhandled bool `mapstructure:"warn_unhandled"`
}

// ShutdownGrace returns the shutdown grace period as a time.Duration
func (c *TasksConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceMs) * time.Millisecond
}

// Default returns a Config populated with default values
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
			Path:  "",
		},
		Tasks: TasksConfig{
			MaxConcurrent:   0, // Unlimited by default
			ShutdownGraceMs: 5000,
		},
		Events: EventsConfig{
			WarnUnhandled: false,
		},
	}
}

// ConfigDir returns the directory searched for appcore.yaml when no explicit
// path is given: $XDG_CONFIG_HOME/appcore, else ~/.config/appcore.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "appcore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "appcore")
}

// setDefaults registers default values with viper
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.path", defaults.Logging.Path)

	v.SetDefault("tasks.max_concurrent", defaults.Tasks.MaxConcurrent)
	v.SetDefault("tasks.shutdown_grace_ms", defaults.Tasks.ShutdownGraceMs)

	v.SetDefault("events.warn_unhandled", defaults.Events.WarnUnhandled)
}

// Load reads the configuration from the given file path. If path is empty,
// it searches for appcore.yaml in ConfigDir() and the current directory.
// Environment variables prefixed with APPCORE_ override file values
// (e.g. APPCORE_LOGGING_LEVEL=debug). A missing config file is not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("appcore")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("APPCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// An explicit path must exist; search paths may come up empty.
		if path != "" {
			return nil, err
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}
