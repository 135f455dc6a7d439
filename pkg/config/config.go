// Package config provides configuration loading for the sidecar. Flags and
// environment variables override what the YAML file sets.
package config

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Config is the structure of the onid.yaml file.
type Config struct {
	Port             int    `yaml:"port"`
	DatabaseURL      string `yaml:"database_url"`
	LogLevel         string `yaml:"log_level"`
	HistoryLimit     int    `yaml:"history_limit"`
	LogLimit         int    `yaml:"log_limit"`
	SequentialFanOut bool   `yaml:"sequential_fan_out"`
}

// Default returns the configuration the sidecar boots with when no file and
// no flags are given. The port matches what the shell's launcher polls.
func Default() Config {
	return Config{
		Port:         5173,
		DatabaseURL:  "memory://",
		LogLevel:     "info",
		HistoryLimit: 500,
		LogLimit:     200,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := Validate(config); err != nil {
		return config, err
	}

	return config, nil
}

// LoadOrDefault loads the config file, falling back to the defaults when the
// file is missing or unreadable.
func LoadOrDefault(path string) Config {
	config, err := Load(path)
	if err != nil {
		return Default()
	}

	return config
}

// Validate checks the configuration values.
func Validate(config Config) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("port out of range: %d", config.Port)
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(levels, config.LogLevel) {
		return fmt.Errorf("unknown log level '%s'", config.LogLevel)
	}

	if config.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must not be negative: %d", config.HistoryLimit)
	}

	if config.LogLimit < 0 {
		return fmt.Errorf("log_limit must not be negative: %d", config.LogLimit)
	}

	return nil
}
